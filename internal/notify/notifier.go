// Package notify defines the outbound notification contract. Delivery is
// fire-and-forget: implementations log failures and never surface them into
// workflow state.
package notify

import (
	"context"
	"log/slog"
)

// Kind identifies what happened.
type Kind string

const (
	KindApprovalRequested Kind = "approval.requested"
	KindInvoiceApproved   Kind = "invoice.approved"
	KindInvoiceRejected   Kind = "invoice.rejected"
	KindStageEscalated    Kind = "stage.escalated"
	KindSLABreached       Kind = "sla.breached"
	KindManagerAlert      Kind = "manager.alert"
)

// Priority orders delivery urgency.
type Priority string

const (
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Message is one notification to one user about one invoice.
type Message struct {
	UserID    int64
	InvoiceID int64
	Kind      Kind
	Priority  Priority
	Body      string
}

// Notifier sends messages. Implementations must not block workflow progress on
// delivery failures.
type Notifier interface {
	Notify(ctx context.Context, msg Message)
}

// LogNotifier writes notifications to the log. It backs tests and deployments
// without a delivery queue.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n *LogNotifier) Notify(ctx context.Context, msg Message) {
	n.Logger.Info("notify",
		slog.Int64("user_id", msg.UserID),
		slog.Int64("invoice_id", msg.InvoiceID),
		slog.String("kind", string(msg.Kind)),
		slog.String("priority", string(msg.Priority)),
	)
}
