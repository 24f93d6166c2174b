// Package jobs carries background task definitions and the asynq worker that
// processes them. Notification delivery runs here so approval decisions never
// wait on outbound channels.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/clearway-fin/clearway/internal/notify"
)

const (
	// QueueDefault carries routine notifications.
	QueueDefault = "default"
	// QueueCritical carries SLA breach and escalation alerts.
	QueueCritical = "critical"

	// TaskTypeDeliverNotification delivers one notification to one user.
	TaskTypeDeliverNotification = "notify:deliver"
)

// DeliverNotificationPayload is the queued form of a notify.Message.
type DeliverNotificationPayload struct {
	UserID    int64  `json:"user_id"`
	InvoiceID int64  `json:"invoice_id"`
	Kind      string `json:"kind"`
	Priority  string `json:"priority"`
	Body      string `json:"body"`
}

// NewDeliverNotificationTask constructs the asynq task for a message.
func NewDeliverNotificationTask(msg notify.Message) (*asynq.Task, error) {
	data, err := json.Marshal(DeliverNotificationPayload{
		UserID:    msg.UserID,
		InvoiceID: msg.InvoiceID,
		Kind:      string(msg.Kind),
		Priority:  string(msg.Priority),
		Body:      msg.Body,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeDeliverNotification, data), nil
}

// queueFor routes critical alerts onto the dedicated queue.
func queueFor(p notify.Priority) string {
	if p == notify.PriorityCritical {
		return QueueCritical
	}
	return QueueDefault
}

// NotificationDeliverer executes delivery tasks. The terminal channel is a
// structured log entry; mail and chat transports hang off the same handler.
type NotificationDeliverer struct {
	Logger *slog.Logger
}

// Handle processes TaskTypeDeliverNotification tasks.
func (d *NotificationDeliverer) Handle(ctx context.Context, t *asynq.Task) error {
	var payload DeliverNotificationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("deliver notification",
		slog.Int64("user_id", payload.UserID),
		slog.Int64("invoice_id", payload.InvoiceID),
		slog.String("kind", payload.Kind),
		slog.String("priority", payload.Priority),
		slog.String("body", payload.Body),
	)
	return nil
}
