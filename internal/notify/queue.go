package notify

import (
	"context"
	"log/slog"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Enqueuer hands a message to the delivery queue. The jobs client implements
// this against asynq.
type Enqueuer interface {
	EnqueueNotification(ctx context.Context, msg Message) error
}

// QueueNotifier pushes notifications onto the background delivery queue.
// Enqueue failures are logged and dropped; a lost notification must never roll
// back workflow state.
type QueueNotifier struct {
	queue  Enqueuer
	logger *slog.Logger
}

// NewQueueNotifier constructs a QueueNotifier.
func NewQueueNotifier(queue Enqueuer, logger *slog.Logger) *QueueNotifier {
	return &QueueNotifier{queue: queue, logger: logger}
}

func (n *QueueNotifier) Notify(ctx context.Context, msg Message) {
	if err := n.queue.EnqueueNotification(ctx, msg); err != nil {
		n.logger.Warn("enqueue notification",
			slog.Int64("user_id", msg.UserID),
			slog.Int64("invoice_id", msg.InvoiceID),
			slog.String("kind", string(msg.Kind)),
			slog.Any("error", err),
		)
	}
}

// FormatAmount renders an invoice amount with its currency symbol for
// notification bodies.
func FormatAmount(amount float64, code string) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return message.NewPrinter(language.English).Sprintf("%s %.2f", code, amount)
	}
	return message.NewPrinter(language.English).Sprintf("%v%.2f", currency.Symbol(unit), amount)
}
