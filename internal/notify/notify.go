// Package notify delivers lifecycle notifications.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/clientdesk/internal/lifecycle"
	"github.com/dharsanguruparan/clientdesk/internal/model"
	"github.com/dharsanguruparan/clientdesk/internal/queue"
)

// Inbox persists notifications for recipients to read back.
type Inbox interface {
	SaveNotification(ctx context.Context, n model.Notification) error
	ListNotifications(ctx context.Context, recipientID string) ([]model.Notification, error)
}

var (
	_ lifecycle.Notifier = (*QueueNotifier)(nil)
	_ lifecycle.Notifier = (*LogNotifier)(nil)
)

// QueueNotifier hands notifications to the asynq worker.
type QueueNotifier struct {
	client queue.Enqueuer
}

// NewQueueNotifier builds a QueueNotifier.
func NewQueueNotifier(client queue.Enqueuer) *QueueNotifier {
	return &QueueNotifier{client: client}
}

// Notify enqueues n for delivery.
func (q *QueueNotifier) Notify(ctx context.Context, n model.Notification) error {
	return queue.EnqueueNotification(ctx, q.client, n)
}

// LogNotifier logs every notification and then forwards it to next, if any.
type LogNotifier struct {
	logger *zap.Logger
	next   lifecycle.Notifier
}

// NewLogNotifier builds a LogNotifier.
func NewLogNotifier(logger *zap.Logger, next lifecycle.Notifier) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger, next: next}
}

// Notify logs n.
func (l *LogNotifier) Notify(ctx context.Context, n model.Notification) error {
	l.logger.Info("notification",
		zap.String("id", n.ID),
		zap.String("event", string(n.Event)),
		zap.String("recipient", n.RecipientID),
		zap.String("severity", string(n.Severity)),
		zap.Any("payload", n.Payload),
	)
	if l.next == nil {
		return nil
	}
	return l.next.Notify(ctx, n)
}
