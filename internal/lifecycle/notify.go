package lifecycle

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/clientdesk/internal/model"
)

// Options carries the collaborators shared by the lifecycle services.
type Options struct {
	// PersistTimeout bounds each store call. Zero means five seconds.
	PersistTimeout time.Duration
	Logger         *zap.Logger
	Recorder       Recorder
	// Now overrides the clock in tests.
	Now func() time.Time
}

type base struct {
	notifier Notifier
	timeout  time.Duration
	logger   *zap.Logger
	recorder Recorder
	now      func() time.Time
}

func newBase(notifier Notifier, opts Options) base {
	b := base{
		notifier: notifier,
		timeout:  opts.PersistTimeout,
		logger:   opts.Logger,
		recorder: opts.Recorder,
		now:      opts.Now,
	}
	if b.timeout <= 0 {
		b.timeout = 5 * time.Second
	}
	if b.logger == nil {
		b.logger = zap.NewNop()
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b
}

func (b base) clock() time.Time {
	return b.now().UTC()
}

// persist runs fn under the store timeout.
func (b base) persist(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return fn(ctx)
}

func (b base) transitioned(entity, status string) {
	if b.recorder != nil {
		b.recorder.RecordTransition(entity, status)
	}
}

// notify is called only after the triggering write committed.
func (b base) notify(ctx context.Context, event model.EventType, recipient string, severity model.Severity, payload map[string]string) {
	if b.notifier == nil || recipient == "" {
		return
	}
	n := model.Notification{
		ID:          uuid.NewString(),
		Event:       event,
		RecipientID: recipient,
		Severity:    severity,
		Payload:     payload,
		CreatedAt:   b.clock(),
	}
	result := "sent"
	if err := b.notifier.Notify(ctx, n); err != nil {
		result = "failed"
		b.logger.Warn("notification failed",
			zap.String("event", string(event)),
			zap.String("recipient", recipient),
			zap.Error(err),
		)
	}
	if b.recorder != nil {
		b.recorder.RecordNotification(result)
	}
}
