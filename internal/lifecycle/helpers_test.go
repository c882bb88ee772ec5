package lifecycle_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dharsanguruparan/clientdesk/internal/lifecycle"
	"github.com/dharsanguruparan/clientdesk/internal/model"
	"github.com/dharsanguruparan/clientdesk/internal/storage"
)

var errStoreDown = errors.New("store unavailable")

// captureNotifier records every notification; err makes each call fail after
// recording.
type captureNotifier struct {
	mu   sync.Mutex
	sent []model.Notification
	err  error
}

func (c *captureNotifier) Notify(_ context.Context, n model.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, n)
	return c.err
}

func (c *captureNotifier) all() []model.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Notification(nil), c.sent...)
}

func (c *captureNotifier) last() model.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		return model.Notification{}
	}
	return c.sent[len(c.sent)-1]
}

// faultyStore wraps a MemoryStore and fails the writes selected by its flags.
type faultyStore struct {
	*storage.MemoryStore
	failAttach  bool
	failReview  bool
	failMailbox bool
	block       bool
}

func (f *faultyStore) AttachRecord(ctx context.Context, rec model.DocumentRecord, req model.DocumentRequest, prev model.RequestStatus) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.failAttach {
		return errStoreDown
	}
	return f.MemoryStore.AttachRecord(ctx, rec, req, prev)
}

func (f *faultyStore) SaveReview(ctx context.Context, rec model.DocumentRecord, prev model.DocumentStatus, req *model.DocumentRequest) error {
	if f.failReview {
		return errStoreDown
	}
	return f.MemoryStore.SaveReview(ctx, rec, prev, req)
}

func (f *faultyStore) UpdateMailboxItem(ctx context.Context, item model.MailboxItem, prevStatus model.MailboxStatus, prevPayment model.PaymentStatus) error {
	if f.failMailbox {
		return errStoreDown
	}
	return f.MemoryStore.UpdateMailboxItem(ctx, item, prevStatus, prevPayment)
}

type countingRecorder struct {
	mu            sync.Mutex
	transitions   map[string]int
	notifications map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{transitions: map[string]int{}, notifications: map[string]int{}}
}

func (r *countingRecorder) RecordTransition(entity, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions[entity+":"+status]++
}

func (r *countingRecorder) RecordNotification(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications[result]++
}

var fixedNow = time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)

func testOptions() lifecycle.Options {
	return lifecycle.Options{Now: func() time.Time { return fixedNow }}
}

func passport() model.DocumentSpec {
	return model.DocumentSpec{Name: "Passport", Type: "passport", Category: model.CategoryIdentity}
}

func storedPDF() lifecycle.StoredFile {
	return lifecycle.StoredFile{Path: "client-1/abc/passport.pdf", Name: "passport.pdf", SizeBytes: 2048, MimeType: "application/pdf"}
}
