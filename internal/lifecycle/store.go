package lifecycle

import (
	"context"

	"github.com/dharsanguruparan/clientdesk/internal/model"
)

// DocumentStore persists requests and records. Implementations take and
// return values so a failed write can never leave a half-mutated entity in
// the caller's hands.
type DocumentStore interface {
	CreateRequest(ctx context.Context, req model.DocumentRequest) error
	GetRequest(ctx context.Context, id string) (model.DocumentRequest, error)
	ListRequests(ctx context.Context, clientID string) ([]model.DocumentRequest, error)

	CreateRecord(ctx context.Context, rec model.DocumentRecord) error
	GetRecord(ctx context.Context, id string) (model.DocumentRecord, error)
	ListRecords(ctx context.Context, clientID string) ([]model.DocumentRecord, error)

	// AttachRecord inserts rec and replaces req in one atomic step. The write
	// only applies while the stored request status still equals prev;
	// otherwise ErrConflict is returned and neither row changes.
	AttachRecord(ctx context.Context, rec model.DocumentRecord, req model.DocumentRequest, prev model.RequestStatus) error
	// SaveReview replaces rec, and req when non-nil, atomically. The record
	// write is guarded by prev in the same way as AttachRecord.
	SaveReview(ctx context.Context, rec model.DocumentRecord, prev model.DocumentStatus, req *model.DocumentRequest) error
	UpdateInspection(ctx context.Context, recordID string, pageCount int, previewRef string) error
}

// MailboxStore persists mailbox items.
type MailboxStore interface {
	CreateMailboxItem(ctx context.Context, item model.MailboxItem) error
	GetMailboxItem(ctx context.Context, id string) (model.MailboxItem, error)
	ListMailboxItems(ctx context.Context, clientID string) ([]model.MailboxItem, error)
	// UpdateMailboxItem replaces item while the stored status and payment
	// status still equal the guards, returning ErrConflict otherwise.
	UpdateMailboxItem(ctx context.Context, item model.MailboxItem, prevStatus model.MailboxStatus, prevPayment model.PaymentStatus) error
}

// Notifier delivers lifecycle notifications. Failures are logged by the
// services and never surface to their callers.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification) error
}

// Recorder receives committed transitions and notification results,
// typically for metrics.
type Recorder interface {
	RecordTransition(entity, status string)
	RecordNotification(result string)
}
