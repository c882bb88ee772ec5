// Package storage holds the in-process persistence used by local mode and
// tests: a metadata store guarded by an RWMutex and a disk-backed object
// store.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dharsanguruparan/clientdesk/internal/lifecycle"
	"github.com/dharsanguruparan/clientdesk/internal/model"
)

// MemoryStore keeps requests, records, mailbox items and notifications in
// maps. Values are deep-copied on the way in and out, time pointers and
// payload maps included, so callers never share state with the store.
type MemoryStore struct {
	mu            sync.RWMutex
	requests      map[string]model.DocumentRequest
	records       map[string]model.DocumentRecord
	mailbox       map[string]model.MailboxItem
	notifications []model.Notification

	// recordFault fails the record half of AttachRecord and SaveReview after
	// the request half has been applied. Tests only.
	recordFault func(rec model.DocumentRecord) error
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests: make(map[string]model.DocumentRequest),
		records:  make(map[string]model.DocumentRecord),
		mailbox:  make(map[string]model.MailboxItem),
	}
}

var (
	_ lifecycle.DocumentStore = (*MemoryStore)(nil)
	_ lifecycle.MailboxStore  = (*MemoryStore)(nil)
)

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, lifecycle.ErrNotFound)
}

func conflict(kind, id string) error {
	return fmt.Errorf("%s %s changed concurrently: %w", kind, id, lifecycle.ErrConflict)
}

func (m *MemoryStore) CreateRequest(ctx context.Context, req model.DocumentRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.requests[req.ID]; ok {
		return fmt.Errorf("document request %s already exists: %w", req.ID, lifecycle.ErrConflict)
	}
	m.requests[req.ID] = cloneRequest(req)
	return nil
}

func (m *MemoryStore) GetRequest(ctx context.Context, id string) (model.DocumentRequest, error) {
	if err := ctx.Err(); err != nil {
		return model.DocumentRequest{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	req, ok := m.requests[id]
	if !ok {
		return model.DocumentRequest{}, notFound("document request", id)
	}
	return cloneRequest(req), nil
}

func (m *MemoryStore) ListRequests(ctx context.Context, clientID string) ([]model.DocumentRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := make([]model.DocumentRequest, 0)
	for _, req := range m.requests {
		if req.ClientID == clientID {
			out = append(out, cloneRequest(req))
		}
	}
	m.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) CreateRecord(ctx context.Context, rec model.DocumentRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.ID]; ok {
		return fmt.Errorf("document record %s already exists: %w", rec.ID, lifecycle.ErrConflict)
	}
	m.records[rec.ID] = cloneRecord(rec)
	return nil
}

func (m *MemoryStore) GetRecord(ctx context.Context, id string) (model.DocumentRecord, error) {
	if err := ctx.Err(); err != nil {
		return model.DocumentRecord{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return model.DocumentRecord{}, notFound("document record", id)
	}
	return cloneRecord(rec), nil
}

func (m *MemoryStore) ListRecords(ctx context.Context, clientID string) ([]model.DocumentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := make([]model.DocumentRecord, 0)
	for _, rec := range m.records {
		if rec.ClientID == clientID {
			out = append(out, cloneRecord(rec))
		}
	}
	m.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].UploadedAt.After(out[j].UploadedAt) })
	return out, nil
}

// putRecordLocked writes rec, refusing a duplicate id when create is set.
func (m *MemoryStore) putRecordLocked(rec model.DocumentRecord, create bool) error {
	if _, ok := m.records[rec.ID]; ok && create {
		return fmt.Errorf("document record %s already exists: %w", rec.ID, lifecycle.ErrConflict)
	}
	if m.recordFault != nil {
		if err := m.recordFault(rec); err != nil {
			return err
		}
	}
	m.records[rec.ID] = cloneRecord(rec)
	return nil
}

// AttachRecord writes the request and then the record, restoring the request
// when the record write fails.
func (m *MemoryStore) AttachRecord(ctx context.Context, rec model.DocumentRecord, req model.DocumentRequest, prev model.RequestStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.requests[req.ID]
	if !ok {
		return notFound("document request", req.ID)
	}
	if current.Status != prev {
		return conflict("document request", req.ID)
	}
	m.requests[req.ID] = cloneRequest(req)
	if err := m.putRecordLocked(rec, true); err != nil {
		m.requests[req.ID] = current
		return err
	}
	return nil
}

// SaveReview writes the linked request, when given, and then the record,
// restoring the request when the record write fails.
func (m *MemoryStore) SaveReview(ctx context.Context, rec model.DocumentRecord, prev model.DocumentStatus, req *model.DocumentRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.records[rec.ID]
	if !ok {
		return notFound("document record", rec.ID)
	}
	if current.Status != prev {
		return conflict("document record", rec.ID)
	}
	if req == nil {
		return m.putRecordLocked(rec, false)
	}
	linked, ok := m.requests[req.ID]
	if !ok {
		return notFound("document request", req.ID)
	}
	if linked.RecordID != rec.ID {
		return conflict("document request", req.ID)
	}
	m.requests[req.ID] = cloneRequest(*req)
	if err := m.putRecordLocked(rec, false); err != nil {
		m.requests[req.ID] = linked
		return err
	}
	return nil
}

func (m *MemoryStore) UpdateInspection(ctx context.Context, recordID string, pageCount int, previewRef string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[recordID]
	if !ok {
		return notFound("document record", recordID)
	}
	rec.PageCount = pageCount
	rec.PreviewRef = previewRef
	m.records[recordID] = rec
	return nil
}

func (m *MemoryStore) CreateMailboxItem(ctx context.Context, item model.MailboxItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.mailbox[item.ID]; ok {
		return fmt.Errorf("mailbox item %s already exists: %w", item.ID, lifecycle.ErrConflict)
	}
	m.mailbox[item.ID] = cloneMailboxItem(item)
	return nil
}

func (m *MemoryStore) GetMailboxItem(ctx context.Context, id string) (model.MailboxItem, error) {
	if err := ctx.Err(); err != nil {
		return model.MailboxItem{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.mailbox[id]
	if !ok {
		return model.MailboxItem{}, notFound("mailbox item", id)
	}
	return cloneMailboxItem(item), nil
}

func (m *MemoryStore) ListMailboxItems(ctx context.Context, clientID string) ([]model.MailboxItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := make([]model.MailboxItem, 0)
	for _, item := range m.mailbox {
		if item.ClientID == clientID {
			out = append(out, cloneMailboxItem(item))
		}
	}
	m.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) UpdateMailboxItem(ctx context.Context, item model.MailboxItem, prevStatus model.MailboxStatus, prevPayment model.PaymentStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.mailbox[item.ID]
	if !ok {
		return notFound("mailbox item", item.ID)
	}
	if current.Status != prevStatus || current.PaymentStatus != prevPayment {
		return conflict("mailbox item", item.ID)
	}
	m.mailbox[item.ID] = cloneMailboxItem(item)
	return nil
}

// SaveNotification appends n to the in-memory inbox.
func (m *MemoryStore) SaveNotification(ctx context.Context, n model.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n = cloneNotification(n)
	m.mu.Lock()
	m.notifications = append(m.notifications, n)
	m.mu.Unlock()
	return nil
}

// ListNotifications returns the recipient's notifications, newest first.
func (m *MemoryStore) ListNotifications(ctx context.Context, recipientID string) ([]model.Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Notification, 0)
	for i := len(m.notifications) - 1; i >= 0; i-- {
		if m.notifications[i].RecipientID == recipientID {
			out = append(out, cloneNotification(m.notifications[i]))
		}
	}
	return out, nil
}
