// Package lifecycle holds the document request/record and mailbox state
// machines. Services validate a transition, build the new entity values, hand
// them to the store in a single write, and only then emit notifications.
package lifecycle

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dharsanguruparan/clientdesk/internal/model"
)

const (
	entityRequest = "document request"
	entityRecord  = "document record"
)

// NewRequest is the input to CreateRequest.
type NewRequest struct {
	ConsultantID string
	ClientID     string
	Document     model.DocumentSpec
	Description  string
	Priority     model.Priority
	DueDate      *time.Time
}

// NewSubmission describes an upload that is not answering a request.
type NewSubmission struct {
	ClientID     string
	ConsultantID string
	Document     model.DocumentSpec
}

// StoredFile is an object that already landed in storage.
type StoredFile struct {
	Path      string
	Name      string
	SizeBytes int64
	MimeType  string
}

// Review is a consultant's decision on a record.
type Review struct {
	Outcome    model.ReviewOutcome
	ReviewerID string
	Notes      string
}

// DocumentService drives the request/record lifecycle.
type DocumentService struct {
	base
	store DocumentStore
}

// NewDocumentService builds a DocumentService.
func NewDocumentService(store DocumentStore, notifier Notifier, opts Options) *DocumentService {
	return &DocumentService{base: newBase(notifier, opts), store: store}
}

// CreateRequest records a consultant's ask and notifies the client.
func (s *DocumentService) CreateRequest(ctx context.Context, in NewRequest) (model.DocumentRequest, error) {
	if in.ConsultantID == "" || in.ClientID == "" {
		return model.DocumentRequest{}, invalid("consultant and client ids are required")
	}
	if err := checkSpec(in.Document); err != nil {
		return model.DocumentRequest{}, err
	}
	priority, err := model.ParsePriority(string(in.Priority))
	if err != nil {
		return model.DocumentRequest{}, invalid("%v", err)
	}
	now := s.clock()
	req := model.DocumentRequest{
		ID:           uuid.NewString(),
		ConsultantID: in.ConsultantID,
		ClientID:     in.ClientID,
		DocumentName: strings.TrimSpace(in.Document.Name),
		DocumentType: in.Document.Type,
		Category:     in.Document.Category,
		Description:  in.Description,
		DueDate:      in.DueDate,
		Priority:     priority,
		Status:       model.RequestRequested,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = s.persist(ctx, func(ctx context.Context) error { return s.store.CreateRequest(ctx, req) })
	if err != nil {
		return model.DocumentRequest{}, persistErr("create document request", err)
	}
	s.transitioned(entityRequest, string(req.Status))

	payload := map[string]string{
		"requestId":    req.ID,
		"documentName": req.DocumentName,
		"priority":     string(req.Priority),
	}
	if req.DueDate != nil {
		payload["dueDate"] = req.DueDate.UTC().Format(time.RFC3339)
	}
	s.notify(ctx, model.EventDocumentRequested, req.ClientID, model.SeverityNormal, payload)
	return req, nil
}

// AttachUpload links a freshly stored file to a request in the requested
// state. The new pending record and the request's move to uploaded are
// committed together.
func (s *DocumentService) AttachUpload(ctx context.Context, requestID string, file StoredFile) (model.DocumentRecord, error) {
	return s.attach(ctx, requestID, file, func(status model.RequestStatus) bool {
		return status == model.RequestRequested
	})
}

// Resubmit answers a rejected or needs-revision request with a new record.
// The request is re-linked to the newest record; the superseded record keeps
// its review.
func (s *DocumentService) Resubmit(ctx context.Context, requestID string, file StoredFile) (model.DocumentRecord, error) {
	return s.attach(ctx, requestID, file, model.RequestStatus.AcceptsResubmission)
}

func (s *DocumentService) attach(ctx context.Context, requestID string, file StoredFile, allowed func(model.RequestStatus) bool) (model.DocumentRecord, error) {
	if err := checkFile(file); err != nil {
		return model.DocumentRecord{}, err
	}
	req, err := s.GetRequest(ctx, requestID)
	if err != nil {
		return model.DocumentRecord{}, err
	}
	if !allowed(req.Status) {
		return model.DocumentRecord{}, &TransitionError{Entity: entityRequest, From: string(req.Status), To: string(model.RequestUploaded)}
	}

	now := s.clock()
	rec := model.DocumentRecord{
		ID:            uuid.NewString(),
		ClientID:      req.ClientID,
		ConsultantID:  req.ConsultantID,
		RequestID:     req.ID,
		Name:          req.DocumentName,
		FileName:      file.Name,
		Type:          req.DocumentType,
		Category:      req.Category,
		Status:        model.DocumentPending,
		FileRef:       file.Path,
		FileSizeBytes: file.SizeBytes,
		MimeType:      file.MimeType,
		UploadedAt:    now,
	}
	prev := req.Status
	req.Status = model.RequestUploaded
	req.RecordID = rec.ID
	req.UpdatedAt = now

	err = s.persist(ctx, func(ctx context.Context) error { return s.store.AttachRecord(ctx, rec, req, prev) })
	if err != nil {
		return model.DocumentRecord{}, persistErr("attach upload", err)
	}
	s.transitioned(entityRequest, string(req.Status))
	s.transitioned(entityRecord, string(rec.Status))

	s.notify(ctx, model.EventDocumentUploaded, req.ConsultantID, model.SeverityNormal, map[string]string{
		"requestId":    req.ID,
		"recordId":     rec.ID,
		"documentName": req.DocumentName,
		"clientId":     req.ClientID,
	})
	return rec, nil
}

// SubmitUnrequested stores a record that does not answer any request.
func (s *DocumentService) SubmitUnrequested(ctx context.Context, in NewSubmission, file StoredFile) (model.DocumentRecord, error) {
	if in.ClientID == "" {
		return model.DocumentRecord{}, invalid("client id is required")
	}
	if err := checkSpec(in.Document); err != nil {
		return model.DocumentRecord{}, err
	}
	if err := checkFile(file); err != nil {
		return model.DocumentRecord{}, err
	}
	rec := model.DocumentRecord{
		ID:            uuid.NewString(),
		ClientID:      in.ClientID,
		ConsultantID:  in.ConsultantID,
		Name:          strings.TrimSpace(in.Document.Name),
		FileName:      file.Name,
		Type:          in.Document.Type,
		Category:      in.Document.Category,
		Status:        model.DocumentPending,
		FileRef:       file.Path,
		FileSizeBytes: file.SizeBytes,
		MimeType:      file.MimeType,
		UploadedAt:    s.clock(),
	}
	err := s.persist(ctx, func(ctx context.Context) error { return s.store.CreateRecord(ctx, rec) })
	if err != nil {
		return model.DocumentRecord{}, persistErr("create document record", err)
	}
	s.transitioned(entityRecord, string(rec.Status))
	s.notify(ctx, model.EventDocumentUploaded, rec.ConsultantID, model.SeverityNormal, map[string]string{
		"recordId":     rec.ID,
		"documentName": rec.Name,
		"clientId":     rec.ClientID,
	})
	return rec, nil
}

// Review records a consultant's decision. Approval is terminal. The outcome
// is copied onto the linked request as long as the request still points at
// this record.
func (s *DocumentService) Review(ctx context.Context, recordID string, in Review) (model.DocumentRecord, error) {
	outcome, err := model.ParseReviewOutcome(string(in.Outcome))
	if err != nil {
		return model.DocumentRecord{}, invalid("%v", err)
	}
	if in.ReviewerID == "" {
		return model.DocumentRecord{}, invalid("reviewer id is required")
	}
	rec, err := s.GetRecord(ctx, recordID)
	if err != nil {
		return model.DocumentRecord{}, err
	}
	if rec.Status.Terminal() {
		return model.DocumentRecord{}, &TransitionError{Entity: entityRecord, From: string(rec.Status), To: string(outcome.DocumentStatus())}
	}

	var linked *model.DocumentRequest
	if rec.RequestID != "" {
		req, err := s.GetRequest(ctx, rec.RequestID)
		if err != nil {
			return model.DocumentRecord{}, err
		}
		if req.RecordID == rec.ID {
			linked = &req
		}
	}

	now := s.clock()
	prev := rec.Status
	rec.Status = outcome.DocumentStatus()
	rec.ReviewedAt = &now
	rec.ReviewedBy = in.ReviewerID
	rec.ReviewNotes = in.Notes
	if linked != nil {
		linked.Status = outcome.RequestStatus()
		linked.UpdatedAt = now
	}

	err = s.persist(ctx, func(ctx context.Context) error { return s.store.SaveReview(ctx, rec, prev, linked) })
	if err != nil {
		return model.DocumentRecord{}, persistErr("save review", err)
	}
	s.transitioned(entityRecord, string(rec.Status))
	if linked != nil {
		s.transitioned(entityRequest, string(linked.Status))
	}

	payload := map[string]string{
		"recordId":     rec.ID,
		"documentName": rec.Name,
		"reviewedBy":   rec.ReviewedBy,
	}
	if rec.ReviewNotes != "" {
		payload["notes"] = rec.ReviewNotes
	}
	if rec.RequestID != "" {
		payload["requestId"] = rec.RequestID
	}
	s.notify(ctx, outcome.Event(), rec.ClientID, outcome.Severity(), payload)
	return rec, nil
}

// RecordInspection stores the results of the background inspection.
func (s *DocumentService) RecordInspection(ctx context.Context, recordID string, pageCount int, previewRef string) error {
	err := s.persist(ctx, func(ctx context.Context) error {
		return s.store.UpdateInspection(ctx, recordID, pageCount, previewRef)
	})
	return persistErr("record inspection", err)
}

// GetRequest loads a request.
func (s *DocumentService) GetRequest(ctx context.Context, id string) (model.DocumentRequest, error) {
	var req model.DocumentRequest
	err := s.persist(ctx, func(ctx context.Context) (err error) {
		req, err = s.store.GetRequest(ctx, id)
		return err
	})
	return req, persistErr("get document request", err)
}

// GetRecord loads a record.
func (s *DocumentService) GetRecord(ctx context.Context, id string) (model.DocumentRecord, error) {
	var rec model.DocumentRecord
	err := s.persist(ctx, func(ctx context.Context) (err error) {
		rec, err = s.store.GetRecord(ctx, id)
		return err
	})
	return rec, persistErr("get document record", err)
}

// ListRequests returns a client's requests, newest first.
func (s *DocumentService) ListRequests(ctx context.Context, clientID string) ([]model.DocumentRequest, error) {
	var out []model.DocumentRequest
	err := s.persist(ctx, func(ctx context.Context) (err error) {
		out, err = s.store.ListRequests(ctx, clientID)
		return err
	})
	return out, persistErr("list document requests", err)
}

// ListRecords returns a client's records, newest first.
func (s *DocumentService) ListRecords(ctx context.Context, clientID string) ([]model.DocumentRecord, error) {
	var out []model.DocumentRecord
	err := s.persist(ctx, func(ctx context.Context) (err error) {
		out, err = s.store.ListRecords(ctx, clientID)
		return err
	})
	return out, persistErr("list document records", err)
}

func checkSpec(doc model.DocumentSpec) error {
	if strings.TrimSpace(doc.Name) == "" {
		return invalid("document name is required")
	}
	if _, err := model.ParseCategory(string(doc.Category)); err != nil {
		return invalid("%v", err)
	}
	return nil
}

func checkFile(file StoredFile) error {
	if file.Path == "" {
		return invalid("storage path is required")
	}
	if file.SizeBytes < 0 {
		return invalid("negative file size")
	}
	return nil
}
