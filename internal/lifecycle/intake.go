package lifecycle

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/clientdesk/internal/model"
	"github.com/dharsanguruparan/clientdesk/internal/upload"
)

// Uploader is the part of upload.Tracker that Intake drives.
type Uploader interface {
	Upload(ctx context.Context, f upload.File) (upload.Task, error)
	Release(key string)
}

// ObjectRemover deletes an object whose record could not be saved.
type ObjectRemover interface {
	DeleteObject(ctx context.Context, bucket, path string) error
}

// InspectionQueue schedules background inspection of a stored record.
type InspectionQueue interface {
	EnqueueInspection(ctx context.Context, recordID, path, mimeType string) error
}

// IntakeOptions configures an Intake. Remover and Inspections may be nil.
type IntakeOptions struct {
	Bucket      string
	Remover     ObjectRemover
	Inspections InspectionQueue
	Logger      *zap.Logger
}

// Intake carries a client's file from the upload tracker into the document
// lifecycle. A file is attached only after its transfer completed, and an
// object whose attach failed is removed again on a best-effort basis.
type Intake struct {
	uploads     Uploader
	docs        *DocumentService
	bucket      string
	remover     ObjectRemover
	inspections InspectionQueue
	logger      *zap.Logger
}

// NewIntake builds an Intake.
func NewIntake(uploads Uploader, docs *DocumentService, opts IntakeOptions) *Intake {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Intake{
		uploads:     uploads,
		docs:        docs,
		bucket:      opts.Bucket,
		remover:     opts.Remover,
		inspections: opts.Inspections,
		logger:      opts.Logger,
	}
}

// SubmitForRequest uploads f and attaches it to a request in the requested
// state.
func (in *Intake) SubmitForRequest(ctx context.Context, requestID string, f upload.File) (model.DocumentRecord, upload.Task, error) {
	return in.forRequest(ctx, requestID, f, func(s model.RequestStatus) bool { return s == model.RequestRequested }, in.docs.AttachUpload)
}

// Resubmit uploads f as a new revision of a rejected or needs-revision
// request.
func (in *Intake) Resubmit(ctx context.Context, requestID string, f upload.File) (model.DocumentRecord, upload.Task, error) {
	return in.forRequest(ctx, requestID, f, model.RequestStatus.AcceptsResubmission, in.docs.Resubmit)
}

// SubmitUnrequested uploads f as a record that answers no request.
func (in *Intake) SubmitUnrequested(ctx context.Context, sub NewSubmission, f upload.File) (model.DocumentRecord, upload.Task, error) {
	if err := checkSpec(sub.Document); err != nil {
		return model.DocumentRecord{}, upload.Task{}, err
	}
	if sub.ClientID == "" {
		return model.DocumentRecord{}, upload.Task{}, invalid("client id is required")
	}
	return in.transfer(ctx, sub.ClientID, f, func(ctx context.Context, file StoredFile) (model.DocumentRecord, error) {
		return in.docs.SubmitUnrequested(ctx, sub, file)
	})
}

type attachFunc func(ctx context.Context, requestID string, file StoredFile) (model.DocumentRecord, error)

func (in *Intake) forRequest(ctx context.Context, requestID string, f upload.File, allowed func(model.RequestStatus) bool, attach attachFunc) (model.DocumentRecord, upload.Task, error) {
	// Reject before moving any bytes; attach re-checks under its guarded write.
	req, err := in.docs.GetRequest(ctx, requestID)
	if err != nil {
		return model.DocumentRecord{}, upload.Task{}, err
	}
	if !allowed(req.Status) {
		return model.DocumentRecord{}, upload.Task{}, &TransitionError{Entity: entityRequest, From: string(req.Status), To: string(model.RequestUploaded)}
	}
	return in.transfer(ctx, req.ClientID, f, func(ctx context.Context, file StoredFile) (model.DocumentRecord, error) {
		return attach(ctx, requestID, file)
	})
}

func (in *Intake) transfer(ctx context.Context, clientID string, f upload.File, save func(context.Context, StoredFile) (model.DocumentRecord, error)) (model.DocumentRecord, upload.Task, error) {
	if f.Folder == "" {
		f.Folder = clientID
	}
	task, err := in.uploads.Upload(ctx, f)
	defer in.uploads.Release(task.Key)
	if err != nil {
		return model.DocumentRecord{}, task, err
	}

	rec, err := save(ctx, StoredFile{
		Path:      task.StoragePath,
		Name:      task.File.Name,
		SizeBytes: task.File.SizeBytes,
		MimeType:  task.File.MimeType,
	})
	if err != nil {
		in.discard(task.StoragePath)
		return model.DocumentRecord{}, task, fmt.Errorf("save uploaded file: %w", err)
	}

	if in.inspections != nil {
		if err := in.inspections.EnqueueInspection(ctx, rec.ID, rec.FileRef, rec.MimeType); err != nil {
			in.logger.Warn("enqueue inspection failed", zap.String("record", rec.ID), zap.Error(err))
		}
	}
	return rec, task, nil
}

func (in *Intake) discard(path string) {
	if in.remover == nil || path == "" {
		return
	}
	// The request context may already be gone.
	ctx, cancel := context.WithTimeout(context.Background(), in.docs.timeout)
	defer cancel()
	if err := in.remover.DeleteObject(ctx, in.bucket, path); err != nil {
		in.logger.Warn("orphaned upload not removed", zap.String("path", path), zap.Error(err))
	}
}
