// Package worker runs the asynq handlers for notification delivery and
// document inspection.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/clientdesk/internal/inspect"
	"github.com/dharsanguruparan/clientdesk/internal/lifecycle"
	"github.com/dharsanguruparan/clientdesk/internal/model"
	"github.com/dharsanguruparan/clientdesk/internal/queue"
	"github.com/dharsanguruparan/clientdesk/internal/upload"
)

const (
	excerptBytes   = 4 << 10
	thumbnailSide  = 320
	defaultMaxRead = 25 << 20
)

// Objects reads uploaded documents and stores derived previews. Previews are
// written to fixed keys so a retried inspection overwrites its earlier output.
type Objects interface {
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	WriteObject(ctx context.Context, bucket, key string, obj upload.Object) error
}

// Inbox stores delivered notifications.
type Inbox interface {
	SaveNotification(ctx context.Context, n model.Notification) error
}

// Inspections records inspection results on a document record.
type Inspections interface {
	RecordInspection(ctx context.Context, recordID string, pageCount int, previewRef string) error
}

// Options configures a Processor.
type Options struct {
	DocumentsBucket string
	PreviewsBucket  string
	// MaxReadBytes caps how much of an object is loaded for inspection.
	MaxReadBytes int64
	Logger       *zap.Logger
}

// Processor is plugged into the asynq worker loop.
type Processor struct {
	inbox   Inbox
	records Inspections
	objects Objects
	opts    Options
	logger  *zap.Logger
}

// NewProcessor constructs a worker processor.
func NewProcessor(inbox Inbox, records Inspections, objects Objects, opts Options) *Processor {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxReadBytes <= 0 {
		opts.MaxReadBytes = defaultMaxRead
	}
	return &Processor{inbox: inbox, records: records, objects: objects, opts: opts, logger: opts.Logger}
}

// Handler returns a mux with the job handlers registered.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	p.Register(mux)
	return mux
}

// Register adds the job handlers to mux.
func (p *Processor) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(queue.DeliverNotificationTask, p.HandleDeliver)
	mux.HandleFunc(queue.InspectDocumentTask, p.HandleInspect)
}

// HandleDeliver stores one notification in the recipient's inbox.
func (p *Processor) HandleDeliver(ctx context.Context, task *asynq.Task) error {
	var n model.Notification
	if err := json.Unmarshal(task.Payload(), &n); err != nil {
		return fmt.Errorf("decode notification: %v: %w", err, asynq.SkipRetry)
	}
	if n.ID == "" || n.RecipientID == "" {
		return fmt.Errorf("notification without id or recipient: %w", asynq.SkipRetry)
	}
	if err := p.inbox.SaveNotification(ctx, n); err != nil {
		return fmt.Errorf("deliver notification %s: %w", n.ID, err)
	}
	p.logger.Debug("notification delivered", zap.String("id", n.ID), zap.String("event", string(n.Event)))
	return nil
}

// HandleInspect derives a page count and preview for a stored document.
// Unreadable documents are logged and not retried.
func (p *Processor) HandleInspect(ctx context.Context, task *asynq.Task) error {
	var payload queue.InspectPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if !validRecordID(payload.RecordID) {
		return fmt.Errorf("invalid record id %q: %w", payload.RecordID, asynq.SkipRetry)
	}
	kind := inspect.KindOf(payload.MimeType)
	if kind == inspect.KindNone {
		return nil
	}

	data, err := p.load(ctx, payload.ObjectKey)
	if errors.Is(err, lifecycle.ErrNotFound) {
		return fmt.Errorf("inspect %s: %v: %w", payload.RecordID, err, asynq.SkipRetry)
	}
	if err != nil {
		return fmt.Errorf("inspect %s: %w", payload.RecordID, err)
	}

	var (
		pageCount int
		preview   upload.Object
	)
	switch kind {
	case inspect.KindPDF:
		summary, err := inspect.SummarizePDF(data, excerptBytes)
		if err != nil {
			return p.unreadable(payload, err)
		}
		pageCount = summary.PageCount
		if summary.Excerpt != "" {
			preview = upload.Object{Name: "excerpt.txt", ContentType: "text/plain; charset=utf-8", Body: bytes.NewReader([]byte(summary.Excerpt)), Size: int64(len(summary.Excerpt))}
		}
	case inspect.KindImage:
		thumb, err := inspect.Thumbnail(data, thumbnailSide)
		if err != nil {
			return p.unreadable(payload, err)
		}
		pageCount = 1
		preview = upload.Object{Name: "thumbnail.jpg", ContentType: "image/jpeg", Body: bytes.NewReader(thumb), Size: int64(len(thumb))}
	}

	var previewRef string
	if preview.Body != nil {
		previewRef = PreviewKey(payload.RecordID, preview.Name)
		if err := p.objects.WriteObject(ctx, p.opts.PreviewsBucket, previewRef, preview); err != nil {
			return fmt.Errorf("store preview for %s: %w", payload.RecordID, err)
		}
	}
	err = p.records.RecordInspection(ctx, payload.RecordID, pageCount, previewRef)
	if errors.Is(err, lifecycle.ErrNotFound) {
		return fmt.Errorf("record %s: %v: %w", payload.RecordID, err, asynq.SkipRetry)
	}
	if err != nil {
		return fmt.Errorf("record inspection %s: %w", payload.RecordID, err)
	}
	p.logger.Info("document inspected",
		zap.String("record", payload.RecordID),
		zap.Int("pages", pageCount),
		zap.String("preview", previewRef),
	)
	return nil
}

// PreviewKey is the previews-bucket key for a record's derived file.
func PreviewKey(recordID, name string) string {
	return path.Join(recordID, name)
}

func validRecordID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}

func (p *Processor) load(ctx context.Context, key string) ([]byte, error) {
	rc, err := p.objects.GetObject(ctx, p.opts.DocumentsBucket, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, p.opts.MaxReadBytes))
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

func (p *Processor) unreadable(payload queue.InspectPayload, err error) error {
	p.logger.Warn("document not inspectable",
		zap.String("record", payload.RecordID),
		zap.String("mime", payload.MimeType),
		zap.Error(err),
	)
	return fmt.Errorf("inspect %s: %v: %w", payload.RecordID, err, asynq.SkipRetry)
}
