// Package upload validates incoming files and tracks their transfer into
// object storage. The tracker only does bookkeeping and callback fan-out:
// every progress value it reports comes from the object store's own byte
// counter.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// State is the lifecycle position of a Task.
type State string

const (
	StateQueued     State = "queued"
	StateValidating State = "validating"
	StateUploading  State = "uploading"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Terminal reports whether the state can no longer change.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed:
		return true
	case StateQueued, StateValidating, StateUploading:
		return false
	}
	return false
}

// File is one file offered to the tracker. Body is read exactly once.
type File struct {
	FileInfo
	Folder string
	Body   io.Reader
}

// Object is what the tracker hands to the object store.
type Object struct {
	Name        string
	Size        int64
	ContentType string
	Body        io.Reader
}

// ObjectStore performs the byte transfer. progress receives the cumulative
// number of bytes the store has sent; stores that cannot observe the transfer
// never call it.
type ObjectStore interface {
	PutObject(ctx context.Context, bucket, folder string, obj Object, progress func(sent int64)) (string, error)
}

// Recorder receives settled upload outcomes, typically for metrics.
type Recorder interface {
	RecordUpload(outcome string, bytes int64)
}

// Hooks are invoked outside the tracker's lock. Task values are snapshots.
type Hooks struct {
	OnProgress func(key string, percent int, sent int64)
	OnComplete func(task Task)
	OnError    func(task Task)
}

// Task is a snapshot of one file transfer. Progress is a percentage and only
// moves while the task is uploading and the file size is known.
type Task struct {
	Key         string    `json:"key"`
	File        FileInfo  `json:"file"`
	Folder      string    `json:"folder"`
	State       State     `json:"state"`
	Progress    int       `json:"progress"`
	BytesSent   int64     `json:"bytesSent"`
	StoragePath string    `json:"storagePath,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Err         error     `json:"-"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Outcome pairs a batch input with the task it settled into.
type Outcome struct {
	File FileInfo
	Task Task
	Err  error
}

// Options configures a Tracker.
type Options struct {
	Bucket      string
	Policy      Policy
	Hooks       Hooks
	Concurrency int
	Recorder    Recorder
	Logger      *zap.Logger
}

type entry struct {
	task   Task
	body   io.Reader
	cancel context.CancelFunc
}

// Tracker keeps per-file upload state for concurrent transfers.
type Tracker struct {
	store       ObjectStore
	bucket      string
	policy      Policy
	hooks       Hooks
	concurrency int
	recorder    Recorder
	logger      *zap.Logger

	mu    sync.Mutex
	tasks map[string]*entry
	order []string
}

// NewTracker builds a Tracker that transfers into store.
func NewTracker(store ObjectStore, opts Options) *Tracker {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Tracker{
		store:       store,
		bucket:      opts.Bucket,
		policy:      opts.Policy,
		hooks:       opts.Hooks,
		concurrency: opts.Concurrency,
		recorder:    opts.Recorder,
		logger:      opts.Logger,
		tasks:       make(map[string]*entry),
	}
}

// Policy returns the admission policy the tracker validates against.
func (t *Tracker) Policy() Policy {
	return t.policy
}

// Enqueue validates f and registers a task for it. A rejected file produces a
// task already in StateFailed and fires OnError, so callers must inspect the
// returned state before treating the file as accepted.
func (t *Tracker) Enqueue(f File) Task {
	now := time.Now().UTC()
	e := &entry{
		task: Task{
			Key:       uuid.NewString(),
			File:      f.FileInfo,
			Folder:    f.Folder,
			State:     StateQueued,
			CreatedAt: now,
			UpdatedAt: now,
		},
		body: f.Body,
	}
	err := Validate(f.FileInfo, t.policy)
	if err != nil {
		e.task.State = StateFailed
		e.task.Reason = err.Error()
		e.task.Err = err
		e.body = nil
	}

	t.mu.Lock()
	t.tasks[e.task.Key] = e
	t.order = append(t.order, e.task.Key)
	snap := e.task
	t.mu.Unlock()

	if err != nil {
		t.logger.Info("upload rejected",
			zap.String("key", snap.Key),
			zap.String("file", snap.File.Name),
			zap.Error(err),
		)
		t.record(snap)
		if t.hooks.OnError != nil {
			t.hooks.OnError(snap)
		}
	}
	return snap
}

// Start transfers a queued task and blocks until it settles. The returned task
// is the final snapshot; the error is non-nil exactly when it ended failed.
func (t *Tracker) Start(ctx context.Context, key string) (Task, error) {
	t.mu.Lock()
	e, ok := t.tasks[key]
	if !ok {
		t.mu.Unlock()
		return Task{}, fmt.Errorf("%w: %s", ErrUnknownTask, key)
	}
	if e.task.State != StateQueued {
		snap := e.task
		t.mu.Unlock()
		return snap, fmt.Errorf("%w: %s is %s", ErrNotQueued, key, snap.State)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.cancel = cancel
	body := e.body
	declared := e.task.File.MimeType
	e.body = nil
	t.setState(e, StateValidating)
	t.mu.Unlock()

	contentType, body, err := sniffContentType(declared, body)
	if err != nil {
		return t.fail(e, &TransferError{Key: key, Err: fmt.Errorf("read upload body: %w", err)})
	}

	t.mu.Lock()
	e.task.File.MimeType = contentType
	t.setState(e, StateUploading)
	info := e.task.File
	folder := e.task.Folder
	t.mu.Unlock()

	ctx, span := otel.Tracer("clientdesk/upload").Start(ctx, "upload.transfer")
	span.SetAttributes(
		attribute.String("upload.key", key),
		attribute.String("upload.file", info.Name),
		attribute.Int64("upload.size", info.SizeBytes),
	)
	defer span.End()

	path, err := t.store.PutObject(ctx, t.bucket, folder, Object{
		Name:        info.Name,
		Size:        info.SizeBytes,
		ContentType: contentType,
		Body:        body,
	}, func(sent int64) { t.progress(e, sent) })
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transfer failed")
		return t.fail(e, &TransferError{Key: key, Err: err})
	}
	return t.complete(e, path), nil
}

// Upload enqueues and starts f in one call.
func (t *Tracker) Upload(ctx context.Context, f File) (Task, error) {
	task := t.Enqueue(f)
	if task.State == StateFailed {
		return task, task.Err
	}
	return t.Start(ctx, task.Key)
}

// UploadBatch uploads every file independently. A failing file never aborts
// its siblings; the outcomes are returned in input order once all settle.
func (t *Tracker) UploadBatch(ctx context.Context, files []File) []Outcome {
	outcomes := make([]Outcome, len(files))
	var g errgroup.Group
	g.SetLimit(t.concurrency)
	for i, f := range files {
		outcomes[i].File = f.FileInfo
		task := t.Enqueue(f)
		if task.State == StateFailed {
			outcomes[i].Task = task
			outcomes[i].Err = task.Err
			continue
		}
		g.Go(func() error {
			final, err := t.Start(ctx, task.Key)
			outcomes[i].Task = final
			outcomes[i].Err = err
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// Get returns the current snapshot for key.
func (t *Tracker) Get(key string) (Task, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.tasks[key]
	if !ok {
		return Task{}, false
	}
	return e.task, true
}

// List returns snapshots for every tracked task in enqueue order.
func (t *Tracker) List() []Task {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Task, 0, len(t.order))
	for _, key := range t.order {
		if e, ok := t.tasks[key]; ok {
			out = append(out, e.task)
		}
	}
	return out
}

// Cancel aborts an in-flight transfer. It returns false when the task is
// unknown or not uploading.
func (t *Tracker) Cancel(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.tasks[key]
	if !ok || e.cancel == nil || e.task.State.Terminal() {
		return false
	}
	e.cancel()
	return true
}

// Release evicts a task once its result has been handed off.
func (t *Tracker) Release(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.evictLocked(key)
}

// Clear forgets every task. In-flight transfers keep running and still fire
// their hooks.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tasks = make(map[string]*entry)
	t.order = nil
}

func (t *Tracker) evictLocked(key string) {
	if _, ok := t.tasks[key]; !ok {
		return
	}
	delete(t.tasks, key)
	for i, k := range t.order {
		if k == key {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// setState must be called with t.mu held.
func (t *Tracker) setState(e *entry, s State) {
	e.task.State = s
	e.task.UpdatedAt = time.Now().UTC()
}

func (t *Tracker) progress(e *entry, sent int64) {
	t.mu.Lock()
	if e.task.State != StateUploading || sent <= e.task.BytesSent {
		t.mu.Unlock()
		return
	}
	e.task.BytesSent = sent
	e.task.UpdatedAt = time.Now().UTC()
	size := e.task.File.SizeBytes
	if size <= 0 {
		t.mu.Unlock()
		return
	}
	pct := int(min(sent, size) * 100 / size)
	if pct <= e.task.Progress {
		t.mu.Unlock()
		return
	}
	e.task.Progress = pct
	key := e.task.Key
	t.mu.Unlock()

	if t.hooks.OnProgress != nil {
		t.hooks.OnProgress(key, pct, sent)
	}
}

func (t *Tracker) complete(e *entry, path string) Task {
	t.mu.Lock()
	e.task.StoragePath = path
	e.task.Progress = 100
	if e.task.BytesSent < e.task.File.SizeBytes {
		e.task.BytesSent = e.task.File.SizeBytes
	}
	t.setState(e, StateCompleted)
	e.cancel = nil
	snap := e.task
	t.mu.Unlock()

	t.logger.Debug("upload completed",
		zap.String("key", snap.Key),
		zap.String("path", path),
		zap.Int64("bytes", snap.BytesSent),
	)
	t.record(snap)
	if t.hooks.OnComplete != nil {
		t.hooks.OnComplete(snap)
	}
	return snap
}

func (t *Tracker) fail(e *entry, err error) (Task, error) {
	t.mu.Lock()
	e.task.Reason = err.Error()
	e.task.Err = err
	e.cancel = nil
	t.setState(e, StateFailed)
	snap := e.task
	t.mu.Unlock()

	level := zap.WarnLevel
	if errors.Is(err, context.Canceled) {
		level = zap.InfoLevel
	}
	t.logger.Check(level, "upload failed").Write(
		zap.String("key", snap.Key),
		zap.String("file", snap.File.Name),
		zap.Error(err),
	)
	t.record(snap)
	if t.hooks.OnError != nil {
		t.hooks.OnError(snap)
	}
	return snap, err
}

func (t *Tracker) record(task Task) {
	if t.recorder == nil {
		return
	}
	t.recorder.RecordUpload(string(task.State), task.BytesSent)
}

// sniffContentType fills in a missing MIME type from the first 512 bytes of
// body and returns a reader that still yields the full body.
func sniffContentType(declared string, body io.Reader) (string, io.Reader, error) {
	if body == nil {
		return "", nil, errors.New("missing body")
	}
	if declared != "" {
		return declared, body, nil
	}
	head := make([]byte, 512)
	n, err := io.ReadFull(body, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", nil, err
	}
	head = head[:n]
	return http.DetectContentType(head), io.MultiReader(bytes.NewReader(head), body), nil
}
