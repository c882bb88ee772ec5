package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore reads each body fully and replays a scripted progress sequence.
type fakeStore struct {
	mu       sync.Mutex
	script   []int64
	failFor  map[string]error
	block    chan struct{}
	received map[string]string
	types    map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		failFor:  map[string]error{},
		received: map[string]string{},
		types:    map[string]string{},
	}
}

func (s *fakeStore) PutObject(ctx context.Context, bucket, folder string, obj Object, progress func(int64)) (string, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	data, err := io.ReadAll(obj.Body)
	if err != nil {
		return "", err
	}
	for _, sent := range s.script {
		progress(sent)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failFor[obj.Name]; err != nil {
		return "", err
	}
	path := fmt.Sprintf("%s/%s/%s", bucket, folder, obj.Name)
	s.received[path] = string(data)
	s.types[path] = obj.ContentType
	return path, nil
}

func pdfFile(name string, body string) File {
	return File{
		FileInfo: FileInfo{Name: name, SizeBytes: int64(len(body)), MimeType: "application/pdf"},
		Folder:   "client-1",
		Body:     strings.NewReader(body),
	}
}

func TestTrackerProgressIsMonotonicAndEndsOnce(t *testing.T) {
	store := newFakeStore()
	store.script = []int64{0, 25, 50, 40, 50, 75, 100}

	var mu sync.Mutex
	var reported []int
	var completions, failures int
	tracker := NewTracker(store, Options{
		Bucket: "docs",
		Policy: documentPolicy,
		Hooks: Hooks{
			OnProgress: func(_ string, pct int, _ int64) {
				mu.Lock()
				reported = append(reported, pct)
				mu.Unlock()
			},
			OnComplete: func(Task) { completions++ },
			OnError:    func(Task) { failures++ },
		},
	})

	task, err := tracker.Upload(context.Background(), pdfFile("w2.pdf", strings.Repeat("x", 100)))
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, task.State)
	assert.Equal(t, "docs/client-1/w2.pdf", task.StoragePath)
	assert.Equal(t, 100, task.Progress)

	assert.Equal(t, []int{25, 50, 75, 100}, reported)
	assert.Equal(t, 1, completions)
	assert.Zero(t, failures)
}

func TestTrackerUnknownSizeReportsNoPercentages(t *testing.T) {
	store := newFakeStore()
	store.script = []int64{10, 20}
	var reported int
	tracker := NewTracker(store, Options{
		Hooks: Hooks{OnProgress: func(string, int, int64) { reported++ }},
	})

	task := tracker.Enqueue(File{FileInfo: FileInfo{Name: "a.pdf", SizeBytes: 1}, Body: strings.NewReader("abcdefghijklmnopqrst")})
	// drop the size after admission to model a stream of unknown length
	tracker.mu.Lock()
	tracker.tasks[task.Key].task.File.SizeBytes = 0
	tracker.mu.Unlock()

	final, err := tracker.Start(context.Background(), task.Key)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, final.State)
	assert.Zero(t, reported)
}

func TestTrackerEnqueueRejectionFailsImmediately(t *testing.T) {
	var failed []Task
	tracker := NewTracker(newFakeStore(), Options{
		Policy: documentPolicy,
		Hooks:  Hooks{OnError: func(task Task) { failed = append(failed, task) }},
	})

	task := tracker.Enqueue(File{FileInfo: FileInfo{Name: "virus.exe", SizeBytes: 3}, Body: strings.NewReader("bad")})
	assert.Equal(t, StateFailed, task.State)
	var verr *ValidationError
	require.True(t, errors.As(task.Err, &verr))
	require.Len(t, failed, 1)
	assert.Equal(t, task.Key, failed[0].Key)

	_, err := tracker.Start(context.Background(), task.Key)
	assert.ErrorIs(t, err, ErrNotQueued)
}

func TestTrackerBatchIsolatesFailures(t *testing.T) {
	store := newFakeStore()
	store.failFor["two.pdf"] = errors.New("bucket unavailable")
	tracker := NewTracker(store, Options{Bucket: "docs", Policy: documentPolicy, Concurrency: 3})

	outcomes := tracker.UploadBatch(context.Background(), []File{
		pdfFile("one.pdf", "1111"),
		pdfFile("two.pdf", "2222"),
		pdfFile("three.pdf", "3333"),
	})
	require.Len(t, outcomes, 3)

	assert.Equal(t, "one.pdf", outcomes[0].File.Name)
	assert.Equal(t, StateCompleted, outcomes[0].Task.State)
	assert.NoError(t, outcomes[0].Err)

	assert.Equal(t, StateFailed, outcomes[1].Task.State)
	var terr *TransferError
	require.True(t, errors.As(outcomes[1].Err, &terr))
	assert.Equal(t, outcomes[1].Task.Key, terr.Key)

	assert.Equal(t, StateCompleted, outcomes[2].Task.State)
	assert.Equal(t, "3333", store.received["docs/client-1/three.pdf"])
}

func TestTrackerSniffsMissingContentType(t *testing.T) {
	store := newFakeStore()
	tracker := NewTracker(store, Options{Bucket: "docs", Policy: documentPolicy})

	body := "%PDF-1.4\n%rest of the document"
	task, err := tracker.Upload(context.Background(), File{
		FileInfo: FileInfo{Name: "scan.pdf", SizeBytes: int64(len(body))},
		Folder:   "c",
		Body:     strings.NewReader(body),
	})
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", task.File.MimeType)
	assert.Equal(t, body, store.received[task.StoragePath])
	assert.Equal(t, "application/pdf", store.types[task.StoragePath])
}

func TestTrackerCancelFailsInFlightTask(t *testing.T) {
	store := newFakeStore()
	store.block = make(chan struct{})
	tracker := NewTracker(store, Options{Policy: documentPolicy})

	task := tracker.Enqueue(pdfFile("slow.pdf", "zzz"))
	done := make(chan error, 1)
	go func() {
		_, err := tracker.Start(context.Background(), task.Key)
		done <- err
	}()

	require.Eventually(t, func() bool {
		got, _ := tracker.Get(task.Key)
		return got.State == StateUploading
	}, timeout, tick)
	assert.True(t, tracker.Cancel(task.Key))

	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
	got, ok := tracker.Get(task.Key)
	require.True(t, ok)
	assert.Equal(t, StateFailed, got.State)
	assert.False(t, tracker.Cancel(task.Key))
}

func TestTrackerClearKeepsInFlightTransfersRunning(t *testing.T) {
	store := newFakeStore()
	store.block = make(chan struct{})
	completed := make(chan Task, 1)
	tracker := NewTracker(store, Options{
		Policy: documentPolicy,
		Hooks:  Hooks{OnComplete: func(task Task) { completed <- task }},
	})

	task := tracker.Enqueue(pdfFile("late.pdf", "abc"))
	go func() { _, _ = tracker.Start(context.Background(), task.Key) }()
	require.Eventually(t, func() bool {
		got, _ := tracker.Get(task.Key)
		return got.State == StateUploading
	}, timeout, tick)

	tracker.Clear()
	assert.Empty(t, tracker.List())
	close(store.block)

	final := <-completed
	assert.Equal(t, task.Key, final.Key)
	assert.Equal(t, StateCompleted, final.State)
	_, ok := tracker.Get(task.Key)
	assert.False(t, ok)
}

func TestTrackerReleaseEvicts(t *testing.T) {
	tracker := NewTracker(newFakeStore(), Options{Policy: documentPolicy})
	a := tracker.Enqueue(pdfFile("a.pdf", "a"))
	b := tracker.Enqueue(pdfFile("b.pdf", "b"))

	tracker.Release(a.Key)
	list := tracker.List()
	require.Len(t, list, 1)
	assert.Equal(t, b.Key, list[0].Key)

	_, err := tracker.Start(context.Background(), a.Key)
	assert.ErrorIs(t, err, ErrUnknownTask)
}
