// Package processing runs queued background tasks on an in-process worker
// pool. Local mode uses it in place of Redis so the same asynq handlers serve
// notifications and document inspection.
package processing

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

var (
	// ErrQueueFull is returned when the job buffer is at capacity.
	ErrQueueFull = errors.New("processing queue full")
	// ErrStopped is returned once the pool's context has been cancelled.
	ErrStopped = errors.New("processing pool stopped")
)

const defaultAttempts = 3

// Options configures a Pool.
type Options struct {
	Workers int
	// Buffer is the channel capacity. Zero means four jobs per worker.
	Buffer int
	// Attempts bounds how often a failing task runs. SkipRetry errors stop
	// after the first attempt.
	Attempts int
	Logger   *zap.Logger
}

// Pool consumes tasks on a fixed number of goroutines and satisfies
// queue.Enqueuer.
type Pool struct {
	handler  asynq.Handler
	jobs     chan *asynq.Task
	workers  int
	attempts int
	logger   *zap.Logger
	wg       sync.WaitGroup

	// mu orders sends against the stop flag so every accepted task is
	// buffered before the workers' final drain.
	mu      sync.Mutex
	stopped bool
}

// New builds a Pool dispatching to handler.
func New(handler asynq.Handler, opts Options) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Buffer <= 0 {
		opts.Buffer = opts.Workers * 4
	}
	if opts.Attempts <= 0 {
		opts.Attempts = defaultAttempts
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Pool{
		handler:  handler,
		jobs:     make(chan *asynq.Task, opts.Buffer),
		workers:  opts.Workers,
		attempts: opts.Attempts,
		logger:   opts.Logger,
	}
}

// Start launches the workers. They exit once ctx is cancelled and the buffer
// has drained.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

// Wait blocks until every worker has exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// EnqueueContext queues task without blocking. Options are accepted for
// interface compatibility and ignored. After the pool's context is cancelled
// it returns ErrStopped.
func (p *Pool) EnqueueContext(ctx context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return nil, ErrStopped
	}
	select {
	case p.jobs <- task:
	default:
		return nil, ErrQueueFull
	}
	return &asynq.TaskInfo{
		ID:      uuid.NewString(),
		Queue:   "local",
		Type:    task.Type(),
		Payload: task.Payload(),
		State:   asynq.TaskStatePending,
	}, nil
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			p.stop()
			p.drain()
			return
		case task := <-p.jobs:
			p.run(ctx, task)
		}
	}
}

func (p *Pool) stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
}

// drain finishes whatever is already buffered with a fresh context.
func (p *Pool) drain() {
	for {
		select {
		case task := <-p.jobs:
			p.run(context.Background(), task)
		default:
			return
		}
	}
}

func (p *Pool) run(ctx context.Context, task *asynq.Task) {
	var err error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if err = p.handler.ProcessTask(ctx, task); err == nil {
			return
		}
		if errors.Is(err, asynq.SkipRetry) || ctx.Err() != nil {
			break
		}
		p.logger.Debug("task attempt failed", zap.String("type", task.Type()), zap.Int("attempt", attempt), zap.Error(err))
	}
	p.logger.Warn("task failed", zap.String("type", task.Type()), zap.Error(err))
}
