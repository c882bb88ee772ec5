package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/clientdesk/internal/api"
	"github.com/dharsanguruparan/clientdesk/internal/database"
	"github.com/dharsanguruparan/clientdesk/internal/lifecycle"
	"github.com/dharsanguruparan/clientdesk/internal/notify"
	"github.com/dharsanguruparan/clientdesk/internal/observability"
	"github.com/dharsanguruparan/clientdesk/internal/processing"
	"github.com/dharsanguruparan/clientdesk/internal/queue"
	"github.com/dharsanguruparan/clientdesk/internal/repository"
	"github.com/dharsanguruparan/clientdesk/internal/s3storage"
	"github.com/dharsanguruparan/clientdesk/internal/signing"
	"github.com/dharsanguruparan/clientdesk/internal/storage"
	"github.com/dharsanguruparan/clientdesk/internal/upload"
	"github.com/dharsanguruparan/clientdesk/internal/worker"
)

// store is everything the API persists, satisfied by both the pgx repository
// and the memory store.
type store interface {
	lifecycle.DocumentStore
	lifecycle.MailboxStore
	notify.Inbox
}

// objectStore is satisfied by both s3storage and the disk object store.
type objectStore interface {
	api.Objects
	lifecycle.ObjectRemover
}

type backend struct {
	store       store
	objects     objectStore
	queue       queue.Enqueuer
	inspections lifecycle.InspectionQueue
}

func (a *app) serveCommand() *cobra.Command {
	var local, trace bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `serve runs the HTTP API against Postgres, MinIO, and Redis. With --local it keeps
metadata in memory, stores objects below the data directory, and runs the
background jobs in-process.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			tp, err := observability.InitTracerProvider(traceWriter(trace), a.logger)
			if err != nil {
				return err
			}
			defer observability.ShutdownTracerProvider(context.Background(), tp, a.logger)

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			metrics, err := observability.NewMetrics(reg, reg)
			if err != nil {
				return fmt.Errorf("init metrics: %w", err)
			}

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()
			var (
				b       backend
				cleanup func()
			)
			if local {
				b, cleanup, err = a.localBackend(ctx, metrics)
			} else {
				b, cleanup, err = a.remoteBackend(ctx)
			}
			if err != nil {
				return err
			}
			runErr := a.newServer(b, metrics).Run(ctx)
			cancel()
			cleanup()
			return runErr
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "Run without Postgres, MinIO, or Redis")
	cmd.Flags().BoolVar(&trace, "trace", false, "Print spans to stderr")
	return cmd
}

func traceWriter(enabled bool) io.Writer {
	if enabled {
		return os.Stderr
	}
	return nil
}

func (a *app) lifecycleOptions(metrics *observability.Metrics) lifecycle.Options {
	return lifecycle.Options{PersistTimeout: a.cfg.PersistTimeout, Logger: a.logger, Recorder: metrics}
}

func (a *app) newServer(b backend, metrics *observability.Metrics) *api.Server {
	cfg := a.cfg
	notifier := notify.NewLogNotifier(a.logger.Named("notify"), notify.NewQueueNotifier(b.queue))
	opts := a.lifecycleOptions(metrics)
	docs := lifecycle.NewDocumentService(b.store, notifier, opts)
	mailbox := lifecycle.NewMailboxService(b.store, notifier, nil, opts)
	tracker := upload.NewTracker(b.objects, upload.Options{
		Bucket:      cfg.S3.DocumentsBucket,
		Policy:      cfg.UploadPolicy(),
		Concurrency: cfg.Uploads.Concurrency,
		Recorder:    metrics,
		Logger:      a.logger.Named("upload"),
	})
	intake := lifecycle.NewIntake(tracker, docs, lifecycle.IntakeOptions{
		Bucket:      cfg.S3.DocumentsBucket,
		Remover:     b.objects,
		Inspections: b.inspections,
		Logger:      a.logger.Named("intake"),
	})
	if cfg.SigningSecret == "" {
		a.logger.Warn("no signing secret configured; download links stop working on restart")
	}
	return api.New(cfg, api.Deps{
		Documents: docs,
		Mailbox:   mailbox,
		Intake:    intake,
		Tracker:   tracker,
		Inbox:     b.store,
		Objects:   b.objects,
		Signer:    signing.NewSigner(cfg.Secret()),
		Metrics:   metrics,
		Logger:    a.logger.Named("api"),
	})
}

// remoteBackend connects to Postgres, MinIO, and Redis. The returned cleanup
// closes the pool and the queue client.
func (a *app) remoteBackend(ctx context.Context) (backend, func(), error) {
	cfg := a.cfg
	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return backend{}, nil, fmt.Errorf("connect database: %w", err)
	}
	objects, err := s3storage.New(cfg)
	if err != nil {
		pool.Close()
		return backend{}, nil, fmt.Errorf("init storage: %w", err)
	}
	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	cleanup := func() {
		if err := client.Close(); err != nil {
			a.logger.Warn("close queue client", zap.Error(err))
		}
		pool.Close()
	}
	return backend{
		store:       repository.New(pool),
		objects:     objects,
		queue:       client,
		inspections: queue.Inspections{Client: client},
	}, cleanup, nil
}

// localBackend keeps metadata in memory and objects on disk, and runs the
// worker handlers on an in-process pool that stops with ctx. The returned
// cleanup waits for the pool to drain.
func (a *app) localBackend(ctx context.Context, metrics *observability.Metrics) (backend, func(), error) {
	cfg := a.cfg
	mem := storage.NewMemoryStore()
	objects, err := storage.NewDiskObjects(filepath.Join(cfg.DataDir, "objects"))
	if err != nil {
		return backend{}, nil, err
	}
	mux := asynq.NewServeMux()
	pool := processing.New(mux, processing.Options{
		Workers: cfg.WorkerConcurrency,
		Logger:  a.logger.Named("jobs"),
	})
	// Inspection results land in the same memory store the API reads.
	records := lifecycle.NewDocumentService(mem, nil, a.lifecycleOptions(metrics))
	worker.NewProcessor(mem, records, objects, worker.Options{
		DocumentsBucket: cfg.S3.DocumentsBucket,
		PreviewsBucket:  cfg.S3.PreviewsBucket,
		MaxReadBytes:    cfg.Uploads.MaxFileBytes,
		Logger:          a.logger.Named("worker"),
	}).Register(mux)
	pool.Start(ctx)
	a.logger.Info("local mode", zap.String("data_dir", cfg.DataDir))
	return backend{
		store:       mem,
		objects:     objects,
		queue:       pool,
		inspections: queue.Inspections{Client: pool},
	}, pool.Wait, nil
}
