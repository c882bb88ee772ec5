package main

import (
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/clientdesk/internal/database"
	"github.com/dharsanguruparan/clientdesk/internal/lifecycle"
	"github.com/dharsanguruparan/clientdesk/internal/repository"
	"github.com/dharsanguruparan/clientdesk/internal/s3storage"
	"github.com/dharsanguruparan/clientdesk/internal/worker"
)

func (a *app) workerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the asynq worker that delivers notifications and inspects uploads",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := a.cfg

			pool, err := database.Connect(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer pool.Close()
			repo := repository.New(pool)

			objects, err := s3storage.New(cfg)
			if err != nil {
				return fmt.Errorf("init storage: %w", err)
			}

			records := lifecycle.NewDocumentService(repo, nil, lifecycle.Options{PersistTimeout: cfg.PersistTimeout, Logger: a.logger})
			processor := worker.NewProcessor(repo, records, objects, worker.Options{
				DocumentsBucket: cfg.S3.DocumentsBucket,
				PreviewsBucket:  cfg.S3.PreviewsBucket,
				MaxReadBytes:    cfg.Uploads.MaxFileBytes,
				Logger:          a.logger.Named("worker"),
			})

			server := asynq.NewServer(asynq.RedisClientOpt{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			}, asynq.Config{
				Concurrency: cfg.WorkerConcurrency,
				Logger:      a.logger.Named("asynq").Sugar(),
			})

			go func() {
				<-ctx.Done()
				server.Shutdown()
			}()

			a.logger.Info("worker started", zap.Int("concurrency", cfg.WorkerConcurrency))
			if err := server.Run(processor.Handler()); err != nil {
				return fmt.Errorf("worker stopped: %w", err)
			}
			return nil
		},
	}
}
