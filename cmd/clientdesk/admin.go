package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/clientdesk/internal/database"
	"github.com/dharsanguruparan/clientdesk/internal/s3storage"
	"github.com/dharsanguruparan/clientdesk/internal/signing"
)

func (a *app) migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the Postgres tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			pool, err := database.Connect(ctx, a.cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer pool.Close()
			if err := database.EnsureSchema(ctx, pool); err != nil {
				return fmt.Errorf("ensure schema: %w", err)
			}
			a.logger.Info("schema ready")
			return nil
		},
	}
}

func (a *app) bucketsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "buckets",
		Short: "Create the object storage buckets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			objects, err := s3storage.New(a.cfg)
			if err != nil {
				return fmt.Errorf("init storage: %w", err)
			}
			if err := objects.EnsureBuckets(cmd.Context()); err != nil {
				return err
			}
			a.logger.Info("buckets ready")
			return nil
		},
	}
}

func (a *app) signDownloadCommand() *cobra.Command {
	var (
		baseURL string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "sign-download <item-id> <client-id>",
		Short: "Print a signed mailbox download link",
		Long: `sign-download prints a link the API accepts at GET /mailbox/download. The
configured signing secret must match the API's.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.SigningSecret == "" {
				return fmt.Errorf("no signing secret configured")
			}
			if ttl <= 0 {
				ttl = a.cfg.SignedURLTTL
			}
			d := signing.Download{
				ItemID:   args[0],
				ClientID: args[1],
				Expires:  time.Now().Add(ttl).Truncate(time.Second),
			}
			q := signing.NewSigner(a.cfg.Secret()).Query(d)
			fmt.Fprintf(cmd.OutOrStdout(), "%s/mailbox/download?%s\n", strings.TrimRight(baseURL, "/"), q.Encode())
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", "http://localhost:8080", "Public address of the API")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Link lifetime; defaults to the configured signed URL TTL")
	return cmd
}
