// Command clientdesk runs the ClientDesk API, the background worker, and the
// operational helpers around them.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/clientdesk/internal/config"
	"github.com/dharsanguruparan/clientdesk/internal/observability"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	configPath string
	dev        bool
	cfg        *config.Config
	logger     *zap.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{}
	if err := a.rootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "clientdesk: %v\n", err)
		os.Exit(1)
	}
}

func (a *app) rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clientdesk",
		Short: "Client document requests, reviews, and mailbox deliveries",
		Long: `clientdesk tracks documents consultants request from clients, the uploads
that answer them, and documents consultants ship back through the mailbox.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			if a.dev {
				cfg.Dev = true
			}
			logger, err := observability.InitLogger(cfg.Dev)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			a.cfg, a.logger = cfg, logger
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "YAML config file; environment variables override it")
	cmd.PersistentFlags().BoolVar(&a.dev, "dev", false, "Human readable development logging")
	cmd.AddCommand(
		a.serveCommand(),
		a.workerCommand(),
		a.migrateCommand(),
		a.bucketsCommand(),
		a.signDownloadCommand(),
	)
	return cmd
}
