package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"hubward/internal/daemon"
	"hubward/internal/logging"
)

func newDaemonCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the ingestion engine",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the engine in the foreground until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			logger, err := logging.NewForDaemon(cfg.Logging.Level, cfg.Logging.Format, cfg.LogDir)
			if err != nil {
				return err
			}

			d, err := daemon.New(cfg, nil, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return d.Run(ctx)
		},
	})
	return cmd
}
