package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"hubward/internal/catalog"
	"hubward/internal/logging"
	"hubward/internal/sidecar"
)

func newInhaleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inhale",
		Short: "Rebuild the catalogue from on-disk sidecars",
		Long:  "Walks the data root, reads every sidecar descriptor, and restores hubs, works, editions, and assets. Safe to re-run; existing content hashes are skipped.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			logger, err := logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
			if err != nil {
				return err
			}
			store, err := catalog.Open(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := sidecar.NewInhaler(store, logger).Inhale(cmd.Context(), cfg.DataRoot)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"Sidecars: %d seen, %d restored, %d already present, %d failed\n",
				stats.SidecarsSeen, stats.Restored, stats.Duplicates, stats.Failures)
			return nil
		},
	}
}
