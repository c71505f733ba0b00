package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"hubward/internal/config"
	"hubward/internal/daemon"
)

var configPath string

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "hubward",
		Short:         "Local-first media library kernel",
		Long:          "Hubward watches an inbox for media files, reconciles metadata claims into canonical values, groups files into hubs, and organises them on disk.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the configuration JSON")

	root.AddCommand(
		newDaemonCommand(),
		newHubsCommand(),
		newConfigCommand(),
		newInhaleCommand(),
		newVersionCommand(),
	)
	return root
}

// loadConfig resolves the configuration for CLI commands.
func loadConfig() (*config.Config, string, error) {
	return config.Load(configPath)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the hubward version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), "hubward", daemon.Version)
			return nil
		},
	}
}
