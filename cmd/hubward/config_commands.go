package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"hubward/internal/config"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "init",
			Short: "Create a default configuration file",
			RunE: func(cmd *cobra.Command, _ []string) error {
				path := configPath
				if path == "" {
					resolved, err := config.DefaultConfigPath()
					if err != nil {
						return err
					}
					path = resolved
				}
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("configuration already exists at %s", path)
				}
				def := config.Default()
				if err := config.Save(&def, path); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Created", path)
				return nil
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, resolved, err := loadConfig()
				if err != nil {
					return err
				}
				data, err := json.MarshalIndent(cfg, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "#", resolved)
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the resolved configuration path",
			RunE: func(cmd *cobra.Command, _ []string) error {
				_, resolved, err := loadConfig()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), resolved)
				return nil
			},
		},
	)
	return cmd
}
