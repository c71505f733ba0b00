package main

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"hubward/internal/catalog"
)

func newHubsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hubs",
		Short: "Inspect the hub catalogue",
	}
	cmd.AddCommand(newHubsListCommand(), newHubsSearchCommand())
	return cmd
}

func newHubsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every hub with its works",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			hubs, err := store.ListHubs(cmd.Context())
			if err != nil {
				return err
			}
			renderHubs(cmd, hubs)
			return nil
		},
	}
}

func newHubsSearchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search hubs by display name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.TrimSpace(args[0])
			if len(query) < 2 {
				return fmt.Errorf("query must be at least 2 characters")
			}
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			hubs, err := store.SearchHubs(cmd.Context(), query, 20)
			if err != nil {
				return err
			}
			renderHubs(cmd, hubs)
			return nil
		},
	}
}

func openStore() (*catalog.Store, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return catalog.Open(cfg.DatabasePath)
}

func renderHubs(cmd *cobra.Command, hubs []*catalog.Hub) {
	if len(hubs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No hubs found.")
		return
	}
	t := newTable(cmd.OutOrStdout())
	t.AppendHeader(table.Row{"Hub", "Works", "Created"})
	for _, hub := range hubs {
		t.AppendRow(table.Row{
			hub.DisplayName,
			len(hub.Works),
			hub.CreatedAt.Format("2006-01-02"),
		})
	}
	t.Render()
}
