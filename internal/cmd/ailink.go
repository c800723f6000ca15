package cmd

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/contextlens/contextlens/internal/ailink"
	"github.com/contextlens/contextlens/internal/config"
	"github.com/contextlens/contextlens/internal/core"
	"github.com/contextlens/contextlens/internal/output"
)

var ailinkCmd = &cobra.Command{
	Use:   "ailink",
	Short: "Inspect model gateway prompts and provider routing",
}

var ailinkPromptsCmd = &cobra.Command{
	Use:     "prompts",
	Aliases: []string{"list"},
	Short:   "List built-in and overridden prompts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cmd.Context())
		if err != nil {
			return err
		}
		svc, err := ailink.NewService(cfg.AILink)
		if err != nil {
			return err
		}

		prompts := svc.Prompts.List()
		if len(prompts) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No prompts found.")
			return nil
		}

		t := output.NewTable()
		t.AppendHeader(table.Row{"Slug", "Version", "Model", "Source", "Description"})
		for _, p := range prompts {
			if p == nil {
				continue
			}
			t.AppendRow(table.Row{p.Config.Slug, p.Config.Version, p.Config.ModelID, p.Source, p.Config.Description})
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), t.Render())
		return err
	},
}

var ailinkRoutesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Show which provider serves each model id",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cmd.Context())
		if err != nil {
			return err
		}
		svc, err := ailink.NewService(cfg.AILink)
		if err != nil {
			return err
		}

		t := output.NewTable()
		t.AppendHeader(table.Row{"Model ID", "Route"})
		for _, id := range core.SupportedModelIDs() {
			t.AppendRow(table.Row{id, svc.Describe(core.ModelID(id))})
		}
		t.AppendFooter(table.Row{"enabled", strings.Join(svc.Providers.EnabledProviders(), ", ")})
		_, err = fmt.Fprintln(cmd.OutOrStdout(), t.Render())
		return err
	},
}

func init() {
	rootCmd.AddCommand(ailinkCmd)
	ailinkCmd.AddCommand(ailinkPromptsCmd, ailinkRoutesCmd)
}
