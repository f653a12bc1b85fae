package main

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/marcosevegrand/kindle-extract/internal/identifier"
)

func newResolveCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <url-or-asin>...",
		Short: "Show the book identifier and reader URL for each argument",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.AppendHeader(table.Row{"Input", "ASIN", "Reader URL"})
			for _, arg := range args {
				target := identifier.ParseTarget(cfg.Reader.ReaderURL, arg)
				id, url := "❌ not found", ""
				if target.ID != "" {
					id = target.ID
					url = identifier.ReaderURL(cfg.Reader.ReaderURL, target.ID)
				}
				t.AppendRow(table.Row{arg, id, url})
			}
			t.SetStyle(table.StyleRounded)
			t.Render()
			return nil
		},
	}
}
