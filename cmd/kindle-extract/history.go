package main

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/marcosevegrand/kindle-extract/internal/store"
)

func newHistoryCmd(g *globalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List finished extractions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			if cfg.Store.Path == "" {
				return fmt.Errorf("history is disabled (store.path is empty)")
			}
			history, err := store.Open(cfg.Store.Path)
			if err != nil {
				return err
			}
			defer history.Close()

			runs, err := history.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("📭 No runs recorded yet.")
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.AppendHeader(table.Row{"Finished", "ASIN", "Title", "State", "Reason", "Pages", "Error"})
			for _, r := range runs {
				t.AppendRow(table.Row{
					r.FinishedAt.Local().Format("2006-01-02 15:04"),
					r.ASIN, r.Title, r.State, r.Reason, r.Pages, r.Error,
				})
			}
			t.SetStyle(table.StyleRounded)
			t.Render()
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show (0 for all)")
	return cmd
}
