package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/marcosevegrand/kindle-extract/internal/httpapi"
	"github.com/marcosevegrand/kindle-extract/internal/runner"
	"github.com/marcosevegrand/kindle-extract/internal/store"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the run control API",
		Long: `Serve starts an HTTP API for launching extractions in the background and
polling their progress.

  POST /api/runs            start a run ({"target", "email", "password", "cookies", "maxPages", ...})
  GET  /api/runs            list runs of this process
  GET  /api/runs/{id}       progress, recent log lines and outputs
  POST /api/runs/{id}/stop  stop a run; captured pages are still written
  GET  /api/history         finished runs from the history database`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}
			logger := slog.Default()

			var history *store.Store
			if cfg.Store.Path != "" {
				history, err = store.Open(cfg.Store.Path)
				if err != nil {
					return err
				}
				defer history.Close()
			}

			manager := runner.NewManager(runner.NewFactory(cfg), history, logger)
			defer manager.Shutdown()

			return httpapi.New(manager, history, logger).ListenAndServe(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (default from config)")
	return cmd
}
