package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/marcosevegrand/kindle-extract/internal/browser"
	"github.com/marcosevegrand/kindle-extract/internal/capture"
	"github.com/marcosevegrand/kindle-extract/internal/runner"
)

func newParseCmd(g *globalFlags) *cobra.Command {
	var harFile, responsesFile, asin string
	cmd := &cobra.Command{
		Use:   "parse",
		Short: "Build a book from recorded reader traffic",
		Long: `Parse reads responses saved from a reader session, either a HAR export from
the browser's network panel or a JSON file of saved response bodies, and
writes the book they contain.`,
		Example: `  kindle-extract parse --har read.amazon.com.har
  kindle-extract parse --responses page_17.json --asin B009SE1Z9E`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (harFile == "") == (responsesFile == "") {
				return errors.New("exactly one of --har or --responses is required")
			}
			cfg, err := g.load()
			if err != nil {
				return err
			}

			var events []browser.NetworkEvent
			source := harFile
			if harFile != "" {
				events, err = capture.LoadHAR(harFile, capture.DefaultFilter())
			} else {
				source = responsesFile
				events, err = capture.LoadResponseFile(responsesFile)
			}
			if err != nil {
				return err
			}
			printHeader("parse", [][2]string{
				{"📥 Source:", source},
				{"📨 Responses:", fmt.Sprint(len(events))},
				{"📂 Output:", cfg.Output.OutputPath},
			})

			r := runner.New(cfg, nil, nil, slog.Default())
			report, err := r.Parse(cmd.Context(), asin, events)
			printReport(report)
			return err
		},
	}
	cmd.Flags().StringVar(&harFile, "har", "", "HAR file exported from the browser")
	cmd.Flags().StringVar(&responsesFile, "responses", "", "JSON file of saved responses")
	cmd.Flags().StringVar(&asin, "asin", "", "Book identifier, when the responses do not carry one")
	return cmd
}
