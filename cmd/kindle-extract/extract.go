package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/marcosevegrand/kindle-extract/internal/browser"
	"github.com/marcosevegrand/kindle-extract/internal/config"
	"github.com/marcosevegrand/kindle-extract/internal/evidence"
	"github.com/marcosevegrand/kindle-extract/internal/output"
	"github.com/marcosevegrand/kindle-extract/internal/runner"
	"github.com/marcosevegrand/kindle-extract/internal/session"
	"github.com/marcosevegrand/kindle-extract/internal/store"
)

type extractFlags struct {
	mode        string
	light       bool
	maxPages    int
	settleMS    int
	visible     bool
	email       string
	cookiesFile string
	formats     []string
	dryRun      bool
}

func newExtractCmd(g *globalFlags) *cobra.Command {
	f := &extractFlags{}
	cmd := &cobra.Command{
		Use:   "extract <asin-or-url>",
		Short: "Extract a book from the reader",
		Example: `  # Turn pages automatically, up to 50 pages
  kindle-extract extract B009SE1Z9E

  # Flip pages yourself in a visible browser
  kindle-extract extract B009SE1Z9E --mode watch --visible

  # Press Enter to turn each page
  kindle-extract extract "https://read.amazon.com/reader?asin=B009SE1Z9E" --mode step --visible

  # No browser: request pages directly with saved cookies
  kindle-extract extract B009SE1Z9E --light`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			return runExtract(cmd.Context(), cfg, f, args[0])
		},
	}

	cmd.Flags().StringVar(&f.mode, "mode", "", "Page turning: auto, watch or step (default from config)")
	cmd.Flags().BoolVar(&f.light, "light", false, "Request pages over HTTP instead of driving a browser")
	cmd.Flags().IntVar(&f.maxPages, "max-pages", 0, "Maximum pages to capture (default from config)")
	cmd.Flags().IntVar(&f.settleMS, "settle-ms", -1, "Delay after a page change before capturing, in ms")
	cmd.Flags().BoolVar(&f.visible, "visible", false, "Show the browser window")
	cmd.Flags().StringVar(&f.email, "email", "", "Account email (default $"+envEmail+")")
	cmd.Flags().StringVar(&f.cookiesFile, "cookies", "", "Import cookies from a JSON file before signing in")
	cmd.Flags().StringSliceVar(&f.formats, "format", nil, "Output formats: txt, json, epub (default from config)")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "Show the plan without extracting")
	return cmd
}

func runExtract(ctx context.Context, cfg *config.Config, f *extractFlags, target string) error {
	if f.visible {
		cfg.Browser.Headless = false
	}
	if len(f.formats) > 0 {
		cfg.Output.Formats = f.formats
	}
	email := f.email
	if email == "" {
		email = os.Getenv(envEmail)
	}
	mode := f.mode
	if mode == "" {
		mode = cfg.Detection.Mode
	}
	maxPages := cfg.Detection.MaxPages
	if f.maxPages > 0 {
		maxPages = f.maxPages
	}

	method := "browser (" + mode + ")"
	if f.light {
		method = "http (light)"
	}
	printHeader("extract", [][2]string{
		{"📖 Target:", target},
		{"🧭 Method:", method},
		{"📄 Max pages:", fmt.Sprint(maxPages)},
		{"📂 Output:", cfg.Output.OutputPath},
		{"🧾 Formats:", strings.Join(cfg.Output.Formats, ", ")},
	})
	if f.dryRun {
		fmt.Println("\n✅ Configuration is valid! Run without --dry-run to start extracting.")
		return nil
	}

	logger := slog.Default()
	cookies := runner.CookieStore(cfg, email)
	if f.cookiesFile != "" {
		imported, err := (&session.CookieStore{Path: f.cookiesFile}).Load()
		if err != nil {
			return fmt.Errorf("failed to import cookies: %w", err)
		}
		if err := cookies.Save(imported); err != nil {
			return err
		}
		fmt.Printf("🍪 Imported %d cookies into %s\n", len(imported), cookies.Path)
	}

	var b browser.Browser
	if !f.light {
		chrome, err := browser.NewChrome(ctx, runner.BrowserOptions(cfg, logger))
		if err != nil {
			return err
		}
		defer chrome.Close()
		b = chrome
	}

	r := runner.New(cfg, b, runner.NewSession(cfg, b, cookies, logger), logger)
	if cfg.Debug.LogsDir != "" {
		r.Evidence = evidence.New(filepath.Clean(cfg.Debug.LogsDir))
	}

	bar := progressbar.Default(int64(maxPages), "capturing pages")
	params := runner.Params{
		Target:      target,
		Credentials: session.Credentials{Email: email, Password: os.Getenv(envPassword), RememberMe: cfg.Auth.RememberMe},
		MaxPages:    maxPages,
		Mode:        mode,
		Light:       f.light,
		OnAdvance:   func(page, _ int) { _ = bar.Set(page) },
	}
	if f.settleMS >= 0 {
		params.SettleDelay = time.Duration(f.settleMS) * time.Millisecond
	}
	if mode == config.ModeStep && !f.light {
		params.Steps = stdinSteps(ctx)
		fmt.Println("⏎  Press Enter to turn each page, Ctrl+D to finish.")
	}

	fmt.Println("\n⏳ Starting extraction...")
	report, err := r.Run(ctx, params)
	_ = bar.Finish()
	fmt.Println()

	recordHistory(cfg, report, err)
	printReport(report)
	if err != nil {
		return err
	}
	fmt.Println("\n" + strings.Repeat("═", 60))
	fmt.Println("✅ Done!")
	fmt.Println(strings.Repeat("═", 60))
	return nil
}

// stdinSteps sends a step for every line read from stdin and closes the
// channel at EOF.
func stdinSteps(ctx context.Context) <-chan struct{} {
	steps := make(chan struct{})
	go func() {
		defer close(steps)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case steps <- struct{}{}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return steps
}

func recordHistory(cfg *config.Config, report *runner.Report, runErr error) {
	if cfg.Store.Path == "" || report == nil {
		return
	}
	history, err := store.Open(cfg.Store.Path)
	if err != nil {
		slog.Warn("history unavailable", "err", err)
		return
	}
	defer history.Close()

	entry := store.Run{
		ID:         output.GenerateUUID(),
		ASIN:       report.ASIN,
		Title:      report.Title,
		Author:     report.Author,
		State:      report.State,
		Reason:     report.Reason,
		Pages:      report.Pages,
		Outputs:    report.Outputs,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
	}
	if runErr != nil {
		entry.Error = runErr.Error()
	}
	if err := history.Record(context.Background(), entry); err != nil {
		slog.Warn("could not record run", "err", err)
	}
}

func printReport(report *runner.Report) {
	if report == nil {
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Field", "Value"})
	t.AppendRow(table.Row{"ASIN", report.ASIN})
	t.AppendRow(table.Row{"Title", report.Title})
	t.AppendRow(table.Row{"Author", report.Author})
	t.AppendRow(table.Row{"State", report.State})
	t.AppendRow(table.Row{"Reason", report.Reason})
	if report.Document != nil {
		stats := output.Summarize(report.Document)
		t.AppendRow(table.Row{"Pages", stats.Pages})
		t.AppendRow(table.Row{"Words", stats.Words})
		t.AppendRow(table.Row{"Images", stats.Images})
		t.AppendRow(table.Row{"Reading time", output.FormatDuration(stats.ReadingMinutes)})
		if stats.Preview != "" {
			t.AppendRow(table.Row{"Preview", stats.Preview})
		}
	}
	if report.Conflicts > 0 {
		t.AppendRow(table.Row{"Source conflicts", report.Conflicts})
	}
	if report.Degraded {
		t.AppendRow(table.Row{"Degraded", "yes"})
	}
	t.AppendRow(table.Row{"Duration", report.FinishedAt.Sub(report.StartedAt).Round(time.Second)})
	for _, p := range report.Outputs {
		t.AppendRow(table.Row{"Output", p})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}
