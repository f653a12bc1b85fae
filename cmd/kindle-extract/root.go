package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/marcosevegrand/kindle-extract/internal/config"
)

// Environment variables holding account credentials.
const (
	envEmail    = "KINDLE_EMAIL"
	envPassword = "KINDLE_PASSWORD"
)

type globalFlags struct {
	configFile string
	outputPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:   AppName,
		Short: "Extract books from the Kindle Cloud Reader",
		Long: `kindle-extract signs in to the Kindle Cloud Reader, turns the pages of a book
and captures their text from the reader's own traffic, scripts and markup.

Credentials are read from KINDLE_EMAIL and KINDLE_PASSWORD (a .env file is
loaded when present). Saved cookies are reused whenever they still work.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
			level := slog.LevelInfo
			if g.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}

	cmd.PersistentFlags().StringVarP(&g.configFile, "config", "c", "config.yaml", "Path to configuration file (YAML, JSON or JSON5)")
	cmd.PersistentFlags().StringVarP(&g.outputPath, "output", "o", "", "Output directory (overrides config)")
	cmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(
		newExtractCmd(g),
		newParseCmd(g),
		newServeCmd(g),
		newHistoryCmd(g),
		newResolveCmd(g),
	)
	return cmd
}

// load reads the config file when it exists, applies global overrides and
// validates the result.
func (g *globalFlags) load() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if _, err := os.Stat(g.configFile); err == nil {
		loaded, err := config.LoadConfig(g.configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = loaded
	} else if g.configFile != "config.yaml" {
		return nil, fmt.Errorf("configuration file not found: %s", g.configFile)
	}

	if g.outputPath != "" {
		cfg.Output.OutputPath = g.outputPath
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func printHeader(title string, rows [][2]string) {
	fmt.Println()
	fmt.Println(strings.Repeat("═", 60))
	fmt.Printf("📚 %s v%s: %s\n", AppName, AppVersion, title)
	fmt.Println(strings.Repeat("═", 60))
	for _, r := range rows {
		fmt.Printf("%s %s\n", r[0], r[1])
	}
	fmt.Println(strings.Repeat("─", 60))
}
