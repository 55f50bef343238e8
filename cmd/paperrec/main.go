// Package main provides the paperrec CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/matsen/paperrec/internal/config"
	"github.com/matsen/paperrec/internal/logging"
	"github.com/matsen/paperrec/internal/metrics"
)

// Version is set at build time via ldflags
var Version = "dev"

var (
	// humanOutput controls whether to use human-readable output
	humanOutput bool
	// configFlag is an explicit config file path
	configFlag string
	// dumpMetrics writes the metric registry to stderr on exit
	dumpMetrics bool

	// cfg is the configuration loaded before every command runs
	cfg *config.Loaded
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	runCleanup()
	writeMetrics()
	if err != nil {
		// Print the error since we have SilenceErrors: true
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(exitCodeFor(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "paperrec",
	Short: "Research paper recommendations from your saved library",
	Long: `paperrec recommends research papers based on the papers you have saved.

Every paper is embedded with the all-MiniLM-L6-v2 sentence model into a
384-dimensional unit vector. Your interest vector is the mean of the vectors
of your saved papers; recommendations are the stored papers nearest to it
that you have not saved yet. At least 5 saved papers are required.

Papers are discovered on arXiv ('paperrec discover') or imported from local
PDFs ('paperrec add-pdf') and kept in a local SQLite store.
All commands output JSON by default.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Config file (default $PAPERREC_CONFIG or ~/.config/paperrec/config.yml)")
	rootCmd.PersistentFlags().BoolVar(&dumpMetrics, "metrics", false, "Write Prometheus metrics to stderr on exit")
	rootCmd.Version = Version
}

// setup loads .env, configuration and logging, and tags the command context
// with a correlation id.
func setup(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	loaded, err := config.Load(configFlag)
	if err != nil {
		exitWithError(ExitConfigError, "loading config: %v", err)
	}
	cfg = loaded

	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	ctx := logging.ContextWithNewCorrelationID(cmd.Context())
	cmd.SetContext(ctx)

	logging.Ctx(ctx).Debug().Str("command", cmd.CommandPath()).Str("config", cfg.Path).Msg("starting")
	return nil
}

// writeMetrics dumps the metric registry when --metrics is set.
func writeMetrics() {
	if !dumpMetrics {
		return
	}
	if err := metrics.WriteText(os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: writing metrics: %v\n", err)
	}
}
