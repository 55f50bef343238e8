package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matsen/paperrec/internal/indexer"
)

var (
	indexForce      bool
	indexNoProgress bool
)

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().BoolVar(&indexForce, "force", false, "Re-embed every paper, even if its embedding is current")
	indexCmd.Flags().BoolVar(&indexNoProgress, "no-progress", false, "Suppress progress output")
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Embed stored papers that are missing or stale",
	Long: `Embed every stored paper whose embedding is missing or was computed from
different title and abstract text. Use --force to re-embed everything, for
example after switching models.`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store := mustOpenStore()

	listCtx, cancel := storeContext(ctx)
	defer cancel()
	papers, err := store.ListPapers(listCtx)
	exitOnError(err, "listing papers")

	opts := []indexer.Option{indexer.WithForce(indexForce)}
	showProgress := humanOutput && !indexNoProgress
	if showProgress {
		opts = append(opts, indexer.WithProgress(indexer.ProgressFunc(printProgress)))
		fmt.Fprintf(os.Stderr, "Indexing %d papers...\n", len(papers))
	}

	provider := mustLoadProvider(ctx)
	stats, err := newIndexer(provider, store, opts...).Index(ctx, papers)
	if showProgress {
		fmt.Fprintf(os.Stderr, "\r%*s\r", progressLineClearWidth, "")
	}
	exitOnError(err, "indexing papers")

	if !humanOutput {
		return outputJSON(stats)
	}
	printIndexStatsHuman(stats)
	return nil
}

// printIndexStatsHuman summarizes an indexing run.
func printIndexStatsHuman(stats *indexer.Stats) {
	fmt.Printf("Indexed %d of %d papers (%d unchanged, %d skipped) in %s\n",
		stats.Indexed, stats.Total, stats.Unchanged, len(stats.Skipped), formatDuration(stats.Duration))
	for _, s := range stats.Skipped {
		label := s.PaperID
		if label == "" {
			label = fmt.Sprintf("#%d", s.Index+1)
		}
		fmt.Printf("  skipped %s: %s", label, s.Reason)
		if s.Error != "" {
			fmt.Printf(" (%s)", s.Error)
		}
		fmt.Println()
	}
}

const (
	// progressBarWidth is the width of the progress bar in characters.
	progressBarWidth = 30
	// progressLineClearWidth is wider than the bar plus its counters.
	progressLineClearWidth = 50
)

// buildProgressBar creates a progress bar string like "[=====>    ]".
func buildProgressBar(current, total, width int) string {
	if total == 0 {
		return strings.Repeat(" ", width)
	}
	filled := width * current / total
	if filled >= width {
		return strings.Repeat("=", width)
	}
	return strings.Repeat("=", filled) + ">" + strings.Repeat(" ", width-filled-1)
}

// printProgress prints the progress bar to stderr.
func printProgress(current, total int) {
	if total == 0 {
		return
	}
	pct := float64(current) / float64(total) * 100
	fmt.Fprintf(os.Stderr, "\r[%s] %d/%d (%.0f%%)", buildProgressBar(current, total, progressBarWidth), current, total, pct)
}
