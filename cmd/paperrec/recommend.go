package main

import (
	"github.com/spf13/cobra"

	"github.com/matsen/paperrec/internal/recommend"
)

var (
	recommendUser  string
	recommendLimit int
)

func init() {
	rootCmd.AddCommand(recommendCmd)
	recommendCmd.Flags().StringVarP(&recommendUser, "user", "u", "", "User id (required)")
	recommendCmd.Flags().IntVarP(&recommendLimit, "limit", "l", recommend.DefaultLimit, "Maximum number of recommendations")
	recommendCmd.MarkFlagRequired("user")
}

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Recommend papers from a user's saved library",
	Long: `Recommend stored papers similar to the papers a user has saved.

The user's interest vector is the mean embedding of their saved papers; at
least 5 saved papers with embeddings are required. Papers already saved are
never recommended. When many of the nearest papers are already saved, fewer
than --limit recommendations may be returned.`,
	Args: cobra.NoArgs,
	RunE: runRecommend,
}

func runRecommend(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store := mustOpenStore()

	rec := recommend.New(store, recommend.WithStoreTimeout(cfg.Timeouts.Store))
	result, err := rec.Recommend(ctx, recommendUser, recommendLimit)
	exitOnError(err, "recommending papers")

	if !humanOutput {
		return outputJSON(result)
	}

	if result.Status == recommend.StatusNotEnoughData {
		outputHuman("%s\n", result.Message)
		return nil
	}
	outputHuman("Recommendations for %s (%d)\n\n", recommendUser, len(result.Recommendations))
	printPapersHuman(matchResults(result.Recommendations, false))
	return nil
}
