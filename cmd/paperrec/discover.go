package main

import (
	"github.com/spf13/cobra"

	"github.com/matsen/paperrec/internal/arxiv"
	"github.com/matsen/paperrec/internal/indexer"
)

var (
	discoverLimit   int
	discoverNoIndex bool
)

func init() {
	rootCmd.AddCommand(discoverCmd)
	discoverCmd.Flags().IntVarP(&discoverLimit, "limit", "l", 0, "Maximum results (default arxiv.max_results)")
	discoverCmd.Flags().BoolVar(&discoverNoIndex, "no-index", false, "Only search; do not embed and store the results")
}

// DiscoverResponse is the response for the discover command.
type DiscoverResponse struct {
	Query  string         `json:"query"`
	Papers []PaperResult  `json:"papers"`
	Total  int            `json:"total"`
	Index  *indexer.Stats `json:"index,omitempty"`
}

var discoverCmd = &cobra.Command{
	Use:   "discover <query>",
	Short: "Find papers on arXiv and add them to the store",
	Long: `Search arXiv across all fields, ordered by relevance, then embed and store
every result so it can be recommended.

Results that cannot be embedded or stored are skipped and reported; the rest
are still indexed. Requests are rate limited, and after 5 consecutive
failures further requests are rejected for a minute.`,
	Args: cobra.ExactArgs(1),
	RunE: runDiscover,
}

// newArxivClient builds an arXiv client from configuration.
func newArxivClient() *arxiv.Client {
	return arxiv.NewClient(
		arxiv.WithBaseURL(cfg.Arxiv.BaseURL),
		arxiv.WithMaxResults(cfg.Arxiv.MaxResults),
		arxiv.WithTimeout(cfg.Arxiv.Timeout),
		arxiv.WithMinInterval(cfg.Arxiv.MinInterval),
		arxiv.WithUserAgent(cfg.Arxiv.UserAgent),
	)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	query := args[0]

	papers, err := newArxivClient().Search(ctx, query, discoverLimit)
	exitOnError(err, "searching arXiv")

	resp := DiscoverResponse{Query: query, Papers: paperResults(papers, true), Total: len(papers)}
	if !discoverNoIndex && len(papers) > 0 {
		provider := mustLoadProvider(ctx)
		store := mustOpenStore()
		stats, err := newIndexer(provider, store).Index(ctx, papers)
		exitOnError(err, "indexing results")
		resp.Index = stats
	}

	if !humanOutput {
		return outputJSON(resp)
	}
	outputHuman("arXiv: \"%s\" (%d results)\n\n", query, resp.Total)
	printPapersHuman(resp.Papers)
	if resp.Index != nil {
		printIndexStatsHuman(resp.Index)
	}
	return nil
}
