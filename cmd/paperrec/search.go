package main

import (
	"strings"

	"github.com/spf13/cobra"
)

var (
	searchLimit  int
	similarLimit int
)

func init() {
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(similarCmd)
	rootCmd.AddCommand(showCmd)

	searchCmd.Flags().IntVarP(&searchLimit, "limit", "l", DefaultSearchLimit, "Maximum number of results")
	similarCmd.Flags().IntVarP(&similarLimit, "limit", "l", 10, "Maximum number of results")
}

// SearchResponse is the response for the search and similar commands.
type SearchResponse struct {
	Query   string        `json:"query,omitempty"`
	PaperID string        `json:"paper_id,omitempty"`
	Results []PaperResult `json:"results"`
	Total   int           `json:"total"`
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Keyword search over stored papers",
	Long: `Search stored papers by keyword in title, abstract and authors.

Multiple words match papers containing all of them. Quoted phrases match
exactly.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

var similarCmd = &cobra.Command{
	Use:   "similar <paper-id>",
	Short: "Find stored papers nearest to a paper",
	Args:  cobra.ExactArgs(1),
	RunE:  runSimilar,
}

var showCmd = &cobra.Command{
	Use:   "show <paper-id>",
	Short: "Show a stored paper",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	query := strings.TrimSpace(args[0])
	if query == "" {
		exitWithError(ExitDataError, "search query cannot be empty")
	}

	sctx, cancel := storeContext(ctx)
	defer cancel()
	papers, err := mustOpenStore().Search(sctx, query, searchLimit)
	exitOnError(err, "searching papers")

	results := paperResults(papers, false)
	if !humanOutput {
		return outputJSON(SearchResponse{Query: query, Results: results, Total: len(results)})
	}
	outputHuman("Search: \"%s\" (%d results)\n\n", query, len(results))
	printPapersHuman(results)
	return nil
}

func runSimilar(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id := args[0]

	sctx, cancel := storeContext(ctx)
	defer cancel()
	matches, err := mustOpenStore().Similar(sctx, id, similarLimit)
	exitOnError(err, "finding papers similar to %s", id)

	results := matchResults(matches, false)
	if !humanOutput {
		return outputJSON(SearchResponse{PaperID: id, Results: results, Total: len(results)})
	}
	outputHuman("Papers similar to %s\n\n", id)
	printPapersHuman(results)
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	sctx, cancel := storeContext(ctx)
	defer cancel()
	p, err := mustOpenStore().GetPaper(sctx, args[0])
	exitOnError(err, "reading paper")

	result := newPaperResult(p, true)
	if !humanOutput {
		return outputJSON(result)
	}
	printPaperDetail(result)
	return nil
}
