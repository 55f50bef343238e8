package main

import (
	"github.com/spf13/cobra"

	"github.com/matsen/paperrec/internal/indexer"
	"github.com/matsen/paperrec/internal/paper"
	"github.com/matsen/paperrec/internal/pdf"
	"github.com/matsen/paperrec/internal/storage"
)

func init() {
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(addPDFCmd)
}

// ImportResponse is the response for the import and add-pdf commands.
type ImportResponse struct {
	Papers []PaperResult  `json:"papers"`
	Failed []FailedFile   `json:"failed,omitempty"`
	Index  *indexer.Stats `json:"index"`
}

// FailedFile is an input file that could not be read.
type FailedFile struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

var importCmd = &cobra.Command{
	Use:   "import <papers.jsonl>",
	Short: "Import papers from a JSONL file and index them",
	Long: `Import papers from a JSON Lines file, one paper per line with id, title,
abstract, authors, year and external_ids fields, then embed and store them.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

var exportCmd = &cobra.Command{
	Use:   "export <papers.jsonl>",
	Short: "Export stored papers to a JSONL file",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

var addPDFCmd = &cobra.Command{
	Use:   "add-pdf <file.pdf>...",
	Short: "Import local PDFs as papers and index them",
	Long: `Read the title, abstract and DOI from the first pages of each PDF, then
embed and store the papers. Files that cannot be read are reported and skipped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAddPDF,
}

func runImport(cmd *cobra.Command, args []string) error {
	papers, err := storage.ReadPapers(args[0])
	if err != nil {
		exitWithError(ExitDataError, "reading %s: %v", args[0], err)
	}
	return indexAndReport(cmd, papers, nil)
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	listCtx, cancel := storeContext(ctx)
	defer cancel()
	papers, err := mustOpenStore().ListPapers(listCtx)
	exitOnError(err, "listing papers")

	if err := storage.WritePapers(args[0], papers); err != nil {
		exitWithError(ExitError, "writing %s: %v", args[0], err)
	}

	if humanOutput {
		outputHuman("Exported %d papers to %s\n", len(papers), args[0])
		return nil
	}
	return outputJSON(struct {
		StatusResponse
		Count int `json:"count"`
	}{StatusResponse{Status: "exported", Path: args[0]}, len(papers)})
}

func runAddPDF(cmd *cobra.Command, args []string) error {
	var papers []paper.Paper
	var failed []FailedFile
	for _, path := range args {
		p, err := pdf.ExtractPaper(path)
		if err != nil {
			failed = append(failed, FailedFile{Path: path, Error: err.Error()})
			continue
		}
		papers = append(papers, p)
	}
	if len(papers) == 0 {
		exitWithError(ExitDataError, "no readable PDFs (%d failed)", len(failed))
	}
	return indexAndReport(cmd, papers, failed)
}

// indexAndReport embeds and stores papers, then prints the outcome.
func indexAndReport(cmd *cobra.Command, papers []paper.Paper, failed []FailedFile) error {
	ctx := cmd.Context()
	provider := mustLoadProvider(ctx)
	store := mustOpenStore()

	stats, err := newIndexer(provider, store).Index(ctx, papers)
	exitOnError(err, "indexing papers")

	for i := range papers {
		papers[i].ID = paper.DeriveID(papers[i])
	}
	resp := ImportResponse{Papers: paperResults(papers, false), Failed: failed, Index: stats}
	if !humanOutput {
		return outputJSON(resp)
	}
	for _, f := range failed {
		outputHuman("failed %s: %s\n", f.Path, f.Error)
	}
	printPapersHuman(resp.Papers)
	printIndexStatsHuman(stats)
	return nil
}
