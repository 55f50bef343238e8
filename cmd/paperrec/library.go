package main

import (
	"github.com/spf13/cobra"

	"github.com/matsen/paperrec/internal/library"
	"github.com/matsen/paperrec/internal/paper"
)

var (
	libraryUser string
	saveNotes   string
)

func init() {
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(unsaveCmd)
	rootCmd.AddCommand(savedCmd)

	for _, cmd := range []*cobra.Command{saveCmd, unsaveCmd, savedCmd} {
		cmd.Flags().StringVarP(&libraryUser, "user", "u", "", "User id (required)")
		cmd.MarkFlagRequired("user")
	}
	saveCmd.Flags().StringVar(&saveNotes, "notes", "", "Notes to attach to the saved paper")
}

// SaveResponse is the response for the save command.
type SaveResponse struct {
	UserID  string                `json:"user_id"`
	Results []*library.SaveResult `json:"results"`
}

// UnsaveResponse is the response for the unsave command.
type UnsaveResponse struct {
	UserID  string `json:"user_id"`
	PaperID string `json:"paper_id"`
	Removed bool   `json:"removed"`
}

// SavedResponse is the response for the saved command.
type SavedResponse struct {
	UserID string        `json:"user_id"`
	Papers []PaperResult `json:"papers"`
	Total  int           `json:"total"`
}

var saveCmd = &cobra.Command{
	Use:   "save <paper-id>...",
	Short: "Save papers to a user's library",
	Long: `Save stored papers to a user's library.

Saving a paper that is already saved does nothing. A stored paper without an
embedding is embedded first, which loads the model.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSave,
}

var unsaveCmd = &cobra.Command{
	Use:   "unsave <paper-id>",
	Short: "Remove a paper from a user's library",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnsave,
}

var savedCmd = &cobra.Command{
	Use:   "saved",
	Short: "List a user's saved papers",
	Args:  cobra.NoArgs,
	RunE:  runSaved,
}

func runSave(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	lib := newLibrary(mustOpenStore(), &lazyProvider{})

	resp := SaveResponse{UserID: libraryUser, Results: make([]*library.SaveResult, 0, len(args))}
	for _, id := range args {
		res, err := lib.Save(ctx, library.SaveRequest{
			UserID: libraryUser,
			Paper:  paper.Paper{ID: id},
			Notes:  saveNotes,
		})
		exitOnError(err, "saving %s", id)
		resp.Results = append(resp.Results, res)
	}

	if !humanOutput {
		return outputJSON(resp)
	}
	for _, r := range resp.Results {
		if r.Created {
			outputHuman("Saved %s\n", r.PaperID)
		} else {
			outputHuman("Already saved %s\n", r.PaperID)
		}
	}
	return nil
}

func runUnsave(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	lib := newLibrary(mustOpenStore(), nil)

	removed, err := lib.Remove(ctx, libraryUser, args[0])
	exitOnError(err, "removing %s", args[0])

	if !humanOutput {
		return outputJSON(UnsaveResponse{UserID: libraryUser, PaperID: args[0], Removed: removed})
	}
	if removed {
		outputHuman("Removed %s\n", args[0])
	} else {
		outputHuman("%s was not saved\n", args[0])
	}
	return nil
}

func runSaved(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	lib := newLibrary(mustOpenStore(), nil)

	papers, err := lib.Saved(ctx, libraryUser)
	exitOnError(err, "listing saved papers")

	results := paperResults(papers, false)
	if !humanOutput {
		return outputJSON(SavedResponse{UserID: libraryUser, Papers: results, Total: len(results)})
	}
	outputHuman("%d saved papers for %s\n\n", len(results), libraryUser)
	printPapersHuman(results)
	return nil
}
