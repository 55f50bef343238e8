package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/matsen/paperrec/internal/paper"
)

// Constants for output formatting.
const (
	DefaultSearchLimit = 20 // Default limit for search/similar commands

	SearchTitleMaxLen = 70 // Used in result listings
	DetailTitleMaxLen = 90 // Used in single-paper views
	TextWrapWidth     = 68 // Abstract wrap width
)

// cleanups run before the process exits, including via exitWithError.
var cleanups []func()

// onExit registers f to run before exit, in reverse registration order.
func onExit(f func()) {
	cleanups = append(cleanups, f)
}

// runCleanup runs and clears the registered cleanups.
func runCleanup() {
	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
	cleanups = nil
}

// outputJSON writes a value as formatted JSON to stdout.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputHuman writes a human-readable string to stdout.
func outputHuman(format string, args ...any) {
	fmt.Printf(format, args...)
}

// exitWithError outputs an error in the appropriate format (human or JSON),
// releases open resources and exits.
func exitWithError(code int, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if humanOutput {
		fmt.Fprintf(os.Stderr, "error: %s\n", msg)
	} else {
		outputJSON(ErrorResponse{Error: msg, Code: code})
	}
	runCleanup()
	writeMetrics()
	os.Exit(code)
}

// exitOnError exits with the code mapped from err when err is non-nil.
func exitOnError(err error, format string, args ...any) {
	if err == nil {
		return
	}
	exitWithError(exitCodeFor(err), "%s: %v", fmt.Sprintf(format, args...), err)
}

// ErrorResponse is a JSON error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// StatusResponse is a generic response for commands that return status.
type StatusResponse struct {
	Status string `json:"status"`
	Path   string `json:"path,omitempty"`
}

// PaperResult is a paper in command output, optionally with a similarity.
type PaperResult struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Authors     []string          `json:"authors"`
	Year        int               `json:"year,omitempty"`
	ExternalIDs map[string]string `json:"external_ids,omitempty"`
	Similarity  *float32          `json:"similarity,omitempty"`
	Abstract    string            `json:"abstract,omitempty"`
}

// newPaperResult converts a paper for output.
func newPaperResult(p paper.Paper, includeAbstract bool) PaperResult {
	r := PaperResult{
		ID:          p.ID,
		Title:       p.Title,
		Authors:     p.AuthorNames(),
		Year:        p.Year,
		ExternalIDs: p.ExternalIDs,
	}
	if r.Authors == nil {
		r.Authors = []string{}
	}
	if includeAbstract {
		r.Abstract = p.Abstract
	}
	return r
}

// matchResults converts ranked matches for output.
func matchResults(matches []paper.Match, includeAbstract bool) []PaperResult {
	out := make([]PaperResult, len(matches))
	for i, m := range matches {
		out[i] = newPaperResult(m.Paper, includeAbstract)
		sim := m.Similarity
		out[i].Similarity = &sim
	}
	return out
}

// paperResults converts unranked papers for output.
func paperResults(papers []paper.Paper, includeAbstract bool) []PaperResult {
	out := make([]PaperResult, len(papers))
	for i, p := range papers {
		out[i] = newPaperResult(p, includeAbstract)
	}
	return out
}

// printPapersHuman prints papers as a numbered list.
func printPapersHuman(results []PaperResult) {
	if len(results) == 0 {
		fmt.Println("No papers.")
		return
	}
	for i, r := range results {
		if r.Similarity != nil {
			fmt.Printf("%d. [%.2f] %s\n", i+1, *r.Similarity, r.ID)
		} else {
			fmt.Printf("%d. %s\n", i+1, r.ID)
		}
		fmt.Printf("   %s\n", truncateString(r.Title, SearchTitleMaxLen))
		if year := formatYear(r.Year); len(r.Authors) > 0 || year != "" {
			fmt.Printf("   %s%s\n", formatAuthorsShort(r.Authors, 3), year)
		}
		fmt.Println()
	}
}

// printPaperDetail prints one paper with its wrapped abstract.
func printPaperDetail(r PaperResult) {
	fmt.Printf("%s\n", truncateString(r.Title, DetailTitleMaxLen))
	fmt.Printf("  ID:      %s\n", r.ID)
	if len(r.Authors) > 0 {
		fmt.Printf("  Authors: %s\n", strings.Join(r.Authors, ", "))
	}
	if r.Year > 0 {
		fmt.Printf("  Year:    %d\n", r.Year)
	}
	if r.Abstract != "" {
		fmt.Printf("\n  %s\n", wrapText(r.Abstract, TextWrapWidth, "  "))
	}
}

// truncateString truncates a string to maxLen, adding "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// wrapText wraps text to the specified width with indentation on subsequent lines.
func wrapText(text string, width int, indent string) string {
	if len(text) <= width {
		return text
	}

	var lines []string
	var current strings.Builder
	for _, word := range strings.Fields(text) {
		switch {
		case current.Len() == 0:
			current.WriteString(word)
		case current.Len()+1+len(word) <= width:
			current.WriteString(" ")
			current.WriteString(word)
		default:
			lines = append(lines, current.String())
			current.Reset()
			current.WriteString(word)
		}
	}
	if current.Len() > 0 {
		lines = append(lines, current.String())
	}
	return strings.Join(lines, "\n"+indent)
}

// formatAuthorsShort lists up to limit authors, then "et al.".
func formatAuthorsShort(authors []string, limit int) string {
	if len(authors) <= limit {
		return strings.Join(authors, ", ")
	}
	return strings.Join(authors[:limit], ", ") + " et al."
}

// formatYear renders " (2017)", or "" for an unknown year.
func formatYear(year int) string {
	if year <= 0 {
		return ""
	}
	return fmt.Sprintf(" (%d)", year)
}

// formatDuration formats a duration for human output.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
