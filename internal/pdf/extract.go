// Package pdf imports local PDF files as papers.
package pdf

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/matsen/paperrec/internal/paper"
)

// DefaultMaxPages is how many leading pages are read when importing a PDF.
const DefaultMaxPages = 3

// MaxAbstractLength bounds the extracted abstract, in bytes.
const MaxAbstractLength = 2000

// ErrNoText indicates the PDF yielded no extractable text (scanned or empty).
var ErrNoText = errors.New("no extractable text in PDF")

// DOI pattern: 10.XXXX/... where XXXX is 4-9 digits.
var doiPattern = regexp.MustCompile(`10\.\d{4,9}/[^\s<>"{}|\\^~\[\]` + "`" + `]+`)

// abstractHeading matches an "Abstract" heading, optionally followed by
// punctuation, at the start of a line.
var abstractHeading = regexp.MustCompile(`(?im)^\s*abstract\b[\s.:\-]*`)

// sectionHeading matches the headings that usually end an abstract.
var sectionHeading = regexp.MustCompile(`(?im)^\s*(?:1\.?\s+|I\.\s+)?(?:introduction|keywords|key\s+words|index\s+terms)\b`)

// ExtractPaper reads the first pages of a PDF and builds a paper from its
// title, abstract and DOI. The paper has no id or embedding yet.
func ExtractPaper(filePath string) (paper.Paper, error) {
	text, err := ExtractText(filePath, DefaultMaxPages)
	if err != nil {
		return paper.Paper{}, err
	}
	if strings.TrimSpace(text) == "" {
		return paper.Paper{}, fmt.Errorf("%s: %w", filePath, ErrNoText)
	}
	return paperFromText(text), nil
}

// ExtractText extracts the text of the first maxPages pages of a PDF. A
// non-positive maxPages reads every page.
func ExtractText(filePath string, maxPages int) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat PDF: %w", err)
	}
	return ExtractTextReader(f, info.Size(), maxPages)
}

// ExtractTextReader extracts text from a PDF reader.
func ExtractTextReader(r io.ReaderAt, size int64, maxPages int) (string, error) {
	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return "", fmt.Errorf("reading PDF: %w", err)
	}

	if maxPages <= 0 || maxPages > reader.NumPage() {
		maxPages = reader.NumPage()
	}

	var builder strings.Builder
	for i := 1; i <= maxPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		builder.WriteString(text)
		builder.WriteString("\n")
	}
	return builder.String(), nil
}

// paperFromText applies the title, abstract and DOI heuristics to page text.
func paperFromText(text string) paper.Paper {
	p := paper.Paper{
		Title:    findTitle(text),
		Abstract: findAbstract(text),
	}
	if doi := findDOI(text); doi != "" {
		p.ExternalIDs = map[string]string{paper.ExternalDOI: doi}
	}
	return p
}

// findTitle returns the first substantial line that is not a running header.
func findTitle(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if len(line) > 20 && !isHeaderLine(line) && !abstractHeading.MatchString(line) {
			return line
		}
	}
	return ""
}

// findAbstract returns the text between an "Abstract" heading and the next
// section heading, whitespace-collapsed and bounded by MaxAbstractLength.
func findAbstract(text string) string {
	loc := abstractHeading.FindStringIndex(text)
	if loc == nil {
		return ""
	}
	rest := text[loc[1]:]
	if end := sectionHeading.FindStringIndex(rest); end != nil {
		rest = rest[:end[0]]
	}

	abstract := strings.Join(strings.Fields(rest), " ")
	if len(abstract) > MaxAbstractLength {
		abstract = abstract[:MaxAbstractLength]
		if i := strings.LastIndexByte(abstract, ' '); i > 0 {
			abstract = abstract[:i]
		}
	}
	return abstract
}

// findDOI returns the first plausible DOI in text.
func findDOI(text string) string {
	for _, match := range doiPattern.FindAllString(text, -1) {
		match = strings.TrimRight(match, ".,;:)")
		if isValidDOI(match) {
			return match
		}
	}
	return ""
}

// isValidDOI performs basic validation on a DOI.
func isValidDOI(doi string) bool {
	if len(doi) < 10 || !strings.HasPrefix(doi, "10.") {
		return false
	}
	slash := strings.Index(doi, "/")
	return slash != -1 && slash < len(doi)-1
}

// isHeaderLine checks if a line is likely a journal header or footer.
func isHeaderLine(line string) bool {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "journal"):
		return true
	case strings.Contains(lower, "volume") && strings.Contains(lower, "issue"):
		return true
	case strings.Contains(lower, "copyright"), strings.Contains(lower, "preprint"):
		return true
	case strings.Contains(lower, "arxiv:"):
		return true
	case strings.Contains(lower, "article") && strings.Contains(lower, "published"):
		return true
	}
	return false
}
