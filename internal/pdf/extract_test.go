package pdf

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matsen/paperrec/internal/paper"
)

const firstPage = `Journal of Machine Learning Research 21 (2020)
Contrastive Learning of Sentence Embeddings at Scale
Jane Doe, John Roe
https://doi.org/10.1234/jmlr.2020.5678.
Abstract
We study sentence embeddings
trained with contrastive objectives.
1 Introduction
Sentence embeddings are useful.`

func TestPaperFromText(t *testing.T) {
	p := paperFromText(firstPage)

	if p.Title != "Contrastive Learning of Sentence Embeddings at Scale" {
		t.Errorf("Title = %q", p.Title)
	}
	if p.Abstract != "We study sentence embeddings trained with contrastive objectives." {
		t.Errorf("Abstract = %q", p.Abstract)
	}
	if got := p.ExternalIDs[paper.ExternalDOI]; got != "10.1234/jmlr.2020.5678" {
		t.Errorf("DOI = %q", got)
	}
	if paper.DeriveID(p) != "doi:10.1234/jmlr.2020.5678" {
		t.Errorf("DeriveID = %q", paper.DeriveID(p))
	}
}

func TestFindAbstract(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"no heading", "Title line\nBody text", ""},
		{"inline colon", "Title\nAbstract: Short summary here.\nKeywords: a, b", "Short summary here."},
		{"runs to end", "ABSTRACT\nOnly text.", "Only text."},
		{"roman numeral section", "Abstract\nSummary.\nI. INTRODUCTION\nMore.", "Summary."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := findAbstract(tt.text); got != tt.want {
				t.Errorf("findAbstract() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFindAbstract_Bounded(t *testing.T) {
	long := "Abstract\n" + strings.Repeat("word ", 1000)
	got := findAbstract(long)
	if len(got) > MaxAbstractLength {
		t.Errorf("len = %d, want <= %d", len(got), MaxAbstractLength)
	}
	if strings.HasSuffix(got, " ") || strings.HasSuffix(got, "wor") {
		t.Errorf("abstract should end on a word boundary, got suffix %q", got[len(got)-5:])
	}
}

func TestFindDOI(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"doi: 10.1038/nature12373.", "10.1038/nature12373"},
		{"see (10.1101/2020.01.01.123456)", "10.1101/2020.01.01.123456"},
		{"no identifier here", ""},
		{"10.12/x", ""},
	}
	for _, tt := range tests {
		if got := findDOI(tt.text); got != tt.want {
			t.Errorf("findDOI(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestFindTitle_SkipsHeaders(t *testing.T) {
	text := "arXiv:2401.00001v1 [cs.CL] 1 Jan 2024\nCopyright 2024 the authors\nshort\nA Real Title For This Paper"
	if got := findTitle(text); got != "A Real Title For This Paper" {
		t.Errorf("findTitle() = %q", got)
	}
}

func TestExtractPaper_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := ExtractPaper(filepath.Join(dir, "missing.pdf")); err == nil {
		t.Error("missing file: want error")
	}

	junk := filepath.Join(dir, "junk.pdf")
	if err := os.WriteFile(junk, []byte("not a pdf"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ExtractPaper(junk); err == nil {
		t.Error("invalid PDF: want error")
	}
}
