// Package paper defines the core domain types for indexed research papers.
package paper

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
)

// External identifier keys used in Paper.ExternalIDs.
const (
	ExternalArXiv = "ArXiv"
	ExternalDOI   = "DOI"
)

// ErrNotFound is returned by paper stores when a paper id is unknown.
var ErrNotFound = errors.New("paper not found")

// Paper represents a research paper and its semantic embedding.
type Paper struct {
	// Identity
	ID string `json:"id"` // Globally unique (external source ID or normalized title)

	// Metadata
	Title    string   `json:"title"`
	Abstract string   `json:"abstract"`
	Authors  []Author `json:"authors"`
	Year     int      `json:"year,omitempty"` // 0 if unknown

	// External Identifiers, keyed by source (ArXiv, DOI, ...)
	ExternalIDs map[string]string `json:"external_ids,omitempty"`

	// Embedding is the unit-normalized semantic vector. Never serialized to API output.
	Embedding []float32 `json:"-"`
}

// Author represents a paper author.
type Author struct {
	Name string `json:"name"`
}

// Match is a paper returned by a similarity query.
type Match struct {
	Paper
	Similarity float32 `json:"similarity"`
}

// HasEmbedding reports whether the paper carries a vector.
func (p Paper) HasEmbedding() bool {
	return len(p.Embedding) > 0
}

// AuthorNames returns the author names in order.
func (p Paper) AuthorNames() []string {
	names := make([]string, 0, len(p.Authors))
	for _, a := range p.Authors {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}
	return names
}

// EmbeddingText builds the text that is embedded for a paper: title and abstract
// separated by whitespace.
func EmbeddingText(p Paper) string {
	return p.Title + " " + p.Abstract
}

// DeriveID returns the paper's identifier, deriving one when it is unset.
// Priority: explicit ID, arXiv ID, DOI, normalized title. Returns "" when
// nothing usable is present.
func DeriveID(p Paper) string {
	if id := strings.TrimSpace(p.ID); id != "" {
		return id
	}
	if id := strings.TrimSpace(p.ExternalIDs[ExternalArXiv]); id != "" {
		return id
	}
	if doi := strings.TrimSpace(p.ExternalIDs[ExternalDOI]); doi != "" {
		return "doi:" + strings.ToLower(doi)
	}
	if slug := NormalizeTitle(p.Title); slug != "" {
		return "title:" + slug
	}
	return ""
}

// NormalizeTitle lowercases a title and collapses every run of non-alphanumeric
// characters into a single hyphen.
func NormalizeTitle(title string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}

// ContentHash computes a SHA256 hash of the text used to embed a paper.
func ContentHash(text string) string {
	h := sha256.New()
	io.WriteString(h, text)
	return fmt.Sprintf("%x", h.Sum(nil))
}
