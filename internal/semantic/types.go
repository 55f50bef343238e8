// Package semantic provides vector similarity search over paper embeddings
// and an in-memory paper store built on it.
package semantic

import "time"

// SemanticIndex maps paper ids to unit-normalized embeddings of one width.
// It is not safe for concurrent use on its own; MemoryStore guards it.
type SemanticIndex struct {
	Version    int
	ModelName  string
	Dimensions int
	CreatedAt  time.Time
	PaperCount int

	Embeddings map[string][]float32
}

// SearchResult is one scored paper id.
type SearchResult struct {
	PaperID    string  `json:"id"`
	Similarity float32 `json:"similarity"`
}
