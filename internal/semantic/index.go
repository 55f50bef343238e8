package semantic

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Errors returned by semantic index operations.
var (
	ErrIndexNotFound      = errors.New("snapshot not found")
	ErrPaperNotIndexed    = errors.New("paper not in semantic index")
	ErrUnsupportedVersion = errors.New("unsupported index version")
	ErrDimensionMismatch  = errors.New("embedding dimension mismatch")
)

// CurrentIndexVersion is the snapshot format version. Bump it on any
// incompatible change to memorySnapshot or SemanticIndex.
const CurrentIndexVersion = 1

// NewSemanticIndex creates a new empty semantic index.
func NewSemanticIndex(modelName string, dimensions int) *SemanticIndex {
	return &SemanticIndex{
		Version:    CurrentIndexVersion,
		ModelName:  modelName,
		Dimensions: dimensions,
		CreatedAt:  time.Now(),
		Embeddings: make(map[string][]float32),
	}
}

// AddEmbedding adds or replaces a paper embedding.
// The PaperCount field is kept equal to the number of embeddings.
func (idx *SemanticIndex) AddEmbedding(paperID string, embedding []float32) error {
	if len(embedding) != idx.Dimensions {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(embedding), idx.Dimensions)
	}
	stored := make([]float32, len(embedding))
	copy(stored, embedding)
	idx.Embeddings[paperID] = stored
	idx.PaperCount = len(idx.Embeddings)
	return nil
}

// writeGob encodes v to path through a temp file and rename.
func writeGob(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	tempPath := path + ".tmp"
	f, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	if err := gob.NewEncoder(f).Encode(v); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("closing file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}

	return nil
}

// readGob decodes path into v. A missing file yields ErrIndexNotFound.
func readGob(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrIndexNotFound
		}
		return fmt.Errorf("opening snapshot: %w", err)
	}
	defer f.Close()

	if err := gob.NewDecoder(f).Decode(v); err != nil {
		return fmt.Errorf("decoding snapshot: %w", err)
	}
	return nil
}

// checkVersion rejects snapshots written in another format.
func checkVersion(v int) error {
	if v != CurrentIndexVersion {
		return fmt.Errorf("%w: got %d, want %d (rebuild with 'paperrec index --force')",
			ErrUnsupportedVersion, v, CurrentIndexVersion)
	}
	return nil
}
