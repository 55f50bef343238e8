package semantic

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestNewSemanticIndex(t *testing.T) {
	idx := NewSemanticIndex("test-model", 384)

	if idx.Version != CurrentIndexVersion {
		t.Errorf("expected version %d, got %d", CurrentIndexVersion, idx.Version)
	}
	if idx.ModelName != "test-model" {
		t.Errorf("expected model name 'test-model', got '%s'", idx.ModelName)
	}
	if idx.Dimensions != 384 {
		t.Errorf("expected dimensions 384, got %d", idx.Dimensions)
	}
	if idx.Embeddings == nil {
		t.Error("Embeddings map should be initialized")
	}
	if idx.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
}

func TestAddEmbedding(t *testing.T) {
	idx := NewSemanticIndex("test-model", 3)

	t.Run("adds embedding successfully", func(t *testing.T) {
		err := idx.AddEmbedding("paper1", []float32{1, 0, 0})
		if err != nil {
			t.Fatalf("AddEmbedding failed: %v", err)
		}

		if !idx.HasPaper("paper1") {
			t.Error("paper should be in index after adding")
		}
		if idx.PaperCount != 1 {
			t.Errorf("expected PaperCount 1, got %d", idx.PaperCount)
		}
	})

	t.Run("updates PaperCount correctly", func(t *testing.T) {
		idx2 := NewSemanticIndex("test-model", 3)
		idx2.AddEmbedding("paper1", []float32{1, 0, 0})
		idx2.AddEmbedding("paper2", []float32{0, 1, 0})
		idx2.AddEmbedding("paper3", []float32{0, 0, 1})

		if idx2.PaperCount != 3 {
			t.Errorf("expected PaperCount 3, got %d", idx2.PaperCount)
		}
	})

	t.Run("rejects dimension mismatch", func(t *testing.T) {
		idx2 := NewSemanticIndex("test-model", 3)
		err := idx2.AddEmbedding("paper1", []float32{1, 0}) // wrong dimensions

		if err == nil {
			t.Error("expected error for dimension mismatch")
		}
	})

	t.Run("overwrites existing embedding", func(t *testing.T) {
		idx2 := NewSemanticIndex("test-model", 3)
		idx2.AddEmbedding("paper1", []float32{1, 0, 0})
		idx2.AddEmbedding("paper1", []float32{0, 1, 0}) // overwrite

		if idx2.PaperCount != 1 {
			t.Errorf("expected PaperCount 1 after overwrite, got %d", idx2.PaperCount)
		}
		// Verify it was actually overwritten
		emb := idx2.Embeddings["paper1"]
		if emb[0] != 0 || emb[1] != 1 {
			t.Error("embedding should have been overwritten")
		}
	})
}

func TestAddEmbedding_CopiesInput(t *testing.T) {
	idx := NewSemanticIndex("test-model", 2)
	v := []float32{1, 0}
	idx.AddEmbedding("paper1", v)
	v[0] = 42

	if idx.Embeddings["paper1"][0] != 1 {
		t.Error("stored embedding should not alias the caller's slice")
	}
}

func TestCheckVersion(t *testing.T) {
	if err := checkVersion(CurrentIndexVersion); err != nil {
		t.Errorf("checkVersion(current) = %v", err)
	}
	if err := checkVersion(CurrentIndexVersion + 1); !errors.Is(err, ErrUnsupportedVersion) {
		t.Errorf("checkVersion(next) = %v, want ErrUnsupportedVersion", err)
	}
}

func TestReadGob_Missing(t *testing.T) {
	var snap memorySnapshot
	err := readGob(filepath.Join(t.TempDir(), "missing.gob"), &snap)
	if !errors.Is(err, ErrIndexNotFound) {
		t.Errorf("readGob() error = %v, want ErrIndexNotFound", err)
	}
}
