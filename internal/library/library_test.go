package library

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/matsen/paperrec/internal/embedding"
	"github.com/matsen/paperrec/internal/paper"
	"github.com/matsen/paperrec/internal/semantic"
)

// axisProvider embeds every text onto the first axis and counts calls.
type axisProvider struct {
	calls int
	dims  int
	zero  bool
}

func (p *axisProvider) Embed(ctx context.Context, text string) (embedding.Embedding, error) {
	p.calls++
	v := make([]float32, p.dims)
	if !p.zero {
		v[0] = 1
	}
	return embedding.Embedding{Vector: v}, nil
}

func (p *axisProvider) ModelName() string { return "axis" }
func (p *axisProvider) Dimensions() int   { return p.dims }

func newLibrary(t *testing.T) (*Library, *semantic.MemoryStore, *axisProvider) {
	t.Helper()
	store := semantic.NewMemoryStore("axis", 3)
	provider := &axisProvider{dims: 3}
	return New(store, provider), store, provider
}

func TestSave_NewPaper(t *testing.T) {
	lib, store, provider := newLibrary(t)
	ctx := context.Background()

	res, err := lib.Save(ctx, SaveRequest{
		UserID: "u1",
		Paper: paper.Paper{
			Title:       "Attention Is All You Need",
			Abstract:    "Transformers.",
			ExternalIDs: map[string]string{paper.ExternalArXiv: "1706.03762"},
		},
		Notes: "classic",
	})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if res.PaperID != "1706.03762" {
		t.Errorf("PaperID = %q, want the arXiv id", res.PaperID)
	}
	if !res.Created || !res.Embedded {
		t.Errorf("result = %+v, want created and embedded", res)
	}
	if provider.calls != 1 {
		t.Errorf("provider called %d times, want 1", provider.calls)
	}

	stored, err := store.GetPaper(ctx, "1706.03762")
	if err != nil {
		t.Fatalf("GetPaper() error = %v", err)
	}
	if !stored.HasEmbedding() {
		t.Error("saved paper should be stored with an embedding")
	}
}

func TestSave_Idempotent(t *testing.T) {
	lib, store, provider := newLibrary(t)
	ctx := context.Background()
	req := SaveRequest{UserID: "u1", Paper: paper.Paper{ID: "p1", Title: "A paper"}}

	first, err := lib.Save(ctx, req)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	second, err := lib.Save(ctx, req)
	if err != nil {
		t.Fatalf("second Save() error = %v", err)
	}

	if !first.Created || second.Created {
		t.Errorf("Created = %v then %v, want true then false", first.Created, second.Created)
	}
	if provider.calls != 1 {
		t.Errorf("provider called %d times, want 1", provider.calls)
	}

	ids, _ := store.SavedPaperIDs(ctx, "u1")
	if len(ids) != 1 {
		t.Errorf("saved links = %v, want exactly one", ids)
	}
}

func TestSave_ExistingPaperByID(t *testing.T) {
	lib, store, provider := newLibrary(t)
	ctx := context.Background()
	store.UpsertPaper(ctx, paper.Paper{ID: "p1", Title: "Indexed", Embedding: []float32{0, 1, 0}})

	res, err := lib.Save(ctx, SaveRequest{UserID: "u1", Paper: paper.Paper{ID: "p1"}})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if res.Embedded || provider.calls != 0 {
		t.Errorf("already-embedded paper was re-embedded (%d calls)", provider.calls)
	}

	stored, _ := store.GetPaper(ctx, "p1")
	if stored.Title != "Indexed" {
		t.Errorf("Title = %q, an id-only save should not overwrite metadata", stored.Title)
	}
}

func TestSave_StoredPaperWithoutEmbedding(t *testing.T) {
	lib, store, provider := newLibrary(t)
	ctx := context.Background()
	store.UpsertPaper(ctx, paper.Paper{ID: "p1", Title: "Not yet indexed"})

	res, err := lib.Save(ctx, SaveRequest{UserID: "u1", Paper: paper.Paper{ID: "p1"}})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !res.Embedded || provider.calls != 1 {
		t.Errorf("result = %+v after %d calls, want the stored paper embedded", res, provider.calls)
	}
	stored, _ := store.GetPaper(ctx, "p1")
	if !stored.HasEmbedding() || stored.Title != "Not yet indexed" {
		t.Errorf("stored = %+v, want original metadata with an embedding", stored)
	}
}

func TestSave_Errors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		req     SaveRequest
		zero    bool
		wantErr error
	}{
		{
			name:    "missing user",
			req:     SaveRequest{Paper: paper.Paper{ID: "p1", Title: "T"}},
			wantErr: ErrInvalidRequest,
		},
		{
			name:    "paper without identity",
			req:     SaveRequest{UserID: "u1"},
			wantErr: ErrInvalidRequest,
		},
		{
			name:    "unknown id without metadata",
			req:     SaveRequest{UserID: "u1", Paper: paper.Paper{ID: "ghost"}},
			wantErr: ErrNotFound,
		},
		{
			name:    "degenerate embedding",
			req:     SaveRequest{UserID: "u1", Paper: paper.Paper{ID: "p1", Title: "?"}},
			zero:    true,
			wantErr: ErrInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lib, store, provider := newLibrary(t)
			provider.zero = tt.zero

			_, err := lib.Save(ctx, tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Save() error = %v, want %v", err, tt.wantErr)
			}
			if n, _ := store.Count(ctx); tt.zero && n != 0 {
				t.Errorf("degenerate paper was stored")
			}
		})
	}
}

func TestSaved_And_Remove(t *testing.T) {
	lib, _, _ := newLibrary(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if _, err := lib.Save(ctx, SaveRequest{UserID: "u1", Paper: paper.Paper{ID: id, Title: id}}); err != nil {
			t.Fatalf("Save(%s) error = %v", id, err)
		}
	}

	papers, err := lib.Saved(ctx, "u1")
	if err != nil {
		t.Fatalf("Saved() error = %v", err)
	}
	if len(papers) != 2 || papers[0].ID != "a" {
		t.Errorf("Saved() = %v, want [a b]", papers)
	}

	removed, err := lib.Remove(ctx, "u1", "a")
	if err != nil || !removed {
		t.Errorf("Remove() = %v, %v, want true", removed, err)
	}
	removed, _ = lib.Remove(ctx, "u1", "a")
	if removed {
		t.Error("second Remove() = true, want false")
	}

	if _, err := lib.Saved(ctx, ""); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Saved(\"\") error = %v, want ErrInvalidRequest", err)
	}
	if _, err := lib.Remove(ctx, "u1", " "); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Remove(blank) error = %v, want ErrInvalidRequest", err)
	}
}

// stalledStore blocks the named operations until the call's context ends.
type stalledStore struct {
	*semantic.MemoryStore
	stalled map[string]bool
}

func (s *stalledStore) wait(ctx context.Context, op string) error {
	if !s.stalled[op] {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *stalledStore) LinkExists(ctx context.Context, userID, paperID string) (bool, error) {
	if err := s.wait(ctx, "LinkExists"); err != nil {
		return false, err
	}
	return s.MemoryStore.LinkExists(ctx, userID, paperID)
}

func (s *stalledStore) GetPaper(ctx context.Context, id string) (paper.Paper, error) {
	if err := s.wait(ctx, "GetPaper"); err != nil {
		return paper.Paper{}, err
	}
	return s.MemoryStore.GetPaper(ctx, id)
}

func (s *stalledStore) SavedPapers(ctx context.Context, userID string) ([]paper.Paper, error) {
	if err := s.wait(ctx, "SavedPapers"); err != nil {
		return nil, err
	}
	return s.MemoryStore.SavedPapers(ctx, userID)
}

func (s *stalledStore) DeleteLink(ctx context.Context, userID, paperID string) (bool, error) {
	if err := s.wait(ctx, "DeleteLink"); err != nil {
		return false, err
	}
	return s.MemoryStore.DeleteLink(ctx, userID, paperID)
}

func TestStoreTimeout(t *testing.T) {
	tests := []struct {
		name string
		op   string
		call func(lib *Library) error
	}{
		{
			name: "save waits on link check",
			op:   "LinkExists",
			call: func(lib *Library) error {
				_, err := lib.Save(context.Background(), SaveRequest{UserID: "u1", Paper: paper.Paper{ID: "p1"}})
				return err
			},
		},
		{
			name: "save waits on paper lookup",
			op:   "GetPaper",
			call: func(lib *Library) error {
				_, err := lib.Save(context.Background(), SaveRequest{UserID: "u1", Paper: paper.Paper{ID: "p1"}})
				return err
			},
		},
		{
			name: "listing",
			op:   "SavedPapers",
			call: func(lib *Library) error {
				_, err := lib.Saved(context.Background(), "u1")
				return err
			},
		},
		{
			name: "removal",
			op:   "DeleteLink",
			call: func(lib *Library) error {
				_, err := lib.Remove(context.Background(), "u1", "p1")
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := semantic.NewMemoryStore("axis", 3)
			mem.UpsertPaper(context.Background(), paper.Paper{ID: "p1", Title: "Indexed", Embedding: []float32{1, 0, 0}})
			store := &stalledStore{MemoryStore: mem, stalled: map[string]bool{tt.op: true}}
			lib := New(store, &axisProvider{dims: 3}, WithStoreTimeout(20*time.Millisecond))

			done := make(chan error, 1)
			go func() { done <- tt.call(lib) }()

			select {
			case err := <-done:
				if !errors.Is(err, paper.ErrStoreTimeout) {
					t.Errorf("error = %v, want ErrStoreTimeout", err)
				}
			case <-time.After(2 * time.Second):
				t.Fatalf("%s still blocked after 2s", tt.op)
			}
		})
	}
}
