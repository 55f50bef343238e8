package recommend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/matsen/paperrec/internal/paper"
)

// fixedSearcher returns canned matches regardless of the query.
type fixedSearcher struct {
	matches []paper.Match
	gotK    int
}

func (s *fixedSearcher) SearchNearest(ctx context.Context, query []float32, k int) ([]paper.Match, error) {
	s.gotK = k
	out := make([]paper.Match, len(s.matches))
	copy(out, s.matches)
	return out, nil
}

// stallingSearcher blocks until its context ends.
type stallingSearcher struct{}

func (stallingSearcher) SearchNearest(ctx context.Context, query []float32, k int) ([]paper.Match, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func match(id string, sim float32) paper.Match {
	return paper.Match{Paper: paper.Paper{ID: id}, Similarity: sim}
}

func TestRanker_OrdersAndTruncates(t *testing.T) {
	s := &fixedSearcher{matches: []paper.Match{
		match("b", 0.5), match("a", 0.9), match("c", 0.5), match("d", 0.1),
	}}
	r := NewRanker(s, 0)

	got, err := r.Rank(context.Background(), []float32{1}, 3)
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if s.gotK != 3 {
		t.Errorf("searcher asked for %d, want 3", s.gotK)
	}

	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("got[%d] = %s, want %s", i, got[i].ID, id)
		}
	}
}

func TestRanker_ZeroK(t *testing.T) {
	s := &fixedSearcher{matches: []paper.Match{match("a", 1)}}
	got, err := NewRanker(s, 0).Rank(context.Background(), []float32{1}, 0)
	if err != nil || len(got) != 0 {
		t.Errorf("Rank(k=0) = %v, %v, want empty", got, err)
	}
}

func TestRanker_Timeout(t *testing.T) {
	r := NewRanker(stallingSearcher{}, 20*time.Millisecond)

	_, err := r.Rank(context.Background(), []float32{1}, 5)
	if !errors.Is(err, ErrUpstreamTimeout) {
		t.Errorf("Rank() error = %v, want ErrUpstreamTimeout", err)
	}
}
