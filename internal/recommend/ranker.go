package recommend

import (
	"context"
	"sort"
	"time"

	"github.com/matsen/paperrec/internal/paper"
)

// Ranker queries the store for the papers nearest a query vector.
type Ranker struct {
	searcher Searcher
	timeout  time.Duration
}

// NewRanker creates a ranker. A zero timeout leaves only the caller's deadline.
func NewRanker(searcher Searcher, timeout time.Duration) *Ranker {
	return &Ranker{searcher: searcher, timeout: timeout}
}

// Rank returns at most k candidates in descending similarity. Equal scores
// keep the store's order.
func (r *Ranker) Rank(ctx context.Context, query []float32, k int) ([]paper.Match, error) {
	if k <= 0 {
		return []paper.Match{}, nil
	}

	ctx, cancel := paper.StoreContext(ctx, r.timeout)
	defer cancel()

	matches, err := r.searcher.SearchNearest(ctx, query, k)
	if err != nil {
		return nil, paper.StoreError(ctx, "similarity search", err)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}
