package semantic

import (
	"container/heap"
	"math"
	"slices"
	"strings"
)

// CosineSimilarity returns the cosine of the angle between a and b, in [-1, 1].
// Mismatched lengths and zero vectors yield 0.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// ranksBefore orders results by similarity descending, then id ascending.
func ranksBefore(a, b SearchResult) bool {
	if a.Similarity != b.Similarity {
		return a.Similarity > b.Similarity
	}
	return a.PaperID < b.PaperID
}

// worstFirst is a heap whose root is the lowest-ranked result.
type worstFirst []SearchResult

func (h worstFirst) Len() int           { return len(h) }
func (h worstFirst) Less(i, j int) bool { return ranksBefore(h[j], h[i]) }
func (h worstFirst) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *worstFirst) Push(x any)        { *h = append(*h, x.(SearchResult)) }
func (h *worstFirst) Pop() any {
	old := *h
	r := old[len(old)-1]
	*h = old[:len(old)-1]
	return r
}

// TopK keeps the k best results offered to it without holding the rest.
// The zero value is not usable; create one with NewTopK.
type TopK struct {
	k int
	h worstFirst
}

// NewTopK returns a collector for the k highest-ranked results. k <= 0
// collects nothing.
func NewTopK(k int) *TopK {
	return &TopK{k: k, h: make(worstFirst, 0, max(k, 0))}
}

// Offer scores vec against query and keeps it if it ranks among the best k.
func (t *TopK) Offer(id string, query, vec []float32) {
	t.Add(SearchResult{PaperID: id, Similarity: CosineSimilarity(query, vec)})
}

// Add keeps r if it ranks among the best k seen so far.
func (t *TopK) Add(r SearchResult) {
	if t.k <= 0 {
		return
	}
	if len(t.h) < t.k {
		heap.Push(&t.h, r)
		return
	}
	if ranksBefore(r, t.h[0]) {
		t.h[0] = r
		heap.Fix(&t.h, 0)
	}
}

// Results returns the kept results, best first.
func (t *TopK) Results() []SearchResult {
	out := slices.Clone([]SearchResult(t.h))
	slices.SortFunc(out, func(a, b SearchResult) int {
		if ranksBefore(a, b) {
			return -1
		}
		if ranksBefore(b, a) {
			return 1
		}
		return strings.Compare(a.PaperID, b.PaperID)
	})
	return out
}

// Nearest returns up to k indexed papers closest to query, skipping the
// paper whose id is exclude. A query of the wrong width matches nothing.
func (idx *SemanticIndex) Nearest(query []float32, k int, exclude string) []SearchResult {
	if len(query) != idx.Dimensions {
		return nil
	}
	top := NewTopK(k)
	for id, vec := range idx.Embeddings {
		if id != exclude {
			top.Offer(id, query, vec)
		}
	}
	return top.Results()
}

// FindSimilar returns up to k papers nearest to an indexed paper, excluding it.
func (idx *SemanticIndex) FindSimilar(paperID string, k int) ([]SearchResult, error) {
	vec, ok := idx.Embeddings[paperID]
	if !ok {
		return nil, ErrPaperNotIndexed
	}
	return idx.Nearest(vec, k, paperID), nil
}

// HasPaper reports whether a paper has an embedding in the index.
func (idx *SemanticIndex) HasPaper(paperID string) bool {
	_, ok := idx.Embeddings[paperID]
	return ok
}
