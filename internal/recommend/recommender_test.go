package recommend

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/matsen/paperrec/internal/metrics"
	"github.com/matsen/paperrec/internal/paper"
	"github.com/matsen/paperrec/internal/semantic"
)

const testDims = 8

// unitVector builds a deterministic unit vector close to the first axis.
func unitVector(seed int) []float32 {
	v := make([]float64, testDims)
	v[0] = 1
	for i := 1; i < testDims; i++ {
		v[i] = float64((seed*7+i*3)%11) / 20
	}
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	norm = math.Sqrt(norm)
	out := make([]float32, testDims)
	for i, x := range v {
		out[i] = float32(x / norm)
	}
	return out
}

func paperID(i int) string {
	return fmt.Sprintf("p%d", i)
}

// newTestStore stores papers p1..pN with unitVector(i) embeddings.
func newTestStore(t *testing.T, n int) *semantic.MemoryStore {
	t.Helper()
	store := semantic.NewMemoryStore("test-model", testDims)
	for i := 1; i <= n; i++ {
		p := paper.Paper{ID: paperID(i), Title: "Paper " + paperID(i), Embedding: unitVector(i)}
		if err := store.UpsertPaper(context.Background(), p); err != nil {
			t.Fatalf("UpsertPaper() error = %v", err)
		}
	}
	return store
}

func saveAll(t *testing.T, store *semantic.MemoryStore, user string, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if err := store.InsertLink(context.Background(), user, id, ""); err != nil {
			t.Fatalf("InsertLink(%s) error = %v", id, err)
		}
	}
}

func TestRecommend_NotEnoughData(t *testing.T) {
	store := newTestStore(t, 20)
	saveAll(t, store, "u1", "p1", "p2", "p3")

	res, err := New(store).Recommend(context.Background(), "u1", 5)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if res.Status != StatusNotEnoughData {
		t.Errorf("Status = %s, want %s", res.Status, StatusNotEnoughData)
	}
	if res.Message != NotEnoughDataMessage {
		t.Errorf("Message = %q, want %q", res.Message, NotEnoughDataMessage)
	}
	if res.Recommendations != nil {
		t.Errorf("Recommendations = %v, want none", res.Recommendations)
	}
}

func TestRecommend_NoSavedPapers(t *testing.T) {
	store := newTestStore(t, 10)

	res, err := New(store).Recommend(context.Background(), "nobody", 5)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if res.Status != StatusNotEnoughData {
		t.Errorf("Status = %s, want %s", res.Status, StatusNotEnoughData)
	}
}

func TestRecommend_ExcludesSavedPapers(t *testing.T) {
	store := newTestStore(t, 20)
	saved := []string{"p1", "p2", "p3", "p4", "p5"}
	saveAll(t, store, "u1", saved...)

	res, err := New(store).Recommend(context.Background(), "u1", 5)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if res.Status != StatusSuccess {
		t.Fatalf("Status = %s, want %s", res.Status, StatusSuccess)
	}
	if len(res.Recommendations) != 5 {
		t.Fatalf("got %d recommendations, want 5", len(res.Recommendations))
	}

	for _, rec := range res.Recommendations {
		for _, id := range saved {
			if rec.ID == id {
				t.Errorf("saved paper %s was recommended", id)
			}
		}
	}
	for i := 1; i < len(res.Recommendations); i++ {
		if res.Recommendations[i].Similarity > res.Recommendations[i-1].Similarity {
			t.Errorf("recommendations not in descending similarity at %d", i)
		}
	}

	// The result is the top five of p6..p20 by cosine similarity to the mean.
	vectors := make([][]float32, 0, len(saved))
	for i := 1; i <= 5; i++ {
		vectors = append(vectors, unitVector(i))
	}
	interest, err := ComputeUserInterestVector(vectors)
	if err != nil {
		t.Fatalf("ComputeUserInterestVector() error = %v", err)
	}
	top := semantic.NewTopK(len(res.Recommendations))
	for i := 6; i <= 20; i++ {
		top.Offer(paperID(i), interest, unitVector(i))
	}
	expected := top.Results()
	for i, rec := range res.Recommendations {
		if rec.ID != expected[i].PaperID {
			t.Errorf("recommendation %d = %s, want %s", i, rec.ID, expected[i].PaperID)
		}
	}
}

func TestRecommend_RespectsLimit(t *testing.T) {
	store := newTestStore(t, 30)
	saveAll(t, store, "u1", "p1", "p2", "p3", "p4", "p5")

	for _, limit := range []int{1, 3, 12} {
		res, err := New(store).Recommend(context.Background(), "u1", limit)
		if err != nil {
			t.Fatalf("Recommend(limit=%d) error = %v", limit, err)
		}
		if len(res.Recommendations) != limit {
			t.Errorf("limit %d: got %d recommendations", limit, len(res.Recommendations))
		}
	}
}

func TestRecommend_DefaultLimit(t *testing.T) {
	store := newTestStore(t, 20)
	saveAll(t, store, "u1", "p1", "p2", "p3", "p4", "p5")

	res, err := New(store).Recommend(context.Background(), "u1", 0)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if len(res.Recommendations) != DefaultLimit {
		t.Errorf("got %d recommendations, want %d", len(res.Recommendations), DefaultLimit)
	}
}

func TestRecommend_ShortListWhenSavedCrowdOutCandidates(t *testing.T) {
	ctx := context.Background()
	store := semantic.NewMemoryStore("test-model", 2)

	// Sixteen saved papers sit on the first axis; unsaved ones are far away.
	var saved []string
	for i := range 16 {
		id := fmt.Sprintf("s%02d", i)
		store.UpsertPaper(ctx, paper.Paper{ID: id, Title: id, Embedding: []float32{1, 0}})
		saved = append(saved, id)
	}
	for i := range 5 {
		id := fmt.Sprintf("far%d", i)
		store.UpsertPaper(ctx, paper.Paper{ID: id, Title: id, Embedding: []float32{0, 1}})
	}
	saveAll(t, store, "u1", saved...)

	before := testutil.ToFloat64(metrics.ShortRecommendationLists)
	res, err := New(store).Recommend(ctx, "u1", 5)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if res.Status != StatusSuccess {
		t.Fatalf("Status = %s, want %s", res.Status, StatusSuccess)
	}
	if len(res.Recommendations) != 0 {
		t.Errorf("got %d recommendations, want 0: the store is queried once for limit+%d",
			len(res.Recommendations), OverFetchMargin)
	}
	if got := testutil.ToFloat64(metrics.ShortRecommendationLists) - before; got != 1 {
		t.Errorf("short list counter advanced by %v, want 1", got)
	}
}

func TestRecommend_SkipsSavedPapersWithoutEmbeddings(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, 20)
	store.UpsertPaper(ctx, paper.Paper{ID: "bare", Title: "No vector"})
	saveAll(t, store, "u1", "p1", "p2", "p3", "p4", "bare")

	before := testutil.ToFloat64(metrics.MissingEmbeddings)
	res, err := New(store).Recommend(ctx, "u1", 5)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if res.Status != StatusNotEnoughData {
		t.Errorf("Status = %s, want %s (only 4 embeddings)", res.Status, StatusNotEnoughData)
	}
	if got := testutil.ToFloat64(metrics.MissingEmbeddings) - before; got != 1 {
		t.Errorf("missing embeddings counter advanced by %v, want 1", got)
	}

	saveAll(t, store, "u1", "p5")
	res, err = New(store).Recommend(ctx, "u1", 5)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if res.Status != StatusSuccess {
		t.Errorf("Status = %s, want %s", res.Status, StatusSuccess)
	}
	for _, rec := range res.Recommendations {
		if rec.ID == "bare" {
			t.Error("saved paper without embedding was recommended")
		}
	}
}

func TestRecommend_InvalidRequest(t *testing.T) {
	store := newTestStore(t, 1)

	tests := []struct {
		name   string
		userID string
		limit  int
	}{
		{"empty user", "", 5},
		{"blank user", "   ", 5},
		{"negative limit", "u1", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(store).Recommend(context.Background(), tt.userID, tt.limit)
			if !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("Recommend() error = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

// slowStore stalls on every call until its context ends.
type slowStore struct{}

func (slowStore) SearchNearest(ctx context.Context, query []float32, k int) ([]paper.Match, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (slowStore) SavedPaperIDs(ctx context.Context, userID string) ([]string, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (slowStore) EmbeddingsByIDs(ctx context.Context, ids []string) (map[string][]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRecommend_StoreTimeout(t *testing.T) {
	r := New(slowStore{}, WithStoreTimeout(20*time.Millisecond))

	start := time.Now()
	_, err := r.Recommend(context.Background(), "u1", 5)
	if !errors.Is(err, ErrUpstreamTimeout) {
		t.Fatalf("Recommend() error = %v, want ErrUpstreamTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Recommend() took %v, want close to the 20ms deadline", elapsed)
	}
}

// mixedWidthStore holds saved embeddings left by two different models.
type mixedWidthStore struct {
	slowStore
	vectors map[string][]float32
}

func (s mixedWidthStore) SavedPaperIDs(ctx context.Context, userID string) ([]string, error) {
	ids := make([]string, 0, len(s.vectors))
	for id := range s.vectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s mixedWidthStore) EmbeddingsByIDs(ctx context.Context, ids []string) (map[string][]float32, error) {
	return s.vectors, nil
}

func TestRecommend_MixedEmbeddingWidths(t *testing.T) {
	store := mixedWidthStore{vectors: map[string][]float32{
		"p1": unitVector(1),
		"p2": unitVector(2),
		"p3": unitVector(3),
		"p4": unitVector(4),
		"p5": {0.6, 0.8},
	}}

	res, err := New(store).Recommend(context.Background(), "u1", 5)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("Recommend() = (%+v, %v), want ErrDimensionMismatch", res, err)
	}
	if res != nil {
		t.Errorf("Recommend() result = %+v, want nil alongside the error", res)
	}
}

func TestResult_MarshalJSON(t *testing.T) {
	tests := []struct {
		name   string
		result Result
		want   map[string]bool // top-level keys
	}{
		{
			name:   "not enough data",
			result: Result{Status: StatusNotEnoughData, Message: NotEnoughDataMessage},
			want:   map[string]bool{"status": true, "message": true},
		},
		{
			name:   "success",
			result: Result{Status: StatusSuccess, Recommendations: []paper.Match{match("a", 0.9)}},
			want:   map[string]bool{"status": true, "recommendations": true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.result)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			var got map[string]any
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			var keys []string
			for k := range got {
				keys = append(keys, k)
				if !tt.want[k] {
					t.Errorf("unexpected key %q in %s", k, data)
				}
			}
			if len(keys) != len(tt.want) {
				sort.Strings(keys)
				t.Errorf("keys = %v, want %v", keys, tt.want)
			}
		})
	}
}

func TestResult_MarshalJSON_EmptySuccess(t *testing.T) {
	data, err := json.Marshal(Result{Status: StatusSuccess})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(data), `"recommendations":[]`) {
		t.Errorf("Marshal() = %s, want an empty recommendations array", data)
	}
}
