package recommend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/matsen/paperrec/internal/logging"
	"github.com/matsen/paperrec/internal/metrics"
	"github.com/matsen/paperrec/internal/paper"
	"github.com/matsen/paperrec/internal/validation"
)

const (
	// DefaultLimit is used when a request does not set a limit.
	DefaultLimit = 5

	// OverFetchMargin is how many extra candidates are requested to absorb
	// already-saved papers. The store is queried once; if more than this many
	// top candidates are saved, the result is shorter than the limit.
	OverFetchMargin = 10
)

// Recommender produces recommendations for one user per call. It holds no
// per-request state and is safe for concurrent use.
type Recommender struct {
	store        Store
	ranker       *Ranker
	storeTimeout time.Duration
}

// Option configures a Recommender.
type Option func(*Recommender)

// WithStoreTimeout bounds each individual store call.
func WithStoreTimeout(d time.Duration) Option {
	return func(r *Recommender) {
		r.storeTimeout = d
	}
}

// New creates a Recommender over store.
func New(store Store, opts ...Option) *Recommender {
	r := &Recommender{store: store}
	for _, opt := range opts {
		opt(r)
	}
	r.ranker = NewRanker(store, r.storeTimeout)
	return r
}

// Recommend returns up to limit unsaved papers most similar to the user's
// saved papers. A limit of 0 means DefaultLimit.
//
// Fewer than MinSavedPapers saved embeddings yields a StatusNotEnoughData
// result, not an error. Errors are ErrInvalidRequest, ErrUpstreamTimeout,
// ErrDimensionMismatch, or a wrapped store failure.
func (r *Recommender) Recommend(ctx context.Context, userID string, limit int) (*Result, error) {
	req := Request{UserID: strings.TrimSpace(userID), Limit: limit}
	if err := validation.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if req.Limit == 0 {
		req.Limit = DefaultLimit
	}

	res, err := r.recommend(ctx, req)
	if err != nil {
		metrics.Recommendations.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.Recommendations.WithLabelValues(string(res.Status)).Inc()
	return res, nil
}

func (r *Recommender) recommend(ctx context.Context, req Request) (*Result, error) {
	log := logging.Ctx(ctx).With().Str("user_id", req.UserID).Logger()

	savedIDs, err := r.savedIDs(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	vectors, err := r.savedVectors(ctx, savedIDs)
	if err != nil {
		return nil, err
	}

	interest, err := ComputeUserInterestVector(vectors)
	if errors.Is(err, errTooFewVectors) {
		log.Debug().Int("saved", len(savedIDs)).Int("embedded", len(vectors)).Msg("not enough saved papers")
		return &Result{Status: StatusNotEnoughData, Message: NotEnoughDataMessage}, nil
	}
	if err != nil {
		log.Warn().Err(err).Int("embedded", len(vectors)).Msg("cannot average saved embeddings")
		return nil, err
	}

	candidates, err := r.ranker.Rank(ctx, interest, req.Limit+OverFetchMargin)
	if err != nil {
		return nil, err
	}

	recs := excludeSaved(candidates, savedIDs)
	if len(recs) > req.Limit {
		recs = recs[:req.Limit]
	}
	if len(recs) < req.Limit {
		metrics.ShortRecommendationLists.Inc()
		log.Debug().Int("limit", req.Limit).Int("returned", len(recs)).
			Int("candidates", len(candidates)).Msg("short recommendation list")
	}

	return &Result{Status: StatusSuccess, Recommendations: recs}, nil
}

func (r *Recommender) savedIDs(ctx context.Context, userID string) ([]string, error) {
	ctx, cancel := paper.StoreContext(ctx, r.storeTimeout)
	defer cancel()

	ids, err := r.store.SavedPaperIDs(ctx, userID)
	if err != nil {
		return nil, paper.StoreError(ctx, "listing saved papers", err)
	}
	return ids, nil
}

// savedVectors returns the embeddings of the saved papers in saved order.
// Links without a stored embedding are skipped, logged and counted.
func (r *Recommender) savedVectors(ctx context.Context, ids []string) ([][]float32, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	fetchCtx, cancel := paper.StoreContext(ctx, r.storeTimeout)
	defer cancel()

	byID, err := r.store.EmbeddingsByIDs(fetchCtx, ids)
	if err != nil {
		return nil, paper.StoreError(fetchCtx, "fetching saved embeddings", err)
	}

	vectors := make([][]float32, 0, len(ids))
	var missing []string
	for _, id := range ids {
		v, ok := byID[id]
		if !ok || len(v) == 0 {
			missing = append(missing, id)
			continue
		}
		vectors = append(vectors, v)
	}

	if len(missing) > 0 {
		metrics.MissingEmbeddings.Add(float64(len(missing)))
		logging.Ctx(ctx).Warn().Int("missing", len(missing)).Strs("paper_ids", missing).
			Msg("saved papers without stored embeddings skipped")
	}
	return vectors, nil
}

// excludeSaved drops candidates the user has already saved, keeping order.
func excludeSaved(candidates []paper.Match, savedIDs []string) []paper.Match {
	saved := make(map[string]struct{}, len(savedIDs))
	for _, id := range savedIDs {
		saved[id] = struct{}{}
	}

	out := make([]paper.Match, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := saved[c.ID]; ok {
			continue
		}
		out = append(out, c)
	}
	return out
}
