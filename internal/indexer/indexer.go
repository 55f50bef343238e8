// Package indexer embeds batches of discovered papers and stores them.
//
// A failure on one paper never aborts the batch: the paper is logged,
// counted under a skip reason, and the remaining papers are processed.
// Only context cancellation stops a run early.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/matsen/paperrec/internal/embedding"
	"github.com/matsen/paperrec/internal/logging"
	"github.com/matsen/paperrec/internal/metrics"
	"github.com/matsen/paperrec/internal/paper"
)

// Skip reasons, also used as metric labels.
const (
	ReasonInvalidID    = "invalid_id"
	ReasonEmbedFailed  = "embed_failed"
	ReasonDegenerate   = "degenerate_embedding"
	ReasonUpsertFailed = "upsert_failed"
	ReasonStoreTimeout = "store_timeout"
)

// DefaultWorkers is the default number of papers processed concurrently.
const DefaultWorkers = 4

// Store is the subset of the paper store the indexer writes to.
type Store interface {
	ContentHash(ctx context.Context, id string) (string, error)
	UpsertPaper(ctx context.Context, p paper.Paper) error
}

// ProgressReporter receives progress updates during indexing.
type ProgressReporter interface {
	// OnProgress is called after each paper with the number processed so far.
	OnProgress(current, total int)
}

// ProgressFunc is a function adapter for ProgressReporter.
type ProgressFunc func(current, total int)

// OnProgress implements ProgressReporter.
func (f ProgressFunc) OnProgress(current, total int) {
	f(current, total)
}

// Skip describes a paper that was not indexed.
type Skip struct {
	Index   int    `json:"index"` // position in the input batch
	PaperID string `json:"id,omitempty"`
	Title   string `json:"title,omitempty"`
	Reason  string `json:"reason"`
	Error   string `json:"error,omitempty"`
}

// Stats summarizes an indexing run.
type Stats struct {
	Total      int           `json:"total"`
	Indexed    int           `json:"indexed"`
	Unchanged  int           `json:"unchanged"`
	Skipped    []Skip        `json:"skipped"`
	IndexedIDs []string      `json:"indexed_ids"`
	Duration   time.Duration `json:"duration_ns"`
}

// Indexer embeds papers with a Provider and upserts them into a Store.
type Indexer struct {
	provider embedding.Provider
	store    Store
	workers      int
	force        bool
	progress     ProgressReporter
	storeTimeout time.Duration
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithWorkers sets how many papers are processed concurrently.
func WithWorkers(n int) Option {
	return func(ix *Indexer) {
		if n > 0 {
			ix.workers = n
		}
	}
}

// WithForce re-embeds papers even when their stored embedding is current.
func WithForce(force bool) Option {
	return func(ix *Indexer) {
		ix.force = force
	}
}

// WithStoreTimeout bounds each store call. A paper whose store call overruns
// is skipped with ReasonStoreTimeout.
func WithStoreTimeout(d time.Duration) Option {
	return func(ix *Indexer) {
		ix.storeTimeout = d
	}
}

// WithProgress sets the progress reporter.
func WithProgress(p ProgressReporter) Option {
	return func(ix *Indexer) {
		ix.progress = p
	}
}

// New creates an Indexer.
func New(provider embedding.Provider, store Store, opts ...Option) *Indexer {
	ix := &Indexer{
		provider: provider,
		store:    store,
		workers:  DefaultWorkers,
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// run collects per-paper outcomes from concurrent workers.
type run struct {
	mu        sync.Mutex
	stats     *Stats
	processed int
	progress  ProgressReporter
}

func (r *run) indexed(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Indexed++
	r.stats.IndexedIDs = append(r.stats.IndexedIDs, id)
	r.step()
}

func (r *run) unchanged() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Unchanged++
	r.step()
}

func (r *run) skipped(s Skip) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Skipped = append(r.stats.Skipped, s)
	r.step()
}

// step reports progress. Callers hold mu.
func (r *run) step() {
	r.processed++
	if r.progress != nil {
		r.progress.OnProgress(r.processed, r.stats.Total)
	}
}

// Index embeds and stores papers. The returned error is non-nil only when ctx
// ends before the batch completes; Stats then reflects the papers finished.
func (ix *Indexer) Index(ctx context.Context, papers []paper.Paper) (*Stats, error) {
	start := time.Now()
	r := &run{
		stats:    &Stats{Total: len(papers), Skipped: []Skip{}, IndexedIDs: []string{}},
		progress: ix.progress,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.workers)
	for i, p := range papers {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return ix.indexOne(gctx, r, i, p)
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	sort.Slice(r.stats.Skipped, func(i, j int) bool { return r.stats.Skipped[i].Index < r.stats.Skipped[j].Index })
	sort.Strings(r.stats.IndexedIDs)
	r.stats.Duration = time.Since(start)

	logging.Ctx(ctx).Info().
		Int("total", r.stats.Total).
		Int("indexed", r.stats.Indexed).
		Int("unchanged", r.stats.Unchanged).
		Int("skipped", len(r.stats.Skipped)).
		Dur("duration", r.stats.Duration).
		Msg("indexing finished")

	return r.stats, err
}

// indexOne processes a single paper. It returns an error only for context
// cancellation; every other failure is recorded as a skip.
func (ix *Indexer) indexOne(ctx context.Context, r *run, i int, p paper.Paper) error {
	skip := func(id, reason string, err error) {
		s := Skip{Index: i, PaperID: id, Title: p.Title, Reason: reason}
		event := logging.Ctx(ctx).Warn().Int("index", i).Str("paper_id", id).Str("reason", reason)
		if err != nil {
			s.Error = err.Error()
			event = event.Err(err)
		}
		event.Msg("paper skipped")
		metrics.IndexSkipped.WithLabelValues(reason).Inc()
		r.skipped(s)
	}

	id := paper.DeriveID(p)
	if id == "" {
		skip("", ReasonInvalidID, errors.New("paper has no id, external id or title"))
		return nil
	}
	p.ID = id
	text := paper.EmbeddingText(p)

	if !ix.force {
		current, err := ix.contentHash(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, paper.ErrStoreTimeout) {
				skip(id, ReasonStoreTimeout, err)
				return nil
			}
			logging.Ctx(ctx).Debug().Err(err).Str("paper_id", id).Msg("content hash lookup failed, re-embedding")
		} else if current != "" && current == paper.ContentHash(text) {
			metrics.IndexSkipped.WithLabelValues("unchanged").Inc()
			r.unchanged()
			return nil
		}
	}

	emb, err := ix.provider.Embed(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		skip(id, ReasonEmbedFailed, err)
		return nil
	}
	if !emb.IsUnit() {
		metrics.DegenerateEmbeddings.Inc()
		skip(id, ReasonDegenerate, fmt.Errorf("embedding norm %.6f", emb.Norm()))
		return nil
	}

	p.Embedding = emb.Vector
	if err := ix.upsert(ctx, p); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		reason := ReasonUpsertFailed
		if errors.Is(err, paper.ErrStoreTimeout) {
			reason = ReasonStoreTimeout
		}
		skip(id, reason, err)
		return nil
	}

	metrics.PapersIndexed.Inc()
	r.indexed(id)
	return nil
}

func (ix *Indexer) contentHash(ctx context.Context, id string) (string, error) {
	ctx, cancel := paper.StoreContext(ctx, ix.storeTimeout)
	defer cancel()
	hash, err := ix.store.ContentHash(ctx, id)
	if err != nil {
		return "", paper.StoreError(ctx, "reading content hash", err)
	}
	return hash, nil
}

func (ix *Indexer) upsert(ctx context.Context, p paper.Paper) error {
	ctx, cancel := paper.StoreContext(ctx, ix.storeTimeout)
	defer cancel()
	if err := ix.store.UpsertPaper(ctx, p); err != nil {
		return paper.StoreError(ctx, "storing paper", err)
	}
	return nil
}
