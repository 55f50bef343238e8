package embedding

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/matsen/paperrec/internal/logging"
	"github.com/matsen/paperrec/internal/metrics"
	"github.com/matsen/paperrec/internal/tokenize"
)

// DefaultModelName identifies the ONNX build of the sentence-transformers model.
const DefaultModelName = "all-MiniLM-L6-v2"

// Graph is a loaded inference graph. Run returns the per-token output vectors
// for one encoded sequence, row-major (sequence length x dimensions).
// Implementations must be safe for concurrent Run calls.
type Graph interface {
	Run(enc tokenize.Encoding) ([]float32, error)
}

// Generator embeds text locally: encode, infer, mean-pool, normalize.
// The encoder and graph are read-only after construction, so one Generator
// serves any number of concurrent requests.
type Generator struct {
	encoder *tokenize.Encoder
	graph   Graph
	model   string
	dims    int
	timeout time.Duration
	sem     *semaphore.Weighted
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithModelName sets the reported model name.
func WithModelName(name string) GeneratorOption {
	return func(g *Generator) {
		g.model = name
	}
}

// WithOutputDimensions sets the width of the graph's per-token output.
func WithOutputDimensions(dims int) GeneratorOption {
	return func(g *Generator) {
		g.dims = dims
	}
}

// WithInferenceTimeout bounds each Embed call, including time spent waiting
// for an inference slot. Zero means only the caller's context applies.
func WithInferenceTimeout(d time.Duration) GeneratorOption {
	return func(g *Generator) {
		g.timeout = d
	}
}

// WithMaxConcurrent limits the number of graph runs in flight.
func WithMaxConcurrent(n int) GeneratorOption {
	return func(g *Generator) {
		if n > 0 {
			g.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// NewGenerator creates a Generator over a loaded encoder and graph.
func NewGenerator(encoder *tokenize.Encoder, graph Graph, opts ...GeneratorOption) *Generator {
	g := &Generator{
		encoder: encoder,
		graph:   graph,
		model:   DefaultModelName,
		dims:    DefaultDimensions,
		sem:     semaphore.NewWeighted(4),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ModelName returns the name of the embedding model.
func (g *Generator) ModelName() string {
	return g.model
}

// Dimensions returns the output vector width.
func (g *Generator) Dimensions() int {
	return g.dims
}

// Embed returns the unit-normalized embedding of text.
//
// Text with no real tokens (empty or untokenizable) yields a zero vector and no
// error; it is the only output that is not unit length.
func (g *Generator) Embed(ctx context.Context, text string) (Embedding, error) {
	if g.graph == nil || g.encoder == nil {
		return Embedding{}, ErrModelNotLoaded
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	enc := g.encoder.Encode(text)
	if enc.RealTokens() == 0 {
		metrics.DegenerateEmbeddings.Inc()
		logging.Ctx(ctx).Debug().Int("text_len", len(text)).Msg("no real tokens, returning zero vector")
		return Embedding{Vector: make([]float32, g.dims)}, nil
	}

	hidden, err := g.infer(ctx, enc)
	if err != nil {
		return Embedding{}, err
	}

	pooled, err := MeanPool(hidden, enc.AttentionMask, g.dims)
	if err != nil {
		return Embedding{}, fmt.Errorf("pooling: %w", err)
	}

	return Embedding{Vector: Normalize(pooled)}, nil
}

type inferResult struct {
	hidden []float32
	err    error
}

// infer runs the graph on a worker goroutine so the caller can give up at its
// deadline. The slot is released by the worker once the run really finishes.
func (g *Generator) infer(ctx context.Context, enc tokenize.Encoding) ([]float32, error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, g.timedOut(ctx, err)
	}

	done := make(chan inferResult, 1)
	go func() {
		defer g.sem.Release(1)
		start := time.Now()
		hidden, err := g.graph.Run(enc)
		metrics.InferenceDuration.Observe(time.Since(start).Seconds())
		done <- inferResult{hidden: hidden, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("running inference: %w", r.err)
		}
		return r.hidden, nil
	case <-ctx.Done():
		return nil, g.timedOut(ctx, ctx.Err())
	}
}

func (g *Generator) timedOut(ctx context.Context, err error) error {
	err = classifyContextError(err)
	metrics.InferenceTimeouts.Inc()
	logging.Ctx(ctx).Warn().Err(err).Str("model", g.model).Msg("inference abandoned")
	return err
}
