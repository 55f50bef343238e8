// Package metrics holds the Prometheus instrumentation for the recommendation pipeline.
package metrics

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

var (
	// Embedding Metrics
	InferenceDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "paperrec_inference_duration_seconds",
			Help:    "Duration of embedding model inference in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	InferenceTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "paperrec_inference_timeouts_total",
			Help: "Total number of embedding inferences that exceeded their deadline",
		},
	)

	DegenerateEmbeddings = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "paperrec_degenerate_embeddings_total",
			Help: "Total number of inputs that produced a zero (non-normalizable) vector",
		},
	)

	EmbeddingCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "paperrec_embedding_cache_hits_total",
			Help: "Total number of embedding cache hits",
		},
	)

	EmbeddingCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "paperrec_embedding_cache_misses_total",
			Help: "Total number of embedding cache misses",
		},
	)

	// Indexing Metrics
	PapersIndexed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "paperrec_papers_indexed_total",
			Help: "Total number of papers embedded and upserted",
		},
	)

	IndexSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paperrec_index_skipped_total",
			Help: "Total number of papers skipped while indexing, by reason",
		},
		[]string{"reason"}, // "invalid_id", "embed_failed", "degenerate_embedding", "upsert_failed", "unchanged"
	)

	// Recommendation Metrics
	Recommendations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paperrec_recommendations_total",
			Help: "Total number of recommendation requests, by terminal status",
		},
		[]string{"status"}, // "success", "not_enough_data", "error"
	)

	MissingEmbeddings = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "paperrec_missing_embeddings_total",
			Help: "Total number of saved papers skipped because no embedding is stored",
		},
	)

	StoreTimeouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paperrec_store_timeouts_total",
			Help: "Total number of vector store calls that exceeded their deadline, by operation",
		},
		[]string{"operation"},
	)

	ShortRecommendationLists = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "paperrec_short_recommendation_lists_total",
			Help: "Total number of successful recommendations returning fewer results than requested",
		},
	)

	// Discovery Metrics
	DiscoveryRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paperrec_discovery_requests_total",
			Help: "Total number of upstream paper discovery requests, by outcome",
		},
		[]string{"source", "outcome"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "paperrec_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)

// WriteText writes every registered metric family in the Prometheus text format.
func WriteText(w io.Writer) error {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("writing metric %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
