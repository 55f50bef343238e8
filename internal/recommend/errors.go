package recommend

import (
	"errors"

	"github.com/matsen/paperrec/internal/paper"
)

// Errors returned by the recommender.
var (
	// ErrInvalidRequest indicates a missing user id or an out-of-range limit.
	ErrInvalidRequest = errors.New("invalid recommendation request")

	// ErrDimensionMismatch indicates saved embeddings of differing widths,
	// usually left by a model change without a forced re-index.
	ErrDimensionMismatch = errors.New("saved embeddings have mismatched dimensions")

	// ErrUpstreamTimeout indicates a store call did not finish before its
	// deadline. It is the shared store timeout, so callers may match either.
	ErrUpstreamTimeout = paper.ErrStoreTimeout
)
