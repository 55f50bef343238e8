package main

import (
	"context"
	"errors"

	"github.com/matsen/paperrec/internal/arxiv"
	"github.com/matsen/paperrec/internal/config"
	"github.com/matsen/paperrec/internal/embedding"
	"github.com/matsen/paperrec/internal/library"
	"github.com/matsen/paperrec/internal/paper"
	"github.com/matsen/paperrec/internal/recommend"
	"github.com/matsen/paperrec/internal/validation"
)

// Exit codes
const (
	ExitSuccess         = 0 // Success
	ExitError           = 1 // General error (invalid arguments, runtime failure)
	ExitConfigError     = 2 // Configuration error (missing or invalid config file)
	ExitDataError       = 3 // Data error (malformed input, validation failure, unknown paper)
	ExitUpstreamTimeout = 4 // Inference, store or arXiv deadline exceeded (retryable)
	ExitModelNotFound   = 5 // Embedding model or tokenizer not available
)

// exitCodeFor maps an error returned by a command to its exit code.
func exitCodeFor(err error) int {
	var validationErr *validation.Error
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, config.ErrInvalidConfig), errors.Is(err, config.ErrConfigNotFound):
		return ExitConfigError
	case errors.Is(err, embedding.ErrInferenceTimeout),
		errors.Is(err, recommend.ErrUpstreamTimeout),
		errors.Is(err, paper.ErrStoreTimeout),
		errors.Is(err, arxiv.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return ExitUpstreamTimeout
	case errors.Is(err, embedding.ErrModelNotLoaded):
		return ExitModelNotFound
	case errors.Is(err, recommend.ErrInvalidRequest),
		errors.Is(err, recommend.ErrDimensionMismatch),
		errors.Is(err, library.ErrInvalidRequest),
		errors.Is(err, paper.ErrNotFound),
		errors.Is(err, arxiv.ErrEmptyQuery),
		errors.As(err, &validationErr):
		return ExitDataError
	default:
		return ExitError
	}
}
