package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/matsen/paperrec/internal/arxiv"
	"github.com/matsen/paperrec/internal/config"
	"github.com/matsen/paperrec/internal/embedding"
	"github.com/matsen/paperrec/internal/library"
	"github.com/matsen/paperrec/internal/paper"
	"github.com/matsen/paperrec/internal/recommend"
	"github.com/matsen/paperrec/internal/validation"
)

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"plain", errors.New("boom"), ExitError},
		{"invalid config", fmt.Errorf("loading: %w", config.ErrInvalidConfig), ExitConfigError},
		{"missing config", config.ErrConfigNotFound, ExitConfigError},
		{"inference timeout", fmt.Errorf("embedding: %w", embedding.ErrInferenceTimeout), ExitUpstreamTimeout},
		{"store timeout", recommend.ErrUpstreamTimeout, ExitUpstreamTimeout},
		{"save store timeout", fmt.Errorf("paper p1: %w", fmt.Errorf("storing paper: %w", paper.ErrStoreTimeout)), ExitUpstreamTimeout},
		{"mixed embedding widths", fmt.Errorf("recommending: %w", recommend.ErrDimensionMismatch), ExitDataError},
		{"arxiv timeout", arxiv.ErrTimeout, ExitUpstreamTimeout},
		{"deadline", context.DeadlineExceeded, ExitUpstreamTimeout},
		{"model not loaded", embedding.ErrModelNotLoaded, ExitModelNotFound},
		{"invalid recommend request", recommend.ErrInvalidRequest, ExitDataError},
		{"invalid save request", library.ErrInvalidRequest, ExitDataError},
		{"unknown paper", fmt.Errorf("p1: %w", paper.ErrNotFound), ExitDataError},
		{"empty query", arxiv.ErrEmptyQuery, ExitDataError},
		{"validation", &validation.Error{}, ExitDataError},
		{"arxiv server error", &arxiv.APIError{StatusCode: 503}, ExitError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCodeFor(tt.err); got != tt.want {
				t.Errorf("exitCodeFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
