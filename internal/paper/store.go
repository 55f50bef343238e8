package paper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/matsen/paperrec/internal/metrics"
)

// ErrStoreTimeout indicates a paper store call did not finish before its
// deadline. The operation may be retried; callers never retry internally.
var ErrStoreTimeout = errors.New("paper store timed out")

// StoreContext bounds a single store call by d. A zero or negative d leaves
// only the caller's deadline.
func StoreContext(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// StoreError wraps a failed store call named op. Deadline failures become
// ErrStoreTimeout and are counted by operation.
func StoreError(ctx context.Context, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		metrics.StoreTimeouts.WithLabelValues(op).Inc()
		return fmt.Errorf("%s: %w", op, ErrStoreTimeout)
	}
	return fmt.Errorf("%s: %w", op, err)
}
