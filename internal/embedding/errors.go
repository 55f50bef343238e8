package embedding

import (
	"context"
	"errors"
	"fmt"
)

// Errors returned by embedding providers.
var (
	// ErrInferenceTimeout indicates the model did not respond before the deadline.
	// Callers may retry; the provider never retries internally.
	ErrInferenceTimeout = errors.New("embedding inference timed out")

	// ErrModelNotLoaded indicates the inference graph is unavailable.
	ErrModelNotLoaded = errors.New("embedding model not loaded")
)

// classifyContextError maps a context failure onto ErrInferenceTimeout.
func classifyContextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrInferenceTimeout, err)
	}
	return err
}
