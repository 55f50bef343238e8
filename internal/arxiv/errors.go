package arxiv

import (
	"errors"
	"fmt"
)

// Common errors returned by the arXiv client.
var (
	// ErrEmptyQuery indicates a search was requested without query text.
	ErrEmptyQuery = errors.New("empty arXiv query")

	// ErrTimeout indicates the request did not complete within its deadline.
	ErrTimeout = errors.New("arXiv request timed out")

	// ErrCircuitOpen indicates requests are being rejected after repeated failures.
	ErrCircuitOpen = errors.New("arXiv circuit breaker open")

	// ErrNetworkError indicates a network connectivity issue.
	ErrNetworkError = errors.New("network error communicating with arXiv")

	// ErrInvalidResponse indicates the feed could not be parsed.
	ErrInvalidResponse = errors.New("invalid response from arXiv")

	// ErrResponseTooLarge indicates the feed exceeded the client's body limit.
	ErrResponseTooLarge = errors.New("arXiv response too large")
)

// APIError represents a non-200 response or an error entry in the feed.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("arXiv API error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("arXiv API error (status %d): %s", e.StatusCode, e.Message)
}

// IsRetryable reports whether a failed search may succeed if repeated later.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrNetworkError) || errors.Is(err, ErrCircuitOpen) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}
