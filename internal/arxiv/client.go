// Package arxiv discovers papers through the arXiv Atom search API.
package arxiv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/matsen/paperrec/internal/logging"
	"github.com/matsen/paperrec/internal/metrics"
	"github.com/matsen/paperrec/internal/paper"
)

const (
	// BaseURL is the arXiv query endpoint.
	BaseURL = "https://export.arxiv.org/api/query"

	// DefaultTimeout bounds a single search request.
	DefaultTimeout = 10 * time.Second

	// DefaultMaxResults is the number of entries requested per search.
	DefaultMaxResults = 20

	// DefaultMinInterval is the minimum spacing between requests, per the
	// arXiv API terms of use.
	DefaultMinInterval = 3 * time.Second

	// DefaultUserAgent identifies the client to arXiv.
	DefaultUserAgent = "paperrec/1.0"

	// BreakerName labels the circuit breaker in logs and metrics.
	BreakerName = "arxiv"

	// TripAfter is the number of consecutive failures that opens the breaker.
	TripAfter = 5

	// DefaultOpenTimeout is how long the breaker stays open before probing.
	DefaultOpenTimeout = time.Minute

	// DefaultMaxResponseBytes caps how much of a feed is read.
	DefaultMaxResponseBytes = 16 << 20
)

// Client is a rate-limited arXiv search client guarded by a circuit breaker.
type Client struct {
	httpClient  *http.Client
	limiter     *rate.Limiter
	breaker     *gobreaker.CircuitBreaker[[]byte]
	baseURL     string
	userAgent   string
	timeout     time.Duration
	maxResults  int
	minInterval time.Duration
	openTimeout time.Duration
	maxBody     int64
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBaseURL sets a custom endpoint (for testing).
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxResults sets the default number of entries per search.
func WithMaxResults(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxResults = n
		}
	}
}

// WithMinInterval sets the minimum spacing between requests. Zero disables
// rate limiting.
func WithMinInterval(d time.Duration) ClientOption {
	return func(c *Client) {
		c.minInterval = d
	}
}

// WithOpenTimeout sets how long the breaker stays open before a trial request.
func WithOpenTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.openTimeout = d
		}
	}
}

// WithMaxResponseBytes caps the feed size; larger feeds fail with
// ErrResponseTooLarge.
func WithMaxResponseBytes(n int64) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

// NewClient creates a new arXiv client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient:  &http.Client{},
		baseURL:     BaseURL,
		userAgent:   DefaultUserAgent,
		timeout:     DefaultTimeout,
		maxResults:  DefaultMaxResults,
		minInterval: DefaultMinInterval,
		openTimeout: DefaultOpenTimeout,
		maxBody:     DefaultMaxResponseBytes,
	}
	for _, opt := range opts {
		opt(c)
	}

	limit := rate.Inf
	if c.minInterval > 0 {
		limit = rate.Every(c.minInterval)
	}
	c.limiter = rate.NewLimiter(limit, 1)

	metrics.CircuitBreakerState.WithLabelValues(BreakerName).Set(0)
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        BreakerName,
		MaxRequests: 1,
		Timeout:     c.openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= TripAfter
		},
		IsSuccessful: countsAsSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})
	return c
}

// Search returns up to maxResults papers matching query across all fields,
// ordered by arXiv relevance. maxResults <= 0 uses the client default.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]paper.Paper, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if maxResults <= 0 {
		maxResults = c.maxResults
	}

	params := url.Values{}
	params.Set("search_query", "all:"+query)
	params.Set("start", "0")
	params.Set("max_results", strconv.Itoa(maxResults))
	params.Set("sortBy", "relevance")
	params.Set("sortOrder", "descending")

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.fetch(ctx, params)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		c.record(ctx, err)
		return nil, err
	}

	papers, err := parseFeed(body)
	if err != nil {
		c.record(ctx, err)
		return nil, err
	}
	c.record(ctx, nil)

	logging.Ctx(ctx).Debug().Str("query", query).Int("results", len(papers)).Msg("arXiv search complete")
	return papers, nil
}

// fetch performs one rate-limited GET and returns the response body.
func (c *Client) fetch(ctx context.Context, params url.Values) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, classifyContextError(ctx, fmt.Errorf("rate limiter: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/atom+xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, classifyContextError(ctx, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrNetworkError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		if ctx.Err() != nil {
			return nil, classifyContextError(ctx, err)
		}
		return nil, fmt.Errorf("%w: reading body: %v", ErrNetworkError, err)
	}
	if int64(len(body)) > c.maxBody {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, c.maxBody)
	}
	return body, nil
}

// classifyContextError maps a deadline to ErrTimeout and keeps cancellation.
func classifyContextError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// countsAsSuccess keeps caller cancellation and client errors from tripping
// the breaker.
func countsAsSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode < 500 && apiErr.StatusCode != http.StatusTooManyRequests
	}
	return false
}

// record logs and counts the outcome of one search.
func (c *Client) record(ctx context.Context, err error) {
	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrCircuitOpen):
		outcome = "rejected"
	case errors.Is(err, ErrTimeout):
		outcome = "timeout"
	default:
		outcome = "error"
	}
	metrics.DiscoveryRequests.WithLabelValues("arxiv", outcome).Inc()
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("outcome", outcome).Msg("arXiv search failed")
	}
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
