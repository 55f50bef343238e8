package embedding

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/matsen/paperrec/internal/logging"
	"github.com/matsen/paperrec/internal/metrics"
)

const (
	DefaultOllamaURL = "http://localhost:11434"

	// DefaultOllamaModel is the Ollama build of all-MiniLM-L6-v2.
	DefaultOllamaModel = "all-minilm:l6-v2"

	// DefaultDimensions is the output width of all-MiniLM-L6-v2.
	DefaultDimensions = 384

	// DefaultTimeout bounds one embed call against Ollama.
	DefaultTimeout = 30 * time.Second

	pathTags  = "/api/tags"
	pathEmbed = "/api/embed"

	// maxErrorBody caps how much of a failed response is quoted in errors.
	maxErrorBody = 512
)

// ErrOllamaUnavailable is returned by Ready when the Ollama server cannot be reached.
var ErrOllamaUnavailable = errors.New("ollama is not reachable")

// OllamaProvider embeds text through a local Ollama server. It is an
// alternative to the in-process ONNX generator for hosts without onnxruntime.
type OllamaProvider struct {
	baseURL    string
	model      string
	dimensions int
	timeout    time.Duration
	client     *http.Client
}

// OllamaOption configures an OllamaProvider.
type OllamaOption func(*OllamaProvider)

func WithBaseURL(url string) OllamaOption {
	return func(p *OllamaProvider) {
		p.baseURL = strings.TrimRight(url, "/")
	}
}

func WithModel(model string) OllamaOption {
	return func(p *OllamaProvider) {
		p.model = model
	}
}

// WithDimensions sets the vector width responses must have.
func WithDimensions(dims int) OllamaOption {
	return func(p *OllamaProvider) {
		p.dimensions = dims
	}
}

// WithTimeout bounds each Embed call. Zero leaves only the caller's deadline.
func WithTimeout(timeout time.Duration) OllamaOption {
	return func(p *OllamaProvider) {
		p.timeout = timeout
	}
}

// NewOllamaProvider creates an Ollama-backed provider.
func NewOllamaProvider(opts ...OllamaOption) *OllamaProvider {
	p := &OllamaProvider{
		baseURL:    DefaultOllamaURL,
		model:      DefaultOllamaModel,
		dimensions: DefaultDimensions,
		timeout:    DefaultTimeout,
		client:     &http.Client{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *OllamaProvider) ModelName() string {
	return p.model
}

func (p *OllamaProvider) Dimensions() int {
	return p.dimensions
}

// Embed returns the unit-normalized embedding of text. Blank text yields a
// zero vector without a round trip, matching the ONNX generator.
func (p *OllamaProvider) Embed(ctx context.Context, text string) (Embedding, error) {
	if strings.TrimSpace(text) == "" {
		metrics.DegenerateEmbeddings.Inc()
		return Embedding{Vector: make([]float32, p.dimensions)}, nil
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	body, err := json.Marshal(embedRequest{Model: p.model, Input: text})
	if err != nil {
		return Embedding{}, fmt.Errorf("encoding embed request: %w", err)
	}

	start := time.Now()
	var out embedResponse
	err = p.do(ctx, http.MethodPost, pathEmbed, body, &out)
	metrics.InferenceDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			err = classifyContextError(ctx.Err())
			metrics.InferenceTimeouts.Inc()
			logging.Ctx(ctx).Warn().Err(err).Str("model", p.model).Msg("ollama embed abandoned")
		}
		return Embedding{}, err
	}

	if len(out.Embeddings) != 1 {
		return Embedding{}, fmt.Errorf("ollama returned %d embeddings for one input", len(out.Embeddings))
	}
	vec := out.Embeddings[0]
	if len(vec) != p.dimensions {
		return Embedding{}, fmt.Errorf("unexpected embedding dimensions: got %d, want %d", len(vec), p.dimensions)
	}
	return Embedding{Vector: Normalize(vec)}, nil
}

// Ready checks that the server answers and has pulled the configured model.
// It returns ErrOllamaUnavailable or ErrModelNotLoaded.
func (p *OllamaProvider) Ready(ctx context.Context) error {
	var tags tagsResponse
	if err := p.do(ctx, http.MethodGet, pathTags, nil, &tags); err != nil {
		return fmt.Errorf("%w at %s: %v", ErrOllamaUnavailable, p.baseURL, err)
	}
	for _, m := range tags.Models {
		if m.Name == p.model || m.Model == p.model {
			return nil
		}
	}
	return fmt.Errorf("%w: %s has not been pulled", ErrModelNotLoaded, p.model)
}

// do sends one JSON request and decodes a 200 response into out.
func (p *OllamaProvider) do(ctx context.Context, method, path string, body []byte, out any) error {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("ollama %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding ollama %s response: %w", path, err)
	}
	return nil
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

type tagsResponse struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}
