package embedding

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

var _ Provider = (*OllamaProvider)(nil)

// ollamaServer answers /api/embed with vec and /api/tags with models.
func ollamaServer(t *testing.T, vec []float32, models ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case pathEmbed:
			var req embedRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			_ = json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{vec}})
		case pathTags:
			var tags tagsResponse
			for _, m := range models {
				tags.Models = append(tags.Models, struct {
					Name  string `json:"name"`
					Model string `json:"model"`
				}{Name: m, Model: m})
			}
			_ = json.NewEncoder(w).Encode(tags)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewOllamaProvider_Options(t *testing.T) {
	p := NewOllamaProvider()
	if p.ModelName() != DefaultOllamaModel || p.Dimensions() != DefaultDimensions || p.timeout != DefaultTimeout {
		t.Errorf("defaults = %s/%d/%v", p.ModelName(), p.Dimensions(), p.timeout)
	}

	p = NewOllamaProvider(
		WithBaseURL("http://gpu-box:11434/"),
		WithModel("nomic-embed-text"),
		WithDimensions(768),
		WithTimeout(time.Minute),
	)
	if p.baseURL != "http://gpu-box:11434" {
		t.Errorf("baseURL = %q, want trailing slash trimmed", p.baseURL)
	}
	if p.ModelName() != "nomic-embed-text" || p.Dimensions() != 768 || p.timeout != time.Minute {
		t.Errorf("options not applied: %s/%d/%v", p.ModelName(), p.Dimensions(), p.timeout)
	}
}

func TestOllamaProvider_Embed(t *testing.T) {
	srv := ollamaServer(t, []float32{3, 4, 0})
	p := NewOllamaProvider(WithBaseURL(srv.URL), WithDimensions(3))

	emb, err := p.Embed(context.Background(), "graph neural networks")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	want := []float32{0.6, 0.8, 0}
	for i := range want {
		if math.Abs(float64(emb.Vector[i]-want[i])) > 1e-6 {
			t.Errorf("Vector[%d] = %f, want %f", i, emb.Vector[i], want[i])
		}
	}
	if !emb.IsUnit() {
		t.Errorf("Norm() = %f, want 1", emb.Norm())
	}
}

func TestOllamaProvider_Embed_BlankText(t *testing.T) {
	p := NewOllamaProvider(WithBaseURL("http://127.0.0.1:1"), WithDimensions(4))

	emb, err := p.Embed(context.Background(), "  \n")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if emb.Dimensions() != 4 || emb.Norm() != 0 {
		t.Errorf("Embed(blank) = %v, want a 4-wide zero vector", emb.Vector)
	}
}

func TestOllamaProvider_Embed_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{
			name: "wrong width",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{1, 2}}})
			},
			want: "dimensions",
		},
		{
			name: "no embeddings",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(embedResponse{})
			},
			want: "0 embeddings",
		},
		{
			name: "server error body quoted",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "model not found", http.StatusNotFound)
			},
			want: "model not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			p := NewOllamaProvider(WithBaseURL(srv.URL), WithDimensions(3))
			_, err := p.Embed(context.Background(), "text")
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Embed() error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestOllamaProvider_Embed_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	p := NewOllamaProvider(WithBaseURL(srv.URL), WithTimeout(20*time.Millisecond))
	_, err := p.Embed(context.Background(), "text")
	if !errors.Is(err, ErrInferenceTimeout) {
		t.Errorf("Embed() error = %v, want ErrInferenceTimeout", err)
	}
}

func TestOllamaProvider_Ready(t *testing.T) {
	ctx := context.Background()

	srv := ollamaServer(t, nil, "llama3:8b", DefaultOllamaModel)
	if err := NewOllamaProvider(WithBaseURL(srv.URL)).Ready(ctx); err != nil {
		t.Errorf("Ready() error = %v", err)
	}

	err := NewOllamaProvider(WithBaseURL(srv.URL), WithModel("missing")).Ready(ctx)
	if !errors.Is(err, ErrModelNotLoaded) {
		t.Errorf("Ready(missing model) error = %v, want ErrModelNotLoaded", err)
	}

	err = NewOllamaProvider(WithBaseURL("http://127.0.0.1:1")).Ready(ctx)
	if !errors.Is(err, ErrOllamaUnavailable) {
		t.Errorf("Ready(unreachable) error = %v, want ErrOllamaUnavailable", err)
	}
}
