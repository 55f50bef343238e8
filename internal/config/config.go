// Package config loads paperrec configuration from defaults, an optional
// YAML file and PAPERREC_* environment variables, in that order.
package config

import (
	"path/filepath"
	"time"
)

// Config is the complete paperrec configuration.
type Config struct {
	Model    ModelConfig    `koanf:"model" yaml:"model" validate:"required"`
	Store    StoreConfig    `koanf:"store" yaml:"store" validate:"required"`
	Cache    CacheConfig    `koanf:"cache" yaml:"cache"`
	Arxiv    ArxivConfig    `koanf:"arxiv" yaml:"arxiv" validate:"required"`
	Index    IndexConfig    `koanf:"index" yaml:"index" validate:"required"`
	Timeouts TimeoutsConfig `koanf:"timeouts" yaml:"timeouts" validate:"required"`
	Logging  LoggingConfig  `koanf:"logging" yaml:"logging" validate:"required"`
}

// ModelConfig selects and locates the embedding model.
type ModelConfig struct {
	Provider          string `koanf:"provider" yaml:"provider" validate:"oneof=onnx ollama"`
	ModelPath         string `koanf:"model_path" yaml:"model_path" validate:"required_if=Provider onnx"`
	TokenizerPath     string `koanf:"tokenizer_path" yaml:"tokenizer_path" validate:"required_if=Provider onnx"`
	RuntimeLibrary    string `koanf:"runtime_library" yaml:"runtime_library"` // empty: onnxruntime default lookup
	MaxSequenceLength int    `koanf:"max_sequence_length" yaml:"max_sequence_length" validate:"gte=8,lte=512"`
	Dimensions        int    `koanf:"dimensions" yaml:"dimensions" validate:"gt=0"`
	MaxConcurrent     int    `koanf:"max_concurrent" yaml:"max_concurrent" validate:"gt=0"`
	OllamaURL         string `koanf:"ollama_url" yaml:"ollama_url" validate:"omitempty,url"`
	OllamaModel       string `koanf:"ollama_model" yaml:"ollama_model" validate:"required_if=Provider ollama"`
}

// StoreConfig selects the paper store.
type StoreConfig struct {
	Driver string `koanf:"driver" yaml:"driver" validate:"oneof=sqlite memory"`
	Path   string `koanf:"path" yaml:"path"` // empty with driver memory: no snapshot
}

// CacheConfig controls the on-disk embedding cache.
type CacheConfig struct {
	Enabled bool   `koanf:"enabled" yaml:"enabled"`
	Dir     string `koanf:"dir" yaml:"dir" validate:"required_if=Enabled true"`
}

// ArxivConfig configures the arXiv discovery client.
type ArxivConfig struct {
	BaseURL     string        `koanf:"base_url" yaml:"base_url" validate:"required,url"`
	MaxResults  int           `koanf:"max_results" yaml:"max_results" validate:"gt=0,lte=2000"`
	Timeout     time.Duration `koanf:"timeout" yaml:"timeout" validate:"gt=0"`
	MinInterval time.Duration `koanf:"min_interval" yaml:"min_interval" validate:"gte=0"`
	UserAgent   string        `koanf:"user_agent" yaml:"user_agent" validate:"required"`
}

// IndexConfig configures batch indexing.
type IndexConfig struct {
	Workers int `koanf:"workers" yaml:"workers" validate:"gt=0,lte=64"`
}

// TimeoutsConfig bounds blocking calls made while serving a request.
type TimeoutsConfig struct {
	Inference time.Duration `koanf:"inference" yaml:"inference" validate:"gt=0"`
	Store     time.Duration `koanf:"store" yaml:"store" validate:"gt=0"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level" yaml:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `koanf:"format" yaml:"format" validate:"oneof=json console"`
}

// Default returns the built-in configuration. Paths live under DataDir().
func Default() *Config {
	data := DataDir()
	modelDir := filepath.Join(data, "models", "all-MiniLM-L6-v2")
	return &Config{
		Model: ModelConfig{
			Provider:          "onnx",
			ModelPath:         filepath.Join(modelDir, "model.onnx"),
			TokenizerPath:     filepath.Join(modelDir, "tokenizer.json"),
			MaxSequenceLength: 128,
			Dimensions:        384,
			MaxConcurrent:     4,
			OllamaURL:         "http://localhost:11434",
			OllamaModel:       "all-minilm:l6-v2",
		},
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   filepath.Join(data, "papers.db"),
		},
		Cache: CacheConfig{
			Enabled: true,
			Dir:     filepath.Join(data, "embedding-cache"),
		},
		Arxiv: ArxivConfig{
			BaseURL:     "https://export.arxiv.org/api/query",
			MaxResults:  20,
			Timeout:     10 * time.Second,
			MinInterval: 3 * time.Second,
			UserAgent:   "paperrec/1.0",
		},
		Index: IndexConfig{
			Workers: 4,
		},
		Timeouts: TimeoutsConfig{
			Inference: 30 * time.Second,
			Store:     10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// expandPaths resolves a leading ~ in every path setting.
func (c *Config) expandPaths() {
	c.Model.ModelPath = ExpandPath(c.Model.ModelPath)
	c.Model.TokenizerPath = ExpandPath(c.Model.TokenizerPath)
	c.Model.RuntimeLibrary = ExpandPath(c.Model.RuntimeLibrary)
	c.Store.Path = ExpandPath(c.Store.Path)
	c.Cache.Dir = ExpandPath(c.Cache.Dir)
}
