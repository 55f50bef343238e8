package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/matsen/paperrec/internal/embedding"
	"github.com/matsen/paperrec/internal/indexer"
	"github.com/matsen/paperrec/internal/library"
	"github.com/matsen/paperrec/internal/logging"
	"github.com/matsen/paperrec/internal/paper"
	"github.com/matsen/paperrec/internal/recommend"
	"github.com/matsen/paperrec/internal/semantic"
	"github.com/matsen/paperrec/internal/storage"
	"github.com/matsen/paperrec/internal/tokenize"
)

// paperStore is every store capability the commands use. Both the SQLite
// store and the in-memory store implement it.
type paperStore interface {
	recommend.Store
	library.Store
	indexer.Store
	ListPapers(ctx context.Context) ([]paper.Paper, error)
	Count(ctx context.Context) (int, error)
	Search(ctx context.Context, query string, limit int) ([]paper.Paper, error)
	Similar(ctx context.Context, id string, k int) ([]paper.Match, error)
	Close() error
}

var (
	_ paperStore = (*storage.DB)(nil)
	_ paperStore = (*semantic.MemoryStore)(nil)
)

// modelName is the name stored alongside embeddings.
func modelName() string {
	if cfg.Model.Provider == "ollama" {
		return cfg.Model.OllamaModel
	}
	return embedding.DefaultModelName
}

// mustOpenStore opens the configured paper store, exits on error.
// The store is closed when the process exits.
func mustOpenStore() paperStore {
	var store paperStore
	switch cfg.Store.Driver {
	case "memory":
		if cfg.Store.Path == "" {
			store = semantic.NewMemoryStore(modelName(), cfg.Model.Dimensions)
			break
		}
		mustMkdirParent(cfg.Store.Path)
		s, err := semantic.OpenMemoryStore(cfg.Store.Path, modelName(), cfg.Model.Dimensions)
		if err != nil {
			exitWithError(ExitConfigError, "opening memory store %s: %v", cfg.Store.Path, err)
		}
		store = s
	default:
		mustMkdirParent(cfg.Store.Path)
		db, err := storage.OpenDB(cfg.Store.Path, cfg.Model.Dimensions)
		if err != nil {
			exitWithError(ExitError, "opening database: %v", err)
		}
		store = db
	}

	onExit(func() {
		if err := store.Close(); err != nil {
			logging.Warn().Err(err).Msg("closing store")
		}
	})
	return store
}

// mustMkdirParent creates the directory containing path.
func mustMkdirParent(path string) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		exitWithError(ExitConfigError, "creating directory for %s: %v", path, err)
	}
}

// mustLoadProvider builds the configured embedding provider, wrapped in the
// embedding cache when enabled, and exits if the model is unavailable.
func mustLoadProvider(ctx context.Context) embedding.Provider {
	var provider embedding.Provider
	switch cfg.Model.Provider {
	case "ollama":
		p := embedding.NewOllamaProvider(
			embedding.WithBaseURL(cfg.Model.OllamaURL),
			embedding.WithModel(cfg.Model.OllamaModel),
			embedding.WithDimensions(cfg.Model.Dimensions),
			embedding.WithTimeout(cfg.Timeouts.Inference),
		)
		mustValidateOllama(ctx, p)
		provider = p
	default:
		provider = mustLoadGenerator()
	}

	if !cfg.Cache.Enabled {
		return provider
	}
	db, err := embedding.OpenCache(cfg.Cache.Dir)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("dir", cfg.Cache.Dir).Msg("embedding cache unavailable, continuing without it")
		return provider
	}
	onExit(func() {
		if err := db.Close(); err != nil {
			logging.Warn().Err(err).Msg("closing embedding cache")
		}
	})
	return embedding.NewCachedProvider(provider, db)
}

// mustLoadGenerator loads the tokenizer and ONNX model.
func mustLoadGenerator() *embedding.Generator {
	for _, path := range []string{cfg.Model.TokenizerPath, cfg.Model.ModelPath} {
		if _, err := os.Stat(path); err != nil {
			exitWithError(ExitModelNotFound, "model file not found: %s\n\nDownload all-MiniLM-L6-v2 (model.onnx and tokenizer.json) and set model.model_path and model.tokenizer_path.", path)
		}
	}

	vocab, err := tokenize.LoadVocabulary(cfg.Model.TokenizerPath)
	if err != nil {
		exitWithError(ExitModelNotFound, "loading tokenizer: %v", err)
	}

	graph, err := embedding.LoadONNXGraph(cfg.Model.ModelPath, cfg.Model.RuntimeLibrary, cfg.Model.Dimensions)
	if err != nil {
		exitWithError(ExitModelNotFound, "loading model: %v", err)
	}
	onExit(func() {
		if err := graph.Close(); err != nil {
			logging.Warn().Err(err).Msg("closing model")
		}
	})

	return embedding.NewGenerator(
		vocab.Encoder(cfg.Model.MaxSequenceLength),
		graph,
		embedding.WithModelName(embedding.DefaultModelName),
		embedding.WithOutputDimensions(cfg.Model.Dimensions),
		embedding.WithInferenceTimeout(cfg.Timeouts.Inference),
		embedding.WithMaxConcurrent(cfg.Model.MaxConcurrent),
	)
}

// mustValidateOllama checks that Ollama is running with the embedding model.
func mustValidateOllama(ctx context.Context, provider *embedding.OllamaProvider) {
	err := provider.Ready(ctx)
	switch {
	case err == nil:
	case errors.Is(err, embedding.ErrModelNotLoaded):
		exitWithError(ExitModelNotFound, "embedding model %q not found\n\nRun 'ollama pull %s' to download it.", provider.ModelName(), provider.ModelName())
	default:
		exitWithError(ExitModelNotFound, "Ollama is not running at %s\n\nStart Ollama with 'ollama serve' or switch model.provider to onnx.", cfg.Model.OllamaURL)
	}
}

// newIndexer builds an indexer with the configured parallelism and store deadline.
func newIndexer(provider embedding.Provider, store paperStore, opts ...indexer.Option) *indexer.Indexer {
	opts = append([]indexer.Option{
		indexer.WithWorkers(cfg.Index.Workers),
		indexer.WithStoreTimeout(cfg.Timeouts.Store),
	}, opts...)
	return indexer.New(provider, store, opts...)
}

// newLibrary builds a library with the configured store deadline.
func newLibrary(store paperStore, provider embedding.Provider) *library.Library {
	return library.New(store, provider, library.WithStoreTimeout(cfg.Timeouts.Store))
}

// storeContext bounds a direct store call by the configured store timeout.
func storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return paper.StoreContext(ctx, cfg.Timeouts.Store)
}

// lazyProvider loads the embedding model on first use, so commands that may
// not need inference do not require the model files.
type lazyProvider struct {
	once     sync.Once
	provider embedding.Provider
}

func (p *lazyProvider) Embed(ctx context.Context, text string) (embedding.Embedding, error) {
	p.once.Do(func() { p.provider = mustLoadProvider(ctx) })
	return p.provider.Embed(ctx, text)
}

func (p *lazyProvider) ModelName() string { return modelName() }
func (p *lazyProvider) Dimensions() int   { return cfg.Model.Dimensions }
