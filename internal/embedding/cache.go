package embedding

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"golang.org/x/crypto/blake2b"

	"github.com/matsen/paperrec/internal/logging"
	"github.com/matsen/paperrec/internal/metrics"
)

const cacheKeyPrefix = "emb:"

// CachedProvider memoizes another Provider in a badger key-value store.
// Keys combine the model name with a BLAKE2b-256 digest of the text, so
// switching models never returns stale vectors.
type CachedProvider struct {
	next Provider
	db   *badger.DB
}

// OpenCache opens (or creates) a badger database in dir.
func OpenCache(dir string) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening embedding cache: %w", err)
	}
	return db, nil
}

// NewCachedProvider wraps next with the cache in db.
func NewCachedProvider(next Provider, db *badger.DB) *CachedProvider {
	return &CachedProvider{next: next, db: db}
}

// Embed returns the cached vector for text or computes and stores it.
// Cache read and write failures are logged and fall through to the provider.
func (c *CachedProvider) Embed(ctx context.Context, text string) (Embedding, error) {
	key := c.key(text)

	if vec, ok := c.lookup(ctx, key); ok {
		metrics.EmbeddingCacheHits.Inc()
		return Embedding{Vector: vec}, nil
	}
	metrics.EmbeddingCacheMisses.Inc()

	emb, err := c.next.Embed(ctx, text)
	if err != nil {
		return Embedding{}, err
	}

	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, EncodeVector(emb.Vector))
	})
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("embedding cache write failed")
	}

	return emb, nil
}

func (c *CachedProvider) lookup(ctx context.Context, key []byte) ([]float32, bool) {
	var vec []float32
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			v, err := DecodeVector(val)
			if err != nil {
				return err
			}
			vec = v
			return nil
		})
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			logging.Ctx(ctx).Warn().Err(err).Msg("embedding cache read failed")
		}
		return nil, false
	}
	if len(vec) != c.next.Dimensions() {
		return nil, false
	}
	return vec, true
}

func (c *CachedProvider) key(text string) []byte {
	sum := blake2b.Sum256([]byte(text))
	return []byte(cacheKeyPrefix + c.next.ModelName() + ":" + hex.EncodeToString(sum[:]))
}

// ModelName returns the wrapped provider's model name.
func (c *CachedProvider) ModelName() string {
	return c.next.ModelName()
}

// Dimensions returns the wrapped provider's dimensions.
func (c *CachedProvider) Dimensions() int {
	return c.next.Dimensions()
}
