// Package library manages the papers a user has saved.
package library

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/matsen/paperrec/internal/embedding"
	"github.com/matsen/paperrec/internal/logging"
	"github.com/matsen/paperrec/internal/paper"
	"github.com/matsen/paperrec/internal/validation"
)

// Errors returned by library operations.
var (
	ErrInvalidRequest = errors.New("invalid save request")
	ErrNotFound       = paper.ErrNotFound
)

// Store is the subset of the paper store the library uses.
type Store interface {
	GetPaper(ctx context.Context, id string) (paper.Paper, error)
	UpsertPaper(ctx context.Context, p paper.Paper) error
	LinkExists(ctx context.Context, userID, paperID string) (bool, error)
	InsertLink(ctx context.Context, userID, paperID, notes string) error
	DeleteLink(ctx context.Context, userID, paperID string) (bool, error)
	SavedPapers(ctx context.Context, userID string) ([]paper.Paper, error)
}

// SaveRequest asks to save a paper for a user. Paper may be a full record
// (for a paper not yet stored) or carry only an ID.
type SaveRequest struct {
	UserID string      `validate:"required"`
	Paper  paper.Paper `validate:"-"`
	Notes  string      `validate:"max=10000"`
}

// SaveResult reports what Save did.
type SaveResult struct {
	PaperID  string `json:"paper_id"`
	Created  bool   `json:"created"`  // false if the link already existed
	Embedded bool   `json:"embedded"` // true if an embedding was computed
}

// Library saves and lists papers per user.
type Library struct {
	store        Store
	provider     embedding.Provider
	storeTimeout time.Duration
}

// Option configures a Library.
type Option func(*Library)

// WithStoreTimeout bounds each individual store call. A call that overruns
// fails with paper.ErrStoreTimeout.
func WithStoreTimeout(d time.Duration) Option {
	return func(l *Library) {
		l.storeTimeout = d
	}
}

// New creates a Library. provider embeds papers that are saved before they
// have been indexed; it may be nil if every saved paper is already embedded.
func New(store Store, provider embedding.Provider, opts ...Option) *Library {
	l := &Library{store: store, provider: provider}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Save links a paper to a user, storing and embedding the paper first if
// needed. Saving an already-saved paper is a no-op.
func (l *Library) Save(ctx context.Context, req SaveRequest) (*SaveResult, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	if err := validation.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	id := paper.DeriveID(req.Paper)
	if id == "" {
		return nil, fmt.Errorf("%w: paper has no id, external id or title", ErrInvalidRequest)
	}
	req.Paper.ID = id

	embedded, err := l.ensureEmbedded(ctx, req.Paper)
	if err != nil {
		return nil, err
	}

	var exists bool
	err = l.call(ctx, "checking saved paper", func(ctx context.Context) (err error) {
		exists, err = l.store.LinkExists(ctx, req.UserID, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if exists {
		return &SaveResult{PaperID: id, Embedded: embedded}, nil
	}

	err = l.call(ctx, "saving paper", func(ctx context.Context) error {
		return l.store.InsertLink(ctx, req.UserID, id, req.Notes)
	})
	if err != nil {
		return nil, err
	}

	logging.Ctx(ctx).Info().Str("user_id", req.UserID).Str("paper_id", id).Msg("paper saved")
	return &SaveResult{PaperID: id, Created: true, Embedded: embedded}, nil
}

// ensureEmbedded makes sure the paper is stored with an embedding.
func (l *Library) ensureEmbedded(ctx context.Context, p paper.Paper) (bool, error) {
	var stored paper.Paper
	err := l.call(ctx, "reading paper", func(ctx context.Context) (err error) {
		stored, err = l.store.GetPaper(ctx, p.ID)
		return err
	})
	switch {
	case err == nil:
		if stored.HasEmbedding() {
			return false, nil
		}
		if p.Title == "" && p.Abstract == "" {
			p = stored
		}
	case errors.Is(err, paper.ErrNotFound):
		if p.Title == "" && p.Abstract == "" {
			return false, fmt.Errorf("%s: %w", p.ID, ErrNotFound)
		}
	default:
		return false, fmt.Errorf("paper %s: %w", p.ID, err)
	}

	if l.provider == nil {
		return false, fmt.Errorf("paper %s has no embedding: %w", p.ID, embedding.ErrModelNotLoaded)
	}

	emb, err := l.provider.Embed(ctx, paper.EmbeddingText(p))
	if err != nil {
		return false, fmt.Errorf("embedding paper %s: %w", p.ID, err)
	}
	if !emb.IsUnit() {
		return false, fmt.Errorf("%w: paper %s has no embeddable text", ErrInvalidRequest, p.ID)
	}

	p.Embedding = emb.Vector
	err = l.call(ctx, "storing paper", func(ctx context.Context) error {
		return l.store.UpsertPaper(ctx, p)
	})
	if err != nil {
		return false, fmt.Errorf("paper %s: %w", p.ID, err)
	}
	return true, nil
}

// Saved returns a user's saved papers, oldest first.
func (l *Library) Saved(ctx context.Context, userID string) ([]paper.Paper, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	}
	var papers []paper.Paper
	err := l.call(ctx, "listing saved papers", func(ctx context.Context) (err error) {
		papers, err = l.store.SavedPapers(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return papers, nil
}

// Remove unsaves a paper and reports whether it had been saved.
func (l *Library) Remove(ctx context.Context, userID, paperID string) (bool, error) {
	userID = strings.TrimSpace(userID)
	paperID = strings.TrimSpace(paperID)
	if userID == "" || paperID == "" {
		return false, fmt.Errorf("%w: user id and paper id are required", ErrInvalidRequest)
	}
	var removed bool
	err := l.call(ctx, "removing saved paper", func(ctx context.Context) (err error) {
		removed, err = l.store.DeleteLink(ctx, userID, paperID)
		return err
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

// call runs one store operation under the store deadline.
func (l *Library) call(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, cancel := paper.StoreContext(ctx, l.storeTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		return paper.StoreError(ctx, op, err)
	}
	return nil
}
