package semantic

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/matsen/paperrec/internal/paper"
)

// ErrInvalidPaper is returned when a paper cannot be stored.
var ErrInvalidPaper = errors.New("invalid paper")

// Link records that a user saved a paper.
type Link struct {
	PaperID   string
	Notes     string
	CreatedAt time.Time
	Seq       int64 // insertion order
}

// memorySnapshot is the on-disk form of a MemoryStore.
type memorySnapshot struct {
	Version int
	Index   *SemanticIndex
	Papers  map[string]paper.Paper
	Hashes  map[string]string
	Links   map[string]map[string]Link
}

// MemoryStore keeps papers, embeddings and saved-paper links in memory.
// When created with a snapshot path, Flush persists the state as GOB.
// It is safe for concurrent use.
type MemoryStore struct {
	mu     sync.RWMutex
	path   string
	index  *SemanticIndex
	papers map[string]paper.Paper     // metadata only; vectors live in index
	hashes map[string]string          // content hash of the text each vector came from
	links  map[string]map[string]Link // user id -> paper id -> link
	seq    int64
}

// NewMemoryStore creates an empty store for vectors of the given width.
func NewMemoryStore(modelName string, dimensions int) *MemoryStore {
	return &MemoryStore{
		index:  NewSemanticIndex(modelName, dimensions),
		papers: make(map[string]paper.Paper),
		hashes: make(map[string]string),
		links:  make(map[string]map[string]Link),
	}
}

// OpenMemoryStore loads the snapshot at path, or starts empty if none exists.
// Flush writes back to the same path.
func OpenMemoryStore(path, modelName string, dimensions int) (*MemoryStore, error) {
	s := NewMemoryStore(modelName, dimensions)
	s.path = path

	var snap memorySnapshot
	err := readGob(path, &snap)
	if errors.Is(err, ErrIndexNotFound) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	if err := checkVersion(snap.Version); err != nil {
		return nil, err
	}
	if snap.Index == nil || snap.Index.Dimensions != dimensions {
		return nil, fmt.Errorf("%w: snapshot has %d dimensions, want %d",
			ErrDimensionMismatch, snapshotDims(snap), dimensions)
	}

	s.index = snap.Index
	if s.index.Embeddings == nil {
		s.index.Embeddings = make(map[string][]float32)
	}
	if snap.Papers != nil {
		s.papers = snap.Papers
	}
	if snap.Hashes != nil {
		s.hashes = snap.Hashes
	}
	if snap.Links != nil {
		s.links = snap.Links
	}
	for _, user := range s.links {
		for _, l := range user {
			s.seq = max(s.seq, l.Seq)
		}
	}
	return s, nil
}

func snapshotDims(snap memorySnapshot) int {
	if snap.Index == nil {
		return 0
	}
	return snap.Index.Dimensions
}

// Flush writes the store to its snapshot path. It is a no-op for stores
// created without one.
func (s *MemoryStore) Flush() error {
	if s.path == "" {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return writeGob(s.path, memorySnapshot{
		Version: CurrentIndexVersion,
		Index:   s.index,
		Papers:  s.papers,
		Hashes:  s.hashes,
		Links:   s.links,
	})
}

// Close flushes the snapshot.
func (s *MemoryStore) Close() error {
	return s.Flush()
}

// Dimensions returns the accepted embedding width.
func (s *MemoryStore) Dimensions() int {
	return s.index.Dimensions
}

// UpsertPaper inserts or replaces a paper. An upsert without an embedding keeps
// the previously stored vector.
func (s *MemoryStore) UpsertPaper(ctx context.Context, p paper.Paper) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidPaper)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if p.HasEmbedding() {
		if err := s.index.AddEmbedding(p.ID, p.Embedding); err != nil {
			return fmt.Errorf("storing embedding for %s: %w", p.ID, err)
		}
		s.hashes[p.ID] = paper.ContentHash(paper.EmbeddingText(p))
	}

	p.Embedding = nil
	s.papers[p.ID] = p
	return nil
}

// GetPaper returns a stored paper with its embedding, or paper.ErrNotFound.
func (s *MemoryStore) GetPaper(ctx context.Context, id string) (paper.Paper, error) {
	if err := ctx.Err(); err != nil {
		return paper.Paper{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.papers[id]
	if !ok {
		return paper.Paper{}, paper.ErrNotFound
	}
	p.Embedding = s.vector(id)
	return p, nil
}

// vector returns a copy of the stored embedding, or nil. Callers hold mu.
func (s *MemoryStore) vector(id string) []float32 {
	v, ok := s.index.Embeddings[id]
	if !ok {
		return nil
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out
}

// ListPapers returns every stored paper ordered by id, with embeddings.
func (s *MemoryStore) ListPapers(ctx context.Context) ([]paper.Paper, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	papers := make([]paper.Paper, 0, len(s.papers))
	for id, p := range s.papers {
		p.Embedding = s.vector(id)
		papers = append(papers, p)
	}
	sort.Slice(papers, func(i, j int) bool { return papers[i].ID < papers[j].ID })
	return papers, nil
}

// Count returns the number of stored papers.
func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.papers), nil
}

// ContentHash returns the hash of the text the stored embedding was computed
// from, or "" when the paper has no embedding.
func (s *MemoryStore) ContentHash(ctx context.Context, id string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.index.HasPaper(id) {
		return "", nil
	}
	return s.hashes[id], nil
}

// EmbeddingsByIDs returns the embeddings of the given papers. Papers that are
// unknown or have no embedding are absent from the result.
func (s *MemoryStore) EmbeddingsByIDs(ctx context.Context, ids []string) (map[string][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]float32, len(ids))
	for _, id := range ids {
		if v := s.vector(id); v != nil {
			out[id] = v
		}
	}
	return out, nil
}

// SearchNearest returns up to k papers ranked by cosine similarity to query.
func (s *MemoryStore) SearchNearest(ctx context.Context, query []float32, k int) ([]paper.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(query) != s.index.Dimensions {
		return nil, fmt.Errorf("%w: query has %d, want %d", ErrDimensionMismatch, len(query), s.index.Dimensions)
	}
	if k <= 0 {
		return []paper.Match{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := s.index.Nearest(query, k, "")
	matches := make([]paper.Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, paper.Match{Paper: s.papers[r.PaperID], Similarity: r.Similarity})
	}
	return matches, nil
}

// Similar returns up to k papers nearest to a stored paper, excluding itself.
func (s *MemoryStore) Similar(ctx context.Context, id string, k int) ([]paper.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.papers[id]; !ok {
		return nil, paper.ErrNotFound
	}
	results, err := s.index.FindSimilar(id, k)
	if err != nil {
		return nil, err
	}
	matches := make([]paper.Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, paper.Match{Paper: s.papers[r.PaperID], Similarity: r.Similarity})
	}
	return matches, nil
}

// Search returns papers whose title or abstract contains every query term,
// ordered by id.
func (s *MemoryStore) Search(ctx context.Context, query string, limit int) ([]paper.Paper, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return []paper.Paper{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var found []paper.Paper
	for _, p := range s.papers {
		text := strings.ToLower(p.Title + " " + p.Abstract)
		if containsAll(text, terms) {
			found = append(found, p)
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].ID < found[j].ID })
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}
	if found == nil {
		found = []paper.Paper{}
	}
	return found, nil
}

func containsAll(text string, terms []string) bool {
	for _, t := range terms {
		if !strings.Contains(text, t) {
			return false
		}
	}
	return true
}

// LinkExists reports whether userID has saved paperID.
func (s *MemoryStore) LinkExists(ctx context.Context, userID, paperID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.links[userID][paperID]
	return ok, nil
}

// InsertLink records a saved paper. Inserting an existing link is a no-op.
func (s *MemoryStore) InsertLink(ctx context.Context, userID, paperID, notes string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.papers[paperID]; !ok {
		return fmt.Errorf("saving %s: %w", paperID, paper.ErrNotFound)
	}
	user, ok := s.links[userID]
	if !ok {
		user = make(map[string]Link)
		s.links[userID] = user
	}
	if _, exists := user[paperID]; exists {
		return nil
	}
	s.seq++
	user[paperID] = Link{PaperID: paperID, Notes: notes, CreatedAt: time.Now().UTC(), Seq: s.seq}
	return nil
}

// DeleteLink removes a saved paper and reports whether it existed.
func (s *MemoryStore) DeleteLink(ctx context.Context, userID, paperID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.links[userID][paperID]; !ok {
		return false, nil
	}
	delete(s.links[userID], paperID)
	if len(s.links[userID]) == 0 {
		delete(s.links, userID)
	}
	return true, nil
}

// SavedPaperIDs returns the ids a user has saved, oldest first.
func (s *MemoryStore) SavedPaperIDs(ctx context.Context, userID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	links := s.sortedLinks(userID)
	ids := make([]string, len(links))
	for i, l := range links {
		ids[i] = l.PaperID
	}
	return ids, nil
}

// SavedPapers returns the papers a user has saved, oldest first.
func (s *MemoryStore) SavedPapers(ctx context.Context, userID string) ([]paper.Paper, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	links := s.sortedLinks(userID)
	papers := make([]paper.Paper, 0, len(links))
	for _, l := range links {
		if p, ok := s.papers[l.PaperID]; ok {
			papers = append(papers, p)
		}
	}
	return papers, nil
}

// sortedLinks returns a user's links in insertion order. Callers hold mu.
func (s *MemoryStore) sortedLinks(userID string) []Link {
	links := make([]Link, 0, len(s.links[userID]))
	for _, l := range s.links[userID] {
		links = append(links, l)
	}
	sort.Slice(links, func(i, j int) bool { return links[i].Seq < links[j].Seq })
	return links
}
