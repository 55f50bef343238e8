package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/matsen/paperrec/internal/embedding"
	"github.com/matsen/paperrec/internal/logging"
	"github.com/matsen/paperrec/internal/paper"
	"github.com/matsen/paperrec/internal/semantic"
)

// UpsertPaper inserts or updates a paper. Re-upserting the same paper is a
// no-op apart from refreshed metadata. An upsert without an embedding keeps
// the stored vector.
func (d *DB) UpsertPaper(ctx context.Context, p paper.Paper) error {
	if p.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidPaper)
	}
	if p.HasEmbedding() && len(p.Embedding) != d.dimensions {
		return fmt.Errorf("%w: paper %s has %d, want %d", ErrDimensionMismatch, p.ID, len(p.Embedding), d.dimensions)
	}

	authorsJSON, err := json.Marshal(authorsOrEmpty(p.Authors))
	if err != nil {
		return fmt.Errorf("marshaling authors for %s: %w", p.ID, err)
	}
	var externalJSON []byte
	if len(p.ExternalIDs) > 0 {
		externalJSON, err = json.Marshal(p.ExternalIDs)
		if err != nil {
			return fmt.Errorf("marshaling external ids for %s: %w", p.ID, err)
		}
	}

	var blob, hash, indexedAt any
	if p.HasEmbedding() {
		blob = embedding.EncodeVector(p.Embedding)
		hash = paper.ContentHash(paper.EmbeddingText(p))
		indexedAt = time.Now().Unix()
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return ctxErr(ctx, fmt.Errorf("beginning transaction: %w", err))
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO papers (
			id, title, abstract, authors_json, pub_year, external_ids_json,
			embedding, content_hash, indexed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			abstract = excluded.abstract,
			authors_json = excluded.authors_json,
			pub_year = excluded.pub_year,
			external_ids_json = excluded.external_ids_json,
			embedding = COALESCE(excluded.embedding, papers.embedding),
			content_hash = COALESCE(excluded.content_hash, papers.content_hash),
			indexed_at = COALESCE(excluded.indexed_at, papers.indexed_at)
	`, p.ID, p.Title, nullableStringValue(p.Abstract), string(authorsJSON), p.Year,
		nullableStringValue(string(externalJSON)), blob, hash, indexedAt)
	if err != nil {
		return ctxErr(ctx, fmt.Errorf("upserting paper %s: %w", p.ID, err))
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM papers_fts WHERE id = ?`, p.ID); err != nil {
		return ctxErr(ctx, fmt.Errorf("clearing fts for %s: %w", p.ID, err))
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO papers_fts (id, title, abstract, authors_text)
		VALUES (?, ?, ?, ?)
	`, p.ID, p.Title, p.Abstract, strings.Join(p.AuthorNames(), ", "))
	if err != nil {
		return ctxErr(ctx, fmt.Errorf("inserting fts for %s: %w", p.ID, err))
	}

	if err := tx.Commit(); err != nil {
		return ctxErr(ctx, fmt.Errorf("committing paper %s: %w", p.ID, err))
	}
	return nil
}

func authorsOrEmpty(authors []paper.Author) []paper.Author {
	if authors == nil {
		return []paper.Author{}
	}
	return authors
}

// GetPaper retrieves a paper with its embedding, or ErrNotFound.
func (d *DB) GetPaper(ctx context.Context, id string) (paper.Paper, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+selectPaperFields+`, embedding FROM papers WHERE id = ?`, id)
	p, err := scanPaperWithEmbedding(row)
	if errors.Is(err, sql.ErrNoRows) {
		return paper.Paper{}, ErrNotFound
	}
	if err != nil {
		return paper.Paper{}, ctxErr(ctx, fmt.Errorf("reading paper %s: %w", id, err))
	}
	return p, nil
}

// ListPapers returns every paper ordered by id, with embeddings.
func (d *DB) ListPapers(ctx context.Context) ([]paper.Paper, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+selectPaperFields+`, embedding FROM papers ORDER BY id`)
	if err != nil {
		return nil, ctxErr(ctx, fmt.Errorf("listing papers: %w", err))
	}
	defer rows.Close()

	var papers []paper.Paper
	for rows.Next() {
		p, err := scanPaperWithEmbedding(rows)
		if err != nil {
			return nil, err
		}
		papers = append(papers, p)
	}
	return papers, rows.Err()
}

// Count returns the total number of papers.
func (d *DB) Count(ctx context.Context) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM papers").Scan(&count)
	return count, ctxErr(ctx, err)
}

// ContentHash returns the hash of the text the stored embedding was computed
// from, or "" when the paper is unknown or has no embedding.
func (d *DB) ContentHash(ctx context.Context, id string) (string, error) {
	var hash sql.NullString
	err := d.db.QueryRowContext(ctx,
		`SELECT content_hash FROM papers WHERE id = ? AND embedding IS NOT NULL`, id).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", ctxErr(ctx, fmt.Errorf("reading content hash for %s: %w", id, err))
	}
	return hash.String, nil
}

// EmbeddingsByIDs returns the embeddings of the given papers. Papers that are
// unknown, have no embedding, or hold an unreadable vector are absent.
func (d *DB) EmbeddingsByIDs(ctx context.Context, ids []string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT id, embedding FROM papers WHERE embedding IS NOT NULL AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, ctxErr(ctx, fmt.Errorf("reading embeddings: %w", err))
	}
	defer rows.Close()

	for rows.Next() {
		id, vec, ok, err := d.scanVector(ctx, rows)
		if err != nil {
			return nil, err
		}
		if ok {
			out[id] = vec
		}
	}
	return out, ctxErr(ctx, rows.Err())
}

// scanVector reads an (id, embedding) row. Blobs that do not decode to the
// configured width are logged and reported as absent.
func (d *DB) scanVector(ctx context.Context, s scanner) (string, []float32, bool, error) {
	var id string
	var blob []byte
	if err := s.Scan(&id, &blob); err != nil {
		return "", nil, false, fmt.Errorf("scanning embedding: %w", err)
	}
	vec, err := embedding.DecodeVector(blob)
	if err != nil || len(vec) != d.dimensions {
		logging.Ctx(ctx).Warn().Str("paper_id", id).Int("bytes", len(blob)).Msg("skipping unreadable embedding")
		return id, nil, false, nil
	}
	return id, vec, true, nil
}

// SearchNearest returns up to k papers ranked by cosine similarity to query,
// comparing against every stored embedding.
func (d *DB) SearchNearest(ctx context.Context, query []float32, k int) ([]paper.Match, error) {
	if len(query) != d.dimensions {
		return nil, fmt.Errorf("%w: query has %d, want %d", ErrDimensionMismatch, len(query), d.dimensions)
	}
	return d.nearest(ctx, query, k, "")
}

// Similar returns up to k papers nearest to a stored paper, excluding itself.
func (d *DB) Similar(ctx context.Context, id string, k int) ([]paper.Match, error) {
	p, err := d.GetPaper(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.HasEmbedding() {
		return nil, fmt.Errorf("%s: %w", id, semantic.ErrPaperNotIndexed)
	}
	return d.nearest(ctx, p.Embedding, k, id)
}

func (d *DB) nearest(ctx context.Context, query []float32, k int, exclude string) ([]paper.Match, error) {
	if k <= 0 {
		return []paper.Match{}, nil
	}

	rows, err := d.db.QueryContext(ctx, `SELECT id, embedding FROM papers WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, ctxErr(ctx, fmt.Errorf("scanning embeddings: %w", err))
	}

	top := semantic.NewTopK(k)
	for rows.Next() {
		id, vec, ok, err := d.scanVector(ctx, rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		if ok && id != exclude {
			top.Offer(id, query, vec)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, ctxErr(ctx, err)
	}
	rows.Close()

	results := top.Results()
	matches := make([]paper.Match, 0, len(results))
	for _, r := range results {
		p, err := d.GetPaper(ctx, r.PaperID)
		if err != nil {
			return nil, err
		}
		p.Embedding = nil
		matches = append(matches, paper.Match{Paper: p, Similarity: r.Similarity})
	}
	return matches, nil
}

// Search performs a full-text search over titles, abstracts and authors.
func (d *DB) Search(ctx context.Context, query string, limit int) ([]paper.Paper, error) {
	ftsQuery := prepareFTSQuery(query)
	if ftsQuery == "" {
		return []paper.Paper{}, nil
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT `+selectPaperFields+`
		FROM papers
		WHERE id IN (SELECT id FROM papers_fts WHERE papers_fts MATCH ?)
		ORDER BY id
		LIMIT ?`, ftsQuery, limit)
	if err != nil {
		return nil, ctxErr(ctx, fmt.Errorf("searching: %w", err))
	}
	defer rows.Close()

	papers := []paper.Paper{}
	for rows.Next() {
		p, err := scanPaper(rows)
		if err != nil {
			return nil, err
		}
		papers = append(papers, p)
	}
	return papers, rows.Err()
}

func scanPaper(s scanner) (paper.Paper, error) {
	var p paper.Paper
	var abstract, externalJSON sql.NullString
	var authorsJSON string
	var year sql.NullInt64

	if err := s.Scan(&p.ID, &p.Title, &abstract, &authorsJSON, &year, &externalJSON); err != nil {
		return paper.Paper{}, err
	}
	return finishPaper(p, abstract, authorsJSON, year, externalJSON)
}

func scanPaperWithEmbedding(s scanner) (paper.Paper, error) {
	var p paper.Paper
	var abstract, externalJSON sql.NullString
	var authorsJSON string
	var year sql.NullInt64
	var blob []byte

	if err := s.Scan(&p.ID, &p.Title, &abstract, &authorsJSON, &year, &externalJSON, &blob); err != nil {
		return paper.Paper{}, err
	}
	p, err := finishPaper(p, abstract, authorsJSON, year, externalJSON)
	if err != nil {
		return paper.Paper{}, err
	}
	if len(blob) > 0 {
		vec, err := embedding.DecodeVector(blob)
		if err != nil {
			return paper.Paper{}, fmt.Errorf("decoding embedding for %s: %w", p.ID, err)
		}
		p.Embedding = vec
	}
	return p, nil
}

func finishPaper(p paper.Paper, abstract sql.NullString, authorsJSON string, year sql.NullInt64, externalJSON sql.NullString) (paper.Paper, error) {
	p.Abstract = abstract.String
	if year.Valid {
		p.Year = int(year.Int64)
	}
	if err := json.Unmarshal([]byte(authorsJSON), &p.Authors); err != nil {
		return paper.Paper{}, fmt.Errorf("parsing authors JSON for %s: %w", p.ID, err)
	}
	if externalJSON.Valid && externalJSON.String != "" {
		if err := json.Unmarshal([]byte(externalJSON.String), &p.ExternalIDs); err != nil {
			return paper.Paper{}, fmt.Errorf("parsing external ids JSON for %s: %w", p.ID, err)
		}
	}
	return p, nil
}
