// Package storage persists papers, embeddings and saved-paper links in SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/matsen/paperrec/internal/paper"
)

// Errors returned by the store.
var (
	ErrNotFound          = paper.ErrNotFound
	ErrInvalidPaper      = errors.New("invalid paper")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// DB wraps a SQLite database connection.
type DB struct {
	db         *sql.DB
	dimensions int
}

// selectPaperFields contains the standard field list for SELECT queries.
const selectPaperFields = `id, title, abstract, authors_json, pub_year, external_ids_json`

// OpenDB opens or creates a SQLite database at the given path. Embeddings
// written to it must have the given width.
func OpenDB(path string, dimensions int) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &DB{db: db, dimensions: dimensions}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// Dimensions returns the accepted embedding width.
func (d *DB) Dimensions() int {
	return d.dimensions
}

// createSchema creates the database schema if it doesn't exist.
func createSchema(db *sql.DB) error {
	schema := `
		-- Papers with their unit-normalized embeddings
		CREATE TABLE IF NOT EXISTS papers (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			abstract TEXT,
			authors_json TEXT NOT NULL,
			pub_year INTEGER,
			external_ids_json TEXT,
			embedding BLOB,
			content_hash TEXT,
			indexed_at INTEGER
		);

		-- Full-text search virtual table (standalone, not external content)
		CREATE VIRTUAL TABLE IF NOT EXISTS papers_fts USING fts5(
			id,
			title,
			abstract,
			authors_text
		);

		-- Papers saved by users
		CREATE TABLE IF NOT EXISTS saved_papers (
			user_id TEXT NOT NULL,
			paper_id TEXT NOT NULL,
			notes TEXT,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (user_id, paper_id)
		);

		CREATE INDEX IF NOT EXISTS idx_saved_papers_user ON saved_papers(user_id, created_at);
	`

	_, err := db.Exec(schema)
	return err
}

// scanner interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func nullableStringValue(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// prepareFTSQuery escapes special characters for FTS5 queries.
func prepareFTSQuery(query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return query
	}

	// FTS5 uses double quotes for phrase matching
	if strings.ContainsAny(query, "\"*+-:(){}[]^~") {
		query = strings.ReplaceAll(query, "\"", "\"\"")
		return "\"" + query + "\""
	}

	return query
}

// ctxErr reports a context failure in preference to the driver's error.
func ctxErr(ctx context.Context, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	return err
}
