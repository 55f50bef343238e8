package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/matsen/paperrec/internal/paper"
)

// LinkExists reports whether userID has saved paperID.
func (d *DB) LinkExists(ctx context.Context, userID, paperID string) (bool, error) {
	var n int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM saved_papers WHERE user_id = ? AND paper_id = ?`, userID, paperID).Scan(&n)
	if err != nil {
		return false, ctxErr(ctx, fmt.Errorf("checking saved paper: %w", err))
	}
	return n > 0, nil
}

// InsertLink records a saved paper. Inserting an existing link is a no-op and
// keeps the original notes and save time. The paper must already be stored;
// the existence check and the insert are one statement.
func (d *DB) InsertLink(ctx context.Context, userID, paperID, notes string) error {
	res, err := d.db.ExecContext(ctx, `
		INSERT INTO saved_papers (user_id, paper_id, notes, created_at)
		SELECT ?, ?, ?, ?
		WHERE EXISTS (SELECT 1 FROM papers WHERE id = ?)
		ON CONFLICT(user_id, paper_id) DO NOTHING
	`, userID, paperID, nullableStringValue(notes), time.Now().UnixNano(), paperID)
	if err != nil {
		return ctxErr(ctx, fmt.Errorf("saving paper %s: %w", paperID, err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("saving paper %s: %w", paperID, err)
	}
	if n > 0 {
		return nil
	}

	// Nothing inserted: either the link already exists or the paper does not.
	exists, err := d.LinkExists(ctx, userID, paperID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("saving %s: %w", paperID, ErrNotFound)
	}
	return nil
}

// DeleteLink removes a saved paper and reports whether it existed.
func (d *DB) DeleteLink(ctx context.Context, userID, paperID string) (bool, error) {
	res, err := d.db.ExecContext(ctx,
		`DELETE FROM saved_papers WHERE user_id = ? AND paper_id = ?`, userID, paperID)
	if err != nil {
		return false, ctxErr(ctx, fmt.Errorf("removing saved paper: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SavedPaperIDs returns the ids a user has saved, oldest first.
func (d *DB) SavedPaperIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT paper_id FROM saved_papers
		WHERE user_id = ?
		ORDER BY created_at, rowid
	`, userID)
	if err != nil {
		return nil, ctxErr(ctx, fmt.Errorf("listing saved papers: %w", err))
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, ctxErr(ctx, rows.Err())
}

// SavedPapers returns the papers a user has saved, oldest first. Links whose
// paper row is missing are omitted.
func (d *DB) SavedPapers(ctx context.Context, userID string) ([]paper.Paper, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT p.id, p.title, p.abstract, p.authors_json, p.pub_year, p.external_ids_json
		FROM saved_papers s
		JOIN papers p ON p.id = s.paper_id
		WHERE s.user_id = ?
		ORDER BY s.created_at, s.rowid
	`, userID)
	if err != nil {
		return nil, ctxErr(ctx, fmt.Errorf("listing saved papers: %w", err))
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
	return papers, ctxErr(ctx, rows.Err())
}
