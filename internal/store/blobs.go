// ABOUTME: SQLite persistence for blob attachment metadata
// ABOUTME: Supports the existence and delete-by-id operations message removal cascades onto

package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/2389/argon/internal/platform"
	"github.com/google/uuid"
)

// InsertBlob persists blob metadata. Raw bytes live with the external blob
// provider; only the record needed for cascade bookkeeping is stored here.
func (s *SQLiteStore) InsertBlob(ctx context.Context, blob *Blob) error {
	if blob.ID == "" {
		blob.ID = uuid.New().String()
	}
	if blob.Link == "" {
		blob.Link = blob.ID
	}
	if blob.CreatedAt.IsZero() {
		blob.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blobs (id, content_type, content_length, link, url, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, blob.ID, blob.ContentType, blob.ContentLength, blob.Link, blob.URL, fmtTime(blob.CreatedAt))
	return err
}

// GetBlob returns blob metadata by id, or platform.ErrNotFound.
func (s *SQLiteStore) GetBlob(ctx context.Context, id string) (*Blob, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, content_type, content_length, link, url, created_at
		FROM blobs WHERE id = ?
	`, id)

	var blob Blob
	var link, url sql.NullString
	var createdAt string
	err := row.Scan(&blob.ID, &blob.ContentType, &blob.ContentLength, &link, &url, &createdAt)
	if err == sql.ErrNoRows {
		return nil, platform.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	blob.Link = link.String
	blob.URL = url.String
	blob.CreatedAt = parseTime(createdAt)
	return &blob, nil
}

// DeleteBlob removes blob metadata by id. Returns platform.ErrNotFound when
// no row matched.
func (s *SQLiteStore) DeleteBlob(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return platform.ErrNotFound
	}
	return nil
}
