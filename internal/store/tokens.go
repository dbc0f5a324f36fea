// ABOUTME: SQLite persistence for access tokens
// ABOUTME: Live-token lookup by principal plus expired-token cleanup

package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/2389/argon/internal/platform"
	"github.com/2389/argon/internal/principal"
	"github.com/google/uuid"
)

// InsertToken persists an access token.
func (s *SQLiteStore) InsertToken(ctx context.Context, token *AccessToken) error {
	if token.ID == "" {
		token.ID = uuid.New().String()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO access_tokens (id, principal_id, token, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, token.ID, string(token.PrincipalID), token.Token, fmtTime(token.ExpiresAt), fmtTime(token.CreatedAt))
	return err
}

// GetLiveToken returns the newest unexpired token for a principal, or
// platform.ErrNotFound.
func (s *SQLiteStore) GetLiveToken(ctx context.Context, id principal.ID, now time.Time) (*AccessToken, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, principal_id, token, expires_at, created_at FROM access_tokens
		WHERE principal_id = ? AND expires_at > ?
		ORDER BY expires_at DESC LIMIT 1
	`, string(id), fmtTime(now))

	var token AccessToken
	var principalID, expiresAt, createdAt string
	err := row.Scan(&token.ID, &principalID, &token.Token, &expiresAt, &createdAt)
	if err == sql.ErrNoRows {
		return nil, platform.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	token.PrincipalID = principal.ID(principalID)
	token.ExpiresAt = parseTime(expiresAt)
	token.CreatedAt = parseTime(createdAt)
	return &token, nil
}

// DeleteExpiredTokens removes tokens whose expiry has passed and returns the
// number deleted.
func (s *SQLiteStore) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM access_tokens WHERE expires_at <= ?`, fmtTime(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
