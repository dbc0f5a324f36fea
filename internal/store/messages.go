// ABOUTME: SQLite persistence for messages and their visibility sets
// ABOUTME: Handles insert, scoped find with id normalization, and bulk delete with the forever sentinel

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/2389/argon/internal/platform"
	"github.com/2389/argon/internal/principal"
	"github.com/google/uuid"
)

// fmtTime serializes timestamps for storage. All stored values are UTC
// RFC3339, so lexicographic comparison in SQL matches chronological order.
func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

// InsertMessage persists a message and its visibility rows in one transaction.
func (s *SQLiteStore) InsertMessage(ctx context.Context, msg *Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	bodyJSON, err := json.Marshal(msg.Body)
	if err != nil {
		return fmt.Errorf("marshaling body: %w", err)
	}

	visibleJSON, err := json.Marshal(msg.VisibleTo)
	if err != nil {
		return fmt.Errorf("marshaling visible_to: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var toID *string
	if msg.To != "" {
		v := string(msg.To)
		toID = &v
	}
	var link *string
	if msg.Link != "" {
		link = &msg.Link
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, from_id, to_id, type, body, link, visible_to, index_until, body_length, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, string(msg.From), toID, msg.Type, string(bodyJSON), link,
		string(visibleJSON), fmtTime(msg.IndexUntil), msg.BodyLength, fmtTime(msg.CreatedAt))
	if err != nil {
		return err
	}

	for _, pid := range msg.VisibleTo {
		_, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO message_visibility (message_id, principal_id) VALUES (?, ?)
		`, msg.ID, string(pid))
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetMessage returns a single message by id, or platform.ErrNotFound.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, from_id, to_id, type, body, link, visible_to, index_until, body_length, created_at
		FROM messages WHERE id = ?
	`, id)

	msg, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, platform.ErrNotFound
	}
	return msg, err
}

// FindMessages returns messages matching the filter. From and To filter
// values are normalized so a plain string id and a principal.ID select the
// same rows.
func (s *SQLiteStore) FindMessages(ctx context.Context, filter MessageFilter, opts FindOptions) ([]*Message, error) {
	query := `
		SELECT id, from_id, to_id, type, body, link, visible_to, index_until, body_length, created_at
		FROM messages WHERE 1=1`
	var args []any

	if len(filter.IDs) > 0 {
		query += ` AND id IN (`
		for i, id := range filter.IDs {
			if i > 0 {
				query += `, `
			}
			query += `?`
			args = append(args, id)
		}
		query += `)`
	}
	if from, ok := principal.NormalizeID(filter.From); ok {
		query += ` AND from_id = ?`
		args = append(args, string(from))
	}
	if to, ok := principal.NormalizeID(filter.To); ok {
		query += ` AND to_id = ?`
		args = append(args, string(to))
	}
	if filter.Type != "" {
		query += ` AND type = ?`
		args = append(args, filter.Type)
	}
	if filter.VisibleTo != "" {
		query += ` AND EXISTS (
			SELECT 1 FROM message_visibility v
			WHERE v.message_id = messages.id AND v.principal_id = ?)`
		args = append(args, string(filter.VisibleTo))
	}

	if opts.Ascending {
		query += ` ORDER BY created_at ASC, id ASC`
	} else {
		query += ` ORDER BY created_at DESC, id DESC`
	}
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	} else if opts.Skip > 0 {
		query += ` LIMIT -1`
	}
	if opts.Skip > 0 {
		query += ` OFFSET ?`
		args = append(args, opts.Skip)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var messages []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// DeleteMessage removes a single message by id. Returns platform.ErrNotFound
// when no row matched.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
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

// MatchMessages returns the messages a RemoveQuery would delete. The message
// service uses this to cascade blob deletion after the bulk delete.
func (s *SQLiteStore) MatchMessages(ctx context.Context, query RemoveQuery) ([]*Message, error) {
	where, args := removeWhere(query)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, from_id, to_id, type, body, link, visible_to, index_until, body_length, created_at
		FROM messages WHERE 1=1`+where, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var messages []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// DeleteMessages removes all messages matching the query and returns the
// number deleted.
func (s *SQLiteStore) DeleteMessages(ctx context.Context, query RemoveQuery) (int64, error) {
	where, args := removeWhere(query)

	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE 1=1`+where, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// removeWhere builds the WHERE clause shared by MatchMessages and
// DeleteMessages. A range predicate on index_until always excludes the
// IndexForever sentinel; an exact-match predicate does not.
func removeWhere(query RemoveQuery) (string, []any) {
	var where string
	var args []any

	if query.Type != "" {
		where += ` AND type = ?`
		args = append(args, query.Type)
	}
	if from, ok := principal.NormalizeID(query.From); ok {
		where += ` AND from_id = ?`
		args = append(args, string(from))
	}
	if query.IndexUntil != nil {
		where += ` AND index_until = ?`
		args = append(args, fmtTime(*query.IndexUntil))
	}
	if query.IndexUntilBefore != nil {
		where += ` AND index_until < ? AND index_until != ?`
		args = append(args, fmtTime(*query.IndexUntilBefore), fmtTime(IndexForever))
	}

	return where, args
}

// scanner abstracts sql.Row and sql.Rows for scanMessage.
type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (*Message, error) {
	var msg Message
	var fromID string
	var toID, link sql.NullString
	var bodyJSON, visibleJSON, indexUntil, createdAt string

	err := row.Scan(&msg.ID, &fromID, &toID, &msg.Type, &bodyJSON, &link,
		&visibleJSON, &indexUntil, &msg.BodyLength, &createdAt)
	if err != nil {
		return nil, err
	}

	msg.From = principal.ID(fromID)
	if toID.Valid {
		msg.To = principal.ID(toID.String)
	}
	if link.Valid {
		msg.Link = link.String
	}
	if err := json.Unmarshal([]byte(bodyJSON), &msg.Body); err != nil {
		return nil, fmt.Errorf("unmarshaling body for message %s: %w", msg.ID, err)
	}
	if err := json.Unmarshal([]byte(visibleJSON), &msg.VisibleTo); err != nil {
		return nil, fmt.Errorf("unmarshaling visible_to for message %s: %w", msg.ID, err)
	}
	msg.IndexUntil = parseTime(indexUntil)
	msg.CreatedAt = parseTime(createdAt)

	return &msg, nil
}
