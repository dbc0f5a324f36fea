// ABOUTME: SQLite persistence for derived log entries
// ABOUTME: Written by the message service when a log-typed message is created

package store

import (
	"context"
	"time"

	"github.com/2389/argon/internal/principal"
	"github.com/google/uuid"
)

// InsertLogEntry persists a log entry.
func (s *SQLiteStore) InsertLogEntry(ctx context.Context, entry *LogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO log_entries (id, principal_id, severity, message, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, entry.ID, string(entry.PrincipalID), entry.Severity, entry.Message, fmtTime(entry.CreatedAt))
	return err
}

// ListLogEntries returns log entries, newest first. If severity is non-empty,
// results are scoped to that severity.
func (s *SQLiteStore) ListLogEntries(ctx context.Context, severity string, limit int) ([]*LogEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, principal_id, severity, message, created_at FROM log_entries WHERE 1=1`
	var args []any

	if severity != "" {
		query += ` AND severity = ?`
		args = append(args, severity)
	}

	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []*LogEntry
	for rows.Next() {
		var e LogEntry
		var principalID, createdAt string
		if err := rows.Scan(&e.ID, &principalID, &e.Severity, &e.Message, &createdAt); err != nil {
			return nil, err
		}
		e.PrincipalID = principal.ID(principalID)
		e.CreatedAt = parseTime(createdAt)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
