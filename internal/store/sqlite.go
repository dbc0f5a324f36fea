// ABOUTME: SQLite implementation of the argon store interfaces using modernc.org/sqlite
// ABOUTME: Opens the database, enables WAL mode, and creates the schema on first use

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the argon store interfaces using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Compile-time interface checks.
var (
	_ MessageStore   = (*SQLiteStore)(nil)
	_ AgentStore     = (*SQLiteStore)(nil)
	_ BlobStore      = (*SQLiteStore)(nil)
	_ TokenStore     = (*SQLiteStore)(nil)
	_ PrincipalStore = (*SQLiteStore)(nil)
	_ LogStore       = (*SQLiteStore)(nil)
)

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Serialize access through a single connection so concurrent writers
	// queue instead of failing with SQLITE_BUSY
	db.SetMaxOpenConns(1)

	// Wait for the write lock instead of erroring immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS principals (
			id         TEXT PRIMARY KEY,
			kind       TEXT NOT NULL,
			name       TEXT NOT NULL,
			created_at TEXT NOT NULL,

			CHECK (kind IN ('system', 'service', 'user', 'device'))
		);

		CREATE INDEX IF NOT EXISTS idx_principals_kind ON principals(kind);

		CREATE TABLE IF NOT EXISTS messages (
			id          TEXT PRIMARY KEY,
			from_id     TEXT NOT NULL,
			to_id       TEXT,
			type        TEXT NOT NULL,
			body        TEXT NOT NULL,
			link        TEXT,
			visible_to  TEXT NOT NULL,
			index_until TEXT NOT NULL,
			body_length INTEGER NOT NULL,
			created_at  TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_messages_from ON messages(from_id);
		CREATE INDEX IF NOT EXISTS idx_messages_type ON messages(type);
		CREATE INDEX IF NOT EXISTS idx_messages_index_until ON messages(index_until);
		CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_at);

		CREATE TABLE IF NOT EXISTS message_visibility (
			message_id   TEXT NOT NULL,
			principal_id TEXT NOT NULL,

			PRIMARY KEY (message_id, principal_id),
			FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_visibility_principal ON message_visibility(principal_id);

		CREATE TABLE IF NOT EXISTS agents (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			action     TEXT NOT NULL,
			execute_as TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_agents_name ON agents(name);
		CREATE INDEX IF NOT EXISTS idx_agents_execute_as ON agents(execute_as);

		CREATE TABLE IF NOT EXISTS blobs (
			id             TEXT PRIMARY KEY,
			content_type   TEXT NOT NULL,
			content_length INTEGER NOT NULL,
			link           TEXT,
			url            TEXT,
			created_at     TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS access_tokens (
			id           TEXT PRIMARY KEY,
			principal_id TEXT NOT NULL,
			token        TEXT NOT NULL,
			expires_at   TEXT NOT NULL,
			created_at   TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_tokens_principal ON access_tokens(principal_id);
		CREATE INDEX IF NOT EXISTS idx_tokens_expires ON access_tokens(expires_at);

		CREATE TABLE IF NOT EXISTS log_entries (
			id           TEXT PRIMARY KEY,
			principal_id TEXT NOT NULL,
			severity     TEXT NOT NULL,
			message      TEXT NOT NULL,
			created_at   TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_log_entries_severity ON log_entries(severity);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
