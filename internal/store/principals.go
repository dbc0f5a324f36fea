// ABOUTME: SQLite persistence for principals, implementing the Directory collaborator
// ABOUTME: Also ensures the well-known system and service principals exist at startup

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/2389/argon/internal/platform"
	"github.com/2389/argon/internal/principal"
	"github.com/google/uuid"
)

// InsertPrincipal persists a principal.
func (s *SQLiteStore) InsertPrincipal(ctx context.Context, p *principal.Principal) error {
	if p.ID == "" {
		p.ID = principal.ID(uuid.New().String())
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if !p.Kind.Valid() {
		return fmt.Errorf("%w: principal kind %q", platform.ErrValidation, p.Kind)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO principals (id, kind, name, created_at)
		VALUES (?, ?, ?, ?)
	`, string(p.ID), string(p.Kind), p.Name, fmtTime(p.CreatedAt))
	return err
}

// FindPrincipalByID returns the principal with the given id, or
// platform.ErrNotFound. Implements principal.Directory.
func (s *SQLiteStore) FindPrincipalByID(ctx context.Context, id principal.ID) (*principal.Principal, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, name, created_at FROM principals WHERE id = ?
	`, string(id))

	p, err := scanPrincipal(row)
	if err == sql.ErrNoRows {
		return nil, platform.ErrNotFound
	}
	return p, err
}

// FindPrincipalByKind returns the first principal of the given kind, or
// platform.ErrNotFound. Used to resolve the singleton system and service
// principals at startup.
func (s *SQLiteStore) FindPrincipalByKind(ctx context.Context, kind principal.Kind) (*principal.Principal, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, name, created_at FROM principals
		WHERE kind = ? ORDER BY created_at ASC LIMIT 1
	`, string(kind))

	p, err := scanPrincipal(row)
	if err == sql.ErrNoRows {
		return nil, platform.ErrNotFound
	}
	return p, err
}

// EnsureWellKnown resolves the singleton system and service principals,
// creating them on first run. Idempotent across restarts.
func (s *SQLiteStore) EnsureWellKnown(ctx context.Context) (system, service *principal.Principal, err error) {
	system, err = s.ensureKind(ctx, principal.KindSystem, "system")
	if err != nil {
		return nil, nil, err
	}
	service, err = s.ensureKind(ctx, principal.KindService, "service")
	if err != nil {
		return nil, nil, err
	}
	return system, service, nil
}

func (s *SQLiteStore) ensureKind(ctx context.Context, kind principal.Kind, name string) (*principal.Principal, error) {
	p, err := s.FindPrincipalByKind(ctx, kind)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, platform.ErrNotFound) {
		return nil, err
	}

	p = &principal.Principal{
		Kind: kind,
		Name: name,
	}
	if err := s.InsertPrincipal(ctx, p); err != nil {
		return nil, fmt.Errorf("creating %s principal: %w", kind, err)
	}
	s.logger.Info("created well-known principal", "kind", kind, "id", p.ID)
	return p, nil
}

func scanPrincipal(row scanner) (*principal.Principal, error) {
	var p principal.Principal
	var id, kind, createdAt string

	err := row.Scan(&id, &kind, &p.Name, &createdAt)
	if err != nil {
		return nil, err
	}

	p.ID = principal.ID(id)
	p.Kind = principal.Kind(kind)
	p.CreatedAt = parseTime(createdAt)

	return &p, nil
}
