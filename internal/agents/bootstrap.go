// ABOUTME: Bootstrap synchronizer reconciling built-in agent scripts against the registry
// ABOUTME: Runs at startup: create-if-absent, update-if-present, always refreshing to the shipped action

package agents

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/2389/argon/internal/principal"
	"github.com/2389/argon/internal/store"
)

//go:embed builtin/*.js
var builtinFS embed.FS

// Synchronizer reconciles the shipped built-in agent scripts against the
// agent registry. Built-in agents are owned by the system principal and keyed
// by file name; their action is refreshed to the shipped version on every
// startup, so local edits to built-ins do not survive a restart.
type Synchronizer struct {
	registry *Registry
	system   *principal.Principal
	source   fs.FS
	logger   *slog.Logger
}

// NewSynchronizer creates a synchronizer over the embedded built-in scripts.
func NewSynchronizer(registry *Registry, system *principal.Principal) *Synchronizer {
	return &Synchronizer{
		registry: registry,
		system:   system,
		source:   builtinFS,
		logger:   slog.Default().With("component", "bootstrap"),
	}
}

// Initialize enumerates the built-in scripts and reconciles each one. Any
// per-file failure aborts the pass with an aggregated error; files already
// reconciled are not rolled back.
func (s *Synchronizer) Initialize(ctx context.Context) error {
	entries, err := fs.ReadDir(s.source, "builtin")
	if err != nil {
		return fmt.Errorf("enumerating built-in agents: %w", err)
	}

	s.logger.Info("agents initializing", "builtin_count", len(entries))

	var errs []error
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := s.syncOne(ctx, entry.Name()); err != nil {
			errs = append(errs, fmt.Errorf("built-in agent %s: %w", entry.Name(), err))
		}
	}

	return errors.Join(errs...)
}

// syncOne reconciles one built-in script: update the action of an existing
// agent with matching name and system ownership, or create it.
func (s *Synchronizer) syncOne(ctx context.Context, name string) error {
	action, err := fs.ReadFile(s.source, "builtin/"+name)
	if err != nil {
		return fmt.Errorf("reading script: %w", err)
	}

	existing, err := s.registry.Find(ctx, s.system, store.AgentFilter{
		Name:      name,
		ExecuteAs: s.system.ID,
	}, store.FindOptions{})
	if err != nil {
		return fmt.Errorf("looking up existing agent: %w", err)
	}

	if len(existing) > 0 {
		s.logger.Info("found existing agent for built-in, updating with latest action", "name", name)
		text := string(action)
		_, err := s.registry.Update(ctx, s.system, existing[0].ID, store.AgentUpdate{Action: &text})
		return err
	}

	s.logger.Info("no existing agent for built-in, creating", "name", name)
	_, err = s.registry.Create(ctx, s.system, &store.Agent{
		Name:      name,
		Action:    string(action),
		ExecuteAs: s.system.ID,
	})
	return err
}
