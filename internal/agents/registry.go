// ABOUTME: Agent Registry service: CRUD and authorization over persisted agent definitions
// ABOUTME: Creation is system-only; reads and updates allow system or the owning execute_as principal

package agents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/2389/argon/internal/platform"
	"github.com/2389/argon/internal/principal"
	"github.com/2389/argon/internal/store"
)

// Registry manages agent definitions.
type Registry struct {
	store     store.AgentStore
	directory principal.Directory
	logger    *slog.Logger
}

// NewRegistry creates an agent registry backed by the given store.
func NewRegistry(s store.AgentStore, directory principal.Directory) *Registry {
	return &Registry{
		store:     s,
		directory: directory,
		logger:    slog.Default().With("component", "agents"),
	}
}

// Create persists a new agent. Only the system principal may create agents.
// The agent's execute_as must resolve to an existing principal. Returns the
// agent wrapped in a slice, matching the store create contract.
func (r *Registry) Create(ctx context.Context, acting *principal.Principal, agent *store.Agent) ([]*store.Agent, error) {
	if !acting.IsSystem() {
		return nil, fmt.Errorf("%w: agent creation requires the system principal", platform.ErrForbidden)
	}

	if agent.Name == "" {
		return nil, fmt.Errorf("%w: name is required", platform.ErrValidation)
	}
	if agent.Action == "" {
		return nil, fmt.Errorf("%w: action is required", platform.ErrValidation)
	}

	if err := r.resolveExecuteAs(ctx, agent.ExecuteAs); err != nil {
		return nil, err
	}

	if err := r.store.InsertAgent(ctx, agent); err != nil {
		return nil, fmt.Errorf("persisting agent: %w", err)
	}

	r.logger.Info("agent created", "id", agent.ID, "name", agent.Name, "execute_as", agent.ExecuteAs)
	return []*store.Agent{agent}, nil
}

// Find returns agents matching the filter with no additional scoping. This is
// an explicit trust boundary: callers with non-privileged principals must
// pre-scope the filter by execute_as themselves.
func (r *Registry) Find(ctx context.Context, acting *principal.Principal, filter store.AgentFilter, opts store.FindOptions) ([]*store.Agent, error) {
	return r.store.FindAgents(ctx, filter, opts)
}

// FindByID returns a single agent. Fails with platform.ErrNotFound when
// absent and platform.ErrForbidden unless the caller is the system principal
// or the agent's execute_as principal.
func (r *Registry) FindByID(ctx context.Context, acting *principal.Principal, id string) (*store.Agent, error) {
	agent, err := r.store.GetAgent(ctx, id)
	if err != nil {
		return nil, err
	}

	if !acting.IsSystem() && acting.ID != agent.ExecuteAs {
		return nil, fmt.Errorf("%w: principal %s cannot read agent %s", platform.ErrForbidden, acting.ID, id)
	}

	return agent, nil
}

// Update applies a partial-field merge to an agent under the same
// authorization as FindByID. A changed execute_as must resolve to an existing
// principal. Returns the updated agent.
func (r *Registry) Update(ctx context.Context, acting *principal.Principal, id string, update store.AgentUpdate) (*store.Agent, error) {
	if _, err := r.FindByID(ctx, acting, id); err != nil {
		return nil, err
	}

	if update.ExecuteAs != nil {
		if err := r.resolveExecuteAs(ctx, *update.ExecuteAs); err != nil {
			return nil, err
		}
	}

	if err := r.store.UpdateAgent(ctx, id, update); err != nil {
		return nil, fmt.Errorf("updating agent %s: %w", id, err)
	}

	return r.store.GetAgent(ctx, id)
}

func (r *Registry) resolveExecuteAs(ctx context.Context, id principal.ID) error {
	if id == "" {
		return fmt.Errorf("%w: execute_as is required", platform.ErrValidation)
	}
	if _, err := r.directory.FindPrincipalByID(ctx, id); err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			return fmt.Errorf("%w: execute_as principal %s does not exist", platform.ErrInvalidReference, id)
		}
		return fmt.Errorf("resolving execute_as principal: %w", err)
	}
	return nil
}
