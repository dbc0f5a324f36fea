// ABOUTME: Sandbox execution engine: loads persisted agents and runs them concurrently
// ABOUTME: Per run-cycle state machine with per-agent fault isolation and impersonated sessions

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dop251/goja"
	"golang.org/x/sync/errgroup"

	"github.com/2389/argon/internal/agents"
	"github.com/2389/argon/internal/platform"
	"github.com/2389/argon/internal/principal"
	"github.com/2389/argon/internal/session"
	"github.com/2389/argon/internal/store"
)

// State is the engine's position in its run cycle. The engine either
// completes a cycle or surfaces an error to its caller and returns to
// StateIdle; there is no terminal failure state.
type State int

const (
	StateIdle State = iota
	StateSessionBuilding
	StateAgentsLoaded
	StatePreparing
	StateExecuting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSessionBuilding:
		return "session_building"
	case StateAgentsLoaded:
		return "agents_loaded"
	case StatePreparing:
		return "preparing"
	case StateExecuting:
		return "executing"
	default:
		return "unknown"
	}
}

// Engine compiles and runs every persisted agent inside its own sandbox.
// All agents execute within this single process; agents are not partitioned
// across instances, so horizontal scaling is not supported.
type Engine struct {
	registry *agents.Registry
	opener   *session.Opener
	system   *principal.Principal
	logger   *slog.Logger

	mu        sync.Mutex
	state     State
	sandboxes []*Sandbox
}

// New creates an engine. system may be nil when no system principal is
// configured; Start then fails with platform.ErrSystemPrincipalUnavailable.
func New(registry *agents.Registry, opener *session.Opener, system *principal.Principal) *Engine {
	return &Engine{
		registry: registry,
		opener:   opener,
		system:   system,
		logger:   slog.Default().With("component", "engine"),
	}
}

// State returns the engine's current run-cycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// Start runs one engine cycle: build the system session, load all agents,
// prepare each one (compile + impersonate), and execute every prepared agent
// concurrently. Per-agent preparation and execution failures are logged and
// skipped, never fatal; Start returns once every agent has been attempted.
// Scheduled work registered by scripts keeps running until Stop.
func (e *Engine) Start(ctx context.Context) error {
	e.setState(StateSessionBuilding)
	defer e.setState(StateIdle)

	if e.system == nil {
		return platform.ErrSystemPrincipalUnavailable
	}

	systemSession, err := e.opener.Open(ctx, e.system)
	if err != nil {
		return fmt.Errorf("building system session: %w", err)
	}

	loaded, err := e.registry.Find(ctx, e.system, store.AgentFilter{}, store.FindOptions{})
	if err != nil {
		return fmt.Errorf("loading agents: %w", err)
	}
	e.setState(StateAgentsLoaded)

	e.setState(StatePreparing)
	prepared := e.prepare(ctx, systemSession, loaded)

	e.setState(StateExecuting)
	e.execute(ctx, prepared)

	e.mu.Lock()
	e.sandboxes = append(e.sandboxes, prepared...)
	e.mu.Unlock()

	e.logger.Info("engine cycle complete", "loaded", len(loaded), "running", len(prepared))
	return nil
}

// prepare compiles each agent's action and derives its impersonated session,
// fanning out across the agent set. Agents whose compilation or impersonation
// fails are dropped and logged; the cycle continues with the rest.
func (e *Engine) prepare(ctx context.Context, systemSession *session.Session, loaded []*store.Agent) []*Sandbox {
	results := make([]*Sandbox, len(loaded))

	g, ctx := errgroup.WithContext(ctx)
	for i, agent := range loaded {
		g.Go(func() error {
			program, err := goja.Compile(agent.Name, agent.Action, true)
			if err != nil {
				e.logger.Error("agent action failed to compile, skipping agent",
					"agent", agent.Name, "id", agent.ID, "error", err)
				return nil
			}

			impersonated, err := systemSession.Impersonate(ctx, agent.ExecuteAs)
			if err != nil || impersonated == nil {
				e.logger.Error("failed to impersonate agent session, skipping agent",
					"agent", agent.Name, "id", agent.ID, "error", err)
				return nil
			}

			results[i] = newSandbox(agent, program, impersonated)
			return nil
		})
	}
	_ = g.Wait() // workers only log, never fail the group

	prepared := results[:0]
	for _, sb := range results {
		if sb != nil {
			prepared = append(prepared, sb)
		}
	}
	return prepared
}

// execute runs every prepared sandbox concurrently and returns once each
// script's initial evaluation has been attempted. A script exception is
// caught and logged with the agent's name and does not affect any other
// agent.
func (e *Engine) execute(ctx context.Context, prepared []*Sandbox) {
	var wg sync.WaitGroup
	for _, sb := range prepared {
		wg.Add(1)
		go func(sb *Sandbox) {
			defer wg.Done()
			if err := sb.Start(ctx); err != nil {
				e.logger.Error("agent quit after throwing exception",
					"agent", sb.Agent.Name, "error", err)
				return
			}
			e.logger.Info("agent started", "agent", sb.Agent.Name)
		}(sb)
	}
	wg.Wait()
}

// Running returns the number of live sandboxes.
func (e *Engine) Running() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sandboxes)
}

// Stop tears down every sandbox: cron entries and timers are stopped and
// event loops closed. Individual agents are not stoppable; a full engine stop
// is the unit of cancellation.
func (e *Engine) Stop() {
	e.mu.Lock()
	sandboxes := e.sandboxes
	e.sandboxes = nil
	e.mu.Unlock()

	for _, sb := range sandboxes {
		sb.Stop()
	}
	if len(sandboxes) > 0 {
		e.logger.Info("engine stopped", "sandboxes", len(sandboxes))
	}
}
