// ABOUTME: Session handles scoping platform operations to a principal's authority
// ABOUTME: Impersonation derives an independent session for another principal from a system session

package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/2389/argon/internal/agents"
	"github.com/2389/argon/internal/auth"
	"github.com/2389/argon/internal/messages"
	"github.com/2389/argon/internal/platform"
	"github.com/2389/argon/internal/principal"
	"github.com/2389/argon/internal/store"
)

// Opener builds sessions. It bundles the collaborators every session needs:
// the token service for credentials, the directory for principal resolution,
// and the message and agent services the session scopes.
type Opener struct {
	Tokens    *auth.TokenService
	Directory principal.Directory
	Messages  *messages.Service
	Agents    *agents.Registry
}

// Open creates a session for the given principal, minting or reusing an
// access token.
func (o *Opener) Open(ctx context.Context, p *principal.Principal) (*Session, error) {
	token, err := o.Tokens.FindOrCreateToken(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("obtaining token for %s: %w", p.ID, err)
	}

	return &Session{
		Principal: p,
		Token:     token,
		opener:    o,
		logger:    slog.Default().With("component", "session", "principal", p.ID),
	}, nil
}

// Session is a handle to the platform pre-scoped to one principal's
// authority. Every operation acts as that principal; there is no identity
// switching on a shared session.
type Session struct {
	Principal *principal.Principal
	Token     *store.AccessToken

	opener *Opener
	logger *slog.Logger
}

// Impersonate derives a new, independent session scoped to another
// principal's authority. Only a system session may impersonate. Failures wrap
// platform.ErrImpersonation.
func (s *Session) Impersonate(ctx context.Context, id principal.ID) (*Session, error) {
	if !s.Principal.IsSystem() {
		return nil, fmt.Errorf("%w: only the system principal may impersonate", platform.ErrImpersonation)
	}

	target, err := s.opener.Directory.FindPrincipalByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving principal %s: %v", platform.ErrImpersonation, id, err)
	}

	derived, err := s.opener.Open(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("%w: opening session for %s: %v", platform.ErrImpersonation, id, err)
	}

	s.logger.Debug("impersonated session derived", "target", id)
	return derived, nil
}

// SendMessage creates a message as the session principal. An empty from is
// filled with the session principal's id.
func (s *Session) SendMessage(ctx context.Context, msg *store.Message) ([]*store.Message, error) {
	if msg.From == "" {
		msg.From = s.Principal.ID
	}
	return s.opener.Messages.Create(ctx, s.Principal, msg)
}

// FindMessages queries messages under the session principal's visibility
// scope.
func (s *Session) FindMessages(ctx context.Context, filter store.MessageFilter, opts store.FindOptions) ([]*store.Message, error) {
	return s.opener.Messages.Find(ctx, s.Principal, filter, opts)
}

// RemoveMessages bulk-removes messages as the session principal. Subject to
// the message service's privilege check.
func (s *Session) RemoveMessages(ctx context.Context, query store.RemoveQuery) (int64, error) {
	return s.opener.Messages.Remove(ctx, s.Principal, query)
}

// FindAgents queries agent definitions as the session principal.
func (s *Session) FindAgents(ctx context.Context, filter store.AgentFilter, opts store.FindOptions) ([]*store.Agent, error) {
	return s.opener.Agents.Find(ctx, s.Principal, filter, opts)
}
