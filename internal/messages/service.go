// ABOUTME: Message Store service: validation, visibility computation, queries, and removal
// ABOUTME: Enforces ACL scoping, per-type schemas, TTL defaults, and blob deletion cascades

package messages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/argon/internal/platform"
	"github.com/2389/argon/internal/principal"
	"github.com/2389/argon/internal/schema"
	"github.com/2389/argon/internal/store"
)

// Store is the persistence surface the message service needs.
type Store interface {
	store.MessageStore
	store.BlobStore
	store.LogStore
}

// Service validates, persists, queries, and removes messages. Messages are
// immutable after creation; removal is the only lifecycle transition.
type Service struct {
	store      Store
	directory  principal.Directory
	schemas    *schema.Registry
	service    *principal.Principal
	defaultTTL time.Duration
	logger     *slog.Logger
}

// NewService creates a message service. servicePrincipal is the well-known
// service principal included in every message's visibility set; defaultTTL is
// applied when a message arrives without an index_until.
func NewService(s Store, directory principal.Directory, schemas *schema.Registry, servicePrincipal *principal.Principal, defaultTTL time.Duration) *Service {
	return &Service{
		store:      s,
		directory:  directory,
		schemas:    schemas,
		service:    servicePrincipal,
		defaultTTL: defaultTTL,
		logger:     slog.Default().With("component", "messages"),
	}
}

// Create validates and persists a message, returning it wrapped in a slice.
// The slice contract anticipates fan-out into derived messages; today the
// primary message is always the only element.
//
// Checks run in a fixed order so failure causes stay diagnosable:
// from presence, from resolution, type presence, then schema.
func (s *Service) Create(ctx context.Context, acting *principal.Principal, msg *store.Message) ([]*store.Message, error) {
	if msg.From == "" {
		return nil, fmt.Errorf("%w: from is required", platform.ErrValidation)
	}

	if _, err := s.directory.FindPrincipalByID(ctx, msg.From); err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			return nil, fmt.Errorf("%w: from principal %s does not exist", platform.ErrInvalidReference, msg.From)
		}
		return nil, fmt.Errorf("resolving from principal: %w", err)
	}

	if msg.Type == "" {
		return nil, fmt.Errorf("%w: type is required", platform.ErrValidation)
	}

	if err := s.schemas.Validate(msg.Type, msg.Body); err != nil {
		return nil, err
	}

	msg.VisibleTo = s.visibility(msg)
	msg.BodyLength = bodyLength(msg.Body)
	if msg.IndexUntil.IsZero() {
		msg.IndexUntil = time.Now().UTC().Add(s.defaultTTL)
	}

	if err := s.store.InsertMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("persisting message: %w", err)
	}

	if msg.Type == schema.TypeLog {
		if err := s.createLogEntry(ctx, msg); err != nil {
			return nil, fmt.Errorf("persisting log entry for message %s: %w", msg.ID, err)
		}
	}

	s.logger.Debug("message created",
		"id", msg.ID,
		"type", msg.Type,
		"from", msg.From,
		"acting", acting.ID,
	)

	return []*store.Message{msg}, nil
}

// visibility computes the visible_to set: the service principal always, plus
// from, plus to when present. Client-supplied values are discarded.
func (s *Service) visibility(msg *store.Message) []principal.ID {
	seen := make(map[principal.ID]bool)
	var visible []principal.ID

	add := func(id principal.ID) {
		if id != "" && !seen[id] {
			seen[id] = true
			visible = append(visible, id)
		}
	}

	add(s.service.ID)
	add(msg.From)
	add(msg.To)

	return visible
}

// bodyLength is the byte length of the serialized body.
func bodyLength(body map[string]any) int {
	if body == nil {
		return 0
	}
	b, err := json.Marshal(body)
	if err != nil {
		return 0
	}
	return len(b)
}

// createLogEntry writes the derived log record for a log-typed message. The
// body shape was already validated against the log schema.
func (s *Service) createLogEntry(ctx context.Context, msg *store.Message) error {
	severity, _ := msg.Body["severity"].(string)
	text, _ := msg.Body["message"].(string)

	return s.store.InsertLogEntry(ctx, &store.LogEntry{
		PrincipalID: msg.From,
		Severity:    severity,
		Message:     text,
	})
}

// Find returns messages matching the filter under the caller's visibility
// scope: non-privileged principals only receive messages whose visible_to
// contains them, regardless of filter.
func (s *Service) Find(ctx context.Context, acting *principal.Principal, filter store.MessageFilter, opts store.FindOptions) ([]*store.Message, error) {
	if !acting.IsPrivileged() {
		filter.VisibleTo = acting.ID
	}
	return s.store.FindMessages(ctx, filter, opts)
}

// FindByID returns a single message by id under the caller's visibility
// scope. Messages outside the caller's scope report platform.ErrNotFound
// rather than leaking existence.
func (s *Service) FindByID(ctx context.Context, acting *principal.Principal, id string) (*store.Message, error) {
	msg, err := s.store.GetMessage(ctx, id)
	if err != nil {
		return nil, err
	}
	if !acting.IsPrivileged() && !visibleTo(msg, acting.ID) {
		return nil, platform.ErrNotFound
	}
	return msg, nil
}

func visibleTo(msg *store.Message, id principal.ID) bool {
	for _, pid := range msg.VisibleTo {
		if pid == id {
			return true
		}
	}
	return false
}

// RemoveOne removes a single message. The caller must be privileged or the
// message's sender. When the message links a blob, both the message and the
// blob are gone by the time the call returns success.
func (s *Service) RemoveOne(ctx context.Context, acting *principal.Principal, id string) error {
	msg, err := s.store.GetMessage(ctx, id)
	if err != nil {
		return err
	}
	if !acting.IsPrivileged() && acting.ID != msg.From {
		return fmt.Errorf("%w: principal %s cannot remove message %s", platform.ErrForbidden, acting.ID, id)
	}

	if msg.Link != "" {
		if err := s.store.DeleteBlob(ctx, msg.Link); err != nil && !errors.Is(err, platform.ErrNotFound) {
			return fmt.Errorf("deleting linked blob %s: %w", msg.Link, err)
		}
	}

	return s.store.DeleteMessage(ctx, id)
}

// Remove bulk-removes messages matching the query. Privileged principals
// only. Linked blobs are deleted as a best-effort sequential follow-up after
// the message deletion; follow-up failures are logged, never masked as a
// failure of the removal itself. The returned count reflects message
// deletions only.
//
// TTL expiry is realized through this operation: the sweep issues a query
// with index_until < now, which by construction never matches
// store.IndexForever.
func (s *Service) Remove(ctx context.Context, acting *principal.Principal, query store.RemoveQuery) (int64, error) {
	if !acting.IsPrivileged() {
		return 0, fmt.Errorf("%w: bulk removal requires a privileged principal", platform.ErrForbidden)
	}

	matched, err := s.store.MatchMessages(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("matching messages for removal: %w", err)
	}

	removed, err := s.store.DeleteMessages(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("deleting messages: %w", err)
	}

	for _, msg := range matched {
		if msg.Link == "" {
			continue
		}
		if err := s.store.DeleteBlob(ctx, msg.Link); err != nil && !errors.Is(err, platform.ErrNotFound) {
			s.logger.Error("orphaned blob: linked blob deletion failed after message removal",
				"message_id", msg.ID,
				"blob_id", msg.Link,
				"error", err,
			)
		}
	}

	if removed > 0 {
		s.logger.Info("messages removed", "count", removed, "acting", acting.ID)
	}

	return removed, nil
}

// SweepExpired removes every message whose index_until has passed, acting as
// the service principal. Intended to run periodically from the daemon.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	now := time.Now().UTC()
	return s.Remove(ctx, s.service, store.RemoveQuery{IndexUntilBefore: &now})
}
