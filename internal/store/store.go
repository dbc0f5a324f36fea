// ABOUTME: Store interfaces and data types for argon persistence
// ABOUTME: Defines Message, Agent, Blob, AccessToken structs and the per-entity store interfaces

package store

import (
	"context"
	"time"

	"github.com/2389/argon/internal/principal"
)

// IndexForever is the sentinel index_until value for messages exempt from
// expiry. It is a fixed far-future timestamp, so it can never satisfy a
// "less than current time" predicate; range removals additionally exclude it
// explicitly. Exact-match removal by this value still works, since that is an
// administrative action rather than expiry.
var IndexForever = time.Date(9999, time.January, 1, 0, 0, 0, 0, time.UTC)

// Message is a typed, immutable record exchanged between principals.
// visible_to and body_length are computed at creation time by the message
// service; messages are never updated after creation.
type Message struct {
	ID         string
	From       principal.ID
	To         principal.ID // optional
	Type       string
	Body       map[string]any
	Link       string // optional blob id
	VisibleTo  []principal.ID
	IndexUntil time.Time
	BodyLength int
	CreatedAt  time.Time
}

// Agent is a persisted automation script bound to a principal's authority.
// Compiled form and session exist only at runtime inside the engine.
type Agent struct {
	ID        string
	Name      string
	Action    string // script source text
	ExecuteAs principal.ID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Blob is an attachment record. Raw byte storage lives behind an external
// provider; the store tracks metadata and existence so message removal can
// cascade.
type Blob struct {
	ID            string
	ContentType   string
	ContentLength int64
	Link          string
	URL           string
	CreatedAt     time.Time
}

// AccessToken is a persisted credential for a principal.
type AccessToken struct {
	ID          string
	PrincipalID principal.ID
	Token       string
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// LogEntry is the derived record written when a log-typed message is created.
type LogEntry struct {
	ID          string
	PrincipalID principal.ID
	Severity    string
	Message     string
	CreatedAt   time.Time
}

// MessageFilter selects messages. From and To accept a principal.ID or its
// plain string form; both are normalized before matching. VisibleTo, when
// set, restricts results to messages visible to that principal and is applied
// by the message service for non-privileged callers.
type MessageFilter struct {
	IDs       []string
	From      any
	To        any
	Type      string
	VisibleTo principal.ID
}

// FindOptions controls result ordering and pagination. Results are ordered by
// created_at descending unless Ascending is set.
type FindOptions struct {
	Skip      int
	Limit     int
	Ascending bool
}

// RemoveQuery selects messages for bulk removal. IndexUntil matches the exact
// stored value; IndexUntilBefore matches index_until < t and never matches
// IndexForever.
type RemoveQuery struct {
	Type             string
	From             any
	IndexUntil       *time.Time
	IndexUntilBefore *time.Time
}

// AgentFilter selects agents by name and/or owning principal. ExecuteAs
// accepts a principal.ID or its plain string form.
type AgentFilter struct {
	Name      string
	ExecuteAs any
}

// AgentUpdate is a partial-field merge applied by UpdateAgent. Nil fields are
// left unchanged.
type AgentUpdate struct {
	Name      *string
	Action    *string
	ExecuteAs *principal.ID
}

// MessageStore persists messages and their visibility sets.
type MessageStore interface {
	InsertMessage(ctx context.Context, msg *Message) error
	GetMessage(ctx context.Context, id string) (*Message, error)
	FindMessages(ctx context.Context, filter MessageFilter, opts FindOptions) ([]*Message, error)
	DeleteMessage(ctx context.Context, id string) error
	MatchMessages(ctx context.Context, query RemoveQuery) ([]*Message, error)
	DeleteMessages(ctx context.Context, query RemoveQuery) (int64, error)
}

// AgentStore persists agent definitions.
type AgentStore interface {
	InsertAgent(ctx context.Context, agent *Agent) error
	GetAgent(ctx context.Context, id string) (*Agent, error)
	FindAgents(ctx context.Context, filter AgentFilter, opts FindOptions) ([]*Agent, error)
	UpdateAgent(ctx context.Context, id string, update AgentUpdate) error
}

// BlobStore persists blob metadata. The message service uses it to cascade
// deletion when a linked message is removed.
type BlobStore interface {
	InsertBlob(ctx context.Context, blob *Blob) error
	GetBlob(ctx context.Context, id string) (*Blob, error)
	DeleteBlob(ctx context.Context, id string) error
}

// TokenStore persists access tokens.
type TokenStore interface {
	InsertToken(ctx context.Context, token *AccessToken) error
	GetLiveToken(ctx context.Context, id principal.ID, now time.Time) (*AccessToken, error)
	DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}

// PrincipalStore persists principals and implements principal.Directory.
type PrincipalStore interface {
	principal.Directory
	InsertPrincipal(ctx context.Context, p *principal.Principal) error
	FindPrincipalByKind(ctx context.Context, kind principal.Kind) (*principal.Principal, error)
}

// LogStore persists derived log entries.
type LogStore interface {
	InsertLogEntry(ctx context.Context, entry *LogEntry) error
	ListLogEntries(ctx context.Context, severity string, limit int) ([]*LogEntry, error)
}
