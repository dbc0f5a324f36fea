// ABOUTME: Principal identity model for the argon platform
// ABOUTME: Defines principal kinds, capability predicates, and the Directory lookup interface

package principal

import (
	"context"
	"fmt"
	"time"
)

// ID identifies a principal. Filters accept either an ID or its plain string
// form; NormalizeID folds both into the same identity.
type ID string

func (id ID) String() string { return string(id) }

// NormalizeID converts a filter value into a principal ID. Accepts the native
// ID type, a plain string, or anything with a String() method. Returns false
// for nil or unsupported types.
func NormalizeID(v any) (ID, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case ID:
		return t, t != ""
	case string:
		return ID(t), t != ""
	case fmt.Stringer:
		s := t.String()
		return ID(s), s != ""
	default:
		return "", false
	}
}

// Kind is the variant of a principal.
type Kind string

const (
	KindSystem  Kind = "system"
	KindService Kind = "service"
	KindUser    Kind = "user"
	KindDevice  Kind = "device"
)

// Valid reports whether k is one of the defined principal kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindSystem, KindService, KindUser, KindDevice:
		return true
	}
	return false
}

// Principal is an identity that can own, send, or receive messages and agents.
// Exactly one system and one service principal exist per deployment; they are
// resolved once at startup and passed explicitly to every component that needs
// authorization context.
type Principal struct {
	ID        ID
	Kind      Kind
	Name      string
	CreatedAt time.Time
}

// IsSystem reports whether p is the platform's system principal.
func (p *Principal) IsSystem() bool {
	return p != nil && p.Kind == KindSystem
}

// IsService reports whether p is the platform's service principal.
func (p *Principal) IsService() bool {
	return p != nil && p.Kind == KindService
}

// IsPrivileged reports whether p may perform platform-wide operations such as
// bulk message removal.
func (p *Principal) IsPrivileged() bool {
	return p.IsSystem() || p.IsService()
}

// Directory is the identity collaborator: lookup of principals by id.
// Implemented by the SQLite store.
type Directory interface {
	FindPrincipalByID(ctx context.Context, id ID) (*Principal, error)
}
