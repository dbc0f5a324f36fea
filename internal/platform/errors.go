// ABOUTME: Shared error taxonomy for argon platform services
// ABOUTME: Sentinel errors matched with errors.Is across store, messages, agents, and engine

package platform

import "errors"

// Service-level error kinds. Services wrap these with context via fmt.Errorf
// and %w; callers classify with errors.Is.
var (
	// ErrForbidden indicates the acting principal is not authorized for the operation.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidReference indicates a referenced principal or entity id does not resolve.
	ErrInvalidReference = errors.New("invalid reference")

	// ErrValidation indicates a required field is missing or empty.
	ErrValidation = errors.New("validation failed")

	// ErrSchemaViolation indicates a message body does not match its registered type schema.
	ErrSchemaViolation = errors.New("schema violation")

	// ErrSystemPrincipalUnavailable indicates the engine cannot bootstrap its own session.
	ErrSystemPrincipalUnavailable = errors.New("system principal not available")

	// ErrImpersonation indicates an impersonated session could not be derived.
	// Per-agent and non-fatal: the engine drops the agent and continues.
	ErrImpersonation = errors.New("impersonation failed")
)
