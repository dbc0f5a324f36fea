// ABOUTME: Schema registry mapping message types to structural validators
// ABOUTME: Compiles JSON Schemas per type; unregistered types are opaque and always accepted

package schema

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/2389/argon/internal/platform"
)

// TypeLog is the reserved message type whose creation also produces a log
// entry. Its body must carry a string severity and a string message.
const TypeLog = "log"

const logSchema = `{
	"type": "object",
	"required": ["severity", "message"],
	"properties": {
		"severity": { "type": "string" },
		"message": { "type": "string" }
	}
}`

// Registry maps a message type to a compiled structural validator. Types
// without a registered schema are treated as opaque: any body shape is
// accepted. The registry is populated at construction time and read-only
// afterward, so it is safe for concurrent use.
type Registry struct {
	schemas map[string]*jsonschema.Schema
}

// NewRegistry returns a registry with the reserved types registered.
func NewRegistry() (*Registry, error) {
	r := &Registry{schemas: make(map[string]*jsonschema.Schema)}

	if err := r.register(TypeLog, logSchema); err != nil {
		return nil, fmt.Errorf("registering log schema: %w", err)
	}

	return r, nil
}

// register compiles and installs a schema for a message type.
func (r *Registry) register(messageType, source string) error {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020

	url := fmt.Sprintf("https://argon.schemas.local/messages/%s.schema.json", messageType)
	if err := c.AddResource(url, strings.NewReader(source)); err != nil {
		return err
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return err
	}

	r.schemas[messageType] = compiled
	return nil
}

// Registered reports whether a schema is registered for the type.
func (r *Registry) Registered(messageType string) bool {
	_, ok := r.schemas[messageType]
	return ok
}

// Validate checks a message body against the schema registered for its type.
// Returns nil for unregistered types. A failing body yields an error wrapping
// platform.ErrSchemaViolation.
func (r *Registry) Validate(messageType string, body map[string]any) error {
	compiled, ok := r.schemas[messageType]
	if !ok {
		return nil
	}

	// jsonschema validates generic JSON values; a nil body is an empty object
	// for presence checks.
	doc := map[string]any(body)
	if doc == nil {
		doc = map[string]any{}
	}

	if err := compiled.Validate(normalize(doc)); err != nil {
		return fmt.Errorf("%w: type %q: %v", platform.ErrSchemaViolation, messageType, err)
	}
	return nil
}

// normalize converts body values into the generic JSON shapes the validator
// expects (maps, slices, strings, float64, bool, nil). Bodies arriving from
// JSON already have this shape; bodies built in Go may carry ints.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case float32:
		return float64(t)
	default:
		return v
	}
}
