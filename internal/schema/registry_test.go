package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/argon/internal/platform"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry()
	require.NoError(t, err)
	return r
}

func TestRegistry_LogTypeRegistered(t *testing.T) {
	r := newTestRegistry(t)

	assert.True(t, r.Registered(TypeLog))
	assert.False(t, r.Registered("temperature"))
}

func TestRegistry_ValidLogBody(t *testing.T) {
	r := newTestRegistry(t)

	err := r.Validate(TypeLog, map[string]any{
		"severity": "error",
		"message":  "something terrible happened",
	})
	assert.NoError(t, err)
}

func TestRegistry_InvalidLogBody(t *testing.T) {
	r := newTestRegistry(t)

	// severity missing
	err := r.Validate(TypeLog, map[string]any{
		"notright": "error",
		"message":  "something terrible happened",
	})
	assert.ErrorIs(t, err, platform.ErrSchemaViolation)

	// wrong primitive type
	err = r.Validate(TypeLog, map[string]any{
		"severity": 3,
		"message":  "something terrible happened",
	})
	assert.ErrorIs(t, err, platform.ErrSchemaViolation)

	// nil body fails presence checks
	err = r.Validate(TypeLog, nil)
	assert.ErrorIs(t, err, platform.ErrSchemaViolation)
}

func TestRegistry_UnregisteredTypesAreOpaque(t *testing.T) {
	r := newTestRegistry(t)

	assert.NoError(t, r.Validate("temperature", map[string]any{"reading": 5.1}))
	assert.NoError(t, r.Validate("temperature", nil))
	assert.NoError(t, r.Validate("unknownCommand", map[string]any{"anything": true}))
}
