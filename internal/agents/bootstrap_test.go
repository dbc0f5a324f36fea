package agents

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/argon/internal/store"
)

func TestSynchronizer_CreatesBuiltins(t *testing.T) {
	r, _, system := setupRegistry(t)
	ctx := context.Background()

	sync := NewSynchronizer(r, system)
	require.NoError(t, sync.Initialize(ctx))

	agents, err := r.Find(ctx, system, store.AgentFilter{ExecuteAs: system.ID}, store.FindOptions{})
	require.NoError(t, err)
	require.Len(t, agents, 3)

	names := make([]string, len(agents))
	for i, a := range agents {
		names[i] = a.Name
		assert.NotEmpty(t, a.Action)
		assert.Equal(t, system.ID, a.ExecuteAs)
	}
	assert.ElementsMatch(t, []string{"expiration.js", "heartbeat.js", "logrelay.js"}, names)
}

func TestSynchronizer_InitializeIsIdempotent(t *testing.T) {
	r, _, system := setupRegistry(t)
	ctx := context.Background()

	sync := NewSynchronizer(r, system)
	require.NoError(t, sync.Initialize(ctx))
	require.NoError(t, sync.Initialize(ctx))

	agents, err := r.Find(ctx, system, store.AgentFilter{ExecuteAs: system.ID}, store.FindOptions{})
	require.NoError(t, err)
	assert.Len(t, agents, 3)
}

func TestSynchronizer_RestoresShippedAction(t *testing.T) {
	r, _, system := setupRegistry(t)
	ctx := context.Background()

	sync := NewSynchronizer(r, system)
	require.NoError(t, sync.Initialize(ctx))

	found, err := r.Find(ctx, system, store.AgentFilter{Name: "heartbeat.js", ExecuteAs: system.ID}, store.FindOptions{})
	require.NoError(t, err)
	require.Len(t, found, 1)
	shipped := found[0].Action

	// A local edit to a built-in does not survive the next startup pass
	edited := "log.info('edited')"
	_, err = r.Update(ctx, system, found[0].ID, store.AgentUpdate{Action: &edited})
	require.NoError(t, err)

	require.NoError(t, sync.Initialize(ctx))

	restored, err := r.FindByID(ctx, system, found[0].ID)
	require.NoError(t, err)
	assert.Equal(t, shipped, restored.Action)
}

func TestSynchronizer_AggregatesPerFileFailures(t *testing.T) {
	r, _, system := setupRegistry(t)
	ctx := context.Background()

	sync := &Synchronizer{
		registry: r,
		system:   system,
		source: fstest.MapFS{
			"builtin/good.js":  {Data: []byte("log.info('ok')")},
			"builtin/empty.js": {Data: []byte("")},
		},
		logger: r.logger,
	}

	// The empty script fails validation but the good one is still reconciled
	err := sync.Initialize(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty.js")

	agents, err := r.Find(ctx, system, store.AgentFilter{Name: "good.js", ExecuteAs: system.ID}, store.FindOptions{})
	require.NoError(t, err)
	assert.Len(t, agents, 1)
}
