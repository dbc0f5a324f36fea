package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/argon/internal/platform"
	"github.com/2389/argon/internal/principal"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })

	return s
}

func TestStore_EnsureWellKnown(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	system, service, err := s.EnsureWellKnown(ctx)
	require.NoError(t, err)
	assert.Equal(t, principal.KindSystem, system.Kind)
	assert.Equal(t, principal.KindService, service.Kind)
	assert.True(t, system.IsSystem())
	assert.True(t, service.IsPrivileged())

	// Idempotent: a second call resolves the same principals
	system2, service2, err := s.EnsureWellKnown(ctx)
	require.NoError(t, err)
	assert.Equal(t, system.ID, system2.ID)
	assert.Equal(t, service.ID, service2.ID)
}

func TestStore_FindPrincipalByID_NotFound(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.FindPrincipalByID(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, platform.ErrNotFound)
}

func TestStore_InsertPrincipal_InvalidKind(t *testing.T) {
	s := setupTestStore(t)

	err := s.InsertPrincipal(context.Background(), &principal.Principal{
		Kind: "robot",
		Name: "nope",
	})
	assert.ErrorIs(t, err, platform.ErrValidation)
}

func TestStore_InsertAndGetMessage(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	msg := &Message{
		From:       "device-1",
		Type:       "temperature",
		Body:       map[string]any{"reading": 5.1},
		VisibleTo:  []principal.ID{"service-1", "device-1"},
		IndexUntil: time.Now().Add(time.Hour),
		BodyLength: 15,
	}
	require.NoError(t, s.InsertMessage(ctx, msg))
	require.NotEmpty(t, msg.ID)

	got, err := s.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, principal.ID("device-1"), got.From)
	assert.Equal(t, "temperature", got.Type)
	assert.Equal(t, 5.1, got.Body["reading"])
	assert.ElementsMatch(t, []principal.ID{"service-1", "device-1"}, got.VisibleTo)
}

func TestStore_GetMessage_NotFound(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.GetMessage(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, platform.ErrNotFound)
}

func TestStore_FindMessages_IDNormalization(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	msg := &Message{
		From:       "device-1",
		Type:       "temperature",
		Body:       map[string]any{"reading": 1},
		VisibleTo:  []principal.ID{"device-1"},
		IndexUntil: time.Now().Add(time.Hour),
	}
	require.NoError(t, s.InsertMessage(ctx, msg))

	// Native id form and plain string form must select the same rows
	native, err := s.FindMessages(ctx, MessageFilter{From: principal.ID("device-1")}, FindOptions{})
	require.NoError(t, err)
	str, err := s.FindMessages(ctx, MessageFilter{From: "device-1"}, FindOptions{})
	require.NoError(t, err)

	require.Len(t, native, 1)
	require.Len(t, str, 1)
	assert.Equal(t, native[0].ID, str[0].ID)
}

func TestStore_FindMessages_VisibilityScope(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	visible := &Message{
		From:       "device-1",
		Type:       "temperature",
		VisibleTo:  []principal.ID{"user-1", "device-1"},
		IndexUntil: time.Now().Add(time.Hour),
	}
	hidden := &Message{
		From:       "device-2",
		Type:       "temperature",
		VisibleTo:  []principal.ID{"device-2"},
		IndexUntil: time.Now().Add(time.Hour),
	}
	require.NoError(t, s.InsertMessage(ctx, visible))
	require.NoError(t, s.InsertMessage(ctx, hidden))

	found, err := s.FindMessages(ctx, MessageFilter{VisibleTo: "user-1"}, FindOptions{})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, visible.ID, found[0].ID)
}

func TestStore_FindMessages_Pagination(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.InsertMessage(ctx, &Message{
			From:       "device-1",
			Type:       "tick",
			VisibleTo:  []principal.ID{"device-1"},
			IndexUntil: time.Now().Add(time.Hour),
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}))
	}

	page, err := s.FindMessages(ctx, MessageFilter{Type: "tick"}, FindOptions{Limit: 2, Skip: 1, Ascending: true})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.True(t, page[0].CreatedAt.Before(page[1].CreatedAt))
}

func TestStore_DeleteMessages_RangeExcludesForever(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	expired := &Message{
		From:       "device-1",
		Type:       "image",
		VisibleTo:  []principal.ID{"device-1"},
		IndexUntil: time.Now().Add(-time.Minute),
	}
	forever := &Message{
		From:       "device-1",
		Type:       "image",
		VisibleTo:  []principal.ID{"device-1"},
		IndexUntil: IndexForever,
	}
	require.NoError(t, s.InsertMessage(ctx, expired))
	require.NoError(t, s.InsertMessage(ctx, forever))

	now := time.Now()
	removed, err := s.DeleteMessages(ctx, RemoveQuery{IndexUntilBefore: &now})
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = s.GetMessage(ctx, expired.ID)
	assert.ErrorIs(t, err, platform.ErrNotFound)

	// The forever-indexed message survives any range removal
	_, err = s.GetMessage(ctx, forever.ID)
	assert.NoError(t, err)
}

func TestStore_DeleteMessages_ExactMatchRemovesForever(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	forever := &Message{
		From:       "device-1",
		Type:       "image",
		VisibleTo:  []principal.ID{"device-1"},
		IndexUntil: IndexForever,
	}
	require.NoError(t, s.InsertMessage(ctx, forever))

	// Exact-match deletion is administrative, not expiry: the sentinel is fair game
	removed, err := s.DeleteMessages(ctx, RemoveQuery{IndexUntil: &IndexForever})
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestStore_MatchMessages(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	linked := &Message{
		From:       "device-1",
		Type:       "image",
		Link:       "blob-1",
		VisibleTo:  []principal.ID{"device-1"},
		IndexUntil: time.Now().Add(-time.Minute),
	}
	require.NoError(t, s.InsertMessage(ctx, linked))

	now := time.Now()
	matched, err := s.MatchMessages(ctx, RemoveQuery{IndexUntilBefore: &now})
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, "blob-1", matched[0].Link)
}

func TestStore_DeleteMessage_NotFound(t *testing.T) {
	s := setupTestStore(t)

	err := s.DeleteMessage(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, platform.ErrNotFound)
}

func TestStore_AgentCRUD(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	agent := &Agent{
		Name:      "pump.js",
		Action:    "log.info('hi');",
		ExecuteAs: "device-1",
	}
	require.NoError(t, s.InsertAgent(ctx, agent))
	require.NotEmpty(t, agent.ID)

	got, err := s.GetAgent(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, "pump.js", got.Name)

	// Filter by name + owner, with string-form id
	found, err := s.FindAgents(ctx, AgentFilter{Name: "pump.js", ExecuteAs: "device-1"}, FindOptions{})
	require.NoError(t, err)
	require.Len(t, found, 1)

	newAction := "log.info('bye');"
	require.NoError(t, s.UpdateAgent(ctx, agent.ID, AgentUpdate{Action: &newAction}))

	got, err = s.GetAgent(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, newAction, got.Action)
	assert.Equal(t, "pump.js", got.Name, "unset fields are left unchanged")
}

func TestStore_UpdateAgent_NotFound(t *testing.T) {
	s := setupTestStore(t)

	name := "x"
	err := s.UpdateAgent(context.Background(), "nonexistent", AgentUpdate{Name: &name})
	assert.ErrorIs(t, err, platform.ErrNotFound)
}

func TestStore_BlobLifecycle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	blob := &Blob{
		ContentType:   "image/jpg",
		ContentLength: 2048,
	}
	require.NoError(t, s.InsertBlob(ctx, blob))
	require.NotEmpty(t, blob.ID)

	got, err := s.GetBlob(ctx, blob.ID)
	require.NoError(t, err)
	assert.Equal(t, "image/jpg", got.ContentType)

	require.NoError(t, s.DeleteBlob(ctx, blob.ID))

	_, err = s.GetBlob(ctx, blob.ID)
	assert.ErrorIs(t, err, platform.ErrNotFound)

	err = s.DeleteBlob(ctx, blob.ID)
	assert.ErrorIs(t, err, platform.ErrNotFound)
}

func TestStore_TokenLifecycle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	live := &AccessToken{
		PrincipalID: "device-1",
		Token:       "tok-live",
		ExpiresAt:   now.Add(time.Hour),
	}
	expired := &AccessToken{
		PrincipalID: "device-1",
		Token:       "tok-expired",
		ExpiresAt:   now.Add(-time.Hour),
	}
	require.NoError(t, s.InsertToken(ctx, live))
	require.NoError(t, s.InsertToken(ctx, expired))

	got, err := s.GetLiveToken(ctx, "device-1", now)
	require.NoError(t, err)
	assert.Equal(t, "tok-live", got.Token)

	removed, err := s.DeleteExpiredTokens(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = s.GetLiveToken(ctx, "device-2", now)
	assert.ErrorIs(t, err, platform.ErrNotFound)
}

func TestStore_LogEntries(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertLogEntry(ctx, &LogEntry{
		PrincipalID: "device-1",
		Severity:    "error",
		Message:     "something terrible happened",
	}))
	require.NoError(t, s.InsertLogEntry(ctx, &LogEntry{
		PrincipalID: "device-1",
		Severity:    "info",
		Message:     "all quiet",
	}))

	errorsOnly, err := s.ListLogEntries(ctx, "error", 10)
	require.NoError(t, err)
	require.Len(t, errorsOnly, 1)
	assert.Equal(t, "something terrible happened", errorsOnly[0].Message)

	all, err := s.ListLogEntries(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
