package checkpoint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ki-autoagent/engine/internal/state"
)

func TestSaveThenLoadRoundTrips(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	s := state.New("sess-1", "/tmp/ws", "build a cli", 3)
	s.SupervisorIteration = 2
	s.LastAgent = "codesmith"

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "sess-1", s, "codesmith"))

	rec, ok, err := store.Load(ctx, "sess-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "sess-1", rec.State.SessionID)
	assert.Equal(t, 2, rec.State.SupervisorIteration)
	assert.Equal(t, "codesmith", rec.GraphPosition)
}

func TestLoadMissingSessionReturnsNotFound(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	_, ok, err := store.Load(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSaveUpsertsExistingSession(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	s1 := state.New("sess-1", "/tmp/ws", "q", 3)
	require.NoError(t, store.Save(ctx, "sess-1", s1, "research"))

	s2 := state.New("sess-1", "/tmp/ws", "q", 3)
	s2.SupervisorIteration = 5
	require.NoError(t, store.Save(ctx, "sess-1", s2, "architect"))

	rec, ok, err := store.Load(ctx, "sess-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 5, rec.State.SupervisorIteration)
	assert.Equal(t, "architect", rec.GraphPosition)
}

func TestClearRemovesCheckpoint(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	s := state.New("sess-1", "/tmp/ws", "q", 3)
	require.NoError(t, store.Save(ctx, "sess-1", s, "research"))
	require.NoError(t, store.Clear(ctx, "sess-1"))

	_, ok, err := store.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSessionsListsPersistedCheckpoints(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "sess-1", state.New("sess-1", "/tmp/ws", "q", 3), "research"))
	require.NoError(t, store.Save(ctx, "sess-2", state.New("sess-2", "/tmp/ws", "q", 3), "architect"))

	ids, err := store.Sessions(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"sess-1", "sess-2"}, ids)
}
