package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorePutAndSearch(t *testing.T) {
	dir := t.TempDir()

	store, err := Open(dir)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	id, err := store.Put(ctx, Record{
		AgentName: "research",
		SessionID: "sess-1",
		Content:   "Go's context package carries deadlines and cancellation signals across API boundaries.",
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	results, err := store.Search(ctx, "cancellation in Go", 5, "")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "research", results[0].Record.AgentName)
}

func TestStoreSearchScopedBySession(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	_, err = store.Put(ctx, Record{AgentName: "architect", SessionID: "sess-a", Content: "design doc A", CreatedAt: time.Now()})
	require.NoError(t, err)
	_, err = store.Put(ctx, Record{AgentName: "architect", SessionID: "sess-b", Content: "design doc B", CreatedAt: time.Now()})
	require.NoError(t, err)

	results, err := store.Search(ctx, "design", 10, "sess-a")
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, "sess-a", r.Record.SessionID)
	}
}

func TestOpenTwiceFailsWhileLocked(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	require.NoError(t, err)
	defer store.Close()

	_, err = Open(dir)
	assert.Error(t, err)
}
