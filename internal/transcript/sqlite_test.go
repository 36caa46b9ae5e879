// ABOUTME: Tests for the SQLite transcript store
// ABOUTME: Covers append defaults, ordering, channel filtering, and limit clamping

package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "transcript.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func TestSQLiteStore_AppendAndRecent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	entry := &Entry{
		ID:        "entry-1",
		Timestamp: time.Now().UTC().Truncate(time.Second),
		Channel:   ChannelUI,
		Direction: DirectionOutbound,
		Kind:      "notification",
		Payload:   json.RawMessage(`{"type":"notification","title":"hi"}`),
	}

	require.NoError(t, store.Append(ctx, entry))

	entries, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "entry-1", entries[0].ID)
	assert.Equal(t, ChannelUI, entries[0].Channel)
	assert.Equal(t, DirectionOutbound, entries[0].Direction)
	assert.Equal(t, "notification", entries[0].Kind)
	assert.JSONEq(t, `{"type":"notification","title":"hi"}`, string(entries[0].Payload))
}

func TestSQLiteStore_AppendFillsDefaults(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	entry := &Entry{
		Channel:   ChannelCommand,
		Direction: DirectionInbound,
		Kind:      "navigate",
	}

	require.NoError(t, store.Append(ctx, entry))
	assert.NotEmpty(t, entry.ID, "append should assign an id")
	assert.False(t, entry.Timestamp.IsZero(), "append should assign a timestamp")

	entries, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].Payload)
}

func TestSQLiteStore_RecentNewestFirst(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i := range 3 {
		entry := &Entry{
			ID:        fmt.Sprintf("entry-%d", i),
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Channel:   ChannelUI,
			Direction: DirectionInbound,
			Kind:      "user_input",
		}
		require.NoError(t, store.Append(ctx, entry))
	}

	entries, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "entry-2", entries[0].ID)
	assert.Equal(t, "entry-1", entries[1].ID)
	assert.Equal(t, "entry-0", entries[2].ID)
}

func TestSQLiteStore_RecentRespectsLimit(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i := range 5 {
		entry := &Entry{
			ID:        fmt.Sprintf("entry-%d", i),
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Channel:   ChannelCommand,
			Direction: DirectionOutbound,
			Kind:      "ping",
		}
		require.NoError(t, store.Append(ctx, entry))
	}

	entries, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "entry-4", entries[0].ID)
	assert.Equal(t, "entry-3", entries[1].ID)
}

func TestSQLiteStore_RecentByChannel(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	channels := []Channel{ChannelCommand, ChannelUI, ChannelCommand}
	for i, ch := range channels {
		entry := &Entry{
			ID:        fmt.Sprintf("entry-%d", i),
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Channel:   ch,
			Direction: DirectionOutbound,
			Kind:      "agent_event",
		}
		require.NoError(t, store.Append(ctx, entry))
	}

	entries, err := store.RecentByChannel(ctx, ChannelCommand, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "entry-2", entries[0].ID)
	assert.Equal(t, "entry-0", entries[1].ID)

	entries, err = store.RecentByChannel(ctx, ChannelUI, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "entry-1", entries[0].ID)
}

func TestSQLiteStore_RejectsUnknownChannel(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	entry := &Entry{
		Channel:   Channel("carrier-pigeon"),
		Direction: DirectionOutbound,
		Kind:      "coo",
	}
	err := store.Append(ctx, entry)
	require.Error(t, err, "schema check constraint should reject unknown channels")
}

func TestSQLiteStore_InMemory(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	entry := &Entry{
		Channel:   ChannelUI,
		Direction: DirectionInbound,
		Kind:      "command",
		Payload:   json.RawMessage(`{"type":"command","command":"pause"}`),
	}
	require.NoError(t, store.Append(context.Background(), entry))

	entries, err := store.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
