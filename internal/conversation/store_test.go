package conversation

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aikun/internal/types"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_AppendLoad(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendTurn(ctx, "user:u1", types.RoleUser, "こんにちは"))
	require.NoError(t, store.AppendTurn(ctx, "user:u1", types.RoleAssistant, "どうも！"))
	require.NoError(t, store.AppendTurn(ctx, "user:u2", types.RoleUser, "別の会話"))

	turns, err := store.LoadTurns(ctx, "user:u1", 24)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, types.RoleUser, turns[0].Role)
	assert.Equal(t, "こんにちは", turns[0].Content)
	assert.Equal(t, types.RoleAssistant, turns[1].Role)
}

func TestSQLiteStore_WindowKeepsMostRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 30; i++ {
		role := types.RoleUser
		if i%2 == 1 {
			role = types.RoleAssistant
		}
		require.NoError(t, store.AppendTurn(ctx, "c", role, string(rune('a'+i%26))))
	}

	turns, err := store.LoadTurns(ctx, "c", 24)
	require.NoError(t, err)
	require.Len(t, turns, 24)
	// Chronological order within the window.
	for i := 1; i < len(turns); i++ {
		assert.False(t, turns[i].CreatedAt.Before(turns[i-1].CreatedAt), "turns out of chronological order at %d", i)
	}
}

func TestSQLiteStore_Reset(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendTurn(ctx, "c", types.RoleUser, "a"))
	require.NoError(t, store.AppendTurn(ctx, "c", types.RoleAssistant, "b"))

	require.NoError(t, store.DeleteTurns(ctx, "c"))
	turns, err := store.LoadTurns(ctx, "c", 24)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestSQLiteStore_QuotaConsume(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		got, err := store.Consume(ctx, "u1", "2026-09-01")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	// Separate day and separate user count independently.
	got, err := store.Consume(ctx, "u1", "2026-09-02")
	require.NoError(t, err)
	assert.Equal(t, 1, got, "new day starts at 1")

	got, err = store.Consume(ctx, "u2", "2026-09-01")
	require.NoError(t, err)
	assert.Equal(t, 1, got, "new user starts at 1")
}
