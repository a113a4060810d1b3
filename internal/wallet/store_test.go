package wallet

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hasEntry(store *MemoryStore, channelID string) bool {
	store.mu.Lock()
	defer store.mu.Unlock()
	_, ok := store.entries[channelID]
	return ok
}

func TestMemoryStoreTimerEviction(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	err := store.Put(ctx, "chan-1", &PendingSelection{ChannelID: "chan-1"}, 10*time.Millisecond)
	require.NoError(t, err)

	// The entry evicts itself without any Get or Put touching the store.
	require.Eventually(t, func() bool {
		return !hasEntry(store, "chan-1")
	}, time.Second, 5*time.Millisecond)
}

func TestMemoryStorePutDisarmsOldTimer(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	err := store.Put(ctx, "chan-1", &PendingSelection{ChannelID: "chan-1", UserID: "user-1"}, 10*time.Millisecond)
	require.NoError(t, err)

	replacement := &PendingSelection{ChannelID: "chan-1", UserID: "user-2"}
	require.NoError(t, store.Put(ctx, "chan-1", replacement, time.Minute))

	// The first entry's deadline passes; the replacement must survive it.
	time.Sleep(50 * time.Millisecond)

	pending, err := store.Get(ctx, "chan-1")
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, "user-2", pending.UserID)
}

func TestMemoryStoreDeleteDisarmsTimer(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	err := store.Put(ctx, "chan-1", &PendingSelection{ChannelID: "chan-1"}, time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, "chan-1"))

	assert.False(t, hasEntry(store, "chan-1"))
}
