package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresenceLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewPresenceRepository(60 * time.Second)

	online, err := repo.IsOnline(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, online)

	require.NoError(t, repo.MarkOnline(ctx, "alice", "conn-1"))
	online, _ = repo.IsOnline(ctx, "alice")
	assert.True(t, online)

	owner, err := repo.Owner(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "conn-1", owner)

	require.NoError(t, repo.MarkOffline(ctx, "alice", "conn-1"))
	online, _ = repo.IsOnline(ctx, "alice")
	assert.False(t, online)
}

func TestPresenceExpiresWithoutRefresh(t *testing.T) {
	ctx := context.Background()
	repo := NewPresenceRepository(60 * time.Second)

	clock := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	repo.SetClock(func() time.Time { return clock })

	require.NoError(t, repo.MarkOnline(ctx, "alice", "conn-1"))

	// One missed heartbeat is tolerated.
	clock = clock.Add(45 * time.Second)
	online, _ := repo.IsOnline(ctx, "alice")
	assert.True(t, online)

	// Past the TTL the lease lapses.
	clock = clock.Add(20 * time.Second)
	online, _ = repo.IsOnline(ctx, "alice")
	assert.False(t, online)
}

func TestPresenceRefreshExtendsLease(t *testing.T) {
	ctx := context.Background()
	repo := NewPresenceRepository(60 * time.Second)

	clock := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	repo.SetClock(func() time.Time { return clock })

	require.NoError(t, repo.MarkOnline(ctx, "alice", "conn-1"))

	clock = clock.Add(45 * time.Second)
	require.NoError(t, repo.Refresh(ctx, "alice"))

	clock = clock.Add(45 * time.Second)
	online, _ := repo.IsOnline(ctx, "alice")
	assert.True(t, online)

	// Refresh never changes the bound connection.
	owner, _ := repo.Owner(ctx, "alice")
	assert.Equal(t, "conn-1", owner)
}

func TestMarkOfflineIsCompareAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewPresenceRepository(60 * time.Second)

	// Reconnect replaces the binding before the old connection's disconnect
	// handler runs; the stale handler must not remove the new presence.
	require.NoError(t, repo.MarkOnline(ctx, "alice", "conn-1"))
	require.NoError(t, repo.MarkOnline(ctx, "alice", "conn-2"))

	require.NoError(t, repo.MarkOffline(ctx, "alice", "conn-1"))

	online, _ := repo.IsOnline(ctx, "alice")
	assert.True(t, online)

	require.NoError(t, repo.MarkOffline(ctx, "alice", "conn-2"))
	online, _ = repo.IsOnline(ctx, "alice")
	assert.False(t, online)
}
