package memory

import (
	"context"
	"testing"
	"time"

	"skillcall/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCall(id domain.CallID) *domain.Call {
	return &domain.Call{
		ID:        id,
		SessionID: "s1",
		From:      "alice",
		To:        "bob",
		State:     domain.CallInitiating,
		Origin:    domain.OriginMatched,
		CreatedAt: time.Now(),
	}
}

func TestCallStoreCreateGetRemove(t *testing.T) {
	ctx := context.Background()
	store := NewCallStore()

	call := newTestCall("c1")
	require.NoError(t, store.Create(ctx, call))
	assert.Error(t, store.Create(ctx, call))

	got, err := store.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, call.From, got.From)

	require.NoError(t, store.Remove(ctx, "c1"))
	_, err = store.Get(ctx, "c1")
	assert.ErrorIs(t, err, domain.ErrCallNotFound)
	assert.ErrorIs(t, store.Remove(ctx, "c1"), domain.ErrCallNotFound)
}

func TestCallStoreGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewCallStore()
	require.NoError(t, store.Create(ctx, newTestCall("c1")))

	got, _ := store.Get(ctx, "c1")
	got.State = domain.CallEnded

	again, _ := store.Get(ctx, "c1")
	assert.Equal(t, domain.CallInitiating, again.State)
}

func TestCallStoreUpdateVersioning(t *testing.T) {
	ctx := context.Background()
	store := NewCallStore()
	require.NoError(t, store.Create(ctx, newTestCall("c1")))

	first, _ := store.Get(ctx, "c1")
	second, _ := store.Get(ctx, "c1")

	first.State = domain.CallConnecting
	require.NoError(t, store.Update(ctx, first))
	assert.Equal(t, int64(1), first.Version)

	// The concurrent reader holds a stale version and must lose.
	second.State = domain.CallEnded
	assert.ErrorIs(t, store.Update(ctx, second), domain.ErrVersionConflict)

	got, _ := store.Get(ctx, "c1")
	assert.Equal(t, domain.CallConnecting, got.State)
}

func TestCallStoreListByUser(t *testing.T) {
	ctx := context.Background()
	store := NewCallStore()

	require.NoError(t, store.Create(ctx, newTestCall("c1")))
	other := newTestCall("c2")
	other.From, other.To = "carol", "dave"
	require.NoError(t, store.Create(ctx, other))

	calls, err := store.ListByUser(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, domain.CallID("c1"), calls[0].ID)

	calls, _ = store.ListByUser(ctx, "nobody")
	assert.Empty(t, calls)
}
