package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"virtual-pet-engine/internal/event"
	"virtual-pet-engine/internal/model"
	"virtual-pet-engine/internal/store"
)

func TestCache_SetMarksDirtyAndPublishes(t *testing.T) {
	bus := event.NewBus()
	c := New(store.NewMemory(), bus, 8)

	var changes []event.Change
	unsubscribe := bus.Subscribe(model.EntityAccount, func(ch event.Change) {
		changes = append(changes, ch)
	})
	defer unsubscribe()

	account := model.NewAccount("wallet-1")
	c.Set(model.AccountKey("wallet-1"), account)

	got, ok := c.Get(model.AccountKey("wallet-1"))
	require.True(t, ok)
	assert.Equal(t, account, got)
	assert.Equal(t, []string{model.AccountKey("wallet-1")}, c.DirtyKeys())

	require.Len(t, changes, 1)
	assert.Equal(t, "wallet-1", changes[0].ID)
}

func TestCache_CopiesEntitiesInAndOut(t *testing.T) {
	c := New(store.NewMemory(), nil, 8)

	account := model.NewAccount("wallet-1")
	c.Set(model.AccountKey("wallet-1"), account)

	// Mutating the caller's copy does not leak into the cache
	account.Points = 999
	account.Cooldowns["ghost"] = account.CreatedAt

	got, ok := c.Get(model.AccountKey("wallet-1"))
	require.True(t, ok)
	cached := got.(*model.Account)
	assert.Equal(t, int64(0), cached.Points)
	assert.NotContains(t, cached.Cooldowns, "ghost")

	// And every read gets its own copy
	cached.Points = 500
	again, ok := c.Get(model.AccountKey("wallet-1"))
	require.True(t, ok)
	assert.Equal(t, int64(0), again.(*model.Account).Points)
}

func TestCache_ClearDirty(t *testing.T) {
	c := New(store.NewMemory(), nil, 8)

	c.Set("account:w1", model.NewAccount("w1"))
	c.ClearDirty("account:w1")
	assert.Empty(t, c.DirtyKeys())

	// Still cached
	assert.True(t, c.Has("account:w1"))
}

func TestCache_MarkDirtyRequiresEntry(t *testing.T) {
	c := New(store.NewMemory(), nil, 8)

	c.MarkDirty("account:missing")
	assert.Empty(t, c.DirtyKeys())

	c.Set("account:w1", model.NewAccount("w1"))
	c.ClearDirty("account:w1")
	c.MarkDirty("account:w1")
	assert.Equal(t, []string{"account:w1"}, c.DirtyKeys())
}

func TestCache_QueueOperationPersists(t *testing.T) {
	mem := store.NewMemory()
	c := New(mem, nil, 8)
	ctx := context.Background()

	account := model.NewAccount("wallet-1")
	c.QueueOperation(ctx, model.EntityAccount, OpCreate, account)

	stored, err := mem.GetAccount(ctx, "wallet-1")
	require.NoError(t, err)
	assert.Equal(t, "wallet-1", stored.WalletID)
	assert.Equal(t, 0, c.QueueLen())
}

func TestCache_QueueFailureSwallowed(t *testing.T) {
	mem := store.NewMemory()
	c := New(mem, nil, 8)
	ctx := context.Background()

	mem.Fail(assert.AnError)

	account := model.NewAccount("wallet-1")
	c.Set(model.AccountKey("wallet-1"), account)
	c.QueueOperation(ctx, model.EntityAccount, OpCreate, account)

	// The failure is logged and swallowed; the entity stays dirty for the
	// next sync cycle and the caller never sees an error.
	assert.Contains(t, c.DirtyKeys(), model.AccountKey("wallet-1"))
	assert.Equal(t, 0, c.QueueLen())

	mem.Fail(nil)
	_, err := mem.GetAccount(ctx, "wallet-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCache_QueueDelete(t *testing.T) {
	mem := store.NewMemory()
	c := New(mem, nil, 8)
	ctx := context.Background()

	account := model.NewAccount("wallet-1")
	require.NoError(t, mem.CreateAccount(ctx, account))

	c.QueueOperation(ctx, model.EntityAccount, OpDelete, "wallet-1")

	_, err := mem.GetAccount(ctx, "wallet-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCache_Clear(t *testing.T) {
	c := New(store.NewMemory(), nil, 8)

	c.Set("account:w1", model.NewAccount("w1"))
	c.Clear()

	assert.False(t, c.Has("account:w1"))
	assert.Empty(t, c.DirtyKeys())
	assert.Equal(t, 0, c.QueueLen())
}

func TestEntityTypeOf(t *testing.T) {
	assert.Equal(t, "account", EntityTypeOf("account:w1"))
	assert.Equal(t, "pet", EntityTypeOf("pet:w1"))
	assert.Equal(t, "session", EntityTypeOf("session:abc"))
	assert.Equal(t, "bare", EntityTypeOf("bare"))
}
