package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"virtual-pet-engine/internal/cache"
	"virtual-pet-engine/internal/model"
	"virtual-pet-engine/internal/pkg/clock"
	"virtual-pet-engine/internal/store"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *cache.Cache, *store.Memory, *clock.Fake) {
	t.Helper()
	mem := store.NewMemory()
	c := cache.New(mem, nil, 16)
	clk := clock.NewFake(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	coordinator := New(c, mem, clk, Config{
		Interval:      5 * time.Second,
		ForceAttempts: 10,
		ForceDelay:    100 * time.Millisecond,
	})
	return coordinator, c, mem, clk
}

func TestSynchronize_PersistsDirtyEntities(t *testing.T) {
	coordinator, c, mem, clk := newTestCoordinator(t)
	ctx := context.Background()

	account := model.NewAccount("wallet-1")
	account.Points = 50
	c.Set(model.AccountKey("wallet-1"), account)

	pet := &model.PetState{WalletID: "wallet-1", Food: 80}
	c.Set(model.PetKey("wallet-1"), pet)

	assert.True(t, coordinator.Synchronize(ctx))

	storedAccount, err := mem.GetAccount(ctx, "wallet-1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), storedAccount.Points)

	storedPet, err := mem.GetPet(ctx, "wallet-1")
	require.NoError(t, err)
	assert.Equal(t, 80.0, storedPet.Food)

	assert.Empty(t, c.DirtyKeys())
	assert.Equal(t, clk.Now(), coordinator.LastSyncTime())
}

func TestSynchronize_CreatesThenUpdates(t *testing.T) {
	coordinator, c, mem, _ := newTestCoordinator(t)
	ctx := context.Background()

	account := model.NewAccount("wallet-1")
	c.Set(model.AccountKey("wallet-1"), account)
	require.True(t, coordinator.Synchronize(ctx))

	account.Points = 10
	c.Set(model.AccountKey("wallet-1"), account)
	require.True(t, coordinator.Synchronize(ctx))

	stored, err := mem.GetAccount(ctx, "wallet-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), stored.Points)
	assert.Equal(t, int64(1), stored.Version) // one create, one update
}

func TestSynchronize_PartialFailureStillSucceeds(t *testing.T) {
	coordinator, c, mem, _ := newTestCoordinator(t)
	ctx := context.Background()

	c.Set(model.AccountKey("wallet-1"), model.NewAccount("wallet-1"))

	var statuses []Status
	unsubscribe := coordinator.AddSyncListener(func(s Status) {
		statuses = append(statuses, s)
	})
	defer unsubscribe()

	mem.Fail(assert.AnError)
	assert.True(t, coordinator.Synchronize(ctx))

	// Cycle still ends in success; the entity stays dirty for the next one
	assert.Equal(t, []Status{StatusSyncing, StatusSuccess, StatusIdle}, statuses)
	assert.Contains(t, c.DirtyKeys(), model.AccountKey("wallet-1"))

	mem.Fail(nil)
	assert.True(t, coordinator.Synchronize(ctx))
	assert.Empty(t, c.DirtyKeys())

	_, err := mem.GetAccount(ctx, "wallet-1")
	assert.NoError(t, err)
}

func TestSynchronize_NotReentrant(t *testing.T) {
	coordinator, c, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	// A listener observing the syncing state cannot start a nested cycle
	var nested bool
	unsubscribe := coordinator.AddSyncListener(func(s Status) {
		if s == StatusSyncing {
			nested = coordinator.Synchronize(ctx)
		}
	})
	defer unsubscribe()

	c.Set(model.AccountKey("wallet-1"), model.NewAccount("wallet-1"))
	assert.True(t, coordinator.Synchronize(ctx))
	assert.False(t, nested)
}

func TestForceSynchronize(t *testing.T) {
	coordinator, c, mem, _ := newTestCoordinator(t)
	ctx := context.Background()

	c.Set(model.AccountKey("wallet-1"), model.NewAccount("wallet-1"))
	assert.True(t, coordinator.ForceSynchronize(ctx))

	_, err := mem.GetAccount(ctx, "wallet-1")
	assert.NoError(t, err)
}

func TestAddSyncListener_Unsubscribe(t *testing.T) {
	coordinator, _, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	var calls int
	unsubscribe := coordinator.AddSyncListener(func(Status) { calls++ })

	require.True(t, coordinator.Synchronize(ctx))
	after := calls
	assert.Greater(t, after, 0)

	unsubscribe()
	require.True(t, coordinator.Synchronize(ctx))
	assert.Equal(t, after, calls)
}

func TestPeriodicLoop_FlushesOnTick(t *testing.T) {
	coordinator, c, mem, clk := newTestCoordinator(t)
	ctx := context.Background()

	c.Set(model.AccountKey("wallet-1"), model.NewAccount("wallet-1"))

	coordinator.Start(ctx)
	defer coordinator.Stop()

	clk.Advance(5 * time.Second)

	assert.Eventually(t, func() bool {
		_, err := mem.GetAccount(ctx, "wallet-1")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPauseAndResume(t *testing.T) {
	coordinator, c, mem, clk := newTestCoordinator(t)
	ctx := context.Background()

	c.Set(model.AccountKey("wallet-1"), model.NewAccount("wallet-1"))
	coordinator.Start(ctx)
	defer coordinator.Stop()

	// Pause flushes immediately
	coordinator.Pause(ctx)
	_, err := mem.GetAccount(ctx, "wallet-1")
	assert.NoError(t, err)

	// While paused, ticks do not sync new changes
	account := model.NewAccount("wallet-2")
	c.Set(model.AccountKey("wallet-2"), account)
	clk.Advance(5 * time.Second)
	time.Sleep(50 * time.Millisecond)
	_, err = mem.GetAccount(ctx, "wallet-2")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Resume re-enables the loop
	coordinator.Resume()
	clk.Advance(5 * time.Second)
	assert.Eventually(t, func() bool {
		_, err := mem.GetAccount(ctx, "wallet-2")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStop_PerformsFinalFlush(t *testing.T) {
	coordinator, c, mem, _ := newTestCoordinator(t)
	ctx := context.Background()

	coordinator.Start(ctx)
	c.Set(model.AccountKey("wallet-1"), model.NewAccount("wallet-1"))

	coordinator.Stop()

	_, err := mem.GetAccount(ctx, "wallet-1")
	assert.NoError(t, err)
}

// gatedStore blocks account writes until released, holding a sync cycle
// open so overlap can be observed.
type gatedStore struct {
	*store.Memory
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) UpdateAccount(ctx context.Context, account *model.Account) error {
	g.entered <- struct{}{}
	<-g.release
	return g.Memory.UpdateAccount(ctx, account)
}

func TestSynchronize_SingleFlightAcrossGoroutines(t *testing.T) {
	mem := store.NewMemory()
	gated := &gatedStore{Memory: mem, entered: make(chan struct{}), release: make(chan struct{})}
	c := cache.New(gated, nil, 16)
	clk := clock.NewFake(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	coordinator := New(c, gated, clk, Config{Interval: 5 * time.Second})
	ctx := context.Background()

	account := model.NewAccount("wallet-1")
	require.NoError(t, mem.CreateAccount(ctx, account))
	c.Set(model.AccountKey("wallet-1"), account)

	done := make(chan bool, 1)
	go func() { done <- coordinator.Synchronize(ctx) }()

	// The first cycle is parked inside the store write; a second caller
	// must be turned away instead of entering the same cycle.
	<-gated.entered
	assert.Equal(t, StatusSyncing, coordinator.Status())
	assert.False(t, coordinator.Synchronize(ctx))

	close(gated.release)
	assert.True(t, <-done)
	assert.Equal(t, StatusIdle, coordinator.Status())
}
