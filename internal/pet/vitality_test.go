package pet

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"virtual-pet-engine/internal/cache"
	"virtual-pet-engine/internal/config"
	"virtual-pet-engine/internal/event"
	"virtual-pet-engine/internal/ledger"
	"virtual-pet-engine/internal/model"
	"virtual-pet-engine/internal/pkg/clock"
	"virtual-pet-engine/internal/pkg/lock"
	"virtual-pet-engine/internal/points"
	"virtual-pet-engine/internal/store"
)

func testPetConfig() config.PetConfig {
	return config.PetConfig{
		BaselineStat:    80,
		DecayTick:       time.Minute,
		DecayPerHour:    4,
		PassiveBase:     2,
		ReviveCostShare: 0.5,
	}
}

type petFixture struct {
	service *Service
	engine  *points.Engine
	store   *store.Memory
	cache   *cache.Cache
	clk     *clock.Fake
}

func newPetFixture(t *testing.T) *petFixture {
	t.Helper()
	mem := store.NewMemory()
	bus := event.NewBus()
	c := cache.New(mem, bus, 128)
	clk := clock.NewFake(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	engine := points.NewEngine(c, cache.NewFallback(), mem, ledger.New(), bus, lock.NewWalletLock(), clk, config.PointsConfig{
		DailyCapBase:        200,
		DailyCapMax:         500,
		InteractionCooldown: 30 * time.Second,
		InteractionBase:     5,
		InteractionLifetime: 10000,
		StreakMinDays:       3,
		StreakPerDayRate:    0.1,
		StreakMaxBonus:      1.0,
		ReferralRate:        0.05,
		ReferralMaxBonus:    0.5,
	})
	service := NewService(c, mem, engine, clk, testPetConfig())
	return &petFixture{service: service, engine: engine, store: mem, cache: c, clk: clk}
}

func TestGetPet_CreatesAtBaseline(t *testing.T) {
	f := newPetFixture(t)
	ctx := context.Background()

	pet, err := f.service.GetPet(ctx, "wallet-1")
	require.NoError(t, err)
	assert.Equal(t, 80.0, pet.Food)
	assert.Equal(t, 80.0, pet.Happiness)
	assert.Equal(t, 80.0, pet.Cleanliness)
	assert.Equal(t, 80.0, pet.Energy)
	assert.Equal(t, 80.0, pet.Health)
	assert.False(t, pet.IsDead)

	// Persisted through the queue
	stored, err := f.store.GetPet(ctx, "wallet-1")
	require.NoError(t, err)
	assert.Equal(t, 80.0, stored.Food)
}

func TestFeed_RaisesFoodAndAwardsPoints(t *testing.T) {
	f := newPetFixture(t)
	ctx := context.Background()

	pet, err := f.service.Feed(ctx, "wallet-1", 10)
	require.NoError(t, err)
	assert.Equal(t, 90.0, pet.Food)
	assert.False(t, pet.IsDead)

	account, err := f.engine.GetAccount(ctx, "wallet-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), account.Points)
}

func TestFeed_StatsClampAt100(t *testing.T) {
	f := newPetFixture(t)
	ctx := context.Background()

	pet, err := f.service.Feed(ctx, "wallet-1", 500)
	require.NoError(t, err)
	assert.Equal(t, 100.0, pet.Food)
}

func TestFeed_OverfeedingPenalizesHealth(t *testing.T) {
	f := newPetFixture(t)
	ctx := context.Background()

	// 80 + 40 overshoots 100 by 20; health takes the penalty
	pet, err := f.service.Feed(ctx, "wallet-1", 40)
	require.NoError(t, err)
	assert.Equal(t, 100.0, pet.Food)
	// 0.4*100 + 0.2*80*3 = 88, minus 20*0.5 = 78
	assert.InDelta(t, 78.0, pet.Health, 1e-9)
}

func TestPlay_RaisesHappinessCostsEnergy(t *testing.T) {
	f := newPetFixture(t)
	ctx := context.Background()

	pet, err := f.service.Play(ctx, "wallet-1", 20)
	require.NoError(t, err)
	assert.Equal(t, 100.0, pet.Happiness)
	assert.Equal(t, 75.0, pet.Energy)
}

func TestInteract_UnknownKind(t *testing.T) {
	f := newPetFixture(t)

	_, err := f.service.Interact(context.Background(), "wallet-1", "tickle", 10)
	assert.Error(t, err)
}

func TestInteract_RejectedWhileDead(t *testing.T) {
	f := newPetFixture(t)
	ctx := context.Background()

	killPet(t, f, "wallet-1")

	_, err := f.service.Feed(ctx, "wallet-1", 10)
	assert.ErrorIs(t, err, ErrPetDead)
	_, err = f.service.Play(ctx, "wallet-1", 10)
	assert.ErrorIs(t, err, ErrPetDead)
}

func TestDeath_LatchesAtZeroFood(t *testing.T) {
	f := newPetFixture(t)
	ctx := context.Background()

	_, err := f.service.GetPet(ctx, "wallet-1")
	require.NoError(t, err)

	// Neglect long enough for food to decay 80 points: 20 hours at 4/hour
	f.clk.Advance(21 * time.Hour)
	f.service.DecayTick(ctx)

	pet, err := f.service.GetPet(ctx, "wallet-1")
	require.NoError(t, err)
	assert.True(t, pet.IsDead)
	assert.Equal(t, 0.0, pet.Health)
}

func TestRevive(t *testing.T) {
	f := newPetFixture(t)
	ctx := context.Background()

	// Bank some points, then kill the pet
	_, err := f.engine.AwardPoints(ctx, "wallet-1", 101, model.SourceReferral, model.OpEarn, nil)
	require.NoError(t, err)
	killPet(t, f, "wallet-1")

	pet, err := f.service.Revive(ctx, "wallet-1")
	require.NoError(t, err)
	assert.False(t, pet.IsDead)
	assert.Equal(t, 80.0, pet.Food)
	assert.Equal(t, 80.0, pet.Health)

	// Half the points burned, floored remainder kept
	account, err := f.engine.GetAccount(ctx, "wallet-1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), account.Points)
}

func TestRevive_RejectedWhileAlive(t *testing.T) {
	f := newPetFixture(t)
	ctx := context.Background()

	_, err := f.service.GetPet(ctx, "wallet-1")
	require.NoError(t, err)

	_, err = f.service.Revive(ctx, "wallet-1")
	assert.ErrorIs(t, err, ErrPetAlive)
}

func TestDecayTick_ReducesStatsAndAwardsPassivePoints(t *testing.T) {
	f := newPetFixture(t)
	ctx := context.Background()

	_, err := f.service.GetPet(ctx, "wallet-1")
	require.NoError(t, err)

	f.clk.Advance(time.Hour)
	f.service.DecayTick(ctx)

	pet, err := f.service.GetPet(ctx, "wallet-1")
	require.NoError(t, err)
	assert.InDelta(t, 76.0, pet.Food, 1e-9)
	assert.InDelta(t, 76.0, pet.Energy, 1e-9)
	assert.False(t, pet.IsDead)

	// Passive income scaled by average stats: round(2 * 76/100) = 2
	account, err := f.engine.GetAccount(ctx, "wallet-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), account.Points)
}

func TestDecayTick_WindowDoesNotDoubleCount(t *testing.T) {
	f := newPetFixture(t)
	ctx := context.Background()

	_, err := f.service.GetPet(ctx, "wallet-1")
	require.NoError(t, err)

	f.clk.Advance(time.Hour)
	f.service.DecayTick(ctx)
	// Second tick with no time passed decays nothing further
	f.service.DecayTick(ctx)

	pet, err := f.service.GetPet(ctx, "wallet-1")
	require.NoError(t, err)
	assert.InDelta(t, 76.0, pet.Food, 1e-9)
}

func TestDecayTick_SkipsDeadPet(t *testing.T) {
	f := newPetFixture(t)
	ctx := context.Background()

	killPet(t, f, "wallet-1")
	before, err := f.service.GetPet(ctx, "wallet-1")
	require.NoError(t, err)

	f.clk.Advance(time.Hour)
	f.service.DecayTick(ctx)

	after, err := f.service.GetPet(ctx, "wallet-1")
	require.NoError(t, err)
	assert.Equal(t, before.Food, after.Food)

	// No passive income for a dead pet: no account was ever created
	_, err = f.engine.GetAccount(ctx, "wallet-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestQualityScore_TracksHealth(t *testing.T) {
	f := newPetFixture(t)
	ctx := context.Background()

	pet, err := f.service.GetPet(ctx, "wallet-1")
	require.NoError(t, err)
	initial := pet.QualityScore
	assert.Equal(t, 80.0, initial)

	// Neglect drags the rolling quality score down with health
	f.clk.Advance(10 * time.Hour)
	f.service.DecayTick(ctx)

	pet, err = f.service.GetPet(ctx, "wallet-1")
	require.NoError(t, err)
	assert.Less(t, pet.QualityScore, initial)
}

// killPet drives a pet to death through neglect.
func killPet(t *testing.T, f *petFixture, walletID string) {
	t.Helper()
	ctx := context.Background()
	_, err := f.service.GetPet(ctx, walletID)
	require.NoError(t, err)

	f.clk.Advance(30 * time.Hour)
	f.service.DecayTick(ctx)

	pet, err := f.service.GetPet(ctx, walletID)
	require.NoError(t, err)
	require.True(t, pet.IsDead)
}
