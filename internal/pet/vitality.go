// Package pet provides the pet vitality state machine: clamped stats,
// derived health, the one-way death latch, decay, and revival.
package pet

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"virtual-pet-engine/internal/cache"
	"virtual-pet-engine/internal/config"
	"virtual-pet-engine/internal/model"
	"virtual-pet-engine/internal/pkg/clock"
	"virtual-pet-engine/internal/points"
	"virtual-pet-engine/internal/store"
)

// Common errors for pet operations.
var (
	ErrPetDead  = errors.New("pet is dead")
	ErrPetAlive = errors.New("pet is not dead")
)

// Interaction kinds.
const (
	InteractionFeed  = "feed"
	InteractionPlay  = "play"
	InteractionClean = "clean"
	InteractionRest  = "rest"
)

// overfeedPenaltyRate scales the health penalty for feeding beyond 100.
const overfeedPenaltyRate = 0.5

// Service owns pet state mutations and the decay loop. Writes go through
// the entity cache; the sync coordinator persists them.
type Service struct {
	cache  *cache.Cache
	store  store.Store
	engine *points.Engine
	clk    clock.Clock
	cfg    config.PetConfig

	mu        sync.Mutex
	active    map[string]struct{} // wallets with a loaded pet, decayed each tick
	lastDecay map[string]int64    // unix nanos of the last decay application

	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger zerolog.Logger
}

// NewService creates a pet service.
func NewService(c *cache.Cache, st store.Store, engine *points.Engine, clk clock.Clock, cfg config.PetConfig) *Service {
	return &Service{
		cache:     c,
		store:     st,
		engine:    engine,
		clk:       clk,
		cfg:       cfg,
		active:    make(map[string]struct{}),
		lastDecay: make(map[string]int64),
		logger:    log.With().Str("component", "pet").Logger(),
	}
}

// newPet creates a pet at baseline stats.
func (s *Service) newPet(walletID string) *model.PetState {
	now := s.clk.Now()
	pet := &model.PetState{
		WalletID:        walletID,
		Food:            s.cfg.BaselineStat,
		Happiness:       s.cfg.BaselineStat,
		Cleanliness:     s.cfg.BaselineStat,
		Energy:          s.cfg.BaselineStat,
		LastInteraction: now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	recomputeHealth(pet, 0)
	pet.QualityScore = pet.Health
	return pet
}

// GetPet reads a pet cache-first with store fallback, creating it at
// baseline on first interaction.
func (s *Service) GetPet(ctx context.Context, walletID string) (*model.PetState, error) {
	key := model.PetKey(walletID)
	if v, ok := s.cache.Get(key); ok {
		if pet, ok := v.(*model.PetState); ok {
			return pet, nil
		}
	}

	pet, err := s.store.GetPet(ctx, walletID)
	if errors.Is(err, store.ErrNotFound) {
		pet = s.newPet(walletID)
		s.cache.Set(key, pet)
		s.cache.QueueOperation(ctx, model.EntityPet, cache.OpCreate, pet)
		s.track(walletID)
		return pet, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pet: %w", err)
	}

	s.cache.Set(key, pet)
	s.cache.ClearDirty(key)
	s.track(walletID)
	return pet, nil
}

func (s *Service) track(walletID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[walletID] = struct{}{}
}

func (s *Service) writePet(ctx context.Context, pet *model.PetState) {
	pet.UpdatedAt = s.clk.Now()
	s.cache.Set(model.PetKey(pet.WalletID), pet)
	s.cache.QueueOperation(ctx, model.EntityPet, cache.OpUpdate, pet)
}

// Interact applies one interaction to the pet and awards interaction
// points. Interactions are rejected while the pet is dead.
func (s *Service) Interact(ctx context.Context, walletID, kind string, amount float64) (*model.PetState, error) {
	pet, err := s.GetPet(ctx, walletID)
	if err != nil {
		return nil, err
	}
	if pet.IsDead {
		return nil, ErrPetDead
	}

	var overfeed float64
	switch kind {
	case InteractionFeed:
		if excess := pet.Food + amount - 100; excess > 0 {
			overfeed = excess
		}
		pet.Food = clampStat(pet.Food + amount)
	case InteractionPlay:
		pet.Happiness = clampStat(pet.Happiness + amount)
		pet.Energy = clampStat(pet.Energy - amount/4)
	case InteractionClean:
		pet.Cleanliness = clampStat(pet.Cleanliness + amount)
	case InteractionRest:
		pet.Energy = clampStat(pet.Energy + amount)
	default:
		return nil, fmt.Errorf("unknown interaction %q", kind)
	}

	recomputeHealth(pet, overfeed)
	pet.LastInteraction = s.clk.Now()
	s.writePet(ctx, pet)

	if _, err := s.engine.AwardInteractionPoints(ctx, walletID, kind); err != nil {
		// The interaction already succeeded; points catch up later.
		s.logger.Warn().Err(err).Str("wallet", walletID).Msg("Interaction points not awarded")
	}
	return pet, nil
}

// Feed, Play, Clean and Rest are the named interaction operations.

func (s *Service) Feed(ctx context.Context, walletID string, amount float64) (*model.PetState, error) {
	return s.Interact(ctx, walletID, InteractionFeed, amount)
}

func (s *Service) Play(ctx context.Context, walletID string, amount float64) (*model.PetState, error) {
	return s.Interact(ctx, walletID, InteractionPlay, amount)
}

func (s *Service) Clean(ctx context.Context, walletID string, amount float64) (*model.PetState, error) {
	return s.Interact(ctx, walletID, InteractionClean, amount)
}

func (s *Service) Rest(ctx context.Context, walletID string, amount float64) (*model.PetState, error) {
	return s.Interact(ctx, walletID, InteractionRest, amount)
}

// Revive resets a dead pet to baseline stats at the cost of half the
// account's points. Invalid while the pet is alive.
func (s *Service) Revive(ctx context.Context, walletID string) (*model.PetState, error) {
	pet, err := s.GetPet(ctx, walletID)
	if err != nil {
		return nil, err
	}
	if !pet.IsDead {
		return nil, ErrPetAlive
	}

	account, err := s.engine.GetAccount(ctx, walletID)
	if err != nil {
		return nil, err
	}
	kept := int64(math.Floor(float64(account.Points) * (1 - s.cfg.ReviveCostShare)))
	cost := account.Points - kept
	if cost > 0 {
		if _, err := s.engine.DeductPoints(ctx, walletID, cost, model.SourceRevive, map[string]string{
			"reason": "revive",
		}); err != nil {
			return nil, fmt.Errorf("failed to charge revive: %w", err)
		}
	}

	pet.Food = s.cfg.BaselineStat
	pet.Happiness = s.cfg.BaselineStat
	pet.Cleanliness = s.cfg.BaselineStat
	pet.Energy = s.cfg.BaselineStat
	pet.IsDead = false
	recomputeHealth(pet, 0)
	pet.LastInteraction = s.clk.Now()
	s.writePet(ctx, pet)

	s.logger.Info().Str("wallet", walletID).Int64("cost", cost).Msg("Pet revived")
	return pet, nil
}

// recomputeHealth derives health from the four stats, minus an overfeeding
// penalty, and latches death at zero health or zero food. Quality tracks a
// rolling average of health.
func recomputeHealth(pet *model.PetState, overfeed float64) {
	health := 0.4*pet.Food + 0.2*pet.Happiness + 0.2*pet.Cleanliness + 0.2*pet.Energy
	health -= overfeed * overfeedPenaltyRate
	pet.Health = clampStat(health)
	if pet.Health <= 0 || pet.Food <= 0 {
		pet.Health = 0
		pet.IsDead = true
	}
	pet.QualityScore = 0.9*pet.QualityScore + 0.1*pet.Health
}

func clampStat(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
