// Package points provides the rule-evaluation engine for the points
// economy: multipliers, cooldowns, daily and lifetime caps, streaks, and
// one-time achievements. Account state is read cache-first and written back
// through the cache; the sync coordinator persists it.
package points

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"virtual-pet-engine/internal/cache"
	"virtual-pet-engine/internal/config"
	"virtual-pet-engine/internal/event"
	"virtual-pet-engine/internal/ledger"
	"virtual-pet-engine/internal/model"
	"virtual-pet-engine/internal/pkg/clock"
	"virtual-pet-engine/internal/pkg/lock"
	"virtual-pet-engine/internal/store"
)

// Common errors for points operations.
var (
	ErrInsufficientPoints  = errors.New("insufficient points")
	ErrDailyAlreadyClaimed = errors.New("daily bonus already claimed")
	ErrAccountUnavailable  = errors.New("account failed to load")
)

// Streak achievement milestones, in consecutive days.
var streakMilestones = []int{3, 7, 30}

// One-time achievement IDs.
const (
	AchievementFirstGame = "first_game"
	AchievementFiveGames = "five_games"
	achievementStreakFmt = "streak_%d"
)

// Result reports the outcome of an award operation. Success is false when
// the award was rejected (cooldown, cap exhausted, already claimed) without
// being an error.
type Result struct {
	Success       bool
	PointsAwarded int64
	NewTotal      int64
	Multiplier    float64
}

// pendingAward is a mutation rejected because the account failed to load,
// kept for replay after the next successful load.
type pendingAward struct {
	amount    int64
	source    string
	operation string
	metadata  map[string]string
}

// Engine evaluates points rules against Account state.
type Engine struct {
	cache    *cache.Cache
	fallback *cache.Fallback
	store    store.Store
	ledger   *ledger.Log
	bus      *event.Bus
	locks    *lock.WalletLock
	clk      clock.Clock
	cfg      config.PointsConfig

	mu      sync.Mutex
	pending map[string][]pendingAward

	logger zerolog.Logger
}

// NewEngine creates a points engine.
func NewEngine(
	c *cache.Cache,
	fallback *cache.Fallback,
	st store.Store,
	lg *ledger.Log,
	bus *event.Bus,
	locks *lock.WalletLock,
	clk clock.Clock,
	cfg config.PointsConfig,
) *Engine {
	return &Engine{
		cache:    c,
		fallback: fallback,
		store:    st,
		ledger:   lg,
		bus:      bus,
		locks:    locks,
		clk:      clk,
		cfg:      cfg,
		pending:  make(map[string][]pendingAward),
		logger:   log.With().Str("component", "points").Logger(),
	}
}

// loadAccount reads an account cache-first with store fallback, creating it
// on first interaction. A store failure marks the wallet blocked: the
// caller's mutation must not proceed onto a phantom zero-balance record.
func (e *Engine) loadAccount(ctx context.Context, walletID string) (*model.Account, error) {
	key := model.AccountKey(walletID)
	if v, ok := e.cache.Get(key); ok {
		if account, ok := v.(*model.Account); ok {
			return account, nil
		}
	}

	account, err := e.store.GetAccount(ctx, walletID)
	if errors.Is(err, store.ErrNotFound) {
		account = model.NewAccount(walletID)
		account.CreatedAt = e.clk.Now()
		account.LastUpdate = e.clk.Now()
		e.cache.Set(key, account)
		e.cache.QueueOperation(ctx, model.EntityAccount, cache.OpCreate, account)
		e.fallback.RememberAccount(account)
		return account, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountUnavailable, err)
	}

	e.cache.Set(key, account)
	e.cache.ClearDirty(key) // freshly loaded, nothing to persist
	e.fallback.RememberAccount(account)
	e.replayPending(ctx, account)
	return account, nil
}

// GetAccount reads an account without mutating it. When the store is
// unreachable the last known fallback copy is served; it is never
// authoritative.
func (e *Engine) GetAccount(ctx context.Context, walletID string) (*model.Account, error) {
	key := model.AccountKey(walletID)
	if v, ok := e.cache.Get(key); ok {
		if account, ok := v.(*model.Account); ok {
			return account, nil
		}
	}
	account, err := e.store.GetAccount(ctx, walletID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		if cached, ok := e.fallback.LastKnownAccount(walletID); ok {
			e.logger.Warn().Err(err).Str("wallet", walletID).Msg("Store unreachable, serving fallback account")
			return cached, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrAccountUnavailable, err)
	}
	if err != nil {
		return nil, err
	}
	e.fallback.RememberAccount(account)
	return account, nil
}

// writeAccount pushes the mutated account through the cache (marking it
// dirty) and mirrors it into the fallback. Leaderboard subscribers are
// notified of the points change.
func (e *Engine) writeAccount(ctx context.Context, account *model.Account) {
	account.LastUpdate = e.clk.Now()
	e.cache.Set(model.AccountKey(account.WalletID), account)
	e.cache.QueueOperation(ctx, model.EntityAccount, cache.OpUpdate, account)
	e.fallback.RememberAccount(account)
	if e.bus != nil {
		e.bus.Publish(event.Change{
			EntityType: event.EntityLeaderboard,
			ID:         account.WalletID,
			Value:      account.Points,
		})
	}
}

// AwardPoints applies the full award pipeline: cooldown gate, multiplier,
// daily reset, caps, transaction record, account write-back.
func (e *Engine) AwardPoints(ctx context.Context, walletID string, amount int64, source, operation string, metadata map[string]string) (*Result, error) {
	e.locks.Lock(walletID)
	defer e.locks.Unlock(walletID)

	account, err := e.loadAccount(ctx, walletID)
	if err != nil {
		e.queuePending(walletID, pendingAward{amount: amount, source: source, operation: operation, metadata: metadata})
		return nil, err
	}
	return e.awardLocked(ctx, account, amount, source, operation, metadata), nil
}

// awardLocked runs the award pipeline with the wallet lock held and the
// account loaded.
func (e *Engine) awardLocked(ctx context.Context, account *model.Account, amount int64, source, operation string, metadata map[string]string) *Result {
	now := e.clk.Now()

	// Cooldown gate.
	if window := cooldownFor(e.cfg, source); window > 0 {
		if last, ok := account.Cooldowns[source]; ok && now.Sub(last) < window {
			return &Result{Success: false, NewTotal: account.Points, Multiplier: Multiplier(e.cfg, account)}
		}
	}

	multiplier := Multiplier(e.cfg, account)
	pointsToAdd := int64(math.Floor(float64(amount) * multiplier))

	// Daily points reset on calendar-day change.
	if !sameCalendarDay(account.LastUpdate, now) {
		account.DailyPoints = 0
	}

	if isCapped(source) {
		cap := DailyCap(e.cfg, account.DaysActive)
		if account.DailyPoints+pointsToAdd > cap {
			pointsToAdd = cap - account.DailyPoints
		}
	}
	if source == model.SourceInteraction && account.InteractionPoints+pointsToAdd > e.cfg.InteractionLifetime {
		pointsToAdd = e.cfg.InteractionLifetime - account.InteractionPoints
	}
	if pointsToAdd <= 0 {
		return &Result{Success: false, NewTotal: account.Points, Multiplier: multiplier}
	}

	e.record(ctx, account.WalletID, pointsToAdd, operation, source, metadata)

	account.Points += pointsToAdd
	if isCapped(source) {
		account.DailyPoints += pointsToAdd
	}
	if source == model.SourceInteraction {
		account.InteractionPoints += pointsToAdd
	}
	if cooldownFor(e.cfg, source) > 0 {
		account.Cooldowns[source] = now
	}
	account.Multiplier = multiplier
	e.writeAccount(ctx, account)

	return &Result{
		Success:       true,
		PointsAwarded: pointsToAdd,
		NewTotal:      account.Points,
		Multiplier:    multiplier,
	}
}

// DeductPoints removes points, failing without mutation when the balance is
// insufficient.
func (e *Engine) DeductPoints(ctx context.Context, walletID string, amount int64, source string, metadata map[string]string) (*Result, error) {
	e.locks.Lock(walletID)
	defer e.locks.Unlock(walletID)

	account, err := e.loadAccount(ctx, walletID)
	if err != nil {
		return nil, err
	}
	if account.Points < amount {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientPoints, account.Points, amount)
	}

	e.record(ctx, walletID, -amount, model.OpSpend, source, metadata)
	account.Points -= amount
	e.writeAccount(ctx, account)

	return &Result{Success: true, PointsAwarded: -amount, NewTotal: account.Points, Multiplier: account.Multiplier}, nil
}

// AwardDailyBonus claims the once-per-calendar-day bonus. A claim exactly
// one day after the previous one extends the streak; a gap resets it to 1;
// a second claim on the same day is rejected.
func (e *Engine) AwardDailyBonus(ctx context.Context, walletID string) (*Result, error) {
	e.locks.Lock(walletID)
	defer e.locks.Unlock(walletID)

	account, err := e.loadAccount(ctx, walletID)
	if err != nil {
		return nil, err
	}

	now := e.clk.Now()
	if !account.LastDailyBonus.IsZero() {
		switch days := calendarDaysBetween(account.LastDailyBonus, now); {
		case days == 0:
			return nil, ErrDailyAlreadyClaimed
		case days == 1:
			account.ConsecutiveDays++
		default:
			account.ConsecutiveDays = 1
		}
	} else {
		account.ConsecutiveDays = 1
	}

	amount := e.cfg.DailyBase
	if account.ConsecutiveDays >= e.cfg.StreakMinDays {
		amount += e.cfg.StreakBonus
	}

	result := e.awardLocked(ctx, account, amount, model.SourceDaily, model.OpBonus, map[string]string{
		"consecutive_days": fmt.Sprintf("%d", account.ConsecutiveDays),
	})
	if !result.Success {
		// The cap swallowed the whole bonus. The claim is not consumed:
		// streak and claim bookkeeping stay untouched so the owner can
		// retry after the daily reset.
		return result, nil
	}

	account.DaysActive++
	account.LastDailyBonus = now
	e.writeAccount(ctx, account)

	for _, milestone := range streakMilestones {
		if account.ConsecutiveDays == milestone {
			e.awardAchievementLocked(ctx, account, fmt.Sprintf(achievementStreakFmt, milestone))
		}
	}

	return result, nil
}

// AwardAchievement unlocks a one-time achievement. Idempotent: a second
// call for the same account and ID awards nothing.
func (e *Engine) AwardAchievement(ctx context.Context, walletID, achievementID string) (*Result, error) {
	e.locks.Lock(walletID)
	defer e.locks.Unlock(walletID)

	account, err := e.loadAccount(ctx, walletID)
	if err != nil {
		return nil, err
	}
	return e.awardAchievementLocked(ctx, account, achievementID), nil
}

func (e *Engine) awardAchievementLocked(ctx context.Context, account *model.Account, achievementID string) *Result {
	if _, unlocked := account.Achievements[achievementID]; unlocked {
		return &Result{Success: false, NewTotal: account.Points, Multiplier: account.Multiplier}
	}
	account.Achievements[achievementID] = e.clk.Now()

	result := e.awardLocked(ctx, account, e.cfg.AchievementPoints, model.SourceAchievement, model.OpBonus, map[string]string{
		"achievement": achievementID,
	})
	if !result.Success {
		// The unlock stands even when the points were capped away.
		e.writeAccount(ctx, account)
	}
	e.logger.Info().Str("wallet", account.WalletID).Str("achievement", achievementID).Msg("Achievement unlocked")
	return result
}

// AwardGameplayPoints awards points for a finished game, scaling with score
// in blocks of 100, and tracks games played, high scores, and the
// first-game/five-games achievements.
func (e *Engine) AwardGameplayPoints(ctx context.Context, walletID string, score int64) (*Result, error) {
	e.locks.Lock(walletID)
	defer e.locks.Unlock(walletID)

	account, err := e.loadAccount(ctx, walletID)
	if err != nil {
		return nil, err
	}

	amount := GameplayBase(e.cfg, score)
	result := e.awardLocked(ctx, account, amount, model.SourceGameplay, model.OpEarn, map[string]string{
		"score": fmt.Sprintf("%d", score),
	})

	account.GamesPlayed++
	if score > account.HighScore {
		account.HighScore = score
	}
	e.writeAccount(ctx, account)

	if account.GamesPlayed == 1 {
		e.awardAchievementLocked(ctx, account, AchievementFirstGame)
	}
	if account.GamesPlayed == 5 {
		e.awardAchievementLocked(ctx, account, AchievementFiveGames)
	}

	return result, nil
}

// AwardInteractionPoints awards points for a pet interaction (feed, play,
// clean, rest). Subject to the interaction cooldown, the daily cap, and the
// lifetime interaction cap.
func (e *Engine) AwardInteractionPoints(ctx context.Context, walletID, kind string) (*Result, error) {
	return e.AwardPoints(ctx, walletID, e.cfg.InteractionBase, model.SourceInteraction, model.OpEarn, map[string]string{
		"interaction": kind,
	})
}

// AwardReferralPoints rewards a successful referral and raises the
// referral multiplier for future awards.
func (e *Engine) AwardReferralPoints(ctx context.Context, walletID, referredID string) (*Result, error) {
	e.locks.Lock(walletID)
	defer e.locks.Unlock(walletID)

	account, err := e.loadAccount(ctx, walletID)
	if err != nil {
		return nil, err
	}

	account.ReferralCount++
	result := e.awardLocked(ctx, account, e.cfg.ReferralReward, model.SourceReferral, model.OpBonus, map[string]string{
		"referred": referredID,
	})
	if !result.Success {
		e.writeAccount(ctx, account)
	}
	return result, nil
}

// Leaderboard returns the top accounts by points from the store.
func (e *Engine) Leaderboard(ctx context.Context, limit int) ([]*model.Account, error) {
	return e.store.GetTopAccounts(ctx, limit)
}

// record appends an immutable transaction to the ledger and persists it
// best-effort; a store failure never fails the award that already
// succeeded locally.
func (e *Engine) record(ctx context.Context, walletID string, amount int64, operation, source string, metadata map[string]string) {
	tx := model.PointTransaction{
		ID:        uuid.NewString(),
		WalletID:  walletID,
		Amount:    amount,
		Operation: operation,
		Source:    source,
		Metadata:  metadata,
		CreatedAt: e.clk.Now(),
	}
	if err := e.ledger.Append(tx); err != nil {
		e.logger.Error().Err(err).Str("operation", operation).Msg("Rejected malformed transaction")
		return
	}
	if err := e.store.CreateTransaction(ctx, &tx); err != nil {
		e.logger.Warn().Err(err).Str("wallet", walletID).Msg("Failed to persist transaction")
	}
}

func (e *Engine) queuePending(walletID string, award pendingAward) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending[walletID] = append(e.pending[walletID], award)
	e.logger.Warn().
		Str("wallet", walletID).
		Int("pending", len(e.pending[walletID])).
		Msg("Account unavailable, queued award for replay")
}

// replayPending re-applies awards that were rejected while the account
// could not be loaded. Runs with the wallet lock held.
func (e *Engine) replayPending(ctx context.Context, account *model.Account) {
	e.mu.Lock()
	queued := e.pending[account.WalletID]
	delete(e.pending, account.WalletID)
	e.mu.Unlock()

	for _, award := range queued {
		e.awardLocked(ctx, account, award.amount, award.source, award.operation, award.metadata)
	}
	if len(queued) > 0 {
		e.logger.Info().Str("wallet", account.WalletID).Int("replayed", len(queued)).Msg("Replayed pending awards")
	}
}
