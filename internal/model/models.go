// Package model defines the data models for the virtual pet game core.
package model

import "time"

// Account represents a wallet-linked player account with its points state.
// Points never go negative; Version increases monotonically on every
// persisted write.
type Account struct {
	WalletID          string               `json:"wallet_id" db:"wallet_id"`
	Points            int64                `json:"points" db:"points"`
	DailyPoints       int64                `json:"daily_points" db:"daily_points"`
	Multiplier        float64              `json:"multiplier" db:"multiplier"`
	ConsecutiveDays   int                  `json:"consecutive_days" db:"consecutive_days"`
	DaysActive        int                  `json:"days_active" db:"days_active"`
	ReferralCount     int                  `json:"referral_count" db:"referral_count"`
	GamesPlayed       int                  `json:"games_played" db:"games_played"`
	HighScore         int64                `json:"high_score" db:"high_score"`
	InteractionPoints int64                `json:"interaction_points" db:"interaction_points"`
	LastDailyBonus    time.Time            `json:"last_daily_bonus" db:"last_daily_bonus"`
	LastUpdate        time.Time            `json:"last_update" db:"last_update"`
	Cooldowns         map[string]time.Time `json:"cooldowns" db:"cooldowns"`
	Achievements      map[string]time.Time `json:"achievements" db:"achievements"`
	Version           int64                `json:"version" db:"version"`
	CreatedAt         time.Time            `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at" db:"updated_at"`
}

// NewAccount creates an account with zeroed balances and initialized maps.
func NewAccount(walletID string) *Account {
	now := time.Now()
	return &Account{
		WalletID:     walletID,
		Multiplier:   1.0,
		Cooldowns:    make(map[string]time.Time),
		Achievements: make(map[string]time.Time),
		LastUpdate:   now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Clone returns a deep copy with detached cooldown and achievement maps.
func (a *Account) Clone() *Account {
	clone := *a
	clone.Cooldowns = make(map[string]time.Time, len(a.Cooldowns))
	for k, v := range a.Cooldowns {
		clone.Cooldowns[k] = v
	}
	clone.Achievements = make(map[string]time.Time, len(a.Achievements))
	for k, v := range a.Achievements {
		clone.Achievements[k] = v
	}
	return &clone
}

// PetState represents a pet's vitality stats. Each stat is clamped to
// [0, 100]. Health is derived from the other four stats and recomputed on
// every mutation. IsDead latches true and is cleared only by a revive.
type PetState struct {
	WalletID        string    `json:"wallet_id" db:"wallet_id"`
	Food            float64   `json:"food" db:"food"`
	Happiness       float64   `json:"happiness" db:"happiness"`
	Cleanliness     float64   `json:"cleanliness" db:"cleanliness"`
	Energy          float64   `json:"energy" db:"energy"`
	Health          float64   `json:"health" db:"health"`
	IsDead          bool      `json:"is_dead" db:"is_dead"`
	QualityScore    float64   `json:"quality_score" db:"quality_score"`
	LastInteraction time.Time `json:"last_interaction" db:"last_interaction"`
	Version         int64     `json:"version" db:"version"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// Clone returns a copy of the pet state.
func (p *PetState) Clone() *PetState {
	clone := *p
	return &clone
}

// GameSession represents one ephemeral play session. At most one active
// session exists per owner at a time.
type GameSession struct {
	SessionID string         `json:"session_id" db:"session_id"`
	WalletID  string         `json:"wallet_id" db:"wallet_id"`
	GameState map[string]any `json:"game_state" db:"game_state"`
	IsActive  bool           `json:"is_active" db:"is_active"`
	Version   int64          `json:"version" db:"version"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" db:"updated_at"`
}

// Clone returns a deep copy with a detached state tree.
func (s *GameSession) Clone() *GameSession {
	clone := *s
	clone.GameState = CloneState(s.GameState)
	return &clone
}

// CloneState deep-copies a nested state tree. Nested map[string]any values
// are copied recursively; everything else is copied by value.
func CloneState(state map[string]any) map[string]any {
	out := make(map[string]any, len(state))
	for k, v := range state {
		if nested, ok := v.(map[string]any); ok {
			out[k] = CloneState(nested)
			continue
		}
		out[k] = v
	}
	return out
}

// PointTransaction is an immutable record of one points change.
// The sign of Amount matches Operation: earn/bonus/refund are non-negative,
// spend/penalty are non-positive.
type PointTransaction struct {
	ID        string            `json:"id" db:"id"`
	WalletID  string            `json:"wallet_id" db:"wallet_id"`
	Amount    int64             `json:"amount" db:"amount"`
	Operation string            `json:"operation" db:"operation"`
	Source    string            `json:"source" db:"source"`
	Metadata  map[string]string `json:"metadata" db:"metadata"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
}

// Transaction operations for categorizing points changes.
const (
	OpEarn    = "earn"
	OpSpend   = "spend"
	OpBonus   = "bonus"
	OpPenalty = "penalty"
	OpRefund  = "refund"
)

// Point sources. Gameplay, interaction and daily are subject to the daily
// cap; interaction and gameplay are cooldown-gated.
const (
	SourceInteraction = "interaction"
	SourceGameplay    = "gameplay"
	SourceDaily       = "daily"
	SourceReferral    = "referral"
	SourceAchievement = "achievement"
	SourcePassive     = "passive"
	SourceRevive      = "revive"
)

// Entity type tags used for cache keys and store dispatch.
const (
	EntityAccount = "account"
	EntityPet     = "pet"
	EntitySession = "session"
)

// CappedSources returns the sources whose awards count against the daily cap.
func CappedSources() []string {
	return []string{SourceGameplay, SourceInteraction, SourceDaily}
}

// CooldownSources returns the sources gated by a per-source cooldown.
func CooldownSources() []string {
	return []string{SourceInteraction, SourceGameplay}
}

// AccountKey returns the cache key for an account entity.
func AccountKey(walletID string) string { return EntityAccount + ":" + walletID }

// PetKey returns the cache key for a pet entity.
func PetKey(walletID string) string { return EntityPet + ":" + walletID }

// SessionKey returns the cache key for a session entity.
func SessionKey(sessionID string) string { return EntitySession + ":" + sessionID }
