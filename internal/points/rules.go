package points

import (
	"math"
	"time"

	"virtual-pet-engine/internal/config"
	"virtual-pet-engine/internal/model"
)

// StreakMultiplier computes the streak bonus multiplier: below the minimum
// threshold it is exactly 1; above it, it grows per consecutive day up to
// the configured cap.
func StreakMultiplier(cfg config.PointsConfig, consecutiveDays int) float64 {
	if consecutiveDays < cfg.StreakMinDays {
		return 1.0
	}
	bonus := float64(consecutiveDays-cfg.StreakMinDays) * cfg.StreakPerDayRate
	return 1.0 + math.Min(bonus, cfg.StreakMaxBonus)
}

// ReferralMultiplier computes the referral bonus multiplier, capped.
func ReferralMultiplier(cfg config.PointsConfig, referralCount int) float64 {
	bonus := float64(referralCount) * cfg.ReferralRate
	return 1.0 + math.Min(bonus, cfg.ReferralMaxBonus)
}

// Multiplier computes the combined account multiplier.
func Multiplier(cfg config.PointsConfig, account *model.Account) float64 {
	return StreakMultiplier(cfg, account.ConsecutiveDays) * ReferralMultiplier(cfg, account.ReferralCount)
}

// DailyCap returns the daily points cap for an account, growing with
// account age up to a maximum.
func DailyCap(cfg config.PointsConfig, daysActive int) int64 {
	cap := cfg.DailyCapBase + cfg.DailyCapPerDay*int64(daysActive)
	if cap > cfg.DailyCapMax {
		cap = cfg.DailyCapMax
	}
	return cap
}

// GameplayBase computes the base gameplay award: a fixed base plus a bonus
// per full block of 100 score.
func GameplayBase(cfg config.PointsConfig, score int64) int64 {
	if score < 0 {
		score = 0
	}
	return cfg.GameplayBase + (score/100)*cfg.GameplayPerBlock
}

// isCapped reports whether a source counts against the daily cap.
func isCapped(source string) bool {
	for _, s := range model.CappedSources() {
		if s == source {
			return true
		}
	}
	return false
}

// cooldownFor returns the cooldown window for a source, zero when the
// source is not cooldown-gated.
func cooldownFor(cfg config.PointsConfig, source string) time.Duration {
	switch source {
	case model.SourceInteraction:
		return cfg.InteractionCooldown
	case model.SourceGameplay:
		return cfg.GameplayCooldown
	}
	return 0
}

// sameCalendarDay reports whether two times fall on the same local
// calendar day.
func sameCalendarDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// calendarDaysBetween returns the number of local calendar-day boundaries
// crossed between a and b.
func calendarDaysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	start := time.Date(ay, am, ad, 0, 0, 0, 0, a.Location())
	end := time.Date(by, bm, bd, 0, 0, 0, 0, b.Location())
	return int(end.Sub(start).Hours() / 24)
}
