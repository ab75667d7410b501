package pet

import (
	"context"
	"math"
	"strconv"
	"time"

	"virtual-pet-engine/internal/model"
)

// Start launches the decay loop. Each tick decays every tracked pet
// proportionally to elapsed time and grants passive points to healthy ones.
func (s *Service) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		ticker := s.clk.NewTicker(s.cfg.DecayTick)
		defer ticker.Stop()

		s.logger.Info().Dur("tick", s.cfg.DecayTick).Msg("Decay loop started")
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C():
				s.DecayTick(runCtx)
			}
		}
	}()
}

// Stop halts the decay loop and waits for the current tick to finish.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info().Msg("Decay loop stopped")
}

// DecayTick applies one decay pass over every tracked pet.
func (s *Service) DecayTick(ctx context.Context) {
	s.mu.Lock()
	wallets := make([]string, 0, len(s.active))
	for w := range s.active {
		wallets = append(wallets, w)
	}
	s.mu.Unlock()

	for _, w := range wallets {
		if ctx.Err() != nil {
			return
		}
		s.decayOne(ctx, w)
	}
}

// decayOne reduces the pet's stats for the time elapsed since the last
// decay pass (or the last interaction, whichever is later) and awards
// passive points scaled by the pet's average stats.
func (s *Service) decayOne(ctx context.Context, walletID string) {
	pet, err := s.GetPet(ctx, walletID)
	if err != nil {
		s.logger.Warn().Err(err).Str("wallet", walletID).Msg("Decay skipped")
		return
	}

	now := s.clk.Now()
	since := pet.LastInteraction
	s.mu.Lock()
	if nanos, ok := s.lastDecay[walletID]; ok {
		if t := time.Unix(0, nanos); t.After(since) {
			since = t
		}
	}
	s.lastDecay[walletID] = now.UnixNano()
	s.mu.Unlock()

	elapsed := now.Sub(since)
	if elapsed <= 0 {
		return
	}

	if !pet.IsDead {
		amount := s.cfg.DecayPerHour * elapsed.Hours()
		pet.Food = clampStat(pet.Food - amount)
		pet.Happiness = clampStat(pet.Happiness - amount)
		pet.Cleanliness = clampStat(pet.Cleanliness - amount)
		pet.Energy = clampStat(pet.Energy - amount)
		recomputeHealth(pet, 0)
		s.writePet(ctx, pet)

		if pet.IsDead {
			s.logger.Info().Str("wallet", walletID).Msg("Pet died of neglect")
			return
		}
		s.awardPassive(ctx, pet)
	}
}

// awardPassive grants the baseline passive income scaled by the pet's
// average stats. The points engine applies the account multiplier.
func (s *Service) awardPassive(ctx context.Context, pet *model.PetState) {
	avg := (pet.Food + pet.Happiness + pet.Cleanliness + pet.Energy) / 4
	amount := int64(math.Round(float64(s.cfg.PassiveBase) * avg / 100))
	if amount <= 0 {
		return
	}
	if _, err := s.engine.AwardPoints(ctx, pet.WalletID, amount, model.SourcePassive, model.OpEarn, map[string]string{
		"health": strconv.FormatFloat(pet.Health, 'f', 1, 64),
	}); err != nil {
		s.logger.Warn().Err(err).Str("wallet", pet.WalletID).Msg("Passive points not awarded")
	}
}
