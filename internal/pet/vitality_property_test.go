// Property-based tests for the pet vitality state machine.
package pet

import (
	"context"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// TestStatsAlwaysClampedProperty verifies that no sequence of interactions
// and decay ticks drives any stat or health outside [0, 100].
func TestStatsAlwaysClampedProperty(t *testing.T) {
	kinds := []string{InteractionFeed, InteractionPlay, InteractionClean, InteractionRest}

	rapid.Check(t, func(rt *rapid.T) {
		f := newPetFixture(t)
		ctx := context.Background()

		steps := rapid.IntRange(1, 30).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			if rapid.Bool().Draw(rt, "decay") {
				f.clk.Advance(time.Duration(rapid.IntRange(1, 120).Draw(rt, "minutes")) * time.Minute)
				f.service.DecayTick(ctx)
			} else {
				kind := kinds[rapid.IntRange(0, len(kinds)-1).Draw(rt, "kind")]
				amount := float64(rapid.IntRange(1, 200).Draw(rt, "amount"))
				// Interactions on a dead pet are rejected; that is fine here
				_, _ = f.service.Interact(ctx, "wallet-1", kind, amount)
			}

			pet, err := f.service.GetPet(ctx, "wallet-1")
			if err != nil {
				rt.Fatalf("get pet failed: %v", err)
			}
			for name, stat := range map[string]float64{
				"food":        pet.Food,
				"happiness":   pet.Happiness,
				"cleanliness": pet.Cleanliness,
				"energy":      pet.Energy,
				"health":      pet.Health,
			} {
				if stat < 0 || stat > 100 {
					rt.Fatalf("%s out of range: %f", name, stat)
				}
			}
		}
	})
}

// TestDeathLatchProperty verifies a dead pet stays dead under any further
// interactions and decay; only Revive clears the latch.
func TestDeathLatchProperty(t *testing.T) {
	kinds := []string{InteractionFeed, InteractionPlay, InteractionClean, InteractionRest}

	rapid.Check(t, func(rt *rapid.T) {
		f := newPetFixture(t)
		ctx := context.Background()

		killPet(t, f, "wallet-1")

		steps := rapid.IntRange(1, 20).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			if rapid.Bool().Draw(rt, "decay") {
				f.clk.Advance(time.Hour)
				f.service.DecayTick(ctx)
			} else {
				kind := kinds[rapid.IntRange(0, len(kinds)-1).Draw(rt, "kind")]
				if _, err := f.service.Interact(ctx, "wallet-1", kind, 50); err == nil {
					rt.Fatalf("interaction succeeded on a dead pet")
				}
			}

			pet, err := f.service.GetPet(ctx, "wallet-1")
			if err != nil {
				rt.Fatalf("get pet failed: %v", err)
			}
			if !pet.IsDead {
				rt.Fatalf("death latch cleared without revive")
			}
		}
	})
}
