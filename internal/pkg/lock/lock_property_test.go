// Property-based tests for per-wallet locking.
package lock

import (
	"sync"
	"testing"

	"pgregory.net/rapid"
)

// TestWalletLockMutualExclusionProperty verifies that for any set of
// wallets and any number of concurrent workers, increments guarded by the
// wallet lock are never lost.
func TestWalletLockMutualExclusionProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		wl := NewWalletLock()

		wallets := rapid.SliceOfNDistinct(
			rapid.StringMatching(`wallet-[a-z0-9]{4}`), 1, 5,
			func(s string) string { return s },
		).Draw(rt, "wallets")
		perWallet := rapid.IntRange(1, 50).Draw(rt, "perWallet")

		counters := make(map[string]*int, len(wallets))
		for _, w := range wallets {
			counters[w] = new(int)
		}

		var wg sync.WaitGroup
		for _, w := range wallets {
			for i := 0; i < perWallet; i++ {
				wg.Add(1)
				go func(wallet string) {
					defer wg.Done()
					wl.Lock(wallet)
					defer wl.Unlock(wallet)
					*counters[wallet]++
				}(w)
			}
		}
		wg.Wait()

		for _, w := range wallets {
			if *counters[w] != perWallet {
				rt.Fatalf("wallet %s: lost increments, got %d want %d", w, *counters[w], perWallet)
			}
		}
	})
}
