package cache

import (
	lru "github.com/hashicorp/golang-lru"

	"virtual-pet-engine/internal/model"
)

const fallbackSize = 1024

// Fallback is a best-effort LRU mirror of the last known Account state,
// served only when the persistent store is unreachable. It is never
// authoritative and never used for conflict resolution.
type Fallback struct {
	accounts *lru.Cache
}

// NewFallback creates the fallback mirror.
func NewFallback() *Fallback {
	cache, _ := lru.New(fallbackSize)
	return &Fallback{accounts: cache}
}

// RememberAccount mirrors an account after a successful load or write. The
// mirror holds a deep copy, including the cooldown and achievement maps,
// so later mutations of the live account never reach it.
func (f *Fallback) RememberAccount(account *model.Account) {
	if account == nil {
		return
	}
	f.accounts.Add(account.WalletID, account.Clone())
}

// LastKnownAccount returns a copy of the mirrored account state, if any.
func (f *Fallback) LastKnownAccount(walletID string) (*model.Account, bool) {
	v, ok := f.accounts.Get(walletID)
	if !ok {
		return nil, false
	}
	return v.(*model.Account).Clone(), true
}
