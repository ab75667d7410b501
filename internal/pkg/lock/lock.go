// Package lock provides per-wallet locking for concurrent points operations.
// Two callers mutating the same account are serialized; distinct wallets
// proceed in parallel.
package lock

import (
	"context"
	"sync"
	"time"
)

// walletMutex wraps a mutex with reference counting for cleanup.
type walletMutex struct {
	mu       sync.Mutex
	refCount int
}

// WalletLock provides per-wallet locking to prevent race conditions during
// points mutations.
type WalletLock struct {
	locks sync.Map // map[string]*walletMutex
	pool  sync.Pool
}

// NewWalletLock creates a new WalletLock instance.
func NewWalletLock() *WalletLock {
	return &WalletLock{
		pool: sync.Pool{
			New: func() any {
				return &walletMutex{}
			},
		},
	}
}

// getLock retrieves or creates a mutex for the given wallet ID.
func (wl *WalletLock) getLock(walletID string) *walletMutex {
	if v, ok := wl.locks.Load(walletID); ok {
		return v.(*walletMutex)
	}

	newLock := wl.pool.Get().(*walletMutex)
	newLock.refCount = 0

	actual, loaded := wl.locks.LoadOrStore(walletID, newLock)
	if loaded {
		// Another goroutine created the lock first, return ours to pool
		wl.pool.Put(newLock)
	}
	return actual.(*walletMutex)
}

// Lock acquires the lock for a wallet.
func (wl *WalletLock) Lock(walletID string) {
	lock := wl.getLock(walletID)
	lock.mu.Lock()
	lock.refCount++
}

// Unlock releases the lock for a wallet.
func (wl *WalletLock) Unlock(walletID string) {
	if v, ok := wl.locks.Load(walletID); ok {
		lock := v.(*walletMutex)
		lock.refCount--
		lock.mu.Unlock()
	}
}

// TryLock attempts to acquire the lock without blocking.
// Returns true if the lock was acquired, false otherwise.
func (wl *WalletLock) TryLock(walletID string) bool {
	lock := wl.getLock(walletID)
	if lock.mu.TryLock() {
		lock.refCount++
		return true
	}
	return false
}

// LockWithTimeout attempts to acquire the lock with a timeout.
// Returns true if the lock was acquired, false if timeout occurred.
func (wl *WalletLock) LockWithTimeout(ctx context.Context, walletID string, timeout time.Duration) bool {
	lock := wl.getLock(walletID)

	done := make(chan struct{})
	go func() {
		lock.mu.Lock()
		close(done)
	}()

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case <-done:
		lock.refCount++
		return true
	case <-timeoutCtx.Done():
		// The waiting goroutine will eventually acquire the lock; release
		// it again as soon as it does.
		go func() {
			<-done
			lock.mu.Unlock()
		}()
		return false
	}
}

// WithLock executes a function while holding the wallet's lock.
func (wl *WalletLock) WithLock(walletID string, fn func() error) error {
	wl.Lock(walletID)
	defer wl.Unlock(walletID)
	return fn()
}

// WithLockContext executes a function while holding the wallet's lock,
// with context support for cancellation.
func (wl *WalletLock) WithLockContext(ctx context.Context, walletID string, timeout time.Duration, fn func() error) error {
	if !wl.LockWithTimeout(ctx, walletID, timeout) {
		return ErrLockTimeout
	}
	defer wl.Unlock(walletID)

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fn()
	}
}
