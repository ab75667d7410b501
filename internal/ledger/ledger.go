// Package ledger provides the append-only, in-process transaction log.
package ledger

import (
	"errors"
	"sync"

	"virtual-pet-engine/internal/model"
)

// ErrSignMismatch is returned when a transaction's amount sign does not
// match its operation.
var ErrSignMismatch = errors.New("transaction amount sign does not match operation")

// Subscriber receives every appended transaction.
type Subscriber func(tx model.PointTransaction)

// Log is an append-only ledger of point transactions. Records are copied on
// the way in and out and never mutated or deleted.
type Log struct {
	mu      sync.RWMutex
	entries []model.PointTransaction
	nextID  int
	subs    map[int]Subscriber
}

// New creates an empty transaction log.
func New() *Log {
	return &Log{subs: make(map[int]Subscriber)}
}

// Append records a transaction and notifies subscribers synchronously.
// Earn/bonus/refund amounts must be non-negative, spend/penalty
// non-positive.
func (l *Log) Append(tx model.PointTransaction) error {
	switch tx.Operation {
	case model.OpEarn, model.OpBonus, model.OpRefund:
		if tx.Amount < 0 {
			return ErrSignMismatch
		}
	case model.OpSpend, model.OpPenalty:
		if tx.Amount > 0 {
			return ErrSignMismatch
		}
	}

	l.mu.Lock()
	l.entries = append(l.entries, tx)
	subs := make([]Subscriber, 0, len(l.subs))
	for _, fn := range l.subs {
		subs = append(subs, fn)
	}
	l.mu.Unlock()

	for _, fn := range subs {
		fn(tx)
	}
	return nil
}

// Subscribe registers a subscriber and returns an unsubscribe function.
func (l *Log) Subscribe(fn Subscriber) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextID
	l.nextID++
	l.subs[id] = fn
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.subs, id)
	}
}

// All returns a copy of every recorded transaction in append order.
func (l *Log) All() []model.PointTransaction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]model.PointTransaction, len(l.entries))
	copy(out, l.entries)
	return out
}

// ForWallet returns a wallet's transactions in append order.
func (l *Log) ForWallet(walletID string) []model.PointTransaction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []model.PointTransaction
	for _, tx := range l.entries {
		if tx.WalletID == walletID {
			out = append(out, tx)
		}
	}
	return out
}

// Len returns the number of recorded transactions.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
