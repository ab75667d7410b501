package store

import (
	"context"
	"errors"

	backoff "github.com/cenkalti/backoff/v4"

	"virtual-pet-engine/internal/model"
)

// Retrying decorates a Store with bounded exponential-backoff retries for
// transient failures. ErrNotFound is never retried. The sync coordinator
// persists through a Retrying store so each cycle gets a few quick attempts
// before the entity is left dirty for the next cycle.
type Retrying struct {
	inner Store
	cfg   RetryConfig
}

// RetryConfig bounds the retry loop.
type RetryConfig struct {
	MaxAttempts uint64
	Base        backoff.ExponentialBackOff
}

// NewRetrying wraps inner with maxAttempts retries starting at base backoff.
func NewRetrying(inner Store, maxAttempts uint64, base backoff.ExponentialBackOff) *Retrying {
	return &Retrying{inner: inner, cfg: RetryConfig{MaxAttempts: maxAttempts, Base: base}}
}

func (r *Retrying) do(ctx context.Context, op func() error) error {
	exp := r.cfg.Base
	exp.Reset()
	return backoff.Retry(func() error {
		err := op()
		if errors.Is(err, ErrNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(&exp, r.cfg.MaxAttempts), ctx))
}

// CreateAccount implements Store.
func (r *Retrying) CreateAccount(ctx context.Context, account *model.Account) error {
	return r.do(ctx, func() error { return r.inner.CreateAccount(ctx, account) })
}

// GetAccount implements Store.
func (r *Retrying) GetAccount(ctx context.Context, walletID string) (*model.Account, error) {
	var account *model.Account
	err := r.do(ctx, func() error {
		var err error
		account, err = r.inner.GetAccount(ctx, walletID)
		return err
	})
	return account, err
}

// UpdateAccount implements Store.
func (r *Retrying) UpdateAccount(ctx context.Context, account *model.Account) error {
	return r.do(ctx, func() error { return r.inner.UpdateAccount(ctx, account) })
}

// CreatePet implements Store.
func (r *Retrying) CreatePet(ctx context.Context, pet *model.PetState) error {
	return r.do(ctx, func() error { return r.inner.CreatePet(ctx, pet) })
}

// GetPet implements Store.
func (r *Retrying) GetPet(ctx context.Context, walletID string) (*model.PetState, error) {
	var pet *model.PetState
	err := r.do(ctx, func() error {
		var err error
		pet, err = r.inner.GetPet(ctx, walletID)
		return err
	})
	return pet, err
}

// UpdatePet implements Store.
func (r *Retrying) UpdatePet(ctx context.Context, pet *model.PetState) error {
	return r.do(ctx, func() error { return r.inner.UpdatePet(ctx, pet) })
}

// CreateSession implements Store.
func (r *Retrying) CreateSession(ctx context.Context, session *model.GameSession) error {
	return r.do(ctx, func() error { return r.inner.CreateSession(ctx, session) })
}

// GetSession implements Store.
func (r *Retrying) GetSession(ctx context.Context, sessionID string) (*model.GameSession, error) {
	var session *model.GameSession
	err := r.do(ctx, func() error {
		var err error
		session, err = r.inner.GetSession(ctx, sessionID)
		return err
	})
	return session, err
}

// GetActiveSession implements Store.
func (r *Retrying) GetActiveSession(ctx context.Context, walletID string) (*model.GameSession, error) {
	var session *model.GameSession
	err := r.do(ctx, func() error {
		var err error
		session, err = r.inner.GetActiveSession(ctx, walletID)
		return err
	})
	return session, err
}

// UpdateSession implements Store.
func (r *Retrying) UpdateSession(ctx context.Context, session *model.GameSession) error {
	return r.do(ctx, func() error { return r.inner.UpdateSession(ctx, session) })
}

// EndSession implements Store.
func (r *Retrying) EndSession(ctx context.Context, sessionID string) error {
	return r.do(ctx, func() error { return r.inner.EndSession(ctx, sessionID) })
}

// DeleteEntity implements Store.
func (r *Retrying) DeleteEntity(ctx context.Context, entityType, id string) error {
	return r.do(ctx, func() error { return r.inner.DeleteEntity(ctx, entityType, id) })
}

// CreateTransaction implements Store.
func (r *Retrying) CreateTransaction(ctx context.Context, tx *model.PointTransaction) error {
	return r.do(ctx, func() error { return r.inner.CreateTransaction(ctx, tx) })
}

// GetTransactions implements Store.
func (r *Retrying) GetTransactions(ctx context.Context, walletID string, limit int) ([]*model.PointTransaction, error) {
	var txs []*model.PointTransaction
	err := r.do(ctx, func() error {
		var err error
		txs, err = r.inner.GetTransactions(ctx, walletID, limit)
		return err
	})
	return txs, err
}

// GetTopAccounts implements Store.
func (r *Retrying) GetTopAccounts(ctx context.Context, limit int) ([]*model.Account, error) {
	var accounts []*model.Account
	err := r.do(ctx, func() error {
		var err error
		accounts, err = r.inner.GetTopAccounts(ctx, limit)
		return err
	})
	return accounts, err
}
