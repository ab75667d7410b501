package store

import (
	"context"
	"testing"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"virtual-pet-engine/internal/model"
)

// flaky fails the first n GetAccount calls, then recovers.
type flaky struct {
	*Memory
	remaining int
	calls     int
}

func (f *flaky) GetAccount(ctx context.Context, walletID string) (*model.Account, error) {
	f.calls++
	if f.remaining > 0 {
		f.remaining--
		return nil, assert.AnError
	}
	return f.Memory.GetAccount(ctx, walletID)
}

func fastBackoff() backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Millisecond
	b.MaxInterval = 5 * time.Millisecond
	return *b
}

func TestRetrying_RecoversFromTransientFailures(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	require.NoError(t, mem.CreateAccount(ctx, model.NewAccount("wallet-1")))

	inner := &flaky{Memory: mem, remaining: 2}
	r := NewRetrying(inner, 3, fastBackoff())

	account, err := r.GetAccount(ctx, "wallet-1")
	require.NoError(t, err)
	assert.Equal(t, "wallet-1", account.WalletID)
	assert.Equal(t, 3, inner.calls)
}

func TestRetrying_GivesUpAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	inner := &flaky{Memory: NewMemory(), remaining: 100}
	r := NewRetrying(inner, 2, fastBackoff())

	_, err := r.GetAccount(ctx, "wallet-1")
	assert.Error(t, err)
	assert.Equal(t, 3, inner.calls) // initial attempt plus two retries
}

func TestRetrying_NotFoundIsPermanent(t *testing.T) {
	ctx := context.Background()
	inner := &flaky{Memory: NewMemory()}
	r := NewRetrying(inner, 5, fastBackoff())

	_, err := r.GetAccount(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, inner.calls) // no retries for a definitive miss
}

func TestRetrying_PassesWritesThrough(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	r := NewRetrying(mem, 3, fastBackoff())

	account := model.NewAccount("wallet-1")
	require.NoError(t, r.CreateAccount(ctx, account))

	account.Points = 10
	require.NoError(t, r.UpdateAccount(ctx, account))

	got, err := r.GetAccount(ctx, "wallet-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.Points)
}
