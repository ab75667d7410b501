// Package store provides the persistent store contract and implementations.
// The core depends only on the Store interface; one implementation exists
// per deployment target.
package store

import (
	"context"
	"errors"

	"virtual-pet-engine/internal/model"
)

// Common errors for store operations.
var (
	ErrNotFound = errors.New("entity not found")
)

// Store is the durable storage contract for game entities. No
// transactionality is assumed across calls.
type Store interface {
	CreateAccount(ctx context.Context, account *model.Account) error
	GetAccount(ctx context.Context, walletID string) (*model.Account, error)
	UpdateAccount(ctx context.Context, account *model.Account) error

	CreatePet(ctx context.Context, pet *model.PetState) error
	GetPet(ctx context.Context, walletID string) (*model.PetState, error)
	UpdatePet(ctx context.Context, pet *model.PetState) error

	CreateSession(ctx context.Context, session *model.GameSession) error
	GetSession(ctx context.Context, sessionID string) (*model.GameSession, error)
	GetActiveSession(ctx context.Context, walletID string) (*model.GameSession, error)
	UpdateSession(ctx context.Context, session *model.GameSession) error
	EndSession(ctx context.Context, sessionID string) error

	DeleteEntity(ctx context.Context, entityType, id string) error

	CreateTransaction(ctx context.Context, tx *model.PointTransaction) error
	GetTransactions(ctx context.Context, walletID string, limit int) ([]*model.PointTransaction, error)

	GetTopAccounts(ctx context.Context, limit int) ([]*model.Account, error)
}
