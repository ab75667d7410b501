package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"virtual-pet-engine/internal/model"
)

// Memory is an in-process Store used by unit tests and offline development.
// Entities are deep-copied on the way in and out so callers never share
// state with the store.
type Memory struct {
	mu           sync.RWMutex
	accounts     map[string]*model.Account
	pets         map[string]*model.PetState
	sessions     map[string]*model.GameSession
	transactions []*model.PointTransaction
	forcedErr    error
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[string]*model.Account),
		pets:     make(map[string]*model.PetState),
		sessions: make(map[string]*model.GameSession),
	}
}

// Fail forces every subsequent operation to return err. Pass nil to restore
// normal behavior. Used by tests to simulate an unreachable store.
func (m *Memory) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forcedErr = err
}

func (m *Memory) failed() error {
	return m.forcedErr
}

// CreateAccount stores a new account.
func (m *Memory) CreateAccount(ctx context.Context, account *model.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed(); err != nil {
		return err
	}
	m.accounts[account.WalletID] = account.Clone()
	return nil
}

// GetAccount retrieves an account by wallet ID.
func (m *Memory) GetAccount(ctx context.Context, walletID string) (*model.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failed(); err != nil {
		return nil, err
	}
	account, ok := m.accounts[walletID]
	if !ok {
		return nil, ErrNotFound
	}
	return account.Clone(), nil
}

// UpdateAccount persists an account. The version bump derives from the
// stored copy, mirroring the SQL store, and is written back to the caller.
func (m *Memory) UpdateAccount(ctx context.Context, account *model.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed(); err != nil {
		return err
	}
	existing, ok := m.accounts[account.WalletID]
	if !ok {
		return ErrNotFound
	}
	account.Version = existing.Version + 1
	account.UpdatedAt = time.Now()
	m.accounts[account.WalletID] = account.Clone()
	return nil
}

// CreatePet stores a new pet state.
func (m *Memory) CreatePet(ctx context.Context, pet *model.PetState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed(); err != nil {
		return err
	}
	m.pets[pet.WalletID] = pet.Clone()
	return nil
}

// GetPet retrieves a pet state by owner wallet ID.
func (m *Memory) GetPet(ctx context.Context, walletID string) (*model.PetState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failed(); err != nil {
		return nil, err
	}
	pet, ok := m.pets[walletID]
	if !ok {
		return nil, ErrNotFound
	}
	return pet.Clone(), nil
}

// UpdatePet persists a pet state, bumping its version from the stored copy.
func (m *Memory) UpdatePet(ctx context.Context, pet *model.PetState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed(); err != nil {
		return err
	}
	existing, ok := m.pets[pet.WalletID]
	if !ok {
		return ErrNotFound
	}
	pet.Version = existing.Version + 1
	pet.UpdatedAt = time.Now()
	m.pets[pet.WalletID] = pet.Clone()
	return nil
}

// CreateSession stores a new game session.
func (m *Memory) CreateSession(ctx context.Context, session *model.GameSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed(); err != nil {
		return err
	}
	// At most one active session per owner: ending any previous one.
	for _, existing := range m.sessions {
		if existing.WalletID == session.WalletID && existing.IsActive {
			existing.IsActive = false
		}
	}
	m.sessions[session.SessionID] = session.Clone()
	return nil
}

// GetSession retrieves a session by ID.
func (m *Memory) GetSession(ctx context.Context, sessionID string) (*model.GameSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failed(); err != nil {
		return nil, err
	}
	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return session.Clone(), nil
}

// GetActiveSession retrieves the active session for an owner, if any.
func (m *Memory) GetActiveSession(ctx context.Context, walletID string) (*model.GameSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failed(); err != nil {
		return nil, err
	}
	for _, session := range m.sessions {
		if session.WalletID == walletID && session.IsActive {
			return session.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

// UpdateSession persists a session at the version the caller set. The
// session sync manager owns the version check, so no bump happens here.
func (m *Memory) UpdateSession(ctx context.Context, session *model.GameSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed(); err != nil {
		return err
	}
	if _, ok := m.sessions[session.SessionID]; !ok {
		return ErrNotFound
	}
	session.UpdatedAt = time.Now()
	m.sessions[session.SessionID] = session.Clone()
	return nil
}

// EndSession deactivates a session.
func (m *Memory) EndSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed(); err != nil {
		return err
	}
	session, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	session.IsActive = false
	session.UpdatedAt = time.Now()
	return nil
}

// DeleteEntity removes an entity by type tag and ID.
func (m *Memory) DeleteEntity(ctx context.Context, entityType, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed(); err != nil {
		return err
	}
	switch entityType {
	case model.EntityAccount:
		delete(m.accounts, id)
	case model.EntityPet:
		delete(m.pets, id)
	case model.EntitySession:
		delete(m.sessions, id)
	default:
		return ErrNotFound
	}
	return nil
}

// CreateTransaction appends a point transaction record.
func (m *Memory) CreateTransaction(ctx context.Context, tx *model.PointTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed(); err != nil {
		return err
	}
	clone := *tx
	m.transactions = append(m.transactions, &clone)
	return nil
}

// GetTransactions returns a wallet's transactions, newest first.
func (m *Memory) GetTransactions(ctx context.Context, walletID string, limit int) ([]*model.PointTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failed(); err != nil {
		return nil, err
	}
	var out []*model.PointTransaction
	for i := len(m.transactions) - 1; i >= 0 && len(out) < limit; i-- {
		if m.transactions[i].WalletID == walletID {
			clone := *m.transactions[i]
			out = append(out, &clone)
		}
	}
	return out, nil
}

// GetTopAccounts returns the top N accounts by points.
func (m *Memory) GetTopAccounts(ctx context.Context, limit int) ([]*model.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failed(); err != nil {
		return nil, err
	}
	accounts := make([]*model.Account, 0, len(m.accounts))
	for _, account := range m.accounts {
		accounts = append(accounts, account.Clone())
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].Points > accounts[j].Points
	})
	if len(accounts) > limit {
		accounts = accounts[:limit]
	}
	return accounts, nil
}
