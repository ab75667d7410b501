package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"virtual-pet-engine/internal/model"
)

// Postgres is the PostgreSQL Store implementation backed by a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres store on the given pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const accountColumns = `wallet_id, points, daily_points, multiplier, consecutive_days,
		days_active, referral_count, games_played, high_score, interaction_points,
		last_daily_bonus, last_update, cooldowns, achievements, version, created_at, updated_at`

func scanAccount(row pgx.Row) (*model.Account, error) {
	var account model.Account
	var cooldowns, achievements []byte
	err := row.Scan(
		&account.WalletID,
		&account.Points,
		&account.DailyPoints,
		&account.Multiplier,
		&account.ConsecutiveDays,
		&account.DaysActive,
		&account.ReferralCount,
		&account.GamesPlayed,
		&account.HighScore,
		&account.InteractionPoints,
		&account.LastDailyBonus,
		&account.LastUpdate,
		&cooldowns,
		&achievements,
		&account.Version,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(cooldowns, &account.Cooldowns); err != nil {
		return nil, fmt.Errorf("failed to decode cooldowns: %w", err)
	}
	if err := json.Unmarshal(achievements, &account.Achievements); err != nil {
		return nil, fmt.Errorf("failed to decode achievements: %w", err)
	}
	return &account, nil
}

func encodeAccountMaps(account *model.Account) ([]byte, []byte, error) {
	cooldowns, err := json.Marshal(account.Cooldowns)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode cooldowns: %w", err)
	}
	achievements, err := json.Marshal(account.Achievements)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode achievements: %w", err)
	}
	return cooldowns, achievements, nil
}

// CreateAccount inserts a new account row.
func (p *Postgres) CreateAccount(ctx context.Context, account *model.Account) error {
	const query = `
		INSERT INTO accounts (wallet_id, points, daily_points, multiplier, consecutive_days,
			days_active, referral_count, games_played, high_score, interaction_points,
			last_daily_bonus, last_update, cooldowns, achievements, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW(), NOW())
	`

	cooldowns, achievements, err := encodeAccountMaps(account)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, query,
		account.WalletID, account.Points, account.DailyPoints, account.Multiplier,
		account.ConsecutiveDays, account.DaysActive, account.ReferralCount,
		account.GamesPlayed, account.HighScore, account.InteractionPoints,
		account.LastDailyBonus, account.LastUpdate, cooldowns, achievements, account.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// GetAccount retrieves an account by wallet ID.
// Returns ErrNotFound if no such account exists.
func (p *Postgres) GetAccount(ctx context.Context, walletID string) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE wallet_id = $1`

	account, err := scanAccount(p.pool.QueryRow(ctx, query, walletID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// UpdateAccount persists the full account state, bumping its version.
// The caller's struct is updated with the persisted version.
func (p *Postgres) UpdateAccount(ctx context.Context, account *model.Account) error {
	const query = `
		UPDATE accounts
		SET points = $2, daily_points = $3, multiplier = $4, consecutive_days = $5,
			days_active = $6, referral_count = $7, games_played = $8, high_score = $9,
			interaction_points = $10, last_daily_bonus = $11, last_update = $12,
			cooldowns = $13, achievements = $14, version = version + 1, updated_at = NOW()
		WHERE wallet_id = $1
		RETURNING version, updated_at
	`

	cooldowns, achievements, err := encodeAccountMaps(account)
	if err != nil {
		return err
	}
	err = p.pool.QueryRow(ctx, query,
		account.WalletID, account.Points, account.DailyPoints, account.Multiplier,
		account.ConsecutiveDays, account.DaysActive, account.ReferralCount,
		account.GamesPlayed, account.HighScore, account.InteractionPoints,
		account.LastDailyBonus, account.LastUpdate, cooldowns, achievements,
	).Scan(&account.Version, &account.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to update account: %w", err)
	}
	return nil
}

// CreatePet inserts a new pet state row.
func (p *Postgres) CreatePet(ctx context.Context, pet *model.PetState) error {
	const query = `
		INSERT INTO pet_states (wallet_id, food, happiness, cleanliness, energy, health,
			is_dead, quality_score, last_interaction, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
	`

	_, err := p.pool.Exec(ctx, query,
		pet.WalletID, pet.Food, pet.Happiness, pet.Cleanliness, pet.Energy,
		pet.Health, pet.IsDead, pet.QualityScore, pet.LastInteraction, pet.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to create pet: %w", err)
	}
	return nil
}

// GetPet retrieves a pet state by owner wallet ID.
func (p *Postgres) GetPet(ctx context.Context, walletID string) (*model.PetState, error) {
	const query = `
		SELECT wallet_id, food, happiness, cleanliness, energy, health, is_dead,
			quality_score, last_interaction, version, created_at, updated_at
		FROM pet_states
		WHERE wallet_id = $1
	`

	var pet model.PetState
	err := p.pool.QueryRow(ctx, query, walletID).Scan(
		&pet.WalletID, &pet.Food, &pet.Happiness, &pet.Cleanliness, &pet.Energy,
		&pet.Health, &pet.IsDead, &pet.QualityScore, &pet.LastInteraction,
		&pet.Version, &pet.CreatedAt, &pet.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get pet: %w", err)
	}
	return &pet, nil
}

// UpdatePet persists the full pet state, bumping its version.
func (p *Postgres) UpdatePet(ctx context.Context, pet *model.PetState) error {
	const query = `
		UPDATE pet_states
		SET food = $2, happiness = $3, cleanliness = $4, energy = $5, health = $6,
			is_dead = $7, quality_score = $8, last_interaction = $9,
			version = version + 1, updated_at = NOW()
		WHERE wallet_id = $1
		RETURNING version, updated_at
	`

	err := p.pool.QueryRow(ctx, query,
		pet.WalletID, pet.Food, pet.Happiness, pet.Cleanliness, pet.Energy,
		pet.Health, pet.IsDead, pet.QualityScore, pet.LastInteraction,
	).Scan(&pet.Version, &pet.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to update pet: %w", err)
	}
	return nil
}

// CreateSession inserts a new session after deactivating any previous active
// session for the same owner.
func (p *Postgres) CreateSession(ctx context.Context, session *model.GameSession) error {
	const deactivate = `UPDATE game_sessions SET is_active = FALSE, updated_at = NOW() WHERE wallet_id = $1 AND is_active`
	const insert = `
		INSERT INTO game_sessions (session_id, wallet_id, game_state, is_active, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
	`

	state, err := json.Marshal(session.GameState)
	if err != nil {
		return fmt.Errorf("failed to encode game state: %w", err)
	}
	if _, err := p.pool.Exec(ctx, deactivate, session.WalletID); err != nil {
		return fmt.Errorf("failed to deactivate previous sessions: %w", err)
	}
	if _, err := p.pool.Exec(ctx, insert,
		session.SessionID, session.WalletID, state, session.IsActive, session.Version,
	); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func scanSession(row pgx.Row) (*model.GameSession, error) {
	var session model.GameSession
	var state []byte
	err := row.Scan(
		&session.SessionID, &session.WalletID, &state, &session.IsActive,
		&session.Version, &session.CreatedAt, &session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(state, &session.GameState); err != nil {
		return nil, fmt.Errorf("failed to decode game state: %w", err)
	}
	return &session, nil
}

// GetSession retrieves a session by ID.
func (p *Postgres) GetSession(ctx context.Context, sessionID string) (*model.GameSession, error) {
	const query = `
		SELECT session_id, wallet_id, game_state, is_active, version, created_at, updated_at
		FROM game_sessions
		WHERE session_id = $1
	`

	session, err := scanSession(p.pool.QueryRow(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// GetActiveSession retrieves the active session for an owner, if any.
func (p *Postgres) GetActiveSession(ctx context.Context, walletID string) (*model.GameSession, error) {
	const query = `
		SELECT session_id, wallet_id, game_state, is_active, version, created_at, updated_at
		FROM game_sessions
		WHERE wallet_id = $1 AND is_active
		ORDER BY created_at DESC
		LIMIT 1
	`

	session, err := scanSession(p.pool.QueryRow(ctx, query, walletID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get active session: %w", err)
	}
	return session, nil
}

// UpdateSession persists a session at the caller-supplied version. The
// session sync manager owns the version check.
func (p *Postgres) UpdateSession(ctx context.Context, session *model.GameSession) error {
	const query = `
		UPDATE game_sessions
		SET game_state = $2, is_active = $3, version = $4, updated_at = NOW()
		WHERE session_id = $1
		RETURNING updated_at
	`

	state, err := json.Marshal(session.GameState)
	if err != nil {
		return fmt.Errorf("failed to encode game state: %w", err)
	}
	err = p.pool.QueryRow(ctx, query,
		session.SessionID, state, session.IsActive, session.Version,
	).Scan(&session.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

// EndSession deactivates a session.
func (p *Postgres) EndSession(ctx context.Context, sessionID string) error {
	const query = `UPDATE game_sessions SET is_active = FALSE, updated_at = NOW() WHERE session_id = $1`

	result, err := p.pool.Exec(ctx, query, sessionID)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteEntity removes an entity by type tag and ID.
func (p *Postgres) DeleteEntity(ctx context.Context, entityType, id string) error {
	var query string
	switch entityType {
	case model.EntityAccount:
		query = `DELETE FROM accounts WHERE wallet_id = $1`
	case model.EntityPet:
		query = `DELETE FROM pet_states WHERE wallet_id = $1`
	case model.EntitySession:
		query = `DELETE FROM game_sessions WHERE session_id = $1`
	default:
		return fmt.Errorf("unknown entity type %q: %w", entityType, ErrNotFound)
	}

	if _, err := p.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete %s: %w", entityType, err)
	}
	return nil
}

// CreateTransaction inserts an immutable point transaction record.
func (p *Postgres) CreateTransaction(ctx context.Context, tx *model.PointTransaction) error {
	const query = `
		INSERT INTO point_transactions (id, wallet_id, amount, operation, source, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	metadata, err := json.Marshal(tx.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	if _, err := p.pool.Exec(ctx, query,
		tx.ID, tx.WalletID, tx.Amount, tx.Operation, tx.Source, metadata, tx.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

// GetTransactions retrieves a wallet's transactions, newest first.
func (p *Postgres) GetTransactions(ctx context.Context, walletID string, limit int) ([]*model.PointTransaction, error) {
	const query = `
		SELECT id, wallet_id, amount, operation, source, metadata, created_at
		FROM point_transactions
		WHERE wallet_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := p.pool.Query(ctx, query, walletID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*model.PointTransaction
	for rows.Next() {
		var tx model.PointTransaction
		var metadata []byte
		err := rows.Scan(&tx.ID, &tx.WalletID, &tx.Amount, &tx.Operation, &tx.Source, &metadata, &tx.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		if err := json.Unmarshal(metadata, &tx.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
		transactions = append(transactions, &tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return transactions, nil
}

// GetTopAccounts retrieves the top N accounts by points.
func (p *Postgres) GetTopAccounts(ctx context.Context, limit int) ([]*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts ORDER BY points DESC LIMIT $1`

	rows, err := p.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*model.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return accounts, nil
}

// Migrate applies the database schema. Safe to run repeatedly.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			wallet_id VARCHAR(128) PRIMARY KEY,
			points BIGINT NOT NULL DEFAULT 0,
			daily_points BIGINT NOT NULL DEFAULT 0,
			multiplier DOUBLE PRECISION NOT NULL DEFAULT 1.0,
			consecutive_days INT NOT NULL DEFAULT 0,
			days_active INT NOT NULL DEFAULT 0,
			referral_count INT NOT NULL DEFAULT 0,
			games_played INT NOT NULL DEFAULT 0,
			high_score BIGINT NOT NULL DEFAULT 0,
			interaction_points BIGINT NOT NULL DEFAULT 0,
			last_daily_bonus TIMESTAMPTZ NOT NULL DEFAULT 'epoch',
			last_update TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			cooldowns JSONB NOT NULL DEFAULT '{}',
			achievements JSONB NOT NULL DEFAULT '{}',
			version BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_accounts_points ON accounts(points DESC);`,
		`CREATE TABLE IF NOT EXISTS pet_states (
			wallet_id VARCHAR(128) PRIMARY KEY,
			food DOUBLE PRECISION NOT NULL,
			happiness DOUBLE PRECISION NOT NULL,
			cleanliness DOUBLE PRECISION NOT NULL,
			energy DOUBLE PRECISION NOT NULL,
			health DOUBLE PRECISION NOT NULL,
			is_dead BOOLEAN NOT NULL DEFAULT FALSE,
			quality_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			last_interaction TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			version BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE TABLE IF NOT EXISTS game_sessions (
			session_id UUID PRIMARY KEY,
			wallet_id VARCHAR(128) NOT NULL,
			game_state JSONB NOT NULL DEFAULT '{}',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			version BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_game_sessions_owner ON game_sessions(wallet_id, is_active);`,
		`CREATE TABLE IF NOT EXISTS point_transactions (
			id UUID PRIMARY KEY,
			wallet_id VARCHAR(128) NOT NULL,
			amount BIGINT NOT NULL,
			operation VARCHAR(20) NOT NULL,
			source VARCHAR(50) NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_point_transactions_wallet_time ON point_transactions(wallet_id, created_at DESC);`,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
