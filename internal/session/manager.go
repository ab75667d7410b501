// Package session provides the sync manager for the single active ephemeral
// game session. Local mutations apply immediately and queue for
// reconciliation against the store's version counter.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"virtual-pet-engine/internal/model"
	"virtual-pet-engine/internal/pkg/clock"
	"virtual-pet-engine/internal/store"
)

// Policy is the conflict-resolution policy applied when the server version
// is strictly newer than the local one.
type Policy string

// Conflict-resolution policies. Merge resolves identically to client-wins:
// queued patches replay over the server state via deep merge.
const (
	PolicyClientWins Policy = "client-wins"
	PolicyServerWins Policy = "server-wins"
	PolicyMerge      Policy = "merge"
)

// ErrNoSession is returned when an operation requires an adopted session.
var ErrNoSession = errors.New("no active session")

// Listener is notified with the full state tree after every local mutation
// or adoption.
type Listener func(state map[string]any)

// Config holds session sync tuning.
type Config struct {
	Interval       time.Duration
	MaxQueueSize   int
	FlushThreshold int
	Policy         Policy
}

// change is one queued local mutation: a patch to merge or a path to delete.
type change struct {
	patch      map[string]any
	deletePath string
}

// Manager owns exactly one current session and its bounded change queue.
// On overflow the oldest queued change is dropped silently - availability
// over consistency; the drop is counted and logged.
type Manager struct {
	store store.Store
	clk   clock.Clock
	cfg   Config

	mu        sync.Mutex
	current   *model.GameSession
	queue     []change
	lastSync  time.Time
	listeners []Listener

	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger zerolog.Logger
}

// NewManager creates a session sync manager on st.
func NewManager(st store.Store, clk clock.Clock, cfg Config) *Manager {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 50
	}
	if cfg.FlushThreshold <= 0 {
		cfg.FlushThreshold = 10
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyClientWins
	}
	return &Manager{
		store:  st,
		clk:    clk,
		cfg:    cfg,
		logger: log.With().Str("component", "session").Logger(),
	}
}

// StartSession creates and adopts a fresh active session for the owner,
// superseding any previous one.
func (m *Manager) StartSession(ctx context.Context, walletID string) (*model.GameSession, error) {
	now := m.clk.Now()
	session := &model.GameSession{
		SessionID: uuid.NewString(),
		WalletID:  walletID,
		GameState: make(map[string]any),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	m.adopt(session)
	return session, nil
}

// Current returns a snapshot of the current session, or nil.
func (m *Manager) Current() *model.GameSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	snapshot := *m.current
	snapshot.GameState = DeepMerge(nil, m.current.GameState)
	return &snapshot
}

// OnChange registers a state listener and returns an unsubscribe function.
func (m *Manager) OnChange(fn Listener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
	idx := len(m.listeners) - 1
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.listeners[idx] = nil
	}
}

// UpdateGameState applies changes at a dot-separated path to the local state
// immediately, queues the patch for reconciliation, and notifies listeners.
func (m *Manager) UpdateGameState(ctx context.Context, changes map[string]any, path string) error {
	patch := PatchAt(path, changes)

	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return ErrNoSession
	}
	m.current.GameState = DeepMerge(m.current.GameState, patch)
	m.enqueueLocked(change{patch: patch})
	state := DeepMerge(nil, m.current.GameState)
	shouldFlush := len(m.queue) >= m.cfg.FlushThreshold ||
		m.clk.Now().Sub(m.lastSync) > 2*m.cfg.Interval
	m.mu.Unlock()

	m.notify(state)
	if shouldFlush {
		if err := m.Reconcile(ctx); err != nil {
			// Deferred to the next tick.
			m.logger.Warn().Err(err).Msg("Flush-triggered reconcile failed")
		}
	}
	return nil
}

// DeleteGameStateProperty removes the property at a dot-separated path from
// the local state immediately and queues the deletion.
func (m *Manager) DeleteGameStateProperty(ctx context.Context, path string) error {
	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return ErrNoSession
	}
	m.current.GameState = DeleteAt(m.current.GameState, path)
	m.enqueueLocked(change{deletePath: path})
	state := DeepMerge(nil, m.current.GameState)
	shouldFlush := len(m.queue) >= m.cfg.FlushThreshold
	m.mu.Unlock()

	m.notify(state)
	if shouldFlush {
		if err := m.Reconcile(ctx); err != nil {
			m.logger.Warn().Err(err).Msg("Flush-triggered reconcile failed")
		}
	}
	return nil
}

func (m *Manager) enqueueLocked(c change) {
	if len(m.queue) >= m.cfg.MaxQueueSize {
		m.queue = m.queue[1:]
		patchesDroppedTotal.Inc()
		m.logger.Warn().Msg("Session change queue full, dropped oldest patch")
	}
	m.queue = append(m.queue, c)
	queueDepth.Set(float64(len(m.queue)))
}

// QueueLen returns the number of queued local changes.
func (m *Manager) QueueLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Reconcile drains the queue against the store's copy of the session.
// Store failures are returned but leave local state and queue intact for
// the next tick.
func (m *Manager) Reconcile(ctx context.Context) error {
	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return nil
	}
	sessionID := m.current.SessionID
	walletID := m.current.WalletID
	m.mu.Unlock()

	remote, err := m.store.GetSession(ctx, sessionID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to fetch session: %w", err)
	}

	if errors.Is(err, store.ErrNotFound) || !remote.IsActive {
		return m.replaceSession(ctx, walletID)
	}

	m.mu.Lock()
	localVersion := m.current.Version
	queued := len(m.queue)
	queue := make([]change, queued)
	copy(queue, m.queue)
	serverNewer := remote.Version > localVersion
	m.mu.Unlock()

	if queued == 0 {
		// Nothing local to push; adopt a newer server copy if one exists.
		// Changes queued while the fetch was in flight replay on top and
		// stay queued for the next cycle.
		m.mu.Lock()
		if serverNewer {
			remote.GameState = applyChanges(remote.GameState, m.queue)
			m.current = remote
		}
		m.lastSync = m.clk.Now()
		state := DeepMerge(nil, m.current.GameState)
		m.mu.Unlock()
		if serverNewer {
			m.notify(state)
		}
		return nil
	}

	if serverNewer && m.cfg.Policy == PolicyServerWins {
		// Adopt the server state; the snapshotted local changes are
		// discarded by policy, later ones survive.
		m.mu.Lock()
		m.spliceLocked(queued)
		remote.GameState = applyChanges(remote.GameState, m.queue)
		m.current = remote
		m.lastSync = m.clk.Now()
		queueDepth.Set(float64(len(m.queue)))
		state := DeepMerge(nil, remote.GameState)
		m.mu.Unlock()
		m.notify(state)
		return nil
	}

	// Client-wins and merge: replay queued changes over the server state.
	updated := *remote
	updated.GameState = applyChanges(remote.GameState, queue)
	updated.Version = remote.Version + 1
	if !serverNewer && localVersion > remote.Version {
		updated.Version = localVersion + 1
	}
	if err := m.store.UpdateSession(ctx, &updated); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}

	// Only the snapshotted changes were written; anything queued during the
	// store round-trip merges onto the adopted state and stays queued.
	m.mu.Lock()
	m.spliceLocked(queued)
	updated.GameState = applyChanges(updated.GameState, m.queue)
	m.current = &updated
	m.lastSync = m.clk.Now()
	queueDepth.Set(float64(len(m.queue)))
	m.mu.Unlock()
	return nil
}

// applyChanges replays queued changes over a state tree in order.
func applyChanges(state map[string]any, changes []change) map[string]any {
	for _, c := range changes {
		if c.deletePath != "" {
			state = DeleteAt(state, c.deletePath)
			continue
		}
		state = DeepMerge(state, c.patch)
	}
	return state
}

// spliceLocked drops the first n queued changes. n can exceed the queue
// length when overflow dropped entries in the meantime.
func (m *Manager) spliceLocked(n int) {
	if n > len(m.queue) {
		n = len(m.queue)
	}
	m.queue = m.queue[n:]
}

// replaceSession creates a fresh session when the remote one disappeared or
// went inactive. The local state tree seeds the replacement; the queue is
// cleared without replay.
func (m *Manager) replaceSession(ctx context.Context, walletID string) error {
	m.mu.Lock()
	state := DeepMerge(nil, m.current.GameState)
	dropped := len(m.queue)
	m.mu.Unlock()

	now := m.clk.Now()
	replacement := &model.GameSession{
		SessionID: uuid.NewString(),
		WalletID:  walletID,
		GameState: state,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.CreateSession(ctx, replacement); err != nil {
		return fmt.Errorf("failed to create replacement session: %w", err)
	}

	if dropped > 0 {
		m.logger.Warn().Int("dropped", dropped).Msg("Replaced missing session, queued changes not replayed")
	}

	// The snapshotted changes are already reflected in the seed; changes
	// queued during the create replay on top and stay queued.
	m.mu.Lock()
	m.spliceLocked(dropped)
	replacement.GameState = applyChanges(replacement.GameState, m.queue)
	m.current = replacement
	m.lastSync = m.clk.Now()
	queueDepth.Set(float64(len(m.queue)))
	seeded := DeepMerge(nil, replacement.GameState)
	m.mu.Unlock()
	m.notify(seeded)
	return nil
}

func (m *Manager) adopt(session *model.GameSession) {
	m.mu.Lock()
	m.current = session
	m.queue = nil
	m.lastSync = m.clk.Now()
	queueDepth.Set(0)
	state := DeepMerge(nil, session.GameState)
	m.mu.Unlock()
	m.notify(state)
}

func (m *Manager) notify(state map[string]any) {
	m.mu.Lock()
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()
	for _, fn := range listeners {
		if fn != nil {
			fn(state)
		}
	}
}

// EndSession deactivates the current session and drops it locally.
func (m *Manager) EndSession(ctx context.Context) error {
	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return ErrNoSession
	}
	sessionID := m.current.SessionID
	m.mu.Unlock()

	if err := m.Reconcile(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("Final reconcile before session end failed")
	}
	if err := m.store.EndSession(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}

	m.mu.Lock()
	m.current = nil
	m.queue = nil
	queueDepth.Set(0)
	m.mu.Unlock()
	return nil
}

// Start launches the periodic reconcile loop.
func (m *Manager) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(1)
	go m.run(ctx)
}

// Stop cancels the loop and runs a final reconcile.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	if err := m.Reconcile(context.Background()); err != nil {
		m.logger.Warn().Err(err).Msg("Final reconcile failed")
	}
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()
	ticker := m.clk.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if err := m.Reconcile(ctx); err != nil {
				// Store unreachable; next tick retries.
				m.logger.Warn().Err(err).Msg("Periodic reconcile failed")
			}
		}
	}
}
