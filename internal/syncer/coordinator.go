// Package syncer provides the synchronization coordinator that flushes dirty
// cached entities to the persistent store on a periodic tick.
package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"virtual-pet-engine/internal/cache"
	"virtual-pet-engine/internal/model"
	"virtual-pet-engine/internal/pkg/clock"
	"virtual-pet-engine/internal/store"
)

// Status is the coordinator state machine:
// idle -> syncing -> {success, error} -> idle.
type Status string

// Coordinator statuses.
const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Listener is invoked synchronously on every status transition.
type Listener func(Status)

// Config holds coordinator tuning.
type Config struct {
	Interval      time.Duration
	ForceAttempts int
	ForceDelay    time.Duration
}

// Coordinator owns the periodic sync timer and status state machine. Dirty
// keys are dispatched to the per-entity persistence routine by their
// key prefix; an entity that fails to persist stays dirty for the next
// cycle. There is no cross-entity atomicity.
type Coordinator struct {
	cache *cache.Cache
	store store.Store
	clk   clock.Clock
	cfg   Config

	mu        sync.Mutex
	status    Status
	lastSync  time.Time
	listeners []Listener
	paused    bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger zerolog.Logger
}

// New creates a coordinator flushing c through st.
func New(c *cache.Cache, st store.Store, clk clock.Clock, cfg Config) *Coordinator {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.ForceAttempts <= 0 {
		cfg.ForceAttempts = 10
	}
	if cfg.ForceDelay <= 0 {
		cfg.ForceDelay = 100 * time.Millisecond
	}
	return &Coordinator{
		cache:  c,
		store:  st,
		clk:    clk,
		cfg:    cfg,
		status: StatusIdle,
		logger: log.With().Str("component", "syncer").Logger(),
	}
}

// Start launches the periodic sync loop. Stop tears it down.
func (s *Coordinator) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop cancels the loop and performs a final flush, mirroring the
// pre-navigation flush of the browser client.
func (s *Coordinator) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.ForceSynchronize(context.Background())
}

func (s *Coordinator) run(ctx context.Context) {
	defer s.wg.Done()
	ticker := s.clk.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			s.mu.Lock()
			paused := s.paused
			s.mu.Unlock()
			if paused {
				continue
			}
			s.Synchronize(ctx)
		}
	}
}

// Pause forces an immediate flush and suspends the periodic loop, as when
// the page becomes hidden.
func (s *Coordinator) Pause(ctx context.Context) {
	s.ForceSynchronize(ctx)
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
}

// Resume re-enables the periodic loop, as when the page becomes visible.
func (s *Coordinator) Resume() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
}

// AddSyncListener registers a status listener and returns an
// unsubscribe function.
func (s *Coordinator) AddSyncListener(fn Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
	idx := len(s.listeners) - 1
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.listeners[idx] = nil
	}
}

// Status returns the current state machine status.
func (s *Coordinator) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// LastSyncTime returns when the last sync cycle completed.
func (s *Coordinator) LastSyncTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSync
}

func (s *Coordinator) setStatus(status Status) {
	s.mu.Lock()
	s.status = status
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, fn := range listeners {
		if fn != nil {
			fn(status)
		}
	}
}

// ForceSynchronize blocks until an in-flight sync finishes (bounded poll),
// then runs a sync cycle regardless. Returns whether the cycle ran.
func (s *Coordinator) ForceSynchronize(ctx context.Context) bool {
	for attempt := 0; attempt < s.cfg.ForceAttempts; attempt++ {
		if s.Status() != StatusSyncing {
			break
		}
		s.clk.Sleep(s.cfg.ForceDelay)
	}
	return s.Synchronize(ctx)
}

// Synchronize flushes all dirty entities. Returns false immediately if a
// sync is already in flight. The cycle ends in StatusSuccess even when some
// entities failed; those stay dirty for the next cycle. StatusError is
// reserved for a cycle aborted by context cancellation.
func (s *Coordinator) Synchronize(ctx context.Context) bool {
	// Claim the cycle and flip the status in one critical section so two
	// callers can never both enter.
	s.mu.Lock()
	if s.status == StatusSyncing {
		s.mu.Unlock()
		return false
	}
	s.status = StatusSyncing
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, fn := range listeners {
		if fn != nil {
			fn(StatusSyncing)
		}
	}
	syncCyclesTotal.Inc()

	keys := s.cache.DirtyKeys()
	var failed int
	for _, key := range keys {
		if ctx.Err() != nil {
			s.setStatus(StatusError)
			s.setStatus(StatusIdle)
			return true
		}
		if err := s.persistKey(ctx, key); err != nil {
			failed++
			entitiesFailedTotal.Inc()
			s.logger.Warn().Err(err).Str("key", key).Msg("Failed to persist entity")
			continue
		}
		s.cache.ClearDirty(key)
		entitiesPersistedTotal.Inc()
	}

	s.mu.Lock()
	s.lastSync = s.clk.Now()
	s.mu.Unlock()

	if len(keys) > 0 {
		s.logger.Debug().
			Int("dirty", len(keys)).
			Int("failed", failed).
			Msg("Sync cycle complete")
	}

	s.setStatus(StatusSuccess)
	s.setStatus(StatusIdle)
	return true
}

// persistKey dispatches one dirty key to its entity-specific persistence
// routine. A missing row is created rather than updated.
func (s *Coordinator) persistKey(ctx context.Context, key string) error {
	value, ok := s.cache.Get(key)
	if !ok {
		// Evicted since the dirty flag was set; nothing to persist.
		return nil
	}

	switch data := value.(type) {
	case *model.Account:
		err := s.store.UpdateAccount(ctx, data)
		if errors.Is(err, store.ErrNotFound) {
			return s.store.CreateAccount(ctx, data)
		}
		return err
	case *model.PetState:
		err := s.store.UpdatePet(ctx, data)
		if errors.Is(err, store.ErrNotFound) {
			return s.store.CreatePet(ctx, data)
		}
		return err
	case *model.GameSession:
		err := s.store.UpdateSession(ctx, data)
		if errors.Is(err, store.ErrNotFound) {
			return s.store.CreateSession(ctx, data)
		}
		return err
	}
	s.logger.Error().Str("key", key).Msg("Dirty key holds unknown entity type")
	return nil
}
