// Package cache provides the in-memory entity cache with dirty tracking and
// a bounded operation queue. The cache gives no durability guarantee by
// itself; the sync coordinator flushes dirty entities to the store.
package cache

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"virtual-pet-engine/internal/event"
	"virtual-pet-engine/internal/model"
	"virtual-pet-engine/internal/store"
)

// Queue operation kinds.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Operation is one queued store write.
type Operation struct {
	EntityType string
	Op         string
	Data       any
}

// Cache is the process-wide entity cache. Keys carry an entity-type prefix
// ("account:", "pet:", "session:").
type Cache struct {
	mu        sync.Mutex
	entries   map[string]any
	dirty     map[string]struct{}
	queue     []Operation
	queueSize int
	draining  bool

	store  store.Store
	bus    *event.Bus
	logger zerolog.Logger
}

// New creates a cache draining its operation queue against st, publishing
// change events on bus. queueSize bounds the queue; the oldest entry is
// dropped on overflow.
func New(st store.Store, bus *event.Bus, queueSize int) *Cache {
	if queueSize <= 0 {
		queueSize = 128
	}
	return &Cache{
		entries:   make(map[string]any),
		dirty:     make(map[string]struct{}),
		queueSize: queueSize,
		store:     st,
		bus:       bus,
		logger:    log.With().Str("component", "cache").Logger(),
	}
}

// Set stores a value and marks it dirty. Model entities are deep-copied on
// the way in so the caller's pointer never aliases the cached one. A change
// event is published for the key's entity type.
func (c *Cache) Set(key string, value any) {
	stored := snapshot(value)
	c.mu.Lock()
	c.entries[key] = stored
	c.dirty[key] = struct{}{}
	c.mu.Unlock()

	if c.bus != nil {
		c.bus.Publish(event.Change{EntityType: EntityTypeOf(key), ID: idOf(key), Value: stored})
	}
}

// Get retrieves a cached value. Model entities come back as a private deep
// copy; mutations are invisible until written back with Set.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	value, ok := c.entries[key]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	return snapshot(value), true
}

// Has reports whether the key is cached.
func (c *Cache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

// MarkDirty flags an existing entry for the next sync. No-op if the key is
// not cached.
func (c *Cache) MarkDirty(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		c.dirty[key] = struct{}{}
	}
}

// DirtyKeys returns the keys with unpersisted changes.
func (c *Cache) DirtyKeys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.dirty))
	for key := range c.dirty {
		keys = append(keys, key)
	}
	return keys
}

// ClearDirty removes the dirty flag after a confirmed persisted write.
func (c *Cache) ClearDirty(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.dirty, key)
}

// Clear evicts every entry and dirty flag.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]any)
	c.dirty = make(map[string]struct{})
	c.queue = nil
}

// QueueOperation appends a store write to the FIFO and drains the queue.
// Drain failures are logged and swallowed: the entity stays dirty and the
// next sync cycle retries. Dropped (oldest) entries on overflow are lost.
func (c *Cache) QueueOperation(ctx context.Context, entityType, op string, data any) {
	c.mu.Lock()
	if len(c.queue) >= c.queueSize {
		dropped := c.queue[0]
		c.queue = c.queue[1:]
		queueDroppedTotal.Inc()
		c.logger.Warn().
			Str("entity_type", dropped.EntityType).
			Str("op", dropped.Op).
			Msg("Operation queue full, dropped oldest entry")
	}
	c.queue = append(c.queue, Operation{EntityType: entityType, Op: op, Data: snapshot(data)})
	if c.draining {
		c.mu.Unlock()
		return
	}
	c.draining = true
	c.mu.Unlock()

	c.drain(ctx)
}

// QueueLen returns the number of queued operations.
func (c *Cache) QueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

func (c *Cache) drain(ctx context.Context) {
	for {
		c.mu.Lock()
		if len(c.queue) == 0 {
			c.draining = false
			c.mu.Unlock()
			return
		}
		op := c.queue[0]
		c.queue = c.queue[1:]
		c.mu.Unlock()

		if err := c.persist(ctx, op); err != nil {
			// Left for the next periodic sync; the entity stays dirty.
			c.logger.Warn().
				Err(err).
				Str("entity_type", op.EntityType).
				Str("op", op.Op).
				Msg("Queued operation failed")
			continue
		}
		queueDrainedTotal.Inc()
	}
}

func (c *Cache) persist(ctx context.Context, op Operation) error {
	if op.Op == OpDelete {
		id, _ := op.Data.(string)
		return c.store.DeleteEntity(ctx, op.EntityType, id)
	}

	switch data := op.Data.(type) {
	case *model.Account:
		if op.Op == OpCreate {
			return c.store.CreateAccount(ctx, data)
		}
		return c.store.UpdateAccount(ctx, data)
	case *model.PetState:
		if op.Op == OpCreate {
			return c.store.CreatePet(ctx, data)
		}
		return c.store.UpdatePet(ctx, data)
	case *model.GameSession:
		if op.Op == OpCreate {
			return c.store.CreateSession(ctx, data)
		}
		return c.store.UpdateSession(ctx, data)
	}
	c.logger.Error().
		Str("entity_type", op.EntityType).
		Str("op", op.Op).
		Msg("Unknown queued operation payload")
	return nil
}

// snapshot deep-copies known model entities so cache, queue, and callers
// never share mutable state. Other values pass through unchanged.
func snapshot(value any) any {
	switch v := value.(type) {
	case *model.Account:
		return v.Clone()
	case *model.PetState:
		return v.Clone()
	case *model.GameSession:
		return v.Clone()
	}
	return value
}

// EntityTypeOf returns the entity-type prefix of a cache key.
func EntityTypeOf(key string) string {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[:i]
	}
	return key
}

func idOf(key string) string {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[i+1:]
	}
	return key
}
