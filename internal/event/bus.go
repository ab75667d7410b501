// Package event provides the change notification bus. Subscribers are
// notified synchronously on every successful entity mutation and on
// leaderboard-affecting events.
package event

import "sync"

// Entity type published for leaderboard-affecting point changes, alongside
// the model entity types.
const EntityLeaderboard = "leaderboard"

// Change describes one entity mutation.
type Change struct {
	EntityType string
	ID         string
	Value      any
}

// Handler receives change notifications.
type Handler func(Change)

// Bus is a small synchronous publish/subscribe hub keyed by entity type.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]Handler
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[int]Handler)}
}

// Subscribe registers a handler for one entity type and returns an
// unsubscribe function.
func (b *Bus) Subscribe(entityType string, fn Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[entityType] == nil {
		b.subs[entityType] = make(map[int]Handler)
	}
	id := b.nextID
	b.nextID++
	b.subs[entityType][id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[entityType], id)
	}
}

// Publish notifies all handlers subscribed to the change's entity type.
// Handlers run synchronously on the caller's goroutine.
func (b *Bus) Publish(change Change) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[change.EntityType]))
	for _, fn := range b.subs[change.EntityType] {
		handlers = append(handlers, fn)
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(change)
	}
}
