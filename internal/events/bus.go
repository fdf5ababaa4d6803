// Package events provides the pub/sub fan-out used to decouple the
// Environment Monitor, Enclosure Controller, and Action Scheduler from their
// observers (the structured log, the Facade's websocket status stream).
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Handler is a function that handles an event.
type Handler func(*Event)

// Subscription identifies a registered handler so it can be unsubscribed.
type Subscription struct {
	eventType EventType
	id        uint64
}

// Bus provides pub/sub event fan-out.
type Bus struct {
	subscribers map[EventType]map[uint64]Handler
	nextID      uint64
	mu          sync.RWMutex
	log         zerolog.Logger
}

// NewBus creates a new event bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[EventType]map[uint64]Handler),
		log:         log.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers a handler for an event type.
func (b *Bus) Subscribe(eventType EventType, handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID

	if _, ok := b.subscribers[eventType]; !ok {
		b.subscribers[eventType] = make(map[uint64]Handler)
	}
	b.subscribers[eventType][id] = handler

	return Subscription{eventType: eventType, id: id}
}

// Unsubscribe removes a previously registered handler. Safe to call more
// than once.
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if handlers, ok := b.subscribers[sub.eventType]; ok {
		delete(handlers, sub.id)
		if len(handlers) == 0 {
			delete(b.subscribers, sub.eventType)
		}
	}
}

// Emit publishes an event to all subscribers of its type.
func (b *Bus) Emit(eventType EventType, module string, data map[string]interface{}) {
	event := &Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
		Module:    module,
	}

	// Snapshot handlers to avoid holding the lock while invoking callbacks.
	b.mu.RLock()
	var handlers []Handler
	if registered := b.subscribers[eventType]; len(registered) > 0 {
		handlers = make([]Handler, 0, len(registered))
		for _, h := range registered {
			handlers = append(handlers, h)
		}
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		go b.dispatch(h, event)
	}

	b.log.Debug().
		Str("event_type", string(eventType)).
		Str("module", module).
		Int("subscribers", len(handlers)).
		Msg("event emitted")
}

// dispatch invokes a single handler with a panic barrier: this bus
// carries safety-relevant transitions (EnvironmentUnsafe,
// EnclosureModeChanged, ActionErrored) to subscribers such as the
// structured log store and the Facade's websocket stream, and those
// subscribers run detached via Emit's "go b.dispatch(h, event)" fan-out — an
// unrecovered panic there would otherwise take down the whole
// supervisor process over a failure in, say, log persistence, rather
// than just losing that one notification.
func (b *Bus) dispatch(h Handler, event *Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().
				Interface("panic", r).
				Str("event_type", string(event.Type)).
				Str("module", event.Module).
				Msg("event handler panicked, dropping this notification")
		}
	}()
	h(event)
}
