package events

import (
	"encoding/json"

	"github.com/rs/zerolog"
)

// Manager emits events to the Bus and logs each one.
type Manager struct {
	bus *Bus
	log zerolog.Logger
}

// NewManager creates a new event manager.
func NewManager(bus *Bus, log zerolog.Logger) *Manager {
	return &Manager{
		bus: bus,
		log: log.With().Str("component", "events").Logger(),
	}
}

// Emit publishes an event and logs it.
func (m *Manager) Emit(eventType EventType, module string, data map[string]interface{}) {
	m.bus.Emit(eventType, module, data)

	logged, _ := json.Marshal(data)
	m.log.Info().
		Str("event_type", string(eventType)).
		Str("module", module).
		RawJSON("data", logged).
		Msg("event emitted")
}

// EmitError emits an ErrorOccurred event carrying err and context.
func (m *Manager) EmitError(module string, err error, context map[string]interface{}) {
	m.Emit(ErrorOccurred, module, map[string]interface{}{
		"error":   err.Error(),
		"context": context,
	})
}

// Subscribe registers a handler for an event type.
func (m *Manager) Subscribe(eventType EventType, handler Handler) Subscription {
	return m.bus.Subscribe(eventType, handler)
}

// Unsubscribe removes a previously registered handler.
func (m *Manager) Unsubscribe(sub Subscription) {
	m.bus.Unsubscribe(sub)
}
