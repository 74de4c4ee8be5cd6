// Package dispatch provides the typed event fan-out used for cross-component
// signaling. The dispatcher is an explicit, constructed instance injected into
// collaborators; there is no process-wide ambient channel.
package dispatch

import (
	"sync"
)

// Event types consumed by external UI code.
const (
	// EventDomainUpdated is emitted after a domain collection is refreshed,
	// whether the update arrived over the realtime transport, a fallback poll,
	// or a scheduled fetch.
	EventDomainUpdated = "domain-updated"
	// EventConnectionStateChanged is emitted on every transport state
	// transition. The payload is the new state.
	EventConnectionStateChanged = "connection-state-changed"
)

// Handler receives an event payload.
type Handler func(payload any)

// Logger describes a logging interface allowing to plug in external or custom loggers.
type Logger interface {
	Printf(format string, v ...any)
}

// NopLogger discards all log output.
type NopLogger struct{}

// Printf implements Logger.
func (NopLogger) Printf(string, ...any) {}

type registration struct {
	id      uint64
	handler Handler
}

// Dispatcher fans typed update notifications out to registered handlers.
//
// Handlers for an event run synchronously in registration order. A panicking
// handler is recovered and logged; the remaining handlers for the same
// emission still run. UI consumers and the cache-refresh consumer share the
// same event stream, so one faulty consumer must not starve the others.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]registration
	nextID   uint64
	logger   Logger
}

// New creates a dispatcher logging handler failures to the given logger.
func New(logger Logger) *Dispatcher {
	if logger == nil {
		logger = NopLogger{}
	}

	return &Dispatcher{
		handlers: make(map[string][]registration),
		logger:   logger,
	}
}

// On registers a handler for the given event type and returns a function that
// removes the registration.
func (d *Dispatcher) On(eventType string, handler Handler) func() {
	d.mu.Lock()

	d.nextID++
	id := d.nextID
	d.handlers[eventType] = append(d.handlers[eventType], registration{id: id, handler: handler})

	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()

		regs := d.handlers[eventType]
		for i, reg := range regs {
			if reg.id == id {
				d.handlers[eventType] = append(regs[:i:i], regs[i+1:]...)

				break
			}
		}

		if len(d.handlers[eventType]) == 0 {
			delete(d.handlers, eventType)
		}
	}
}

// Emit invokes every handler registered for the event type, in registration
// order, isolating handler failures from each other and from the caller.
func (d *Dispatcher) Emit(eventType string, payload any) {
	d.mu.RLock()
	regs := make([]registration, len(d.handlers[eventType]))
	copy(regs, d.handlers[eventType])
	d.mu.RUnlock()

	for _, reg := range regs {
		d.invoke(eventType, reg.handler, payload)
	}
}

func (d *Dispatcher) invoke(eventType string, handler Handler, payload any) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Printf("dispatch: handler for %q panicked: %v", eventType, r)
		}
	}()

	handler(payload)
}

// HandlerCount returns the number of handlers registered for the event type.
func (d *Dispatcher) HandlerCount(eventType string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return len(d.handlers[eventType])
}
