// Package subscription tracks interested consumers per logical channel and
// multiplexes them over whichever delivery path is active: the realtime
// transport, or the polling fallback while degraded.
package subscription

import (
	"sync"

	"github.com/eventualhq/syncengine/pkg/transport"
)

// Handler receives domain updates for a subscribed channel.
type Handler func(update transport.UpdatePayload)

// Announcer sends channel notices over the active transport. Sending while
// disconnected fails with sentinel.ErrNotConnected, which the registry treats
// as "announce later": every channel is re-announced on reconnect anyway.
type Announcer interface {
	Send(msg transport.Message) error
}

// PollControl stops the polling fallback for a domain once nobody listens.
type PollControl interface {
	StopDomain(domain string)
}

// Logger describes a logging interface allowing to plug in external or custom loggers.
type Logger interface {
	Printf(format string, v ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

type registration struct {
	id      uint64
	handler Handler
}

// Registry tracks channel subscriptions. A channel with zero handlers is
// removed and, if a transport is connected, an unsubscribe notice is sent.
// Server-side subscription state is not assumed to survive a reconnect, so
// the registry re-announces every live channel on each successful connection.
type Registry struct {
	mu       sync.Mutex
	channels map[string][]registration
	nextID   uint64

	announcer   Announcer
	pollControl PollControl
	logger      Logger
}

// Option configures the Registry.
type Option func(*Registry)

// WithAnnouncer sets the transport used for subscribe/unsubscribe notices.
func WithAnnouncer(a Announcer) Option {
	return func(r *Registry) { r.announcer = a }
}

// WithPollControl sets the polling fallback controller.
func WithPollControl(p PollControl) Option {
	return func(r *Registry) { r.pollControl = p }
}

// WithLogger sets the logger.
func WithLogger(logger Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	reg := &Registry{
		channels: make(map[string][]registration),
		logger:   nopLogger{},
	}

	for _, opt := range opts {
		opt(reg)
	}

	return reg
}

// SetAnnouncer attaches the transport after construction. The engine wires
// the manager and the registry together this way because each needs a
// reference to the other.
func (r *Registry) SetAnnouncer(a Announcer) {
	r.mu.Lock()
	r.announcer = a
	r.mu.Unlock()
}

// Subscribe registers a handler for the channel and returns a function that
// removes it. The first handler for a channel announces the subscription if a
// transport is connected.
func (r *Registry) Subscribe(channel string, handler Handler) func() {
	r.mu.Lock()

	r.nextID++
	id := r.nextID
	first := len(r.channels[channel]) == 0
	r.channels[channel] = append(r.channels[channel], registration{id: id, handler: handler})
	announcer := r.announcer

	r.mu.Unlock()

	if first && announcer != nil {
		r.announce(announcer, channel)
	}

	return func() { r.unsubscribe(channel, id) }
}

func (r *Registry) unsubscribe(channel string, id uint64) {
	r.mu.Lock()

	regs := r.channels[channel]
	for i, reg := range regs {
		if reg.id == id {
			r.channels[channel] = append(regs[:i:i], regs[i+1:]...)

			break
		}
	}

	last := len(r.channels[channel]) == 0
	if last {
		delete(r.channels, channel)
	}

	announcer := r.announcer
	pollControl := r.pollControl

	r.mu.Unlock()

	if !last {
		return
	}

	if announcer != nil {
		msg, err := transport.NewUnsubscribeMessage(channel)
		if err == nil {
			// Best-effort: while disconnected there is nothing to notify.
			_ = announcer.Send(msg)
		}
	}

	if pollControl != nil {
		pollControl.StopDomain(channel)
	}
}

// ResubscribeAll re-announces every channel with at least one handler. The
// transport manager calls this on every successful connection.
func (r *Registry) ResubscribeAll() {
	r.mu.Lock()

	channels := make([]string, 0, len(r.channels))
	for channel := range r.channels {
		channels = append(channels, channel)
	}

	announcer := r.announcer

	r.mu.Unlock()

	if announcer == nil {
		return
	}

	for _, channel := range channels {
		r.announce(announcer, channel)
	}
}

func (r *Registry) announce(announcer Announcer, channel string) {
	msg, err := transport.NewSubscribeMessage(channel)
	if err != nil {
		return
	}

	err = announcer.Send(msg)
	if err != nil {
		// Not connected yet: the reconnect path re-announces.
		r.logger.Printf("subscription: deferred announce for %q: %v", channel, err)
	}
}

// Channels returns a snapshot of the channels with at least one handler.
func (r *Registry) Channels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	channels := make([]string, 0, len(r.channels))
	for channel := range r.channels {
		channels = append(channels, channel)
	}

	return channels
}

// Dispatch delivers an update to every handler subscribed to the channel, in
// registration order, isolating handler failures.
func (r *Registry) Dispatch(channel string, update transport.UpdatePayload) {
	r.mu.Lock()
	regs := make([]registration, len(r.channels[channel]))
	copy(regs, r.channels[channel])
	r.mu.Unlock()

	for _, reg := range regs {
		r.invoke(channel, reg.handler, update)
	}
}

func (r *Registry) invoke(channel string, handler Handler, update transport.UpdatePayload) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Printf("subscription: handler for %q panicked: %v", channel, rec)
		}
	}()

	handler(update)
}
