package syncengine

import (
	"context"

	"github.com/eventualhq/syncengine/pkg/coordinator"
	"github.com/eventualhq/syncengine/pkg/dispatch"
	"github.com/eventualhq/syncengine/pkg/stats"
	"github.com/eventualhq/syncengine/pkg/subscription"
	"github.com/eventualhq/syncengine/pkg/transport"
)

// Service is the service interface for the sync engine.
// It enables middleware to be added to the service.
type Service interface {
	crud

	// Subscribe registers a handler for updates on the channel and returns a
	// function that removes it.
	Subscribe(channel string, handler subscription.Handler) func()
	// On registers a handler for an engine event and returns a function that
	// removes it.
	On(eventType string, handler dispatch.Handler) func()
	// ConnectionState returns the realtime transport state.
	ConnectionState() transport.State
	// Counts returns the entry count per cache tier.
	Counts(ctx context.Context) map[string]int
	// GetStats returns the stats of the engine.
	GetStats() stats.Stats
	// Stop shuts the engine down.
	Stop(ctx context.Context) error
}

type crud interface {
	// Get retrieves a value from the cache tiers using the key.
	Get(ctx context.Context, key string, opts ...coordinator.ReadOption) (any, error)
	// Set stores a value in the enabled cache tiers.
	Set(ctx context.Context, key string, value any, opts ...coordinator.WriteOption) error
	// GetOrSet retrieves a value using the key, or stores the given value if
	// no tier holds it. The boolean reports whether the value came from cache.
	GetOrSet(ctx context.Context, key string, value any, opts ...coordinator.WriteOption) (any, bool, error)
	// GetMultiple retrieves a list of values using the keys.
	GetMultiple(ctx context.Context, keys ...string) (result map[string]any, failed map[string]error)
	// Invalidate removes every in-memory entry whose key contains the pattern
	// and triggers a refresh of the matching domains.
	Invalidate(ctx context.Context, pattern string) error
	// InvalidateAll clears the in-memory tiers.
	InvalidateAll(ctx context.Context) error
	// Remove deletes the keys from every tier.
	Remove(ctx context.Context, keys ...string) error
}

// Middleware describes a service middleware.
type Middleware func(Service) Service

// ApplyMiddleware applies middlewares to a service.
func ApplyMiddleware(svc Service, mw ...Middleware) Service {
	// Apply each middleware in the chain
	for _, m := range mw {
		svc = m(svc)
	}
	// Return the decorated service
	return svc
}
