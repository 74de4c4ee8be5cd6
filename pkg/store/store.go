// Package store provides the cache tier implementations: a bounded in-memory
// store with insertion-order eviction for the fast and medium tiers, and a
// Redis-backed durable store for the persistent tier.
package store

import (
	"context"

	"github.com/eventualhq/syncengine/pkg/cache"
)

// Tier is the contract every cache tier implements. The coordinator uses it
// polymorphically across the fast, medium, and durable tiers.
//
// Get reports a miss for absent and for expired entries; an expired entry is
// actively deleted on read. All methods accept a context for cancellation and
// timeout control on tiers backed by I/O; the in-memory tiers ignore it.
type Tier interface {
	// Get retrieves the entry with the given key, or reports a miss.
	Get(ctx context.Context, key string) (entry *cache.Entry, ok bool, err error)
	// Set stores the entry, evicting the oldest-inserted entry if the tier is full.
	Set(ctx context.Context, entry *cache.Entry) error
	// Remove deletes the entries with the given keys.
	Remove(ctx context.Context, keys ...string) error
	// Clear removes all entries.
	Clear(ctx context.Context) error
	// Count returns the number of entries currently stored.
	Count(ctx context.Context) int
	// Keys returns a snapshot of the keys currently stored.
	Keys(ctx context.Context) ([]string, error)
}
