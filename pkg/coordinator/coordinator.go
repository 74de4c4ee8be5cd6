// Package coordinator orchestrates reads and writes across the three cache
// tiers: promotion on lower-tier hits, best-effort asynchronous durable
// persistence, and substring invalidation over the in-memory tiers.
package coordinator

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/eventualhq/syncengine/internal/constants"
	"github.com/eventualhq/syncengine/internal/sentinel"
	"github.com/eventualhq/syncengine/pkg/cache"
	"github.com/eventualhq/syncengine/pkg/stats"
	"github.com/eventualhq/syncengine/pkg/store"
)

// Logger describes a logging interface allowing to plug in external or custom loggers.
type Logger interface {
	Printf(format string, v ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// writeStripes bounds the number of locks used to serialize durable writes.
// Writes to the same key always share a stripe, so the durable store never
// sees pipelined transactions for one key.
const writeStripes = 32

// Coordinator routes reads and writes across the fast, medium, and durable
// tiers. Reads check tiers in order and promote hits from slower tiers into
// every faster tier. Writes go to every enabled tier; the durable write is
// asynchronous and best-effort.
//
// If the durable tier fails, the coordinator degrades to the in-memory tiers
// for the remainder of the session: the failure is recorded as a metric and
// never surfaced to callers.
type Coordinator struct {
	fast    store.Tier
	medium  store.Tier
	durable store.Tier // nil disables the durable tier entirely

	recorder stats.Recorder
	logger   Logger
	nowFunc  func() time.Time

	durableDown atomic.Bool // set on first durable failure, sticky for the session

	writeLocks [writeStripes]sync.Mutex
	inflight   sync.WaitGroup

	refreshHook atomic.Pointer[func(pattern string)]
}

// Option configures the Coordinator.
type Option func(*Coordinator)

// WithDurable attaches the durable tier.
func WithDurable(tier store.Tier) Option {
	return func(c *Coordinator) { c.durable = tier }
}

// WithRecorder sets the stats recorder. Defaults to a fresh collector.
func WithRecorder(recorder stats.Recorder) Option {
	return func(c *Coordinator) { c.recorder = recorder }
}

// WithLogger sets the logger used for degraded-mode notices.
func WithLogger(logger Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// WithClock overrides the time source used to stamp entries.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.nowFunc = now }
}

// New creates a coordinator over the given fast and medium tiers.
func New(fast, medium store.Tier, opts ...Option) *Coordinator {
	coord := &Coordinator{
		fast:    fast,
		medium:  medium,
		logger:  nopLogger{},
		nowFunc: time.Now,
	}

	for _, opt := range opts {
		opt(coord)
	}

	if coord.recorder == nil {
		coord.recorder = stats.NewCollector()
	}

	return coord
}

// SetRefreshHook registers the callback invoked after Invalidate so the sync
// scheduler can refresh the affected domains out of band.
func (c *Coordinator) SetRefreshHook(hook func(pattern string)) {
	c.refreshHook.Store(&hook)
}

// Get retrieves the value for the key, checking the fast tier, then the
// medium tier, then the durable tier. A hit in a slower tier is promoted into
// every faster tier before returning. If every enabled tier misses, Get
// records a network miss and returns sentinel.ErrKeyNotFound; the caller is
// responsible for the network fetch and the subsequent Set.
func (c *Coordinator) Get(ctx context.Context, key string, opts ...ReadOption) (any, error) {
	cfg := defaultReadConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.UseFast {
		entry, ok, _ := c.fast.Get(ctx, key)
		if ok {
			c.recorder.Hit(constants.FastTier)

			return entry.Value, nil
		}

		c.recorder.Miss(constants.FastTier)
	}

	if cfg.UseMedium {
		entry, ok, _ := c.medium.Get(ctx, key)
		if ok {
			c.recorder.Hit(constants.MediumTier)
			c.promote(ctx, entry, cfg.UseFast, false)

			return entry.Value, nil
		}

		c.recorder.Miss(constants.MediumTier)
	}

	if cfg.UseDurable && c.durableEnabled() {
		entry, ok, err := c.durable.Get(ctx, key)
		if err != nil {
			c.degradeDurable(err)
		} else if ok {
			c.recorder.Hit(constants.DurableTier)
			c.promote(ctx, entry, cfg.UseFast, cfg.UseMedium)

			return entry.Value, nil
		} else {
			c.recorder.Miss(constants.DurableTier)
		}
	}

	c.recorder.NetworkMiss()

	return nil, sentinel.ErrKeyNotFound
}

// promote copies an entry found in a slower tier into the faster tiers. The
// entry keeps its original StoredAt: promotion must not extend its life.
func (c *Coordinator) promote(ctx context.Context, entry *cache.Entry, toFast, toMedium bool) {
	if toMedium {
		err := c.medium.Set(ctx, entry)
		if err == nil {
			c.recorder.Write(constants.MediumTier)
		}
	}

	if toFast {
		err := c.fast.Set(ctx, entry)
		if err == nil {
			c.recorder.Write(constants.FastTier)
		}
	}

	if toFast || toMedium {
		c.recorder.Promotion()
	}
}

// Set stores the value in every enabled tier. The in-memory writes are
// synchronous, so a Get immediately after a successful Set returns the same
// value (read-your-write) as long as no TTL boundary is crossed. The durable
// write happens asynchronously; its failure is recorded as a metric and does
// not fail the Set.
func (c *Coordinator) Set(ctx context.Context, key string, value any, opts ...WriteOption) error {
	cfg := defaultWriteConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	entry := &cache.Entry{
		Key:      key,
		Value:    value,
		StoredAt: c.nowFunc(),
		Priority: cfg.Priority,
	}

	err := entry.Valid()
	if err != nil {
		return err
	}

	if sizeErr := entry.SetSize(); sizeErr != nil {
		// Size is observability-only; an unsizable value is still cacheable.
		entry.Size = 0
	}

	if cfg.UseFast {
		err = c.fast.Set(ctx, entry)
		if err != nil {
			return err
		}

		c.recorder.Write(constants.FastTier)
	}

	if cfg.UseMedium {
		err = c.medium.Set(ctx, entry)
		if err != nil {
			return err
		}

		c.recorder.Write(constants.MediumTier)
	}

	if cfg.UseDurable && c.durableEnabled() {
		c.inflight.Add(1)

		go c.persistDurable(entry)
	}

	return nil
}

// persistDurable writes the entry to the durable tier, serializing writes to
// the same key so transactions never pipeline.
func (c *Coordinator) persistDurable(entry *cache.Entry) {
	defer c.inflight.Done()

	stripe := xxhash.Sum64String(entry.Key) % writeStripes

	c.writeLocks[stripe].Lock()
	defer c.writeLocks[stripe].Unlock()

	if !c.durableEnabled() {
		return
	}

	err := c.durable.Set(context.Background(), entry)
	if err != nil {
		c.degradeDurable(err)

		return
	}

	c.recorder.Write(constants.DurableTier)
}

// GetOrSet retrieves the value for the key, or stores the given value if no
// tier holds it. The boolean reports whether the value came from the cache.
func (c *Coordinator) GetOrSet(ctx context.Context, key string, value any, opts ...WriteOption) (any, bool, error) {
	existing, err := c.Get(ctx, key)
	if err == nil {
		return existing, true, nil
	}

	err = c.Set(ctx, key, value, opts...)
	if err != nil {
		return nil, false, err
	}

	return value, false, nil
}

// GetMultiple retrieves the values for the given keys. Keys found in no tier
// are reported in the failed map with sentinel.ErrKeyNotFound.
func (c *Coordinator) GetMultiple(ctx context.Context, keys ...string) (map[string]any, map[string]error) {
	result := make(map[string]any, len(keys))
	failed := make(map[string]error)

	for _, key := range keys {
		value, err := c.Get(ctx, key)
		if err != nil {
			failed[key] = err

			continue
		}

		result[key] = value
	}

	return result, failed
}

// Invalidate removes every fast- and medium-tier entry whose key contains the
// pattern, then triggers a scheduler refresh. The durable tier is left alone:
// durable entries age out via TTL or are overwritten on the next fetch.
func (c *Coordinator) Invalidate(ctx context.Context, pattern string) error {
	if pattern == "" {
		return sentinel.ErrParamCannotBeEmpty
	}

	for _, tier := range []store.Tier{c.fast, c.medium} {
		keys, err := tier.Keys(ctx)
		if err != nil {
			continue
		}

		matched := make([]string, 0, len(keys))

		for _, key := range keys {
			if strings.Contains(key, pattern) {
				matched = append(matched, key)
			}
		}

		if len(matched) > 0 {
			_ = tier.Remove(ctx, matched...)
		}
	}

	if hook := c.refreshHook.Load(); hook != nil {
		(*hook)(pattern)
	}

	return nil
}

// InvalidateAll clears the fast and medium tiers unconditionally. It backs
// the cross-tab storage-change signal, which deliberately does not attempt
// partial invalidation by key.
func (c *Coordinator) InvalidateAll(ctx context.Context) error {
	err := c.fast.Clear(ctx)
	if err != nil {
		return err
	}

	return c.medium.Clear(ctx)
}

// Remove deletes the keys from every tier, including the durable tier.
func (c *Coordinator) Remove(ctx context.Context, keys ...string) error {
	err := c.fast.Remove(ctx, keys...)
	if err != nil {
		return err
	}

	err = c.medium.Remove(ctx, keys...)
	if err != nil {
		return err
	}

	if c.durableEnabled() {
		err = c.durable.Remove(ctx, keys...)
		if err != nil {
			c.degradeDurable(err)
		}
	}

	return nil
}

// Counts returns the entry count per tier.
func (c *Coordinator) Counts(ctx context.Context) map[string]int {
	counts := map[string]int{
		constants.FastTier:   c.fast.Count(ctx),
		constants.MediumTier: c.medium.Count(ctx),
	}

	if c.durableEnabled() {
		counts[constants.DurableTier] = c.durable.Count(ctx)
	}

	return counts
}

// GetStats returns a snapshot of the collected statistics.
func (c *Coordinator) GetStats() stats.Stats {
	return c.recorder.GetStats()
}

// DurableHealthy reports whether the durable tier is attached and has not
// failed this session.
func (c *Coordinator) DurableHealthy() bool {
	return c.durableEnabled()
}

// Close waits for in-flight durable writes to settle.
func (c *Coordinator) Close() {
	c.inflight.Wait()
}

func (c *Coordinator) durableEnabled() bool {
	return c.durable != nil && !c.durableDown.Load()
}

// degradeDurable flips the coordinator to memory-only operation for the rest
// of the session after a durable-tier failure.
func (c *Coordinator) degradeDurable(err error) {
	c.recorder.Error(constants.DurableTier)

	if c.durableDown.CompareAndSwap(false, true) {
		c.logger.Printf("coordinator: durable tier unavailable, continuing memory-only: %v", err)
	}
}
