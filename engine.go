// Package syncengine keeps client-visible data fresh across a three-tier
// cache, a realtime transport, a polling fallback, and a baseline refresh
// scheduler. The Engine assembles the pieces and exposes the Service surface.
package syncengine

import (
	"context"
	"sync"

	"github.com/hyp3rd/ewrap"

	"github.com/eventualhq/syncengine/internal/libs/serializer"
	"github.com/eventualhq/syncengine/pkg/coordinator"
	"github.com/eventualhq/syncengine/pkg/dispatch"
	"github.com/eventualhq/syncengine/pkg/polling"
	"github.com/eventualhq/syncengine/pkg/scheduler"
	"github.com/eventualhq/syncengine/pkg/stats"
	"github.com/eventualhq/syncengine/pkg/store"
	"github.com/eventualhq/syncengine/pkg/subscription"
	"github.com/eventualhq/syncengine/pkg/transport"
)

// Engine is the assembled sync engine. Construct it with New, then Start it.
type Engine struct {
	coordinator *coordinator.Coordinator
	dispatcher  *dispatch.Dispatcher
	registry    *subscription.Registry
	manager     *transport.Manager   // nil without a transport URL
	fallback    *polling.Fallback    // nil without a poll base URL
	scheduler   *scheduler.Scheduler // nil without a fetch function
	mgmt        *ManagementHTTPServer
	recorder    stats.Recorder
	logger      Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	started bool
}

// New assembles an engine from the config. Nothing runs until Start.
func New(cfg *Config) (*Engine, error) {
	if cfg == nil {
		cfg = NewConfig()
	}

	recorder := cfg.Recorder
	if recorder == nil {
		recorder = stats.NewCollector()
	}

	var logger Logger = NopLogger{}
	if cfg.Logger != nil {
		logger = cfg.Logger
	}

	eng := &Engine{
		recorder: recorder,
		logger:   logger,
	}

	coord, err := buildCoordinator(cfg, recorder, logger)
	if err != nil {
		return nil, err
	}

	eng.coordinator = coord
	eng.dispatcher = dispatch.New(logger)

	registryOpts := []subscription.Option{subscription.WithLogger(logger)}

	if cfg.PollBaseURL != "" {
		pollOpts := []polling.Option{
			polling.WithRecorder(recorder),
			polling.WithLogger(logger),
		}

		if cfg.ClientIdentity != "" {
			pollOpts = append(pollOpts, polling.WithClientID(polling.Fingerprint(cfg.ClientIdentity)))
		}

		if cfg.RedisClient != nil {
			cursors, cursorsErr := store.NewRedisCursors(cfg.RedisClient, cfg.DurableKeysSet)
			if cursorsErr == nil {
				pollOpts = append(pollOpts, polling.WithCursorStore(cursors))
			}
		}

		pollOpts = append(pollOpts, cfg.PollingOptions...)

		eng.fallback = polling.NewFallback(cfg.PollBaseURL, eng.handleUpdate, pollOpts...)
		registryOpts = append(registryOpts, subscription.WithPollControl(eng.fallback))
	}

	eng.registry = subscription.New(registryOpts...)

	if cfg.Fetch != nil {
		schedOpts := append([]scheduler.Option{scheduler.WithLogger(logger)}, cfg.SchedulerOptions...)
		eng.scheduler = scheduler.New(coord, eng.dispatcher, cfg.Fetch, schedOpts...)
		coord.SetRefreshHook(eng.scheduler.RefreshMatching)
	}

	if cfg.TransportURL != "" {
		eng.manager = buildManager(cfg, eng, recorder, logger)
		eng.registry.SetAnnouncer(eng.manager)
	}

	if cfg.ManagementAddr != "" {
		eng.mgmt = NewManagementHTTPServer(cfg.ManagementAddr)
	}

	return eng, nil
}

// buildCoordinator creates the cache tiers and the coordinator over them.
func buildCoordinator(cfg *Config, recorder stats.Recorder, logger Logger) (*coordinator.Coordinator, error) {
	fast, err := store.NewMemory(cfg.FastTier,
		store.WithEvictHook(func(string) { recorder.Eviction() }),
		store.WithExpireHook(func(string) { recorder.Expiration() }),
	)
	if err != nil {
		return nil, ewrap.Wrap(err, "fast tier")
	}

	medium, err := store.NewMemory(cfg.MediumTier,
		store.WithEvictHook(func(string) { recorder.Eviction() }),
		store.WithExpireHook(func(string) { recorder.Expiration() }),
	)
	if err != nil {
		return nil, ewrap.Wrap(err, "medium tier")
	}

	opts := []coordinator.Option{
		coordinator.WithRecorder(recorder),
		coordinator.WithLogger(logger),
	}

	if cfg.RedisClient != nil {
		serializerName := cfg.SerializerName
		if serializerName == "" {
			serializerName = "msgpack"
		}

		ser, serErr := serializer.New(serializerName)
		if serErr != nil {
			return nil, serErr
		}

		durable, durErr := store.NewRedis(
			store.WithRedisClient(cfg.RedisClient),
			store.WithKeysSetName(cfg.DurableKeysSet),
			store.WithTTL(cfg.DurableTTL),
			store.WithSerializer(ser),
		)
		if durErr != nil {
			return nil, ewrap.Wrap(durErr, "durable tier")
		}

		opts = append(opts, coordinator.WithDurable(durable))
	}

	return coordinator.New(fast, medium, opts...), nil
}

// buildManager wires the transport manager's callbacks into the engine: state
// changes fan out as events, updates land in the cache, and the polling
// fallback takes over while degraded.
func buildManager(cfg *Config, eng *Engine, recorder stats.Recorder, logger Logger) *transport.Manager {
	opts := []transport.ManagerOption{
		transport.WithRecorder(recorder),
		transport.WithLogger(logger),
		transport.WithOnUpdate(eng.handleUpdate),
		transport.WithOnConnected(func() {
			eng.registry.ResubscribeAll()
		}),
		transport.WithOnStateChange(func(state transport.State) {
			eng.dispatcher.Emit(dispatch.EventConnectionStateChanged, state)
		}),
		transport.WithOnDegraded(func() {
			if eng.fallback != nil {
				eng.fallback.StartDomains(eng.registry.Channels())
			}
		}),
		transport.WithOnResumed(func() {
			if eng.fallback != nil {
				eng.fallback.StopAll()
			}

			if eng.scheduler != nil {
				eng.scheduler.RefreshAll()
			}
		}),
	}

	opts = append(opts, cfg.TransportOptions...)

	return transport.NewManager(transport.NewWebsocketDialer(), cfg.TransportURL, opts...)
}

// handleUpdate is the single delivery path for domain updates, whether they
// arrived over the realtime transport or a fallback poll: cache the fresh
// items, notify channel subscribers, and emit the domain-updated event.
func (e *Engine) handleUpdate(update transport.UpdatePayload) {
	if len(update.Items) > 0 {
		err := e.coordinator.Set(context.Background(), update.Domain, update.Items)
		if err != nil {
			e.logger.Printf("engine: caching update for %q: %v", update.Domain, err)
		}
	}

	e.registry.Dispatch(update.Domain, update)
	e.dispatcher.Emit(dispatch.EventDomainUpdated, update)
}

// Start brings the engine online: the realtime transport begins connecting,
// the polling fallback and scheduler arm, and the management server (if
// configured) starts listening. Start is idempotent.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	if e.fallback != nil {
		e.fallback.Start(runCtx)
	}

	if e.scheduler != nil {
		e.scheduler.Start(runCtx)
	}

	if e.manager != nil {
		err := e.manager.Start(runCtx)
		if err != nil {
			cancel()

			return err
		}
	}

	if e.mgmt != nil {
		err := e.mgmt.Start(runCtx, e)
		if err != nil {
			e.logger.Printf("engine: management server failed to start: %v", err)
		}
	}

	e.started = true

	return nil
}

// Stop shuts the engine down: the transport disconnects, pollers and refresh
// jobs drain, and in-flight durable writes settle.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started {
		return nil
	}

	e.cancel()

	if e.manager != nil {
		e.manager.Stop()
	}

	if e.fallback != nil {
		e.fallback.StopAll()
		e.fallback.Wait()
	}

	if e.scheduler != nil {
		e.scheduler.Wait()
	}

	e.coordinator.Close()

	if e.mgmt != nil {
		err := e.mgmt.Shutdown(ctx)
		if err != nil {
			return err
		}
	}

	e.started = false

	return nil
}

// Get retrieves a value from the cache tiers using the key.
func (e *Engine) Get(ctx context.Context, key string, opts ...coordinator.ReadOption) (any, error) {
	return e.coordinator.Get(ctx, key, opts...)
}

// Set stores a value in the enabled cache tiers.
func (e *Engine) Set(ctx context.Context, key string, value any, opts ...coordinator.WriteOption) error {
	return e.coordinator.Set(ctx, key, value, opts...)
}

// GetOrSet retrieves a value using the key, or stores the given value if no
// tier holds it.
func (e *Engine) GetOrSet(ctx context.Context, key string, value any, opts ...coordinator.WriteOption) (any, bool, error) {
	return e.coordinator.GetOrSet(ctx, key, value, opts...)
}

// GetMultiple retrieves a list of values using the keys.
func (e *Engine) GetMultiple(ctx context.Context, keys ...string) (map[string]any, map[string]error) {
	return e.coordinator.GetMultiple(ctx, keys...)
}

// Invalidate removes every in-memory entry whose key contains the pattern and
// triggers a refresh of the matching domains.
func (e *Engine) Invalidate(ctx context.Context, pattern string) error {
	return e.coordinator.Invalidate(ctx, pattern)
}

// InvalidateAll clears the in-memory tiers.
func (e *Engine) InvalidateAll(ctx context.Context) error {
	return e.coordinator.InvalidateAll(ctx)
}

// Remove deletes the keys from every tier.
func (e *Engine) Remove(ctx context.Context, keys ...string) error {
	return e.coordinator.Remove(ctx, keys...)
}

// Subscribe registers a handler for updates on the channel. The channel joins
// the baseline refresh schedule, and the polling fallback if the transport is
// already degraded.
func (e *Engine) Subscribe(channel string, handler subscription.Handler) func() {
	cancel := e.registry.Subscribe(channel, handler)

	if e.scheduler != nil {
		e.scheduler.AddDomain(channel)
	}

	if e.fallback != nil && e.manager != nil && e.manager.State() == transport.StateDegraded {
		e.fallback.StartDomain(channel)
	}

	return cancel
}

// On registers a handler for an engine event.
func (e *Engine) On(eventType string, handler dispatch.Handler) func() {
	return e.dispatcher.On(eventType, handler)
}

// ConnectionState returns the realtime transport state, or
// transport.StateDisconnected when no transport is configured.
func (e *Engine) ConnectionState() transport.State {
	if e.manager == nil {
		return transport.StateDisconnected
	}

	return e.manager.State()
}

// Counts returns the entry count per cache tier.
func (e *Engine) Counts(ctx context.Context) map[string]int {
	return e.coordinator.Counts(ctx)
}

// GetStats returns the stats of the engine.
func (e *Engine) GetStats() stats.Stats {
	return e.recorder.GetStats()
}

// DurableHealthy reports whether the durable tier is attached and has not
// failed this session.
func (e *Engine) DurableHealthy() bool {
	return e.coordinator.DurableHealthy()
}

// OnlineSignal reports that connectivity returned. A degraded transport gets
// one opportunistic reconnect attempt and every domain is refreshed.
func (e *Engine) OnlineSignal() {
	if e.manager != nil {
		e.manager.OnlineSignal()
	}

	if e.scheduler != nil {
		e.scheduler.RefreshAll()
	}
}

// VisibilitySignal reports a page visibility change. Hiding slows the polling
// cadence; becoming visible restores it and refreshes every domain.
func (e *Engine) VisibilitySignal(visible bool) {
	if e.fallback != nil {
		e.fallback.SetVisibility(visible)
	}

	if visible && e.scheduler != nil {
		e.scheduler.RefreshAll()
	}
}

// StorageChangedSignal reports that another tab changed the shared durable
// storage. The in-memory tiers are cleared wholesale: reconciling individual
// keys across tabs is not worth the complexity, the next reads repopulate.
func (e *Engine) StorageChangedSignal(ctx context.Context) error {
	return e.coordinator.InvalidateAll(ctx)
}
