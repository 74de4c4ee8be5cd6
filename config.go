package syncengine

import (
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eventualhq/syncengine/internal/constants"
	"github.com/eventualhq/syncengine/pkg/cache"
	"github.com/eventualhq/syncengine/pkg/polling"
	"github.com/eventualhq/syncengine/pkg/scheduler"
	"github.com/eventualhq/syncengine/pkg/stats"
	"github.com/eventualhq/syncengine/pkg/transport"
)

// Logger describes a logging interface allowing to plug in external or custom loggers.
type Logger interface {
	Printf(format string, v ...any)
}

// NopLogger discards all log output.
type NopLogger struct{}

// Printf implements Logger.
func (NopLogger) Printf(string, ...any) {}

// Config wraps all the configuration options to set up the `Engine` and its
// collaborators.
type Config struct {
	// TransportURL is the realtime endpoint. Empty disables the realtime
	// transport; the engine then relies on polling and scheduled refresh.
	TransportURL string
	// PollBaseURL is the base URL of the poll endpoint. Empty disables the
	// polling fallback.
	PollBaseURL string
	// ClientIdentity seeds the opaque client token sent on poll requests.
	ClientIdentity string

	// FastTier configures the first in-memory tier.
	FastTier cache.TierConfig
	// MediumTier configures the second in-memory tier.
	MediumTier cache.TierConfig
	// DurableTTL bounds the life of entries in the durable tier.
	DurableTTL time.Duration
	// DurableKeysSet names the set tracking durable keys.
	DurableKeysSet string
	// RedisClient backs the durable tier. Nil disables the durable tier; the
	// engine then operates memory-only.
	RedisClient *redis.Client
	// SerializerName picks the durable-tier codec from the serializer
	// registry. Empty selects msgpack.
	SerializerName string

	// Fetch retrieves a domain's current state for scheduled refreshes. Nil
	// disables the scheduler.
	Fetch scheduler.FetchFunc

	// ManagementAddr exposes the introspection HTTP server when non-empty.
	ManagementAddr string

	// TransportOptions is a slice of options that can be used to configure the transport `Manager`.
	TransportOptions []transport.ManagerOption
	// PollingOptions is a slice of options that can be used to configure the polling `Fallback`.
	PollingOptions []polling.Option
	// SchedulerOptions is a slice of options that can be used to configure the `Scheduler`.
	SchedulerOptions []scheduler.Option

	// Recorder collects engine statistics. Nil selects a fresh collector
	// shared across every component.
	Recorder stats.Recorder
	// Logger receives engine log output. Nil discards it.
	Logger Logger
}

// NewConfig returns a new `Config` struct with default values:
//   - fast tier: 256 entries, 5 minute TTL
//   - medium tier: 1024 entries, 30 minute TTL
//   - durable tier: 24 hour TTL, msgpack serializer, disabled until a Redis
//     client is attached
//
// Each of the above can be overridden before passing the config to New.
func NewConfig() *Config {
	return &Config{
		FastTier: cache.TierConfig{
			MaxEntries: constants.DefaultFastCapacity,
			TTL:        constants.DefaultFastTTL,
		},
		MediumTier: cache.TierConfig{
			MaxEntries: constants.DefaultMediumCapacity,
			TTL:        constants.DefaultMediumTTL,
		},
		DurableTTL:     constants.DefaultDurableTTL,
		DurableKeysSet: constants.DefaultDurableKeysSet,
	}
}
