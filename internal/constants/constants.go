// Package constants defines shared configuration defaults and identifiers used
// across the syncengine components.
package constants

import "time"

// Tier identifiers used by the stats recorder and the coordinator.
const (
	// FastTier is the in-memory tier checked first on every read.
	FastTier = "fast"
	// MediumTier is the session-scoped in-memory tier.
	MediumTier = "medium"
	// DurableTier is the persistent tier surviving restarts.
	DurableTier = "durable"
	// NetworkSource identifies a miss that must be satisfied by the network.
	NetworkSource = "network"
)

// Default tier sizing. Capacities bound memory; TTLs bound staleness.
const (
	DefaultFastCapacity   = 256
	DefaultMediumCapacity = 1024
	DefaultDurableKeysSet = "syncengine"

	DefaultFastTTL    = 5 * time.Minute
	DefaultMediumTTL  = 30 * time.Minute
	DefaultDurableTTL = 24 * time.Hour
)

// Transport defaults.
const (
	DefaultConnectTimeout    = 10 * time.Second
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultBackoffBase       = 1 * time.Second
	DefaultMaxReconnects     = 5
	// MaxMissedPongs is the number of consecutive unanswered pings tolerated
	// before the connection is treated as dead and force-closed.
	MaxMissedPongs = 2
)

// Polling defaults.
const (
	DefaultPollInterval = 60 * time.Second
	// HiddenPollFactor multiplies a domain's interval while the page is hidden.
	HiddenPollFactor = 2
)

// Scheduler defaults.
const DefaultRefreshInterval = 5 * time.Minute
