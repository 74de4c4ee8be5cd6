// Package stats collects cache and sync statistics. The recorder is pure
// bookkeeping: nothing in the engine branches on its counters.
package stats

import "sync"

// TierStats holds the counters for a single cache tier.
type TierStats struct {
	Hits   uint64 // reads satisfied by this tier
	Misses uint64 // reads this tier could not satisfy
	Errors uint64 // failed operations against this tier
	Writes uint64 // entries written into this tier
}

// Stats is a point-in-time snapshot of the engine counters.
type Stats struct {
	Tiers              map[string]TierStats // per-tier counters, keyed by tier name
	NetworkMisses      uint64               // reads that fell through every tier
	Promotions         uint64               // lower-tier hits copied into faster tiers
	Evictions          uint64               // capacity-triggered removals
	Expirations        uint64               // TTL-triggered removals observed at read time
	Reconnects         uint64               // transport reconnect cycles entered
	ProtocolViolations uint64               // malformed inbound messages dropped
	PollCycles         uint64               // completed fallback poll requests
}

// Recorder is the interface consumed by the engine components.
type Recorder interface {
	// Hit records a read satisfied by the named tier.
	Hit(tier string)
	// Miss records a read the named tier could not satisfy.
	Miss(tier string)
	// Error records a failed operation against the named tier.
	Error(tier string)
	// Write records an entry written into the named tier.
	Write(tier string)
	// NetworkMiss records a read that fell through every tier.
	NetworkMiss()
	// Promotion records a lower-tier hit copied into faster tiers.
	Promotion()
	// Eviction records a capacity-triggered removal.
	Eviction()
	// Expiration records a TTL-triggered removal.
	Expiration()
	// Reconnect records a transport reconnect cycle.
	Reconnect()
	// ProtocolViolation records a dropped malformed message.
	ProtocolViolation()
	// PollCycle records a completed fallback poll request.
	PollCycle()
	// GetStats returns a snapshot of the collected statistics.
	GetStats() Stats
}

// Collector is the default Recorder implementation.
type Collector struct {
	mu    sync.RWMutex
	tiers map[string]*TierStats
	stats Stats
}

// NewCollector creates a new stats collector.
func NewCollector() *Collector {
	return &Collector{
		tiers: make(map[string]*TierStats),
	}
}

func (c *Collector) tier(name string) *TierStats {
	ts, ok := c.tiers[name]
	if !ok {
		ts = &TierStats{}
		c.tiers[name] = ts
	}

	return ts
}

// Hit records a read satisfied by the named tier.
func (c *Collector) Hit(tier string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tier(tier).Hits++
}

// Miss records a read the named tier could not satisfy.
func (c *Collector) Miss(tier string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tier(tier).Misses++
}

// Error records a failed operation against the named tier.
func (c *Collector) Error(tier string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tier(tier).Errors++
}

// Write records an entry written into the named tier.
func (c *Collector) Write(tier string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tier(tier).Writes++
}

// NetworkMiss records a read that fell through every tier.
func (c *Collector) NetworkMiss() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.NetworkMisses++
}

// Promotion records a lower-tier hit copied into faster tiers.
func (c *Collector) Promotion() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Promotions++
}

// Eviction records a capacity-triggered removal.
func (c *Collector) Eviction() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Evictions++
}

// Expiration records a TTL-triggered removal.
func (c *Collector) Expiration() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Expirations++
}

// Reconnect records a transport reconnect cycle.
func (c *Collector) Reconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Reconnects++
}

// ProtocolViolation records a dropped malformed message.
func (c *Collector) ProtocolViolation() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.ProtocolViolations++
}

// PollCycle records a completed fallback poll request.
func (c *Collector) PollCycle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.PollCycles++
}

// GetStats returns a snapshot of the collected statistics.
func (c *Collector) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := c.stats
	out.Tiers = make(map[string]TierStats, len(c.tiers))

	for name, ts := range c.tiers {
		out.Tiers[name] = *ts
	}

	return out
}
