package coordinator

import "github.com/eventualhq/syncengine/pkg/cache"

// ReadConfig controls which tiers a single Get consults. All tiers are
// enabled by default; callers disable tiers to request stale-tolerant or
// cache-only reads.
type ReadConfig struct {
	UseFast    bool
	UseMedium  bool
	UseDurable bool
}

// ReadOption mutates the per-call read configuration.
type ReadOption func(*ReadConfig)

func defaultReadConfig() ReadConfig {
	return ReadConfig{UseFast: true, UseMedium: true, UseDurable: true}
}

// SkipFast disables the fast tier for this read.
func SkipFast() ReadOption {
	return func(c *ReadConfig) { c.UseFast = false }
}

// SkipMedium disables the medium tier for this read.
func SkipMedium() ReadOption {
	return func(c *ReadConfig) { c.UseMedium = false }
}

// SkipDurable disables the durable tier for this read.
func SkipDurable() ReadOption {
	return func(c *ReadConfig) { c.UseDurable = false }
}

// MemoryOnly disables the durable tier for this read, equivalent to SkipDurable.
func MemoryOnly() ReadOption {
	return SkipDurable()
}

// WriteConfig controls which tiers a single Set writes to and the priority
// class of the stored entry.
type WriteConfig struct {
	UseFast    bool
	UseMedium  bool
	UseDurable bool
	Priority   cache.Priority
}

// WriteOption mutates the per-call write configuration.
type WriteOption func(*WriteConfig)

func defaultWriteConfig() WriteConfig {
	return WriteConfig{UseFast: true, UseMedium: true, UseDurable: true, Priority: cache.PriorityNormal}
}

// WriteSkipFast disables the fast tier for this write.
func WriteSkipFast() WriteOption {
	return func(c *WriteConfig) { c.UseFast = false }
}

// WriteSkipMedium disables the medium tier for this write.
func WriteSkipMedium() WriteOption {
	return func(c *WriteConfig) { c.UseMedium = false }
}

// WriteSkipDurable disables the durable tier for this write.
func WriteSkipDurable() WriteOption {
	return func(c *WriteConfig) { c.UseDurable = false }
}

// WithPriority sets the priority class of the stored entry.
func WithPriority(p cache.Priority) WriteOption {
	return func(c *WriteConfig) { c.Priority = p }
}
