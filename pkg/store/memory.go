package store

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/eventualhq/syncengine/pkg/cache"
)

// Memory is a bounded in-memory tier. It keeps a doubly-linked list of entries
// in insertion order and a map for O(1) lookup by key.
//
// Eviction is FIFO over insertion: when the tier is at capacity the
// oldest-inserted entry is removed, regardless of whether it was read since.
// Reads never reorder the list. This is deliberately weaker than LRU and must
// stay that way; callers depend on the insertion-order guarantee.
//
// Expiry is lazy: an entry older than the tier TTL is deleted on read and
// reported as a miss.
type Memory struct {
	mu       sync.RWMutex
	order    *list.List               // entries in insertion order, oldest at the front
	byKey    map[string]*list.Element // key -> list element holding the *cache.Entry
	config   cache.TierConfig
	nowFunc  func() time.Time
	onEvict  func(key string)
	onExpire func(key string)
}

// MemoryOption configures a Memory tier.
type MemoryOption func(*Memory)

// WithClock overrides the time source. Used by tests to cross TTL boundaries
// without sleeping.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.nowFunc = now }
}

// WithEvictHook registers a callback invoked with the key of every
// capacity-triggered eviction.
func WithEvictHook(hook func(key string)) MemoryOption {
	return func(m *Memory) { m.onEvict = hook }
}

// WithExpireHook registers a callback invoked with the key of every entry
// deleted by the lazy TTL check.
func WithExpireHook(hook func(key string)) MemoryOption {
	return func(m *Memory) { m.onExpire = hook }
}

// NewMemory creates a new in-memory tier with the given configuration.
func NewMemory(config cache.TierConfig, opts ...MemoryOption) (*Memory, error) {
	err := config.Valid()
	if err != nil {
		return nil, err
	}

	mem := &Memory{
		order:   list.New(),
		byKey:   make(map[string]*list.Element),
		config:  config,
		nowFunc: time.Now,
	}

	for _, opt := range opts {
		opt(mem)
	}

	return mem, nil
}

// Config returns the tier configuration.
func (m *Memory) Config() cache.TierConfig {
	return m.config
}

// Get retrieves the entry with the given key. An entry past the tier TTL is
// deleted and reported as a miss.
func (m *Memory) Get(_ context.Context, key string) (*cache.Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.byKey[key]
	if !ok {
		return nil, false, nil
	}

	entry, _ := elem.Value.(*cache.Entry)
	if entry.Expired(m.config.TTL, m.nowFunc()) {
		m.removeElement(elem)

		if m.onExpire != nil {
			m.onExpire(key)
		}

		return nil, false, nil
	}

	return entry, true, nil
}

// Set stores the entry. If the key already exists the entry is replaced in
// place, keeping its insertion position. If the tier is at capacity the
// oldest-inserted entry is evicted first.
func (m *Memory) Set(_ context.Context, entry *cache.Entry) error {
	err := entry.Valid()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.byKey[entry.Key]; ok {
		elem.Value = entry

		return nil
	}

	if m.order.Len() >= m.config.MaxEntries {
		oldest := m.order.Front()
		if oldest != nil {
			evicted, _ := oldest.Value.(*cache.Entry)
			m.removeElement(oldest)

			if m.onEvict != nil {
				m.onEvict(evicted.Key)
			}
		}
	}

	m.byKey[entry.Key] = m.order.PushBack(entry)

	return nil
}

// Remove deletes the entries with the given keys. Missing keys are ignored.
func (m *Memory) Remove(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		if elem, ok := m.byKey[key]; ok {
			m.removeElement(elem)
		}
	}

	return nil
}

// Clear removes all entries.
func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.order.Init()
	m.byKey = make(map[string]*list.Element)

	return nil
}

// Count returns the number of entries currently stored.
func (m *Memory) Count(_ context.Context) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.order.Len()
}

// Keys returns a snapshot of the keys currently stored, oldest first.
func (m *Memory) Keys(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, m.order.Len())

	for elem := m.order.Front(); elem != nil; elem = elem.Next() {
		entry, _ := elem.Value.(*cache.Entry)
		keys = append(keys, entry.Key)
	}

	return keys, nil
}

// removeElement removes the given element from the order list and the key map.
// Callers must hold the write lock.
func (m *Memory) removeElement(elem *list.Element) {
	entry, _ := elem.Value.(*cache.Entry)

	m.order.Remove(elem)
	delete(m.byKey, entry.Key)
}
