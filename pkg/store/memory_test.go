package store

import (
	"context"
	"testing"
	"time"

	"github.com/eventualhq/syncengine/pkg/cache"
)

func testConfig(maxEntries int, ttl time.Duration) cache.TierConfig {
	return cache.TierConfig{MaxEntries: maxEntries, TTL: ttl}
}

func entryAt(key string, value any, storedAt time.Time) *cache.Entry {
	return &cache.Entry{Key: key, Value: value, StoredAt: storedAt}
}

func TestMemory_GetSet(t *testing.T) {
	ctx := context.Background()

	mem, err := NewMemory(testConfig(3, time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Test getting a non-existent key
	_, ok, err := mem.Get(ctx, "missing")
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected ok to be false, got true")
	}

	err = mem.Set(ctx, entryAt("key1", "value1", time.Now()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entry, ok, _ := mem.Get(ctx, "key1")
	if !ok {
		t.Fatal("expected ok to be true, got false")
	}
	if entry.Value != "value1" {
		t.Error("expected value to be value1, got", entry.Value)
	}
}

func TestMemory_InvalidConfig(t *testing.T) {
	_, err := NewMemory(testConfig(0, time.Minute))
	if err == nil {
		t.Error("expected error for zero capacity, got nil")
	}

	_, err = NewMemory(testConfig(1, 0))
	if err == nil {
		t.Error("expected error for zero ttl, got nil")
	}
}

func TestMemory_InvalidEntry(t *testing.T) {
	ctx := context.Background()
	mem, _ := NewMemory(testConfig(3, time.Minute))

	err := mem.Set(ctx, entryAt("", "value", time.Now()))
	if err == nil {
		t.Error("expected error for empty key, got nil")
	}

	err = mem.Set(ctx, entryAt("key", nil, time.Now()))
	if err == nil {
		t.Error("expected error for nil value, got nil")
	}
}

func TestMemory_EvictsOldestInserted(t *testing.T) {
	ctx := context.Background()

	var evicted []string

	mem, err := NewMemory(testConfig(2, time.Minute),
		WithEvictHook(func(key string) { evicted = append(evicted, key) }))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	now := time.Now()
	mem.Set(ctx, entryAt("a", 1, now))
	mem.Set(ctx, entryAt("b", 2, now))

	// Reading "a" must not protect it: eviction order is insertion order.
	_, ok, _ := mem.Get(ctx, "a")
	if !ok {
		t.Fatal("expected a to be present")
	}

	mem.Set(ctx, entryAt("c", 3, now))

	if _, ok, _ := mem.Get(ctx, "a"); ok {
		t.Error("expected a to be evicted")
	}
	if _, ok, _ := mem.Get(ctx, "b"); !ok {
		t.Error("expected b to survive")
	}
	if _, ok, _ := mem.Get(ctx, "c"); !ok {
		t.Error("expected c to survive")
	}

	if len(evicted) != 1 || evicted[0] != "a" {
		t.Errorf("expected evict hook for a, got %v", evicted)
	}
}

func TestMemory_UpdateKeepsInsertionPosition(t *testing.T) {
	ctx := context.Background()
	mem, _ := NewMemory(testConfig(2, time.Minute))

	now := time.Now()
	mem.Set(ctx, entryAt("a", 1, now))
	mem.Set(ctx, entryAt("b", 2, now))

	// Rewriting "a" replaces the entry but keeps it oldest.
	mem.Set(ctx, entryAt("a", 10, now))
	mem.Set(ctx, entryAt("c", 3, now))

	if _, ok, _ := mem.Get(ctx, "a"); ok {
		t.Error("expected a to be evicted despite the recent update")
	}

	entry, ok, _ := mem.Get(ctx, "b")
	if !ok || entry.Value != 2 {
		t.Error("expected b to survive with its value")
	}
}

func TestMemory_TTLBoundary(t *testing.T) {
	ctx := context.Background()

	current := time.Unix(1000, 0)
	clock := func() time.Time { return current }

	var expired []string

	mem, err := NewMemory(testConfig(10, 5*time.Second),
		WithClock(clock),
		WithExpireHook(func(key string) { expired = append(expired, key) }))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mem.Set(ctx, entryAt("key", "value", current))

	// Exactly at the TTL the entry is still valid.
	current = current.Add(5 * time.Second)

	if _, ok, _ := mem.Get(ctx, "key"); !ok {
		t.Error("expected hit exactly at the ttl boundary")
	}

	// One instant past the TTL it is a miss and gets deleted.
	current = current.Add(time.Nanosecond)

	if _, ok, _ := mem.Get(ctx, "key"); ok {
		t.Error("expected miss past the ttl boundary")
	}

	if len(expired) != 1 || expired[0] != "key" {
		t.Errorf("expected expire hook for key, got %v", expired)
	}

	if mem.Count(ctx) != 0 {
		t.Errorf("expected expired entry to be deleted, count is %d", mem.Count(ctx))
	}
}

func TestMemory_RemoveAndClear(t *testing.T) {
	ctx := context.Background()
	mem, _ := NewMemory(testConfig(5, time.Minute))

	now := time.Now()
	mem.Set(ctx, entryAt("a", 1, now))
	mem.Set(ctx, entryAt("b", 2, now))
	mem.Set(ctx, entryAt("c", 3, now))

	err := mem.Remove(ctx, "a", "missing")
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if mem.Count(ctx) != 2 {
		t.Errorf("expected 2 entries, got %d", mem.Count(ctx))
	}

	keys, _ := mem.Keys(ctx)
	if len(keys) != 2 || keys[0] != "b" || keys[1] != "c" {
		t.Errorf("expected keys [b c], got %v", keys)
	}

	err = mem.Clear(ctx)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if mem.Count(ctx) != 0 {
		t.Errorf("expected empty tier, got %d", mem.Count(ctx))
	}
}
