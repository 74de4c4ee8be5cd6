package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/eventualhq/syncengine/pkg/coordinator"
	"github.com/eventualhq/syncengine/pkg/dispatch"
)

type fakeStore struct {
	mu     sync.Mutex
	values map[string]any
}

func newFakeStore() *fakeStore {
	return &fakeStore{values: make(map[string]any)}
}

func (f *fakeStore) Set(_ context.Context, key string, value any, _ ...coordinator.WriteOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.values[key] = value

	return nil
}

func (f *fakeStore) get(key string) any {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.values[key]
}

type fakeEmitter struct {
	mu     sync.Mutex
	events []string
	loads  []any
}

func (f *fakeEmitter) Emit(eventType string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.events = append(f.events, eventType)
	f.loads = append(f.loads, payload)
}

func (f *fakeEmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.events)
}

type fetchRecorder struct {
	mu      sync.Mutex
	domains []string
	err     error
}

func (f *fetchRecorder) fetch(_ context.Context, domain string) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	f.domains = append(f.domains, domain)

	return map[string]any{domain + ":1": "fresh"}, nil
}

func (f *fetchRecorder) fetched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, len(f.domains))
	copy(out, f.domains)

	return out
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}

		time.Sleep(2 * time.Millisecond)
	}

	t.Fatalf("timed out waiting for %s", what)
}

func TestScheduler_RefreshWritesThroughAndEmits(t *testing.T) {
	store := newFakeStore()
	emitter := &fakeEmitter{}
	fetcher := &fetchRecorder{}

	sched := New(store, emitter, fetcher.fetch)

	err := sched.RefreshDomain(context.Background(), "events")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if store.get("events:1") != "fresh" {
		t.Error("expected the fetched value in the store")
	}

	if emitter.count() != 1 || emitter.events[0] != dispatch.EventDomainUpdated {
		t.Errorf("expected a domain-updated event, got %v", emitter.events)
	}

	refresh, ok := emitter.loads[0].(Refresh)
	if !ok {
		t.Fatalf("expected a Refresh payload, got %T", emitter.loads[0])
	}

	if refresh.Domain != "events" || len(refresh.Keys) != 1 {
		t.Errorf("unexpected refresh payload: %+v", refresh)
	}
}

func TestScheduler_FetchErrorEmitsNothing(t *testing.T) {
	store := newFakeStore()
	emitter := &fakeEmitter{}
	fetcher := &fetchRecorder{err: errors.New("backend down")}

	sched := New(store, emitter, fetcher.fetch)

	err := sched.RefreshDomain(context.Background(), "events")
	if err == nil {
		t.Fatal("expected the fetch error to surface")
	}

	if emitter.count() != 0 {
		t.Error("expected no event on a failed refresh")
	}
}

func TestScheduler_BaselineInterval(t *testing.T) {
	store := newFakeStore()
	emitter := &fakeEmitter{}
	fetcher := &fetchRecorder{}

	sched := New(store, emitter, fetcher.fetch,
		WithDomainInterval("events", 5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched.Start(ctx)
	sched.AddDomain("events")

	waitFor(t, time.Second, "two baseline refreshes", func() bool { return len(fetcher.fetched()) >= 2 })

	sched.RemoveDomain("events")
	sched.Wait()
}

func TestScheduler_RefreshAllKicksEveryDomain(t *testing.T) {
	store := newFakeStore()
	emitter := &fakeEmitter{}
	fetcher := &fetchRecorder{}

	sched := New(store, emitter, fetcher.fetch,
		WithDomainInterval("events", time.Hour),
		WithDomainInterval("connections", time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched.Start(ctx)
	sched.AddDomain("events")
	sched.AddDomain("connections")

	sched.RefreshAll()

	waitFor(t, time.Second, "both domains refreshed", func() bool {
		fetched := fetcher.fetched()
		seen := make(map[string]bool, len(fetched))

		for _, domain := range fetched {
			seen[domain] = true
		}

		return seen["events"] && seen["connections"]
	})
}

func TestScheduler_RefreshMatchingFiltersByPattern(t *testing.T) {
	store := newFakeStore()
	emitter := &fakeEmitter{}
	fetcher := &fetchRecorder{}

	sched := New(store, emitter, fetcher.fetch,
		WithDomainInterval("events", time.Hour),
		WithDomainInterval("connections", time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched.Start(ctx)
	sched.AddDomain("events")
	sched.AddDomain("connections")

	sched.RefreshMatching("event")

	waitFor(t, time.Second, "the matching domain", func() bool {
		for _, domain := range fetcher.fetched() {
			if domain == "events" {
				return true
			}
		}

		return false
	})

	time.Sleep(20 * time.Millisecond)

	for _, domain := range fetcher.fetched() {
		if domain == "connections" {
			t.Error("expected only the matching domain to refresh")
		}
	}
}
