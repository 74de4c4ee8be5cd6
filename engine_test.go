package syncengine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/eventualhq/syncengine/internal/sentinel"
	"github.com/eventualhq/syncengine/pkg/dispatch"
	"github.com/eventualhq/syncengine/pkg/transport"
)

func memoryEngine(t *testing.T) *Engine {
	t.Helper()

	eng, err := New(NewConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	return eng
}

func TestEngine_GetSet(t *testing.T) {
	ctx := context.Background()
	eng := memoryEngine(t)

	err := eng.Set(ctx, "profile:1", "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	value, err := eng.Get(ctx, "profile:1")
	if err != nil || value != "alice" {
		t.Fatalf("expected alice, got %v %v", value, err)
	}

	_, err = eng.Get(ctx, "missing")
	if !errors.Is(err, sentinel.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestEngine_ConnectionStateWithoutTransport(t *testing.T) {
	eng := memoryEngine(t)

	if eng.ConnectionState() != transport.StateDisconnected {
		t.Errorf("expected disconnected, got %s", eng.ConnectionState())
	}
}

func TestEngine_UpdateDeliveryPath(t *testing.T) {
	ctx := context.Background()
	eng := memoryEngine(t)

	var (
		subscribed []transport.UpdatePayload
		events     int
	)

	eng.Subscribe("events", func(u transport.UpdatePayload) {
		subscribed = append(subscribed, u)
	})
	eng.On(dispatch.EventDomainUpdated, func(any) { events++ })

	update := transport.UpdatePayload{
		Domain:    "events",
		Items:     json.RawMessage(`[{"id":1}]`),
		UpdatedAt: time.Now(),
	}

	eng.handleUpdate(update)

	if len(subscribed) != 1 || subscribed[0].Domain != "events" {
		t.Errorf("expected the subscriber to receive the update, got %v", subscribed)
	}

	if events != 1 {
		t.Errorf("expected one domain-updated event, got %d", events)
	}

	// The update also landed in the cache under the domain key.
	value, err := eng.Get(ctx, "events")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	items, ok := value.(json.RawMessage)
	if !ok || string(items) != `[{"id":1}]` {
		t.Errorf("expected the raw items cached, got %v", value)
	}
}

func TestEngine_StorageChangedSignalClearsMemoryTiers(t *testing.T) {
	ctx := context.Background()
	eng := memoryEngine(t)

	eng.Set(ctx, "a", 1)
	eng.Set(ctx, "b", 2)

	err := eng.StorageChangedSignal(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := eng.Get(ctx, "a"); !errors.Is(err, sentinel.ErrKeyNotFound) {
		t.Error("expected a to be gone after the cross-tab signal")
	}

	counts := eng.Counts(ctx)
	if counts["fast"] != 0 || counts["medium"] != 0 {
		t.Errorf("expected empty tiers, got %v", counts)
	}
}

func TestEngine_StartStopIdempotent(t *testing.T) {
	eng := memoryEngine(t)

	ctx := context.Background()

	if err := eng.Start(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := eng.Start(ctx); err != nil {
		t.Fatalf("second start must be a no-op: %v", err)
	}

	if err := eng.Stop(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := eng.Stop(ctx); err != nil {
		t.Fatalf("second stop must be a no-op: %v", err)
	}
}

func TestApplyMiddleware(t *testing.T) {
	eng := memoryEngine(t)

	applied := 0

	svc := ApplyMiddleware(eng, func(next Service) Service {
		applied++

		return next
	})

	if applied != 1 {
		t.Errorf("expected the middleware applied once, got %d", applied)
	}

	if svc != Service(eng) {
		t.Error("expected the pass-through middleware to return the engine")
	}
}
