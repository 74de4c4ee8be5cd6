package dispatch

import "testing"

func TestDispatcher_EmitInRegistrationOrder(t *testing.T) {
	d := New(nil)

	var order []string

	d.On(EventDomainUpdated, func(any) { order = append(order, "first") })
	d.On(EventDomainUpdated, func(any) { order = append(order, "second") })

	d.Emit(EventDomainUpdated, nil)

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("expected handlers in registration order, got %v", order)
	}
}

func TestDispatcher_PanicIsolation(t *testing.T) {
	d := New(NopLogger{})

	ran := false

	d.On(EventDomainUpdated, func(any) { panic("boom") })
	d.On(EventDomainUpdated, func(any) { ran = true })

	d.Emit(EventDomainUpdated, "payload")

	if !ran {
		t.Error("expected the second handler to run despite the first panicking")
	}
}

func TestDispatcher_CancelRemovesHandler(t *testing.T) {
	d := New(nil)

	calls := 0
	cancel := d.On(EventConnectionStateChanged, func(any) { calls++ })

	d.Emit(EventConnectionStateChanged, nil)
	cancel()
	d.Emit(EventConnectionStateChanged, nil)

	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}

	if d.HandlerCount(EventConnectionStateChanged) != 0 {
		t.Error("expected no remaining handlers")
	}
}

func TestDispatcher_PayloadDelivered(t *testing.T) {
	d := New(nil)

	var got any

	d.On(EventDomainUpdated, func(payload any) { got = payload })
	d.Emit(EventDomainUpdated, "events")

	if got != "events" {
		t.Errorf("expected payload events, got %v", got)
	}
}
