package subscription

import (
	"sync"
	"testing"

	"github.com/eventualhq/syncengine/internal/sentinel"
	"github.com/eventualhq/syncengine/pkg/transport"
)

// fakeAnnouncer records sent notices and can simulate a disconnected transport.
type fakeAnnouncer struct {
	mu           sync.Mutex
	sent         []transport.Message
	disconnected bool
}

func (f *fakeAnnouncer) Send(msg transport.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.disconnected {
		return sentinel.ErrNotConnected
	}

	f.sent = append(f.sent, msg)

	return nil
}

func (f *fakeAnnouncer) sentTypes() []transport.MessageType {
	f.mu.Lock()
	defer f.mu.Unlock()

	types := make([]transport.MessageType, 0, len(f.sent))
	for _, msg := range f.sent {
		types = append(types, msg.Type)
	}

	return types
}

type fakePollControl struct {
	stopped []string
}

func (f *fakePollControl) StopDomain(domain string) {
	f.stopped = append(f.stopped, domain)
}

func TestRegistry_FirstSubscribeAnnounces(t *testing.T) {
	announcer := &fakeAnnouncer{}
	reg := New(WithAnnouncer(announcer))

	reg.Subscribe("events", func(transport.UpdatePayload) {})
	reg.Subscribe("events", func(transport.UpdatePayload) {})

	types := announcer.sentTypes()
	if len(types) != 1 || types[0] != transport.TypeSubscribe {
		t.Errorf("expected a single subscribe notice, got %v", types)
	}
}

func TestRegistry_LastUnsubscribeNotifiesAndStopsPolling(t *testing.T) {
	announcer := &fakeAnnouncer{}
	poll := &fakePollControl{}
	reg := New(WithAnnouncer(announcer), WithPollControl(poll))

	cancel1 := reg.Subscribe("events", func(transport.UpdatePayload) {})
	cancel2 := reg.Subscribe("events", func(transport.UpdatePayload) {})

	cancel1()

	if len(poll.stopped) != 0 {
		t.Error("expected polling to continue while a handler remains")
	}

	cancel2()

	types := announcer.sentTypes()
	if len(types) != 2 || types[1] != transport.TypeUnsubscribe {
		t.Errorf("expected subscribe then unsubscribe, got %v", types)
	}

	if len(poll.stopped) != 1 || poll.stopped[0] != "events" {
		t.Errorf("expected polling stopped for events, got %v", poll.stopped)
	}

	if len(reg.Channels()) != 0 {
		t.Error("expected no remaining channels")
	}
}

func TestRegistry_AnnounceDeferredWhileDisconnected(t *testing.T) {
	announcer := &fakeAnnouncer{disconnected: true}
	reg := New(WithAnnouncer(announcer))

	// The failed announce is tolerated; the reconnect path re-announces.
	reg.Subscribe("events", func(transport.UpdatePayload) {})

	announcer.mu.Lock()
	announcer.disconnected = false
	announcer.mu.Unlock()

	reg.ResubscribeAll()

	types := announcer.sentTypes()
	if len(types) != 1 || types[0] != transport.TypeSubscribe {
		t.Errorf("expected the deferred announce on resubscribe, got %v", types)
	}
}

func TestRegistry_ResubscribeAllCoversEveryChannel(t *testing.T) {
	announcer := &fakeAnnouncer{}
	reg := New(WithAnnouncer(announcer))

	reg.Subscribe("events", func(transport.UpdatePayload) {})
	reg.Subscribe("connections", func(transport.UpdatePayload) {})

	reg.ResubscribeAll()

	// Two initial announces plus two on resubscribe.
	if len(announcer.sentTypes()) != 4 {
		t.Errorf("expected 4 notices, got %v", announcer.sentTypes())
	}
}

func TestRegistry_DispatchIsolation(t *testing.T) {
	reg := New()

	var delivered []string

	reg.Subscribe("events", func(transport.UpdatePayload) { panic("boom") })
	reg.Subscribe("events", func(u transport.UpdatePayload) { delivered = append(delivered, u.Domain) })

	reg.Dispatch("events", transport.UpdatePayload{Domain: "events"})

	if len(delivered) != 1 || delivered[0] != "events" {
		t.Errorf("expected delivery despite the panicking handler, got %v", delivered)
	}
}

func TestRegistry_DispatchOnlyMatchingChannel(t *testing.T) {
	reg := New()

	calls := 0

	reg.Subscribe("events", func(transport.UpdatePayload) { calls++ })

	reg.Dispatch("connections", transport.UpdatePayload{Domain: "connections"})

	if calls != 0 {
		t.Error("expected no delivery for an unrelated channel")
	}
}
