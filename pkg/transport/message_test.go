package transport

import (
	"errors"
	"testing"

	"github.com/eventualhq/syncengine/internal/sentinel"
)

func TestDecodeInbound(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantKind  any
		violation bool
	}{
		{name: "ping", raw: `{"type":"ping"}`, wantKind: PingMessage{}},
		{name: "pong", raw: `{"type":"pong"}`, wantKind: PongMessage{}},
		{
			name:     "update",
			raw:      `{"type":"update","data":{"domain":"events","items":[{"id":1}],"updatedAt":"2026-08-25T10:00:00Z"}}`,
			wantKind: UpdateMessage{},
		},
		{name: "malformed json", raw: `{not json`, violation: true},
		{name: "unknown type", raw: `{"type":"mystery"}`, violation: true},
		{name: "update without domain", raw: `{"type":"update","data":{"items":[]}}`, violation: true},
		{name: "outbound type inbound", raw: `{"type":"subscribe","data":{"channel":"events"}}`, violation: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := DecodeInbound([]byte(tt.raw))

			if tt.violation {
				if !errors.Is(err, sentinel.ErrProtocolViolation) {
					t.Errorf("expected ErrProtocolViolation, got %v", err)
				}

				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			switch tt.wantKind.(type) {
			case PingMessage:
				if _, ok := msg.(PingMessage); !ok {
					t.Errorf("expected PingMessage, got %T", msg)
				}
			case PongMessage:
				if _, ok := msg.(PongMessage); !ok {
					t.Errorf("expected PongMessage, got %T", msg)
				}
			case UpdateMessage:
				update, ok := msg.(UpdateMessage)
				if !ok {
					t.Fatalf("expected UpdateMessage, got %T", msg)
				}

				if update.Payload.Domain != "events" {
					t.Errorf("expected domain events, got %q", update.Payload.Domain)
				}
			}
		})
	}
}

func TestChannelMessages(t *testing.T) {
	msg, err := NewSubscribeMessage("connections")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if msg.Type != TypeSubscribe {
		t.Errorf("expected subscribe, got %s", msg.Type)
	}

	if _, err = NewUnsubscribeMessage(""); err == nil {
		t.Error("expected error for empty channel, got nil")
	}
}
