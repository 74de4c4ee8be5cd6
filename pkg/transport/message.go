// Package transport owns the realtime connection lifecycle: connect,
// heartbeat, reconnect with exponential backoff, degraded-mode handoff, and
// the wire protocol spoken over it.
package transport

import (
	"time"

	"github.com/goccy/go-json"

	"github.com/hyp3rd/ewrap"

	"github.com/eventualhq/syncengine/internal/sentinel"
)

// MessageType tags a wire message.
type MessageType string

// Known message types. Inbound: ping, pong, update. Outbound: subscribe,
// unsubscribe, pong.
const (
	TypePing        MessageType = "ping"
	TypePong        MessageType = "pong"
	TypeUpdate      MessageType = "update"
	TypeSubscribe   MessageType = "subscribe"
	TypeUnsubscribe MessageType = "unsubscribe"
)

// Message is the envelope for every wire message: a newline-free JSON object
// of shape {type, data?}.
type Message struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Encode serializes the message for the wire.
func (m Message) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, ewrap.Wrap(err, "encode message")
	}

	return data, nil
}

// UpdatePayload is the data carried by an update notification.
type UpdatePayload struct {
	Domain    string          `json:"domain"`
	Items     json.RawMessage `json:"items"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// ChannelPayload is the data carried by subscribe and unsubscribe notices.
type ChannelPayload struct {
	Channel string `json:"channel"`
}

// Inbound is the closed set of messages the manager accepts from the server.
type Inbound interface {
	inbound()
}

// PingMessage is a server liveness probe; the manager answers with a pong.
type PingMessage struct{}

// PongMessage acknowledges a ping sent by the manager.
type PongMessage struct{}

// UpdateMessage carries changed items for a domain.
type UpdateMessage struct {
	Payload UpdatePayload
}

func (PingMessage) inbound()   {}
func (PongMessage) inbound()   {}
func (UpdateMessage) inbound() {}

// DecodeInbound parses a raw frame into one of the known inbound kinds. A
// frame that is not valid JSON, lacks a type, or carries an unknown type is a
// protocol violation: the caller drops the single offending message and the
// connection stays up.
func DecodeInbound(raw []byte) (Inbound, error) {
	var msg Message

	err := json.Unmarshal(raw, &msg)
	if err != nil {
		return nil, ewrap.Wrap(sentinel.ErrProtocolViolation, "malformed frame")
	}

	switch msg.Type {
	case TypePing:
		return PingMessage{}, nil

	case TypePong:
		return PongMessage{}, nil

	case TypeUpdate:
		var payload UpdatePayload

		err = json.Unmarshal(msg.Data, &payload)
		if err != nil || payload.Domain == "" {
			return nil, ewrap.Wrap(sentinel.ErrProtocolViolation, "malformed update payload")
		}

		return UpdateMessage{Payload: payload}, nil

	case TypeSubscribe, TypeUnsubscribe:
		// Outbound-only types arriving inbound are a violation like any other.
		return nil, ewrap.Wrapf(sentinel.ErrProtocolViolation, "unexpected inbound type %q", msg.Type)

	default:
		return nil, ewrap.Wrapf(sentinel.ErrProtocolViolation, "unknown type %q", msg.Type)
	}
}

// NewSubscribeMessage builds an outbound subscribe notice for a channel.
func NewSubscribeMessage(channel string) (Message, error) {
	return newChannelMessage(TypeSubscribe, channel)
}

// NewUnsubscribeMessage builds an outbound unsubscribe notice for a channel.
func NewUnsubscribeMessage(channel string) (Message, error) {
	return newChannelMessage(TypeUnsubscribe, channel)
}

func newChannelMessage(msgType MessageType, channel string) (Message, error) {
	if channel == "" {
		return Message{}, ewrap.Wrap(sentinel.ErrParamCannotBeEmpty, "channel")
	}

	data, err := json.Marshal(ChannelPayload{Channel: channel})
	if err != nil {
		return Message{}, ewrap.Wrap(err, "encode channel payload")
	}

	return Message{Type: msgType, Data: data}, nil
}
