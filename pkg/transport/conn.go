package transport

import (
	"context"

	"github.com/gorilla/websocket"

	"github.com/hyp3rd/ewrap"
)

// Conn is a single bidirectional message channel. Implementations must allow
// Close to unblock a concurrent ReadMessage.
type Conn interface {
	// ReadMessage blocks until the next frame arrives or the connection fails.
	ReadMessage() ([]byte, error)
	// WriteMessage sends a single frame.
	WriteMessage(data []byte) error
	// Close tears the connection down.
	Close() error
}

// Dialer opens connections to the realtime endpoint. The manager depends on
// this interface so tests can substitute an in-memory implementation.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebsocketDialer dials the realtime endpoint over a websocket.
type WebsocketDialer struct {
	dialer *websocket.Dialer
}

// NewWebsocketDialer creates a dialer with the default websocket settings.
func NewWebsocketDialer() *WebsocketDialer {
	return &WebsocketDialer{dialer: websocket.DefaultDialer}
}

// Dial opens a websocket connection. The context bounds the handshake.
func (d *WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, ewrap.Wrap(err, "websocket dial")
	}

	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, ewrap.Wrap(err, "websocket read")
	}

	return data, nil
}

func (c *wsConn) WriteMessage(data []byte) error {
	err := c.conn.WriteMessage(websocket.TextMessage, data)
	if err != nil {
		return ewrap.Wrap(err, "websocket write")
	}

	return nil
}

func (c *wsConn) Close() error {
	err := c.conn.Close()
	if err != nil {
		return ewrap.Wrap(err, "websocket close")
	}

	return nil
}
