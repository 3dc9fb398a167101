package gateway

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quarterdeck/core/errors"
	"github.com/quarterdeck/core/pkg/push"
)

// WSDialer opens the gateway's push socket. It implements push.Dialer
// over gorilla/websocket.
type WSDialer struct {
	// URL is the push endpoint, e.g. "ws://localhost:8600/ws".
	URL string

	// HandshakeTimeout bounds the dial; zero means 10 s.
	HandshakeTimeout time.Duration
}

// Dial opens one push connection.
func (d *WSDialer) Dial(ctx context.Context) (push.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: d.HandshakeTimeout,
	}
	if dialer.HandshakeTimeout == 0 {
		dialer.HandshakeTimeout = 10 * time.Second
	}

	conn, _, err := dialer.DialContext(ctx, d.URL, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodePushDialFailed, "push socket dial failed").
			WithDetail("url", d.URL)
	}
	return &wsConn{conn: conn}, nil
}

// wsConn adapts *websocket.Conn to push.Conn.
type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) Close() error {
	// Best effort: tell the peer this is a clean close before tearing
	// the socket down.
	deadline := time.Now().Add(time.Second)
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return c.conn.Close()
}
