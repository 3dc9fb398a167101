package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/quarterdeck/core/errors"
)

// Terminal control frame kinds. Outgoing frames are JSON text;
// incoming PTY output arrives as raw binary frames.
const (
	ctrlInput  = "input"
	ctrlResize = "resize"
)

// ControlFrame is the JSON envelope for client-to-gateway terminal
// messages. Data carries base64-encoded input bytes because PTY input
// is arbitrary binary, not guaranteed UTF-8.
type ControlFrame struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
	Cols int    `json:"cols,omitempty"`
	Rows int    `json:"rows,omitempty"`
}

// Terminal is one session's byte pipe to its remote PTY, implementing
// term.Transport over a websocket. Remote output received before
// SetOutput registers a writer is buffered, not dropped, so the first
// screenful survives view startup.
type Terminal struct {
	sessionID string
	conn      *websocket.Conn
	logger    *logrus.Entry

	writeMu sync.Mutex // serializes websocket writes

	outMu   sync.Mutex
	out     io.Writer
	pending bytes.Buffer

	closeOnce sync.Once
	closed    chan struct{}
}

// OpenTerminal dials the gateway's terminal endpoint for one session.
// wsURL is the fully formed endpoint, e.g.
// "ws://localhost:8600/ws/terminal?session=<id>".
func OpenTerminal(ctx context.Context, wsURL, sessionID string, logger *logrus.Entry) (*Terminal, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeGatewayUnreachable, "terminal socket dial failed").
			WithDetail("session", sessionID).
			WithDetail("url", wsURL)
	}

	t := &Terminal{
		sessionID: sessionID,
		conn:      conn,
		logger:    logger.WithField("session", sessionID),
		closed:    make(chan struct{}),
	}
	go t.readLoop()
	return t, nil
}

// SessionID returns the session this terminal is bound to.
func (t *Terminal) SessionID() string { return t.sessionID }

// SendInput forwards input bytes to the remote PTY.
func (t *Terminal) SendInput(data []byte) error {
	frame := ControlFrame{
		Type: ctrlInput,
		Data: base64.StdEncoding.EncodeToString(data),
	}
	if err := t.writeJSON(frame); err != nil {
		return errors.Wrap(err, errors.ErrCodeTerminalWriteFailed, "failed to send terminal input").
			WithDetail("session", t.sessionID)
	}
	return nil
}

// SendResize notifies the remote PTY of a new grid size.
func (t *Terminal) SendResize(cols, rows int) error {
	frame := ControlFrame{Type: ctrlResize, Cols: cols, Rows: rows}
	if err := t.writeJSON(frame); err != nil {
		return errors.Wrap(err, errors.ErrCodeTerminalWriteFailed, "failed to send terminal resize").
			WithDetail("session", t.sessionID)
	}
	return nil
}

// SetOutput registers the writer that receives remote PTY output. Any
// bytes that arrived before registration are flushed to it first.
func (t *Terminal) SetOutput(w io.Writer) {
	t.outMu.Lock()
	defer t.outMu.Unlock()
	t.out = w
	if w != nil && t.pending.Len() > 0 {
		_, _ = w.Write(t.pending.Bytes())
		t.pending.Reset()
	}
}

// Close tears the socket down. Safe to call more than once.
func (t *Terminal) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)
		deadline := time.Now().Add(time.Second)
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = t.conn.Close()
	})
	return err
}

func (t *Terminal) writeJSON(v interface{}) error {
	select {
	case <-t.closed:
		return errors.TerminalClosed(t.sessionID)
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop copies binary frames (raw PTY output) to the registered
// writer until the socket dies.
func (t *Terminal) readLoop() {
	for {
		msgType, data, err := t.conn.ReadMessage()
		if err != nil {
			select {
			case <-t.closed:
			default:
				t.logger.WithError(err).Debug("Terminal socket closed")
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}

		t.outMu.Lock()
		if t.out != nil {
			_, _ = t.out.Write(data)
		} else {
			t.pending.Write(data)
		}
		t.outMu.Unlock()
	}
}
