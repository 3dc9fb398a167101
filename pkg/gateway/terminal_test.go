package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarterdeck/core/errors"
)

// ptyEcho is a test-side terminal endpoint: it records incoming control
// frames and lets tests push binary output to the client.
type ptyEcho struct {
	upgrader websocket.Upgrader

	mu     sync.Mutex
	frames []ControlFrame
	conns  []*websocket.Conn
}

func (p *ptyEcho) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	p.mu.Lock()
	p.conns = append(p.conns, conn)
	p.mu.Unlock()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		var frame ControlFrame
		if json.Unmarshal(data, &frame) != nil {
			continue
		}
		p.mu.Lock()
		p.frames = append(p.frames, frame)
		p.mu.Unlock()
	}
}

func (p *ptyEcho) received() []ControlFrame {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ControlFrame, len(p.frames))
	copy(out, p.frames)
	return out
}

func (p *ptyEcho) writeOutput(t *testing.T, data []byte) {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	require.NotEmpty(t, p.conns, "no terminal connection yet")
	conn := p.conns[len(p.conns)-1]
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, data))
}

func (p *ptyEcho) waitFrames(t *testing.T, n int) []ControlFrame {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		frames := p.received()
		if len(frames) >= n {
			return frames
		}
		if time.Now().After(deadline) {
			t.Fatalf("got %d control frames, want %d", len(frames), n)
		}
		time.Sleep(time.Millisecond)
	}
}

func quietLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(logger)
}

func wsAddr(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestTerminalControlFrames(t *testing.T) {
	echo := &ptyEcho{}
	srv := httptest.NewServer(echo)
	defer srv.Close()

	term, err := OpenTerminal(context.Background(), wsAddr(srv), "s1", quietLogger())
	require.NoError(t, err)
	defer term.Close()
	assert.Equal(t, "s1", term.SessionID())

	input := []byte{0x1b, '[', 'A', 0x00, 0xff} // arbitrary bytes, not UTF-8
	require.NoError(t, term.SendInput(input))
	require.NoError(t, term.SendResize(120, 40))

	frames := echo.waitFrames(t, 2)
	assert.Equal(t, "input", frames[0].Type)
	decoded, err := base64.StdEncoding.DecodeString(frames[0].Data)
	require.NoError(t, err)
	assert.Equal(t, input, decoded)

	assert.Equal(t, "resize", frames[1].Type)
	assert.Equal(t, 120, frames[1].Cols)
	assert.Equal(t, 40, frames[1].Rows)
}

func TestTerminalBuffersOutputBeforeSetOutput(t *testing.T) {
	echo := &ptyEcho{}
	srv := httptest.NewServer(echo)
	defer srv.Close()

	term, err := OpenTerminal(context.Background(), wsAddr(srv), "s1", quietLogger())
	require.NoError(t, err)
	defer term.Close()

	// Output lands before any writer is registered.
	echo.writeOutput(t, []byte("early "))

	// Wait for the read loop to buffer it, then register a writer.
	deadline := time.Now().Add(5 * time.Second)
	for {
		term.outMu.Lock()
		buffered := term.pending.Len()
		term.outMu.Unlock()
		if buffered > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("early output never buffered")
		}
		time.Sleep(time.Millisecond)
	}

	var buf syncBuffer
	term.SetOutput(&buf)
	assert.Equal(t, "early ", buf.String())

	// Later output streams straight through.
	echo.writeOutput(t, []byte("late"))
	deadline = time.Now().Add(5 * time.Second)
	for buf.String() != "early late" {
		if time.Now().After(deadline) {
			t.Fatalf("output never streamed, have %q", buf.String())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestTerminalWriteAfterClose(t *testing.T) {
	echo := &ptyEcho{}
	srv := httptest.NewServer(echo)
	defer srv.Close()

	term, err := OpenTerminal(context.Background(), wsAddr(srv), "s1", quietLogger())
	require.NoError(t, err)
	require.NoError(t, term.Close())
	require.NoError(t, term.Close()) // idempotent

	err = term.SendInput([]byte("x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeTerminalClosed))
}

func TestOpenTerminalDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := OpenTerminal(context.Background(), wsAddr(srv), "s1", quietLogger())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeGatewayUnreachable))
}

// syncBuffer is a mutex-guarded bytes.Buffer; the terminal read loop
// writes from its own goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
