package gateway

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/quarterdeck/core/errors"
	"github.com/quarterdeck/core/pkg/models"
	"github.com/quarterdeck/core/pkg/push"
)

// Fake is an in-memory gateway: a scripted snapshot source and push
// dialer used by `qd sync --fake`, examples, and tests. It never opens
// a socket.
type Fake struct {
	mu      sync.Mutex
	snap    models.SessionsSnapshot
	snapErr error
	dialErr error
	conn    *FakeConn
}

// NewFake creates an empty Fake.
func NewFake() *Fake {
	return &Fake{}
}

// SetSnapshot scripts the next ListSessions responses.
func (f *Fake) SetSnapshot(snap models.SessionsSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = snap
	f.snapErr = nil
}

// SetSnapshotError makes ListSessions fail until the next SetSnapshot.
func (f *Fake) SetSnapshotError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapErr = err
}

// SetDialError makes Dial fail.
func (f *Fake) SetDialError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dialErr = err
}

// ListSessions implements poller.SnapshotSource.
func (f *Fake) ListSessions(ctx context.Context) (models.SessionsSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snapErr != nil {
		return models.SessionsSnapshot{}, f.snapErr
	}
	snap := models.SessionsSnapshot{Active: f.snap.Active}
	snap.Sessions = make([]models.SessionRecord, len(f.snap.Sessions))
	for i, s := range f.snap.Sessions {
		snap.Sessions[i] = s.Clone()
	}
	return snap, nil
}

// Dial implements push.Dialer. Each successful dial replaces the
// previous fake connection.
func (f *Fake) Dial(ctx context.Context) (push.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dialErr != nil {
		return nil, f.dialErr
	}
	conn := &FakeConn{
		frames: make(chan []byte, 64),
		closed: make(chan struct{}),
	}
	f.conn = conn
	return conn, nil
}

// Push sends an envelope of the given type over the live fake
// connection.
func (f *Fake) Push(envType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(models.PushEnvelope{Type: envType, Data: data})
	if err != nil {
		return err
	}
	return f.PushRaw(frame)
}

// PushRaw sends a raw frame over the live fake connection.
func (f *Fake) PushRaw(frame []byte) error {
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	if conn == nil {
		return errors.New(errors.ErrCodeInternal, "no live fake push connection")
	}
	select {
	case conn.frames <- frame:
		return nil
	case <-conn.closed:
		return errors.New(errors.ErrCodeInternal, "fake push connection closed")
	}
}

// DropConnection simulates an unexpected socket loss.
func (f *Fake) DropConnection() {
	f.mu.Lock()
	conn := f.conn
	f.conn = nil
	f.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// FakeConn is the in-memory push.Conn handed out by Fake.Dial.
type FakeConn struct {
	frames    chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

// ReadMessage blocks for the next scripted frame.
func (c *FakeConn) ReadMessage() ([]byte, error) {
	select {
	case frame := <-c.frames:
		return frame, nil
	case <-c.closed:
		return nil, errors.New(errors.ErrCodePushDialFailed, "fake connection closed")
	}
}

// Close drops the connection; a blocked ReadMessage returns an error.
func (c *FakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}
