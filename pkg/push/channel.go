package push

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/quarterdeck/core/clock"
	"github.com/quarterdeck/core/pkg/models"
)

// Conn is one open push socket. ReadMessage blocks until the next
// frame or a terminal error; Close unblocks a pending read.
type Conn interface {
	ReadMessage() ([]byte, error)
	Close() error
}

// Dialer opens push sockets. The gateway package provides the
// websocket implementation; tests use in-memory fakes.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// Sink receives decoded push messages. Each method is an independent
// handler: an error from one is logged and never blocks delivery of
// subsequent frames.
type Sink interface {
	HandleActivity(u models.ActivityUpdate) error
	HandleStatus(c models.StatusChange) error
	HandlePrompt(p models.PromptRecord) error
}

// Options tunes a Channel. Zero values select production defaults.
type Options struct {
	Backoff     Backoff
	MaxAttempts int
	Clock       clock.Clock
	Logger      *logrus.Entry
}

type eventKind uint8

const (
	evConnect eventKind = iota
	evDisconnect
	evDialResult
	evConnClosed
	evRetry
)

// event is one input to the state machine. All socket callbacks and
// API calls are funneled through the event channel so the machine runs
// on a single goroutine and never mutates state from an arbitrary
// callback.
type event struct {
	kind eventKind
	conn Conn  // evDialResult (success), evConnClosed (which socket)
	err  error // evDialResult (failure), evConnClosed (why)
}

// Channel is the push connection state machine. Construct with New,
// drive with Run, and poke with Connect/Disconnect. State transitions
// are observable via OnStateChange and readable via State.
type Channel struct {
	dialer      Dialer
	sink        Sink
	backoff     Backoff
	maxAttempts int
	clk         clock.Clock
	logger      *logrus.Entry

	events chan event
	done   chan struct{}

	mu          sync.Mutex
	state       ConnectionState
	observers   []func(ConnectionState)
	intentional bool

	// Owned by the Run goroutine.
	conn       Conn
	attempts   int
	retryTimer *clock.Timer
}

// New creates a Channel in the Disconnected state.
func New(dialer Dialer, sink Sink, opts Options) *Channel {
	if opts.Backoff.Base == 0 {
		opts.Backoff = DefaultBackoff()
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Channel{
		dialer:      dialer,
		sink:        sink,
		backoff:     opts.Backoff,
		maxAttempts: opts.MaxAttempts,
		clk:         opts.Clock,
		logger:      opts.Logger,
		events:      make(chan event, 16),
		done:        make(chan struct{}),
		state:       Disconnected,
	}
}

// State returns the current connection state.
func (c *Channel) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnStateChange registers an observer invoked (from the machine's
// goroutine) after every state transition.
func (c *Channel) OnStateChange(fn func(ConnectionState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// Connect requests a connection. Ignored unless the channel is
// Disconnected: there is never more than one live socket or dial.
func (c *Channel) Connect() {
	c.mu.Lock()
	c.intentional = false
	c.mu.Unlock()
	c.post(event{kind: evConnect})
}

// Disconnect requests an intentional close. The flag is set before the
// socket closes so the resulting close event never feeds the reconnect
// path, and any pending retry timer is cancelled.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.intentional = true
	c.mu.Unlock()
	c.post(event{kind: evDisconnect})
}

func (c *Channel) post(e event) {
	select {
	case c.events <- e:
	default:
		// The machine is wedged or the buffer is full of socket churn;
		// dropping a duplicate request is safe, the state is already
		// heading where the caller asked.
		c.logger.WithField("event", e.kind).Warn("Push event dropped, queue full")
	}
}

// Run executes the state machine until ctx is cancelled. It owns all
// state transitions; dial and read happen on helper goroutines that
// report back through the event channel. Run may be called again after
// it returns; each run gets its own teardown signal so helper
// goroutines from a previous run cannot be confused with the current
// one.
func (c *Channel) Run(ctx context.Context) {
	done := make(chan struct{})
	c.mu.Lock()
	c.done = done
	c.mu.Unlock()
	defer c.teardown(done)

	for {
		select {
		case <-ctx.Done():
			return
		case e := <-c.events:
			c.handle(ctx, e)
		}
	}
}

func (c *Channel) handle(ctx context.Context, e event) {
	switch e.kind {
	case evConnect:
		if c.State() != Disconnected {
			return
		}
		c.attempts = 0
		c.startDial(ctx)

	case evDisconnect:
		c.cancelRetry()
		if c.conn != nil {
			c.conn.Close()
			c.conn = nil
		}
		c.setState(Disconnected)

	case evDialResult:
		if c.intentionalNow() {
			if e.conn != nil {
				e.conn.Close()
			}
			c.setState(Disconnected)
			return
		}
		if e.err != nil {
			c.logger.WithError(e.err).WithField("attempt", c.attempts).Warn("Push dial failed")
			c.scheduleRetry()
			return
		}
		c.conn = e.conn
		c.attempts = 0
		c.setState(Connected)
		c.logger.Info("Push channel connected")
		go c.readLoop(e.conn, c.doneCh())

	case evConnClosed:
		if e.conn != c.conn {
			// Stale reader from a socket the machine already abandoned.
			return
		}
		c.conn = nil
		if c.intentionalNow() {
			c.setState(Disconnected)
			return
		}
		c.logger.WithError(e.err).Warn("Push connection lost")
		c.scheduleRetry()

	case evRetry:
		if c.State() != Reconnecting {
			return
		}
		c.retryTimer = nil
		c.startDial(ctx)
	}
}

func (c *Channel) startDial(ctx context.Context) {
	c.setState(Connecting)
	done := c.doneCh()
	go func() {
		conn, err := c.dialer.Dial(ctx)
		select {
		case c.events <- event{kind: evDialResult, conn: conn, err: err}:
		case <-done:
			if conn != nil {
				conn.Close()
			}
		}
	}()
}

// scheduleRetry moves to Reconnecting and arms the backoff timer, or
// gives up into Disconnected once the attempt ceiling is reached.
func (c *Channel) scheduleRetry() {
	c.attempts++
	if c.attempts >= c.maxAttempts {
		c.logger.WithField("attempts", c.attempts).Error("Push reconnect exhausted, giving up")
		c.setState(Disconnected)
		return
	}

	delay := c.backoff.Delay(c.attempts)
	c.setState(Reconnecting)
	c.logger.WithFields(logrus.Fields{
		"attempt": c.attempts,
		"delay":   delay,
	}).Info("Scheduling push reconnect")
	c.retryTimer = c.clk.AfterFunc(delay, func() {
		c.post(event{kind: evRetry})
	})
}

func (c *Channel) cancelRetry() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}

// teardown releases the run's resources. A machine that is not running
// is Disconnected, even when cancellation won the race against a queued
// disconnect event.
func (c *Channel) teardown(done chan struct{}) {
	close(done)
	c.cancelRetry()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.setState(Disconnected)
}

func (c *Channel) doneCh() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

func (c *Channel) intentionalNow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.intentional
}

func (c *Channel) setState(s ConnectionState) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	observers := make([]func(ConnectionState), len(c.observers))
	copy(observers, c.observers)
	c.mu.Unlock()

	for _, fn := range observers {
		fn(s)
	}
}

// readLoop pumps frames from one socket until it fails, dispatching
// each in receipt order, then reports the close to the machine.
func (c *Channel) readLoop(conn Conn, done <-chan struct{}) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			select {
			case c.events <- event{kind: evConnClosed, conn: conn, err: err}:
			case <-done:
			}
			return
		}
		c.dispatch(data)
	}
}

// dispatch decodes one frame and routes it to the sink. Malformed or
// unrecognized payloads are logged and dropped; the channel stays
// open, and a handler failure never blocks the next frame.
func (c *Channel) dispatch(data []byte) {
	var env models.PushEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.WithError(err).Warn("Dropping malformed push frame")
		return
	}

	switch env.Type {
	case models.PushActivityUpdate:
		var u models.ActivityUpdate
		if err := json.Unmarshal(env.Data, &u); err != nil {
			c.logger.WithError(err).Warn("Dropping malformed activity_update payload")
			return
		}
		if err := c.sink.HandleActivity(u); err != nil {
			c.logger.WithError(err).WithField("session", u.SessionID).Warn("Activity handler failed")
		}

	case models.PushStatusChange:
		var sc models.StatusChange
		if err := json.Unmarshal(env.Data, &sc); err != nil {
			c.logger.WithError(err).Warn("Dropping malformed status_change payload")
			return
		}
		if err := c.sink.HandleStatus(sc); err != nil {
			c.logger.WithError(err).WithField("session", sc.SessionID).Warn("Status handler failed")
		}

	case models.PushNewPrompt:
		var p models.PromptRecord
		if err := json.Unmarshal(env.Data, &p); err != nil {
			c.logger.WithError(err).Warn("Dropping malformed new_prompt payload")
			return
		}
		if err := c.sink.HandlePrompt(p); err != nil {
			c.logger.WithError(err).WithField("prompt", p.ID).Warn("Prompt handler failed")
		}

	default:
		c.logger.WithField("type", env.Type).Debug("Ignoring unrecognized push kind")
	}
}
