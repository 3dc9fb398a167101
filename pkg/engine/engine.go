// Package engine is the application root of the sync layer: it
// constructs the store, wires the snapshot poller and push channel
// into it, routes push messages to their sinks, and owns the
// lifecycle. Consumers (presentation, the qd CLI) read through the
// engine's accessors and never talk to the producers directly.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quarterdeck/core/clock"
	"github.com/quarterdeck/core/pkg/models"
	"github.com/quarterdeck/core/pkg/poller"
	"github.com/quarterdeck/core/pkg/push"
	"github.com/quarterdeck/core/pkg/store"
)

// Options wires an Engine. Source and Dialer are required; everything
// else defaults.
type Options struct {
	Source       poller.SnapshotSource
	Dialer       push.Dialer
	PollInterval time.Duration
	Backoff      push.Backoff
	MaxAttempts  int

	// Filter, when set, drops snapshot records it rejects before they
	// reach the store (configured include/exclude patterns).
	Filter func(models.SessionRecord) bool

	Clock  clock.Clock
	Logger *logrus.Entry
}

// Engine owns the sync layer's components.
type Engine struct {
	store   *store.Store
	poller  *poller.Poller
	channel *push.Channel
	prompts *PromptIndex
	logger  *logrus.Entry
	filter  func(models.SessionRecord) bool

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs an Engine and its store. Nothing runs until Start.
func New(opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}

	e := &Engine{
		store:   store.New(),
		prompts: NewPromptIndex(),
		logger:  opts.Logger,
		filter:  opts.Filter,
	}
	e.poller = poller.New(&filteredSource{source: opts.Source, engine: e},
		e.store, opts.PollInterval, opts.Clock, opts.Logger.WithField("component", "poller"))
	e.channel = push.New(opts.Dialer, e, push.Options{
		Backoff:     opts.Backoff,
		MaxAttempts: opts.MaxAttempts,
		Clock:       opts.Clock,
		Logger:      opts.Logger.WithField("component", "push"),
	})
	return e
}

// Start launches the poller and the push channel and requests the
// first connection. It returns immediately; Stop tears everything
// down.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.logger.Info("Starting sync engine")

	e.wg.Add(2)
	go func() {
		defer e.wg.Done()
		e.poller.Run(runCtx)
	}()
	go func() {
		defer e.wg.Done()
		e.channel.Run(runCtx)
	}()
	e.channel.Connect()
}

// Stop disconnects the push channel intentionally, stops the poller,
// and waits for both to finish. A stopped engine can be started again;
// the store keeps its contents across the restart.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()
	if cancel == nil {
		return
	}

	e.channel.Disconnect()
	cancel()
	e.wg.Wait()
	e.logger.Info("Sync engine stopped")
}

// Store returns the canonical session view.
func (e *Engine) Store() *store.Store { return e.store }

// Prompts returns the prompt index fed by new_prompt pushes.
func (e *Engine) Prompts() *PromptIndex { return e.prompts }

// ConnectionState returns the push channel's current state.
func (e *Engine) ConnectionState() push.ConnectionState { return e.channel.State() }

// OnConnectionStateChange registers a connection state observer.
func (e *Engine) OnConnectionStateChange(fn func(push.ConnectionState)) {
	e.channel.OnStateChange(fn)
}

// Reconnect retriggers the push channel after an intentional
// disconnect or reconnect exhaustion.
func (e *Engine) Reconnect() { e.channel.Connect() }

// HandleActivity implements push.Sink.
func (e *Engine) HandleActivity(u models.ActivityUpdate) error {
	if !e.store.ApplyActivity(u) {
		// Delta raced ahead of the session's first snapshot; dropped,
		// not queued. The next poll carries the session's state.
		e.logger.WithField("session", u.SessionID).Debug("Dropped activity for unknown session")
	}
	return nil
}

// HandleStatus implements push.Sink.
func (e *Engine) HandleStatus(c models.StatusChange) error {
	if !e.store.ApplyStatus(c) {
		e.logger.WithField("session", c.SessionID).Debug("Dropped status for unknown session")
	}
	return nil
}

// HandlePrompt implements push.Sink.
func (e *Engine) HandlePrompt(p models.PromptRecord) error {
	e.prompts.Add(p)
	return nil
}

// filteredSource applies the engine's session filter to snapshots
// before they reach the store.
type filteredSource struct {
	source poller.SnapshotSource
	engine *Engine
}

func (f *filteredSource) ListSessions(ctx context.Context) (models.SessionsSnapshot, error) {
	snap, err := f.source.ListSessions(ctx)
	if err != nil || f.engine.filter == nil {
		return snap, err
	}
	kept := snap.Sessions[:0]
	for _, rec := range snap.Sessions {
		if f.engine.filter(rec) {
			kept = append(kept, rec)
		}
	}
	snap.Sessions = kept
	return snap, nil
}
