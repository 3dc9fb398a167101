// Package term keeps each open terminal's advertised grid consistent
// with both the rendering surface's pixel size and the remote PTY's
// expectations, without flooding resize notifications. The emulation
// engine itself is an external black box behind the Emulator
// interface.
package term

import (
	"sync"
	"time"

	"github.com/quarterdeck/core/clock"
)

// Debouncer coalesces bursts of triggers into one trailing-edge call:
// each Trigger restarts the window, and fn runs once the window
// elapses without another trigger. Safe for concurrent use; fn runs on
// the clock's timer goroutine.
type Debouncer struct {
	clk   clock.Clock
	delay time.Duration
	fn    func()

	mu      sync.Mutex
	gen     uint64
	timer   *clock.Timer
	stopped bool
}

// NewDebouncer creates a Debouncer that invokes fn delay after the
// last Trigger.
func NewDebouncer(clk clock.Clock, delay time.Duration, fn func()) *Debouncer {
	return &Debouncer{clk: clk, delay: delay, fn: fn}
}

// Trigger restarts the debounce window.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = d.clk.AfterFunc(d.delay, func() {
		d.mu.Lock()
		// The generation guard drops a timer that fired after a newer
		// Trigger rearmed (or Stop cancelled) the window.
		stale := d.stopped || gen != d.gen
		d.mu.Unlock()
		if !stale {
			d.fn()
		}
	})
	d.mu.Unlock()
}

// Stop cancels any pending invocation and disables the debouncer
// permanently.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
