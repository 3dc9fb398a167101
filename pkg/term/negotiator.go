package term

import (
	"io"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quarterdeck/core/clock"
)

// Geometry is a terminal grid size. The negotiator tracks the last
// geometry applied to the local emulator and the last geometry sent to
// the remote PTY as two separate values.
type Geometry struct {
	Cols int
	Rows int
}

// Surface is the rendering surface a terminal draws into.
type Surface interface {
	// Size returns the surface's pixel dimensions. Zero dimensions are
	// legal while the surface is not yet laid out.
	Size() (width, height float64)
}

// Emulator is the black-box terminal emulation engine.
type Emulator interface {
	// FitHint runs the engine's built-in best-effort fit for the
	// current surface.
	FitHint()
	// CellSize returns the actual rendered glyph cell dimensions.
	// Requested font sizes do not always yield the assumed geometry,
	// especially before fonts finish loading, so cells are re-measured
	// after every FitHint rather than assumed.
	CellSize() (width, height float64)
	// Resize applies a grid size locally.
	Resize(cols, rows int)
	// SetFontSize applies a font size in points.
	SetFontSize(pts float64)
}

// Transport carries a session's bytes to and from the remote PTY.
type Transport interface {
	SendInput(data []byte) error
	SendResize(cols, rows int) error
	// SetOutput registers the writer that receives remote PTY output
	// once the local view is ready to render it.
	SetOutput(w io.Writer)
	Close() error
}

// Negotiator timing and sizing defaults.
const (
	// DefaultDebounce coalesces bursts of resize triggers, e.g. during
	// a drag or layout reflow.
	DefaultDebounce = 50 * time.Millisecond
	// DefaultRetryDelay spaces out re-measurement when the surface is
	// degenerate (zero size before first layout).
	DefaultRetryDelay = 100 * time.Millisecond
	// DefaultSettle delays the forced fit after a ready transition:
	// the remote PTY may not have been able to receive geometry at the
	// moment the local view first measured itself.
	DefaultSettle = 300 * time.Millisecond

	DefaultMargin   = 8.0
	DefaultFontMin  = 8.0
	DefaultFontMax  = 32.0
	DefaultFontSize = 14.0
)

// Options tunes a Negotiator. Zero values select the defaults above.
type Options struct {
	Margin     float64
	FontMin    float64
	FontMax    float64
	FontSize   float64
	Debounce   time.Duration
	RetryDelay time.Duration
	Settle     time.Duration
	Clock      clock.Clock
	Logger     *logrus.Entry
}

// Negotiator owns geometry negotiation for one terminal view: measure
// the surface, compute the integral grid that fits, apply it locally,
// and notify the remote PTY when the sent geometry changes. All
// failures are logged and swallowed; the negotiator retries on the
// next trigger and never crashes the view.
type Negotiator struct {
	surface   Surface
	emulator  Emulator
	transport Transport
	clk       clock.Clock
	logger    *logrus.Entry

	margin     float64
	fontMin    float64
	fontMax    float64
	retryDelay time.Duration
	settle     time.Duration

	debouncer *Debouncer

	mu          sync.Mutex
	fontSize    float64
	lastApplied Geometry
	lastSent    Geometry
	retryTimer  *clock.Timer
	settleTimer *clock.Timer
	stopped     bool
}

// NewNegotiator creates a Negotiator for one terminal view. Call Start
// on mount and Stop on teardown.
func NewNegotiator(surface Surface, emulator Emulator, transport Transport, opts Options) *Negotiator {
	if opts.Margin == 0 {
		opts.Margin = DefaultMargin
	}
	if opts.FontMin == 0 {
		opts.FontMin = DefaultFontMin
	}
	if opts.FontMax == 0 {
		opts.FontMax = DefaultFontMax
	}
	if opts.FontSize == 0 {
		opts.FontSize = DefaultFontSize
	}
	if opts.Debounce == 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.Settle == 0 {
		opts.Settle = DefaultSettle
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}

	n := &Negotiator{
		surface:    surface,
		emulator:   emulator,
		transport:  transport,
		clk:        opts.Clock,
		logger:     opts.Logger,
		margin:     opts.Margin,
		fontMin:    opts.FontMin,
		fontMax:    opts.FontMax,
		retryDelay: opts.RetryDelay,
		settle:     opts.Settle,
		fontSize:   opts.FontSize,
	}
	n.debouncer = NewDebouncer(opts.Clock, opts.Debounce, n.fit)
	return n
}

// Start schedules the initial fit (the mount trigger).
func (n *Negotiator) Start() {
	n.debouncer.Trigger()
}

// OnContainerResize reports that the rendering surface changed size.
func (n *Negotiator) OnContainerResize() {
	n.debouncer.Trigger()
}

// OnFontLoaded reports that glyph metrics may have changed (a font
// finished loading); cell geometry must be re-measured.
func (n *Negotiator) OnFontLoaded() {
	n.debouncer.Trigger()
}

// OnReady reports the session's transition into a connected/ready
// state. Beyond the immediate debounced fit, a forced fit-and-notify
// runs after the settle delay.
func (n *Negotiator) OnReady() {
	n.debouncer.Trigger()

	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return
	}
	if n.settleTimer != nil {
		n.settleTimer.Stop()
	}
	n.settleTimer = n.clk.AfterFunc(n.settle, n.fit)
	n.mu.Unlock()
}

// SetFontSize applies a user-requested font size, clamped to the
// configured bounds, then re-runs the fit through the debouncer so
// cell geometry is re-measured after the engine repaints, never
// assumed. Returns the effective size.
func (n *Negotiator) SetFontSize(pts float64) float64 {
	if pts < n.fontMin {
		pts = n.fontMin
	}
	if pts > n.fontMax {
		pts = n.fontMax
	}

	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return n.fontSize
	}
	n.fontSize = pts
	n.mu.Unlock()

	n.emulator.SetFontSize(pts)
	n.debouncer.Trigger()
	return pts
}

// FontSize returns the current requested font size.
func (n *Negotiator) FontSize() float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.fontSize
}

// LastApplied returns the last geometry applied to the local emulator.
func (n *Negotiator) LastApplied() Geometry {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.lastApplied
}

// LastSent returns the last geometry sent to the remote PTY.
func (n *Negotiator) LastSent() Geometry {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.lastSent
}

// Stop tears the negotiator down: pending debounce, retry, and settle
// timers are cancelled permanently.
func (n *Negotiator) Stop() {
	n.debouncer.Stop()
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopped = true
	if n.retryTimer != nil {
		n.retryTimer.Stop()
		n.retryTimer = nil
	}
	if n.settleTimer != nil {
		n.settleTimer.Stop()
		n.settleTimer = nil
	}
}

// fit runs one measure-compute-apply-notify cycle.
func (n *Negotiator) fit() {
	defer func() {
		// The emulator is a black box; a panic during measurement must
		// not take the terminal view down. The next trigger retries.
		if r := recover(); r != nil {
			n.logger.WithField("panic", r).Error("Geometry fit panicked")
		}
	}()

	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return
	}
	n.mu.Unlock()

	width, height := n.surface.Size()
	n.emulator.FitHint()
	cellW, cellH := n.emulator.CellSize()

	if width <= 0 || height <= 0 || cellW <= 0 || cellH <= 0 {
		n.scheduleRetry("degenerate surface or cell size")
		return
	}

	cols := int(math.Floor((width - n.margin) / cellW))
	rows := int(math.Floor(height / cellH))
	if cols <= 0 || rows <= 0 {
		n.scheduleRetry("non-positive grid")
		return
	}

	geom := Geometry{Cols: cols, Rows: rows}

	n.mu.Lock()
	apply := geom != n.lastApplied
	if apply {
		n.lastApplied = geom
	}
	notify := geom != n.lastSent
	n.mu.Unlock()

	if apply {
		n.emulator.Resize(cols, rows)
	}
	if notify {
		if err := n.transport.SendResize(cols, rows); err != nil {
			n.logger.WithError(err).Warn("Resize notification failed")
			return
		}
		n.mu.Lock()
		n.lastSent = geom
		n.mu.Unlock()
		n.logger.WithFields(logrus.Fields{"cols": cols, "rows": rows}).Debug("Sent resize")
	}
}

// scheduleRetry arms one delayed re-measurement, covering the surface
// that has no size yet because it is not laid out. Only one retry is
// pending at a time.
func (n *Negotiator) scheduleRetry(reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stopped || n.retryTimer != nil {
		return
	}
	n.logger.WithField("reason", reason).Debug("Deferring geometry fit")
	n.retryTimer = n.clk.AfterFunc(n.retryDelay, func() {
		n.mu.Lock()
		n.retryTimer = nil
		n.mu.Unlock()
		n.fit()
	})
}
