package term

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarterdeck/core/clock"
)

type fakeSurface struct {
	mu sync.Mutex
	w  float64
	h  float64
}

func (s *fakeSurface) Size() (float64, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w, s.h
}

func (s *fakeSurface) set(w, h float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w = w
	s.h = h
}

type fakeEmulator struct {
	mu        sync.Mutex
	cellW     float64
	cellH     float64
	fitHints  int
	resizes   []Geometry
	fontSizes []float64
	panicNext bool
}

func (e *fakeEmulator) FitHint() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fitHints++
	if e.panicNext {
		e.panicNext = false
		panic("renderer detached")
	}
}

func (e *fakeEmulator) CellSize() (float64, float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cellW, e.cellH
}

func (e *fakeEmulator) Resize(cols, rows int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resizes = append(e.resizes, Geometry{Cols: cols, Rows: rows})
}

func (e *fakeEmulator) SetFontSize(pts float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fontSizes = append(e.fontSizes, pts)
}

func (e *fakeEmulator) resizeCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.resizes)
}

type fakeTransport struct {
	mu      sync.Mutex
	resizes []Geometry
	err     error
}

func (t *fakeTransport) SendInput(data []byte) error { return nil }
func (t *fakeTransport) SetOutput(w io.Writer)       {}
func (t *fakeTransport) Close() error                { return nil }

func (t *fakeTransport) SendResize(cols, rows int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return t.err
	}
	t.resizes = append(t.resizes, Geometry{Cols: cols, Rows: rows})
	return nil
}

func (t *fakeTransport) setErr(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.err = err
}

func (t *fakeTransport) sent() []Geometry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Geometry, len(t.resizes))
	copy(out, t.resizes)
	return out
}

func newTestNegotiator(surface *fakeSurface, emulator *fakeEmulator, transport *fakeTransport) (*Negotiator, *clock.Fake) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	n := NewNegotiator(surface, emulator, transport, Options{Clock: clk})
	return n, clk
}

func TestFitMath(t *testing.T) {
	// 808x600 surface with 8px margin and 8x16 cells:
	// cols = floor((808-8)/8) = 100, rows = floor(600/16) = 37.
	surface := &fakeSurface{w: 808, h: 600}
	emulator := &fakeEmulator{cellW: 8, cellH: 16}
	transport := &fakeTransport{}
	n, clk := newTestNegotiator(surface, emulator, transport)
	defer n.Stop()

	n.Start()
	clk.Advance(DefaultDebounce)

	want := Geometry{Cols: 100, Rows: 37}
	assert.Equal(t, want, n.LastApplied())
	assert.Equal(t, want, n.LastSent())
	require.Len(t, transport.sent(), 1)
	assert.Equal(t, want, transport.sent()[0])
	require.Equal(t, 1, emulator.resizeCount())
}

func TestFitMathFloorsPartialCells(t *testing.T) {
	// (801-8)/8 = 99.125 -> 99 cols; 601/16 = 37.5 -> 37 rows.
	surface := &fakeSurface{w: 801, h: 601}
	emulator := &fakeEmulator{cellW: 8, cellH: 16}
	transport := &fakeTransport{}
	n, clk := newTestNegotiator(surface, emulator, transport)
	defer n.Stop()

	n.Start()
	clk.Advance(DefaultDebounce)

	assert.Equal(t, Geometry{Cols: 99, Rows: 37}, n.LastApplied())
}

func TestNotifyOnlyOnChange(t *testing.T) {
	surface := &fakeSurface{w: 808, h: 600}
	emulator := &fakeEmulator{cellW: 8, cellH: 16}
	transport := &fakeTransport{}
	n, clk := newTestNegotiator(surface, emulator, transport)
	defer n.Stop()

	n.Start()
	clk.Advance(DefaultDebounce)
	require.Len(t, transport.sent(), 1)

	// Same size again: no new resize, no new notification.
	n.OnContainerResize()
	clk.Advance(DefaultDebounce)
	assert.Len(t, transport.sent(), 1)
	assert.Equal(t, 1, emulator.resizeCount())

	// A real change does both.
	surface.set(408, 600)
	n.OnContainerResize()
	clk.Advance(DefaultDebounce)
	require.Len(t, transport.sent(), 2)
	assert.Equal(t, Geometry{Cols: 50, Rows: 37}, transport.sent()[1])
	assert.Equal(t, 2, emulator.resizeCount())
}

func TestAppliedAndSentTrackedSeparately(t *testing.T) {
	surface := &fakeSurface{w: 808, h: 600}
	emulator := &fakeEmulator{cellW: 8, cellH: 16}
	transport := &fakeTransport{}
	transport.setErr(errors.New("socket closed"))
	n, clk := newTestNegotiator(surface, emulator, transport)
	defer n.Stop()

	n.Start()
	clk.Advance(DefaultDebounce)

	// Applied locally, but the notification failed: lastSent lags.
	want := Geometry{Cols: 100, Rows: 37}
	assert.Equal(t, want, n.LastApplied())
	assert.Equal(t, Geometry{}, n.LastSent())

	// Transport recovers; the same geometry is re-notified without
	// re-applying locally.
	transport.setErr(nil)
	n.OnContainerResize()
	clk.Advance(DefaultDebounce)
	assert.Equal(t, want, n.LastSent())
	require.Len(t, transport.sent(), 1)
	assert.Equal(t, 1, emulator.resizeCount())
}

func TestDegenerateSurfaceRetries(t *testing.T) {
	surface := &fakeSurface{} // not laid out yet
	emulator := &fakeEmulator{cellW: 8, cellH: 16}
	transport := &fakeTransport{}
	n, clk := newTestNegotiator(surface, emulator, transport)
	defer n.Stop()

	n.Start()
	clk.Advance(DefaultDebounce)

	// No geometry yet; one retry pending.
	assert.Equal(t, Geometry{}, n.LastApplied())
	assert.Equal(t, 1, clk.PendingCount())

	// More triggers while degenerate never stack extra retries.
	n.OnContainerResize()
	clk.Advance(DefaultDebounce)
	assert.Equal(t, 1, clk.PendingCount())

	// Layout lands; the pending retry completes the fit.
	surface.set(808, 600)
	clk.Advance(DefaultRetryDelay)
	assert.Equal(t, Geometry{Cols: 100, Rows: 37}, n.LastApplied())
	require.Len(t, transport.sent(), 1)
}

func TestOnReadyForcesSettledFit(t *testing.T) {
	surface := &fakeSurface{w: 808, h: 600}
	emulator := &fakeEmulator{cellW: 8, cellH: 16}
	transport := &fakeTransport{}
	n, clk := newTestNegotiator(surface, emulator, transport)
	defer n.Stop()

	n.OnReady()
	clk.Advance(DefaultSettle)

	// Debounced fit plus settle fit ran; geometry unchanged between
	// them, so exactly one notification went out.
	assert.Equal(t, Geometry{Cols: 100, Rows: 37}, n.LastSent())
	assert.Len(t, transport.sent(), 1)

	// The settle fit catches a surface change that happened after the
	// debounced fit.
	n.OnReady()
	clk.Advance(DefaultDebounce)
	surface.set(408, 600)
	clk.Advance(DefaultSettle - DefaultDebounce)
	assert.Equal(t, Geometry{Cols: 50, Rows: 37}, n.LastSent())
}

func TestSetFontSizeClampsAndRefits(t *testing.T) {
	surface := &fakeSurface{w: 808, h: 600}
	emulator := &fakeEmulator{cellW: 8, cellH: 16}
	transport := &fakeTransport{}
	n, clk := newTestNegotiator(surface, emulator, transport)
	defer n.Stop()

	assert.Equal(t, DefaultFontMax, n.SetFontSize(100))
	assert.Equal(t, DefaultFontMin, n.SetFontSize(1))
	assert.Equal(t, 18.0, n.SetFontSize(18))
	assert.Equal(t, 18.0, n.FontSize())

	emulator.mu.Lock()
	fontSizes := append([]float64(nil), emulator.fontSizes...)
	emulator.mu.Unlock()
	assert.Equal(t, []float64{DefaultFontMax, DefaultFontMin, 18}, fontSizes)

	// The font change triggers a debounced re-measure.
	emulator.mu.Lock()
	emulator.cellW, emulator.cellH = 10, 20
	emulator.mu.Unlock()
	clk.Advance(DefaultDebounce)
	assert.Equal(t, Geometry{Cols: 80, Rows: 30}, n.LastApplied())
}

func TestFitSurvivesEmulatorPanic(t *testing.T) {
	surface := &fakeSurface{w: 808, h: 600}
	emulator := &fakeEmulator{cellW: 8, cellH: 16, panicNext: true}
	transport := &fakeTransport{}
	n, clk := newTestNegotiator(surface, emulator, transport)
	defer n.Stop()

	n.Start()
	clk.Advance(DefaultDebounce)
	// Panicked; nothing applied, view intact.
	assert.Equal(t, Geometry{}, n.LastApplied())

	n.OnContainerResize()
	clk.Advance(DefaultDebounce)
	assert.Equal(t, Geometry{Cols: 100, Rows: 37}, n.LastApplied())
}

func TestStopCancelsPendingWork(t *testing.T) {
	surface := &fakeSurface{} // degenerate, so a retry gets armed
	emulator := &fakeEmulator{cellW: 8, cellH: 16}
	transport := &fakeTransport{}
	n, clk := newTestNegotiator(surface, emulator, transport)

	n.Start()
	clk.Advance(DefaultDebounce)
	n.OnReady()
	require.GreaterOrEqual(t, clk.PendingCount(), 1)

	n.Stop()
	assert.Equal(t, 0, clk.PendingCount())

	surface.set(808, 600)
	clk.Advance(time.Second)
	assert.Equal(t, Geometry{}, n.LastApplied())
	assert.Empty(t, transport.sent())
}
