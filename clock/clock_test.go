package clock

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeAfter(t *testing.T) {
	fake := NewFake(time.Unix(0, 0))
	ch := fake.After(5 * time.Second)

	select {
	case <-ch:
		t.Fatal("After fired before the clock advanced")
	default:
	}

	fake.Advance(4 * time.Second)
	select {
	case <-ch:
		t.Fatal("After fired one second early")
	default:
	}

	fake.Advance(1 * time.Second)
	select {
	case v := <-ch:
		assert.Equal(t, time.Unix(5, 0), v)
	default:
		t.Fatal("After did not fire at its deadline")
	}
}

func TestFakeAfterFuncOrdering(t *testing.T) {
	fake := NewFake(time.Unix(0, 0))

	var order []string
	fake.AfterFunc(300*time.Millisecond, func() { order = append(order, "late") })
	fake.AfterFunc(100*time.Millisecond, func() { order = append(order, "early") })
	fake.AfterFunc(200*time.Millisecond, func() { order = append(order, "middle") })

	fake.Advance(time.Second)
	require.Equal(t, []string{"early", "middle", "late"}, order)
}

func TestFakeAfterFuncStop(t *testing.T) {
	fake := NewFake(time.Unix(0, 0))

	var fired atomic.Bool
	timer := fake.AfterFunc(time.Second, func() { fired.Store(true) })

	require.True(t, timer.Stop())
	fake.Advance(2 * time.Second)
	assert.False(t, fired.Load(), "stopped timer must not fire")
	assert.False(t, timer.Stop(), "second Stop reports inactive")
}

func TestFakeAfterFuncImmediate(t *testing.T) {
	fake := NewFake(time.Unix(0, 0))

	fired := false
	fake.AfterFunc(0, func() { fired = true })
	assert.True(t, fired, "zero-delay callback runs synchronously")
}

func TestFakeTicker(t *testing.T) {
	fake := NewFake(time.Unix(0, 0))
	ticker := fake.NewTicker(time.Second)
	defer ticker.Stop()

	ticks := 0
	drain := func() {
		for {
			select {
			case <-ticker.C:
				ticks++
			default:
				return
			}
		}
	}

	// Channel capacity is 1, so each interval must be consumed before
	// the next advance or the tick is dropped.
	for i := 0; i < 3; i++ {
		fake.Advance(time.Second)
		drain()
	}
	assert.Equal(t, 3, ticks)

	ticker.Stop()
	fake.Advance(5 * time.Second)
	drain()
	assert.Equal(t, 3, ticks, "stopped ticker must not tick")
}

func TestFakeWaitForTimers(t *testing.T) {
	fake := NewFake(time.Unix(0, 0))

	done := make(chan struct{})
	go func() {
		fake.Sleep(time.Minute)
		close(done)
	}()

	fake.WaitForTimers(1)
	require.Equal(t, 1, fake.PendingCount())

	fake.Advance(time.Minute)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Sleep did not return after the clock advanced")
	}
}

func TestRealClockBasics(t *testing.T) {
	clk := Real()

	start := clk.Now()
	clk.Sleep(time.Millisecond)
	assert.True(t, clk.Now().After(start))

	fired := make(chan struct{})
	timer := clk.AfterFunc(time.Millisecond, func() { close(fired) })
	defer timer.Stop()
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("real AfterFunc did not fire")
	}
}
