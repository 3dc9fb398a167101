package push

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDelayBoundsForAllAttempts(t *testing.T) {
	// Jitter pinned to its maximum so the upper bound is exercised.
	maxJitter := Backoff{
		Base:   DefaultBackoffBase,
		Cap:    DefaultBackoffCap,
		Jitter: DefaultJitter,
		Int63n: func(n int64) int64 { return n - 1 },
	}
	minJitter := maxJitter
	minJitter.Int63n = func(n int64) int64 { return 0 }

	for n := 1; n <= DefaultMaxAttempts; n++ {
		exp := DefaultBackoffBase
		for i := 1; i < n; i++ {
			exp *= 2
			if exp >= DefaultBackoffCap {
				exp = DefaultBackoffCap
				break
			}
		}

		lo := minJitter.Delay(n)
		hi := maxJitter.Delay(n)

		wantLo := exp
		if wantLo > DefaultBackoffCap {
			wantLo = DefaultBackoffCap
		}
		assert.Equal(t, wantLo, lo, "attempt %d lower bound", n)

		assert.GreaterOrEqual(t, hi, lo, "attempt %d", n)
		assert.LessOrEqual(t, hi, DefaultBackoffCap, "attempt %d never exceeds cap", n)
		if exp < DefaultBackoffCap {
			assert.Less(t, hi, exp+DefaultJitter+1, "attempt %d jitter bound", n)
		}
	}
}

func TestDelayDoubles(t *testing.T) {
	b := Backoff{Base: 1000 * time.Millisecond, Cap: 30000 * time.Millisecond}

	assert.Equal(t, 1000*time.Millisecond, b.Delay(1))
	assert.Equal(t, 2000*time.Millisecond, b.Delay(2))
	assert.Equal(t, 4000*time.Millisecond, b.Delay(3))
	assert.Equal(t, 16000*time.Millisecond, b.Delay(5))
	// 2^5 = 32s crosses the cap.
	assert.Equal(t, 30000*time.Millisecond, b.Delay(6))
	assert.Equal(t, 30000*time.Millisecond, b.Delay(20))
}

func TestDelayClampsBadAttempt(t *testing.T) {
	b := Backoff{Base: time.Second, Cap: 30 * time.Second}
	assert.Equal(t, b.Delay(1), b.Delay(0))
	assert.Equal(t, b.Delay(1), b.Delay(-3))
}

func TestDelayJitterStaysUnderCap(t *testing.T) {
	b := Backoff{
		Base:   time.Second,
		Cap:    30 * time.Second,
		Jitter: time.Second,
		Int63n: func(n int64) int64 { return n - 1 },
	}
	// Exponential already at the cap; jitter must not push past it.
	assert.Equal(t, 30*time.Second, b.Delay(20))
}
