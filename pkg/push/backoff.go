package push

import (
	"math/rand"
	"time"
)

// Backoff defaults. Exponential growth bounds reconnect storm load on
// the gateway; jitter desynchronizes simultaneously-dropped clients;
// the cap keeps recovery latency bounded after many failures.
const (
	DefaultBackoffBase = 1000 * time.Millisecond
	DefaultBackoffCap  = 30000 * time.Millisecond
	DefaultJitter      = 1000 * time.Millisecond

	// DefaultMaxAttempts is the reconnect ceiling. Reaching it without
	// a successful open parks the channel in Disconnected until the
	// user retriggers.
	DefaultMaxAttempts = 20
)

// Backoff computes the reconnect delay for a given attempt:
// min(Base * 2^(n-1) + jitter, Cap) with jitter uniform in [0, Jitter).
type Backoff struct {
	Base   time.Duration
	Cap    time.Duration
	Jitter time.Duration

	// Int63n supplies the jitter randomness; nil uses math/rand. Tests
	// inject a deterministic source.
	Int63n func(n int64) int64
}

// DefaultBackoff returns the production policy.
func DefaultBackoff() Backoff {
	return Backoff{Base: DefaultBackoffBase, Cap: DefaultBackoffCap, Jitter: DefaultJitter}
}

// Delay returns the wait before reconnect attempt n (n >= 1).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := b.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= b.Cap || d <= 0 {
			d = b.Cap
			break
		}
	}

	if b.Jitter > 0 {
		intn := b.Int63n
		if intn == nil {
			intn = rand.Int63n
		}
		d += time.Duration(intn(int64(b.Jitter)))
	}
	if d > b.Cap {
		d = b.Cap
	}
	return d
}
