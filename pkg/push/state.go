// Package push maintains the persistent event connection to the
// gateway: at most one live socket, an explicit connection state
// machine, exponential backoff with jitter on unexpected loss, and
// envelope decoding/dispatch into the reconciler.
package push

// ConnectionState is the push channel's lifecycle state. It is driven
// strictly by socket events and the reconnect counter; application
// logic changes it only through an explicit intentional disconnect.
type ConnectionState uint8

const (
	// Disconnected means no socket and no retry scheduled: the initial
	// state, the state after an intentional disconnect, and the state
	// after reconnect exhaustion.
	Disconnected ConnectionState = iota
	// Connecting means a dial is in flight.
	Connecting
	// Connected means the socket is open and frames are flowing.
	Connected
	// Reconnecting means an unexpected loss occurred and a retry timer
	// is pending.
	Reconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}
