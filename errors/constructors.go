package errors

import (
	"fmt"
)

// ConfigNotFound creates a configuration not found error
func ConfigNotFound(path string) *QuarterdeckError {
	return New(ErrCodeConfigNotFound, fmt.Sprintf("configuration file not found: %s", path)).
		WithDetail("path", path)
}

// ConfigInvalid creates an invalid configuration error
func ConfigInvalid(reason string) *QuarterdeckError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", reason))
}

// GatewayUnreachable creates a gateway connectivity error
func GatewayUnreachable(url string, err error) *QuarterdeckError {
	return Wrap(err, ErrCodeGatewayUnreachable, fmt.Sprintf("gateway unreachable at %s", url)).
		WithDetail("url", url)
}

// SnapshotFetchFailed creates a session snapshot fetch error. Poll
// failures are user-visible but non-fatal; the previous session list
// is retained.
func SnapshotFetchFailed(url string, err error) *QuarterdeckError {
	return Wrap(err, ErrCodeSnapshotFetchFailed, "failed to fetch session snapshot").
		WithDetail("url", url)
}

// SessionNotFound creates a session lookup error
func SessionNotFound(id string) *QuarterdeckError {
	return New(ErrCodeSessionNotFound, fmt.Sprintf("session '%s' not found", id)).
		WithDetail("session", id)
}

// PushDialFailed creates a push-socket dial error
func PushDialFailed(url string, attempt int, err error) *QuarterdeckError {
	return Wrap(err, ErrCodePushDialFailed, fmt.Sprintf("push socket dial failed (attempt %d)", attempt)).
		WithDetail("url", url).
		WithDetail("attempt", attempt)
}

// PushDecodeFailed creates a push payload decode error
func PushDecodeFailed(err error) *QuarterdeckError {
	return Wrap(err, ErrCodePushDecodeFailed, "failed to decode push payload")
}

// PushExhausted creates a reconnect-ceiling error
func PushExhausted(attempts int) *QuarterdeckError {
	return New(ErrCodePushExhausted,
		fmt.Sprintf("gave up reconnecting after %d attempts", attempts)).
		WithDetail("attempts", attempts)
}

// TerminalClosed creates a terminal transport closed error
func TerminalClosed(sessionID string) *QuarterdeckError {
	return New(ErrCodeTerminalClosed, fmt.Sprintf("terminal transport for session '%s' is closed", sessionID)).
		WithDetail("session", sessionID)
}

// GeometryUnavailable creates a fit measurement error. Geometry errors
// are swallowed by the negotiator and retried on the next trigger.
func GeometryUnavailable(reason string) *QuarterdeckError {
	return New(ErrCodeGeometryUnavailable, fmt.Sprintf("terminal geometry unavailable: %s", reason))
}

// StateLoad creates a state file read error
func StateLoad(path string, err error) *QuarterdeckError {
	return Wrap(err, ErrCodeStateLoad, fmt.Sprintf("failed to load state file: %s", path)).
		WithDetail("path", path)
}

// StateSave creates a state file write error
func StateSave(path string, err error) *QuarterdeckError {
	return Wrap(err, ErrCodeStateSave, fmt.Sprintf("failed to save state file: %s", path)).
		WithDetail("path", path)
}
