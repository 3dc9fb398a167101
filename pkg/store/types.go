// Package store holds the canonical per-session view, reconciling the
// coarse-but-authoritative snapshot poll against fine-but-partial push
// deltas. It is the single source of truth consumed by presentation;
// the poller and push channel are write-only producers into it.
package store

// EventKind defines what kind of state changed.
type EventKind string

const (
	// EventSession reports a change to a single session's fields.
	EventSession EventKind = "session"
	// EventRemoved reports a session leaving the view (absent from a
	// snapshot).
	EventRemoved EventKind = "removed"
	// EventList reports a membership or ordering change of the session
	// list.
	EventList EventKind = "list"
	// EventHealth reports a change to the poll error or active count.
	EventHealth EventKind = "health"
)

// Event is the fine-grained change notification delivered to
// subscribers. SessionID is set for EventSession and EventRemoved so
// consumers re-read only the affected session.
type Event struct {
	Kind      EventKind
	SessionID string
}
