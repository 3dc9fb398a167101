package models

import (
	"time"
)

// SessionStatus is the lifecycle state of a remote agent session.
type SessionStatus string

const (
	StatusCreated      SessionStatus = "created"
	StatusStarting     SessionStatus = "starting"
	StatusActive       SessionStatus = "active"
	StatusWaitingInput SessionStatus = "waiting_input"
	StatusStopped      SessionStatus = "stopped"
	StatusError        SessionStatus = "error"
)

// ParseStatus maps a wire status token to a SessionStatus. Unknown
// tokens map to StatusStopped: an unrecognized state must read as
// ended, never crash the channel or invent activity.
func ParseStatus(token string) SessionStatus {
	switch SessionStatus(token) {
	case StatusCreated, StatusStarting, StatusActive, StatusWaitingInput, StatusStopped, StatusError:
		return SessionStatus(token)
	default:
		return StatusStopped
	}
}

// IsTerminal reports whether the session has ended. Stopped and Error
// are terminal; a terminal session is never resurrected by the sync
// layer.
func (s SessionStatus) IsTerminal() bool {
	return s == StatusStopped || s == StatusError
}

// MaxRecentActions caps the per-session action feed.
const MaxRecentActions = 5

// RecentAction is one entry in a session's activity feed,
// most-recent-first.
type RecentAction struct {
	ActionType string    `json:"action_type"`
	Summary    string    `json:"summary"`
	Detail     string    `json:"detail,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// ActionKey identifies an action for deduplication. Two actions with
// the same key are the same action regardless of detail or timestamp.
type ActionKey struct {
	ActionType string
	Summary    string
}

// Key returns the action's deduplication key.
func (a RecentAction) Key() ActionKey {
	return ActionKey{ActionType: a.ActionType, Summary: a.Summary}
}

// MergeRecentActions combines a fresh incoming feed with the locally
// held one. An empty incoming feed keeps local untouched (the sender's
// derivation window can momentarily produce nothing even while the
// feed is conceptually non-empty). A non-empty incoming feed comes
// first, followed by local entries whose key is not already present,
// deduplicated and capped at MaxRecentActions.
func MergeRecentActions(incoming, local []RecentAction) []RecentAction {
	if len(incoming) == 0 {
		return local
	}

	merged := make([]RecentAction, 0, MaxRecentActions)
	seen := make(map[ActionKey]struct{}, MaxRecentActions)
	for _, a := range incoming {
		if _, dup := seen[a.Key()]; dup {
			continue
		}
		seen[a.Key()] = struct{}{}
		merged = append(merged, a)
		if len(merged) == MaxRecentActions {
			return merged
		}
	}
	for _, a := range local {
		if _, dup := seen[a.Key()]; dup {
			continue
		}
		seen[a.Key()] = struct{}{}
		merged = append(merged, a)
		if len(merged) == MaxRecentActions {
			return merged
		}
	}
	return merged
}

// SessionRecord is the canonical view of one remote agent session.
type SessionRecord struct {
	ID             string        `json:"id"`
	Status         SessionStatus `json:"status"`
	Model          string        `json:"model,omitempty"`
	CostUSD        float64       `json:"cost_usd"`
	InputTokens    int64         `json:"input_tokens"`
	OutputTokens   int64         `json:"output_tokens"`
	ContextPercent float64       `json:"context_percent"`
	Preview        string        `json:"preview,omitempty"`

	// CurrentStep is a short live-activity label ("thinking", a tool
	// name, "ready"); empty means absent.
	CurrentStep string `json:"current_step,omitempty"`

	// RecentActions is most-recent-first and capped at
	// MaxRecentActions, with no two entries sharing an ActionKey.
	RecentActions []RecentAction `json:"recent_actions,omitempty"`
}

// Clone returns a deep copy; the action slice is never shared.
func (r SessionRecord) Clone() SessionRecord {
	out := r
	if r.RecentActions != nil {
		out.RecentActions = make([]RecentAction, len(r.RecentActions))
		copy(out.RecentActions, r.RecentActions)
	}
	return out
}

// SessionsSnapshot is the gateway's full-list response: every known
// session plus the count the gateway considers live.
type SessionsSnapshot struct {
	Sessions []SessionRecord `json:"sessions"`
	Active   int             `json:"active"`
}
