package models

import (
	"encoding/json"
	"time"
)

// Push message kinds carried in PushEnvelope.Type. Unrecognized kinds
// are ignored by the channel.
const (
	PushActivityUpdate = "activity_update"
	PushStatusChange   = "status_change"
	PushNewPrompt      = "new_prompt"
)

// PushEnvelope is the discriminated wire frame on the push socket.
type PushEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ActivityUpdate is a partial, per-session telemetry delta. Nil
// pointers mean "field not carried"; the reconciler only overwrites
// fields the delta actually carries.
type ActivityUpdate struct {
	SessionID      string         `json:"session_id"`
	Model          *string        `json:"model,omitempty"`
	CostUSD        *float64       `json:"cost_usd,omitempty"`
	InputTokens    *int64         `json:"input_tokens,omitempty"`
	OutputTokens   *int64         `json:"output_tokens,omitempty"`
	ContextPercent *float64       `json:"context_percent,omitempty"`
	Activity       *string        `json:"activity,omitempty"`
	CurrentStep    *string        `json:"current_step,omitempty"`
	RecentActions  []RecentAction `json:"recent_actions,omitempty"`
}

// StatusChange announces a session's new lifecycle state. Status is
// the raw wire token; the reconciler parses it with ParseStatus.
type StatusChange struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// PromptRecord is a library prompt announced over the push socket.
// Prompts are routed to the prompt index, never to the session store.
type PromptRecord struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
