// Package testutil provides fixture builders shared by tests across
// the repository.
package testutil

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quarterdeck/core/pkg/models"
)

// RandomString generates a random string of the specified length
func RandomString(length int) string {
	bytes := make([]byte, length/2+1)
	if _, err := rand.Read(bytes); err != nil {
		panic(err)
	}
	return hex.EncodeToString(bytes)[:length]
}

// Session builds a SessionRecord with sensible defaults. Mutate the
// result through the option funcs.
func Session(id string, opts ...func(*models.SessionRecord)) models.SessionRecord {
	r := models.SessionRecord{
		ID:     id,
		Status: models.StatusActive,
		Model:  "claude-sonnet",
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

// WithStatus sets the session status.
func WithStatus(s models.SessionStatus) func(*models.SessionRecord) {
	return func(r *models.SessionRecord) { r.Status = s }
}

// WithStep sets the live-activity label.
func WithStep(step string) func(*models.SessionRecord) {
	return func(r *models.SessionRecord) { r.CurrentStep = step }
}

// WithActions sets the recent-action list.
func WithActions(actions ...models.RecentAction) func(*models.SessionRecord) {
	return func(r *models.SessionRecord) { r.RecentActions = actions }
}

// WithModel sets the model name.
func WithModel(model string) func(*models.SessionRecord) {
	return func(r *models.SessionRecord) { r.Model = model }
}

// Action builds a RecentAction with a fixed timestamp so comparisons
// stay deterministic.
func Action(actionType, summary string) models.RecentAction {
	return models.RecentAction{
		ActionType: actionType,
		Summary:    summary,
		Timestamp:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

// Snapshot builds a SessionsSnapshot, counting non-terminal sessions
// as active the way the gateway does.
func Snapshot(sessions ...models.SessionRecord) models.SessionsSnapshot {
	active := 0
	for _, s := range sessions {
		if !s.Status.IsTerminal() {
			active++
		}
	}
	return models.SessionsSnapshot{Sessions: sessions, Active: active}
}

// WriteConfig writes a quarterdeck.yml with the given content into dir
// and returns its path.
func WriteConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "quarterdeck.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}
