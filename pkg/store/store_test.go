package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarterdeck/core/pkg/models"
	"github.com/quarterdeck/core/testutil"
)

func drainEvents(ch chan Event) []Event {
	var out []Event
	for {
		select {
		case e := <-ch:
			out = append(out, e)
		default:
			return out
		}
	}
}

func TestApplySnapshotAdoptsNewSessions(t *testing.T) {
	s := New()

	s.ApplySnapshot(testutil.Snapshot(
		testutil.Session("s1"),
		testutil.Session("s2", testutil.WithStatus(models.StatusWaitingInput)),
	))

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 2, s.Active())

	list := s.Sessions()
	require.Len(t, list, 2)
	assert.Equal(t, "s1", list[0].ID)
	assert.Equal(t, "s2", list[1].ID)
}

func TestApplySnapshotKeepsLocalStepWhenIncomingEmpty(t *testing.T) {
	s := New()
	s.ApplySnapshot(testutil.Snapshot(
		testutil.Session("s1", testutil.WithStep("thinking")),
	))

	// Next snapshot carries no step; the live label survives.
	s.ApplySnapshot(testutil.Snapshot(testutil.Session("s1")))

	rec, ok := s.Session("s1")
	require.True(t, ok)
	assert.Equal(t, "thinking", rec.CurrentStep)

	// A snapshot that does carry a step overwrites.
	s.ApplySnapshot(testutil.Snapshot(
		testutil.Session("s1", testutil.WithStep("Read")),
	))
	rec, _ = s.Session("s1")
	assert.Equal(t, "Read", rec.CurrentStep)
}

func TestApplySnapshotEmptyActionsKeepLocal(t *testing.T) {
	s := New()
	actions := []models.RecentAction{
		testutil.Action("tool", "Read main.go"),
		testutil.Action("tool", "Edit main.go"),
		testutil.Action("message", "Explain the bug"),
	}
	s.ApplySnapshot(testutil.Snapshot(
		testutil.Session("s1", testutil.WithActions(actions...)),
	))

	// Second snapshot has an empty feed: no flicker-to-empty.
	s.ApplySnapshot(testutil.Snapshot(testutil.Session("s1")))

	rec, ok := s.Session("s1")
	require.True(t, ok)
	assert.Equal(t, actions, rec.RecentActions)
}

func TestApplySnapshotStoppedSessionScenario(t *testing.T) {
	// Local: s1 active, three actions, a live step. Snapshot: s1
	// stopped with an empty feed. Status is authoritative, the step is
	// cleared, the actions survive.
	s := New()
	actions := []models.RecentAction{
		testutil.Action("tool", "Read main.go"),
		testutil.Action("tool", "Edit main.go"),
		testutil.Action("message", "Explain the bug"),
	}
	s.ApplySnapshot(testutil.Snapshot(
		testutil.Session("s1", testutil.WithStep("thinking"), testutil.WithActions(actions...)),
	))

	s.ApplySnapshot(testutil.Snapshot(
		testutil.Session("s1", testutil.WithStatus(models.StatusStopped)),
	))

	rec, ok := s.Session("s1")
	require.True(t, ok)
	assert.Equal(t, models.StatusStopped, rec.Status)
	assert.Empty(t, rec.CurrentStep)
	assert.Equal(t, actions, rec.RecentActions)
}

func TestApplySnapshotMergesActionFeeds(t *testing.T) {
	s := New()
	s.ApplySnapshot(testutil.Snapshot(
		testutil.Session("s1", testutil.WithActions(
			testutil.Action("tool", "old-1"),
			testutil.Action("tool", "old-2"),
		)),
	))

	s.ApplySnapshot(testutil.Snapshot(
		testutil.Session("s1", testutil.WithActions(
			testutil.Action("tool", "new-1"),
			testutil.Action("tool", "old-1"), // duplicate of a local entry
		)),
	))

	rec, _ := s.Session("s1")
	var summaries []string
	for _, a := range rec.RecentActions {
		summaries = append(summaries, a.Summary)
	}
	// Incoming first, then unseen local entries, no duplicates.
	assert.Equal(t, []string{"new-1", "old-1", "old-2"}, summaries)
	assert.LessOrEqual(t, len(rec.RecentActions), models.MaxRecentActions)
}

func TestApplySnapshotNormalizesAdoptedActions(t *testing.T) {
	// A first-seen session arrives with an oversized feed carrying a
	// duplicate key; the adopted record still honors the cap and key
	// uniqueness.
	s := New()
	s.ApplySnapshot(testutil.Snapshot(
		testutil.Session("s1", testutil.WithActions(
			testutil.Action("tool", "a"),
			testutil.Action("tool", "b"),
			testutil.Action("tool", "a"), // duplicate key
			testutil.Action("tool", "c"),
			testutil.Action("tool", "d"),
			testutil.Action("tool", "e"),
			testutil.Action("tool", "f"),
		)),
	))

	rec, ok := s.Session("s1")
	require.True(t, ok)
	require.Len(t, rec.RecentActions, models.MaxRecentActions)

	var summaries []string
	for _, a := range rec.RecentActions {
		summaries = append(summaries, a.Summary)
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, summaries)
}

func TestApplySnapshotRemovesAbsentSessions(t *testing.T) {
	s := New()

	var removed []string
	s.OnRemove(func(ids []string) { removed = append(removed, ids...) })

	s.ApplySnapshot(testutil.Snapshot(
		testutil.Session("s1"),
		testutil.Session("s2"),
	))
	s.ApplySnapshot(testutil.Snapshot(testutil.Session("s2")))

	assert.Equal(t, 1, s.Len())
	_, ok := s.Session("s1")
	assert.False(t, ok)
	assert.Equal(t, []string{"s1"}, removed)
}

func TestApplySnapshotEventGranularity(t *testing.T) {
	s := New()
	s.ApplySnapshot(testutil.Snapshot(
		testutil.Session("s1"),
		testutil.Session("s2"),
	))

	ch := s.Subscribe()
	defer s.Unsubscribe(ch)

	// Identical snapshot: no session events, no list event, no health
	// event.
	s.ApplySnapshot(testutil.Snapshot(
		testutil.Session("s1"),
		testutil.Session("s2"),
	))
	assert.Empty(t, drainEvents(ch))

	// One session mutates: exactly one session event for that id.
	s.ApplySnapshot(testutil.Snapshot(
		testutil.Session("s1", testutil.WithStep("Bash")),
		testutil.Session("s2"),
	))
	events := drainEvents(ch)
	require.Len(t, events, 1)
	assert.Equal(t, EventSession, events[0].Kind)
	assert.Equal(t, "s1", events[0].SessionID)
}

func TestApplyActivityPartialDelta(t *testing.T) {
	s := New()
	s.ApplySnapshot(testutil.Snapshot(testutil.Session("s1")))

	cost := 1.25
	step := "Bash"
	applied := s.ApplyActivity(models.ActivityUpdate{
		SessionID:   "s1",
		CostUSD:     &cost,
		CurrentStep: &step,
	})
	require.True(t, applied)

	rec, _ := s.Session("s1")
	assert.Equal(t, 1.25, rec.CostUSD)
	assert.Equal(t, "Bash", rec.CurrentStep)
	// Fields the delta did not carry are untouched.
	assert.Equal(t, "claude-sonnet", rec.Model)
}

func TestApplyActivityUnknownSessionDropped(t *testing.T) {
	s := New()
	cost := 1.0
	assert.False(t, s.ApplyActivity(models.ActivityUpdate{SessionID: "ghost", CostUSD: &cost}))
	assert.Equal(t, 0, s.Len())
}

func TestApplyActivityActionsReplaceWholesale(t *testing.T) {
	s := New()
	s.ApplySnapshot(testutil.Snapshot(
		testutil.Session("s1", testutil.WithActions(
			testutil.Action("tool", "a"),
			testutil.Action("tool", "b"),
		)),
	))

	// Non-empty delta feed replaces, it does not accumulate.
	s.ApplyActivity(models.ActivityUpdate{
		SessionID:     "s1",
		RecentActions: []models.RecentAction{testutil.Action("tool", "c")},
	})
	rec, _ := s.Session("s1")
	require.Len(t, rec.RecentActions, 1)
	assert.Equal(t, "c", rec.RecentActions[0].Summary)

	// Empty delta feed preserves.
	s.ApplyActivity(models.ActivityUpdate{SessionID: "s1"})
	rec, _ = s.Session("s1")
	require.Len(t, rec.RecentActions, 1)
}

func TestApplyStatusUnknownTokenStops(t *testing.T) {
	s := New()
	s.ApplySnapshot(testutil.Snapshot(
		testutil.Session("s1", testutil.WithStep("thinking")),
	))

	applied := s.ApplyStatus(models.StatusChange{SessionID: "s1", Status: "exploded"})
	require.True(t, applied)

	rec, _ := s.Session("s1")
	assert.Equal(t, models.StatusStopped, rec.Status)
	assert.Empty(t, rec.CurrentStep)
}

func TestApplyStatusKnownToken(t *testing.T) {
	s := New()
	s.ApplySnapshot(testutil.Snapshot(testutil.Session("s1")))

	s.ApplyStatus(models.StatusChange{SessionID: "s1", Status: "waiting_input"})
	rec, _ := s.Session("s1")
	assert.Equal(t, models.StatusWaitingInput, rec.Status)

	assert.False(t, s.ApplyStatus(models.StatusChange{SessionID: "ghost", Status: "active"}))
}

func TestPollErrorLifecycle(t *testing.T) {
	s := New()
	s.ApplySnapshot(testutil.Snapshot(testutil.Session("s1")))

	pollErr := errors.New("gateway down")
	s.SetPollError(pollErr)
	assert.Equal(t, pollErr, s.PollError())
	// The list the poll could not refresh stays intact.
	assert.Equal(t, 1, s.Len())

	// The next successful snapshot clears the error.
	s.ApplySnapshot(testutil.Snapshot(testutil.Session("s1")))
	assert.NoError(t, s.PollError())

	// Clearing an already-clear error is a no-op.
	v := s.Version()
	s.SetPollError(nil)
	assert.Equal(t, v, s.Version())
}

func TestVersionsAdvancePerSession(t *testing.T) {
	s := New()
	s.ApplySnapshot(testutil.Snapshot(
		testutil.Session("s1"),
		testutil.Session("s2"),
	))

	v1 := s.SessionVersion("s1")
	v2 := s.SessionVersion("s2")

	step := "Edit"
	s.ApplyActivity(models.ActivityUpdate{SessionID: "s1", CurrentStep: &step})

	assert.Greater(t, s.SessionVersion("s1"), v1)
	assert.Equal(t, v2, s.SessionVersion("s2"))
}

func TestSessionsReturnsDeepCopies(t *testing.T) {
	s := New()
	s.ApplySnapshot(testutil.Snapshot(
		testutil.Session("s1", testutil.WithActions(testutil.Action("tool", "a"))),
	))

	list := s.Sessions()
	list[0].RecentActions[0].Summary = "mutated"

	rec, _ := s.Session("s1")
	assert.Equal(t, "a", rec.RecentActions[0].Summary)
}
