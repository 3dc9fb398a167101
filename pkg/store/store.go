package store

import (
	"sync"

	"github.com/quarterdeck/core/pkg/models"
)

// Store is the in-memory session view.
// It is thread-safe and supports pub/sub for fine-grained updates.
type Store struct {
	mu          sync.RWMutex
	sessions    map[string]*models.SessionRecord
	order       []string // display order, adopted from the last snapshot
	active      int
	pollErr     error
	version     uint64
	versions    map[string]uint64
	subscribers map[chan Event]struct{}
	removeHooks []func(ids []string)
}

// New creates a new Store instance. The store is constructed by the
// application root and handed to its producers; there is no package
// level instance.
func New() *Store {
	return &Store{
		sessions:    make(map[string]*models.SessionRecord),
		versions:    make(map[string]uint64),
		subscribers: make(map[chan Event]struct{}),
	}
}

// Sessions returns the current session list in display order. Records
// are deep copies; callers never share slices with the store.
func (s *Store) Sessions() []models.SessionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]models.SessionRecord, 0, len(s.order))
	for _, id := range s.order {
		if rec, ok := s.sessions[id]; ok {
			result = append(result, rec.Clone())
		}
	}
	return result
}

// Session returns a copy of one session by id.
func (s *Store) Session(id string) (models.SessionRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.sessions[id]
	if !ok {
		return models.SessionRecord{}, false
	}
	return rec.Clone(), true
}

// Len returns the number of sessions in the view.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Active returns the gateway's live-session count from the last
// snapshot.
func (s *Store) Active() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// PollError returns the last snapshot fetch failure, or nil. A failed
// poll is user-visible but non-fatal; the session list it could not
// refresh stays intact.
func (s *Store) PollError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pollErr
}

// SetPollError records a snapshot fetch failure (nil clears it).
func (s *Store) SetPollError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pollErr == nil && err == nil {
		return
	}
	s.pollErr = err
	s.version++
	s.broadcast(Event{Kind: EventHealth})
}

// Version returns the store-wide mutation counter.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// SessionVersion returns the per-session mutation counter, 0 for
// unknown ids.
func (s *Store) SessionVersion(id string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.versions[id]
}

// Subscribe creates a new subscription channel for change events.
func (s *Store) Subscribe() chan Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan Event, 100) // Buffered
	s.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (s *Store) Unsubscribe(ch chan Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscribers, ch)
	close(ch)
}

// OnRemove registers a cleanup hook invoked with the ids of sessions
// that disappeared from a snapshot. The terminal transport registers
// here to release per-session buffers.
func (s *Store) OnRemove(hook func(ids []string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeHooks = append(s.removeHooks, hook)
}

// broadcast sends an event to all subscribers. Non-blocking send so a
// slow consumer never stalls a producer. Callers must hold s.mu.
func (s *Store) broadcast(e Event) {
	for ch := range s.subscribers {
		select {
		case ch <- e:
		default:
		}
	}
}

// ApplySnapshot merges an authoritative-but-possibly-stale full list
// into the view.
//
// Per incoming record: first sighting adopts it as-is; otherwise the
// incoming fields are the baseline and two pieces of local-only
// knowledge are reapplied, because the snapshot endpoint does not
// persist transient activity:
//
//  1. CurrentStep survives when the snapshot carries none.
//  2. RecentActions: an empty incoming feed keeps the local one
//     verbatim; a non-empty feed merges incoming-first with unseen
//     local entries, capped at models.MaxRecentActions.
//
// Sessions absent from the snapshot are removed and their ids handed
// to the OnRemove hooks. A successful snapshot also clears the poll
// error and refreshes the active count.
func (s *Store) ApplySnapshot(snap models.SessionsSnapshot) {
	s.mu.Lock()

	var events []Event
	newOrder := make([]string, 0, len(snap.Sessions))
	seen := make(map[string]struct{}, len(snap.Sessions))

	for _, incoming := range snap.Sessions {
		if incoming.ID == "" {
			continue
		}
		if _, dup := seen[incoming.ID]; dup {
			continue
		}
		seen[incoming.ID] = struct{}{}
		newOrder = append(newOrder, incoming.ID)

		local, exists := s.sessions[incoming.ID]
		if !exists {
			adopted := incoming.Clone()
			// Incoming feeds may exceed the cap or repeat keys.
			adopted.RecentActions = models.MergeRecentActions(adopted.RecentActions, nil)
			s.sessions[incoming.ID] = &adopted
			s.bumpLocked(incoming.ID)
			events = append(events, Event{Kind: EventSession, SessionID: incoming.ID})
			continue
		}

		merged := incoming.Clone()
		if merged.CurrentStep == "" && local.CurrentStep != "" {
			merged.CurrentStep = local.CurrentStep
		}
		// A stopped session never shows a live-activity label, even one
		// retained from local state.
		if merged.Status == models.StatusStopped {
			merged.CurrentStep = ""
		}
		merged.RecentActions = models.MergeRecentActions(incoming.RecentActions, local.RecentActions)

		if !recordsEqual(*local, merged) {
			s.sessions[incoming.ID] = &merged
			s.bumpLocked(incoming.ID)
			events = append(events, Event{Kind: EventSession, SessionID: incoming.ID})
		}
	}

	// Disappearance from a snapshot is the deletion signal.
	var removed []string
	for id := range s.sessions {
		if _, ok := seen[id]; !ok {
			removed = append(removed, id)
		}
	}
	for _, id := range removed {
		delete(s.sessions, id)
		delete(s.versions, id)
		s.version++
		events = append(events, Event{Kind: EventRemoved, SessionID: id})
	}

	if !orderEqual(s.order, newOrder) {
		s.order = newOrder
		s.version++
		events = append(events, Event{Kind: EventList})
	}

	if s.active != snap.Active || s.pollErr != nil {
		s.active = snap.Active
		s.pollErr = nil
		s.version++
		events = append(events, Event{Kind: EventHealth})
	}

	hooks := s.removeHooks
	for _, e := range events {
		s.broadcast(e)
	}
	s.mu.Unlock()

	// Hooks run outside the lock; they are free to call back into the
	// store.
	if len(removed) > 0 {
		for _, hook := range hooks {
			hook(removed)
		}
	}
}

// ApplyActivity overwrites the telemetry fields a delta carries for
// one session. A delta for an unknown id is dropped, not queued: the
// session's first snapshot has not landed yet and the next poll will
// carry its current state anyway. Reports whether the delta was
// applied.
func (s *Store) ApplyActivity(u models.ActivityUpdate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[u.SessionID]
	if !ok {
		return false
	}

	if u.Model != nil {
		rec.Model = *u.Model
	}
	if u.CostUSD != nil {
		rec.CostUSD = *u.CostUSD
	}
	if u.InputTokens != nil {
		rec.InputTokens = *u.InputTokens
	}
	if u.OutputTokens != nil {
		rec.OutputTokens = *u.OutputTokens
	}
	if u.ContextPercent != nil {
		rec.ContextPercent = *u.ContextPercent
	}
	if u.Activity != nil {
		rec.Preview = *u.Activity
	}
	if u.CurrentStep != nil {
		rec.CurrentStep = *u.CurrentStep
	}
	// A non-empty delta feed replaces the local one wholesale; an empty
	// feed preserves it (anti-flicker, same rule as snapshots).
	if len(u.RecentActions) > 0 {
		replacement := models.MergeRecentActions(u.RecentActions, nil)
		rec.RecentActions = replacement
	}

	s.bumpLocked(u.SessionID)
	s.broadcast(Event{Kind: EventSession, SessionID: u.SessionID})
	return true
}

// ApplyStatus overwrites one session's status from a wire token.
// Unknown tokens parse to Stopped. Entering Stopped clears CurrentStep
// so an ended session never shows a stale "thinking" label. Reports
// whether the change was applied.
func (s *Store) ApplyStatus(c models.StatusChange) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[c.SessionID]
	if !ok {
		return false
	}

	status := models.ParseStatus(c.Status)
	rec.Status = status
	if status == models.StatusStopped {
		rec.CurrentStep = ""
	}

	s.bumpLocked(c.SessionID)
	s.broadcast(Event{Kind: EventSession, SessionID: c.SessionID})
	return true
}

// bumpLocked advances the store and per-session versions. Callers must
// hold s.mu.
func (s *Store) bumpLocked(id string) {
	s.version++
	s.versions[id]++
}

func orderEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// recordsEqual compares records field by field so unchanged snapshot
// rows do not re-notify subscribers every poll cycle.
func recordsEqual(a, b models.SessionRecord) bool {
	if a.ID != b.ID ||
		a.Status != b.Status ||
		a.Model != b.Model ||
		a.CostUSD != b.CostUSD ||
		a.InputTokens != b.InputTokens ||
		a.OutputTokens != b.OutputTokens ||
		a.ContextPercent != b.ContextPercent ||
		a.Preview != b.Preview ||
		a.CurrentStep != b.CurrentStep {
		return false
	}
	if len(a.RecentActions) != len(b.RecentActions) {
		return false
	}
	for i := range a.RecentActions {
		if a.RecentActions[i] != b.RecentActions[i] {
			return false
		}
	}
	return true
}
