package devserver

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/quarterdeck/core/pkg/models"
)

var (
	simModels = []string{"atlas-large", "atlas-small", "meridian-2"}
	simSteps  = []string{"thinking", "planning", "bash", "edit", "ready"}
	simTools  = []struct{ actionType, summary string }{
		{"tool_use", "Read main.go"},
		{"tool_use", "Run test suite"},
		{"tool_use", "Edit handler.go"},
		{"tool_use", "Search for callers"},
		{"message", "Summarized findings"},
		{"message", "Proposed a fix"},
	}
	simPrompts = []string{"Refactor to table tests", "Explain this diff", "Write release notes"}
)

// Simulator fabricates a roster of agent sessions and mutates them on
// a ticker, emitting the same push envelopes the production gateway
// would: rising cost and token counters, fluctuating context percent,
// rotating actions, and occasional stops and prompts.
type Simulator struct {
	logger *logrus.Entry
	rnd    *rand.Rand

	mu          sync.Mutex
	sessions    map[string]*models.SessionRecord
	order       []string
	subscribers map[chan []byte]struct{}
}

// NewSimulator seeds n sessions.
func NewSimulator(n int, logger *logrus.Entry) *Simulator {
	s := &Simulator{
		logger:      logger,
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())),
		sessions:    make(map[string]*models.SessionRecord),
		subscribers: make(map[chan []byte]struct{}),
	}
	for i := 0; i < n; i++ {
		id := uuid.NewString()
		s.sessions[id] = &models.SessionRecord{
			ID:      id,
			Status:  models.StatusActive,
			Model:   simModels[i%len(simModels)],
			Preview: "Waiting for the first task",
		}
		s.order = append(s.order, id)
	}
	return s
}

// Snapshot returns the current roster in the gateway's list shape.
func (s *Simulator) Snapshot() models.SessionsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := models.SessionsSnapshot{Sessions: make([]models.SessionRecord, 0, len(s.order))}
	for _, id := range s.order {
		rec := s.sessions[id]
		snap.Sessions = append(snap.Sessions, rec.Clone())
		if !rec.Status.IsTerminal() {
			snap.Active++
		}
	}
	return snap
}

// Subscribe registers a push-frame consumer.
func (s *Simulator) Subscribe() chan []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan []byte, 64)
	s.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a consumer and closes its channel.
func (s *Simulator) Unsubscribe(ch chan []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subscribers[ch]; ok {
		delete(s.subscribers, ch)
		close(ch)
	}
}

// Run mutates the roster until ctx is cancelled.
func (s *Simulator) Run(ctx context.Context) {
	activity := time.NewTicker(2 * time.Second)
	defer activity.Stop()
	lifecycle := time.NewTicker(15 * time.Second)
	defer lifecycle.Stop()
	prompts := time.NewTicker(45 * time.Second)
	defer prompts.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-activity.C:
			s.emitActivity()
		case <-lifecycle.C:
			s.emitLifecycle()
		case <-prompts.C:
			s.emitPrompt()
		}
	}
}

func (s *Simulator) emitActivity() {
	s.mu.Lock()
	rec := s.pickLiveLocked()
	if rec == nil {
		s.mu.Unlock()
		return
	}

	rec.CostUSD += s.rnd.Float64() * 0.05
	rec.InputTokens += int64(s.rnd.Intn(800))
	rec.OutputTokens += int64(s.rnd.Intn(400))
	rec.ContextPercent += s.rnd.Float64()*10 - 4
	if rec.ContextPercent < 0 {
		rec.ContextPercent = 0
	}
	if rec.ContextPercent > 100 {
		rec.ContextPercent = 100
	}
	rec.CurrentStep = simSteps[s.rnd.Intn(len(simSteps))]

	tool := simTools[s.rnd.Intn(len(simTools))]
	rec.Preview = tool.summary
	rec.RecentActions = models.MergeRecentActions([]models.RecentAction{{
		ActionType: tool.actionType,
		Summary:    tool.summary,
		Timestamp:  time.Now(),
	}}, rec.RecentActions)

	update := models.ActivityUpdate{
		SessionID:      rec.ID,
		Model:          &rec.Model,
		CostUSD:        &rec.CostUSD,
		InputTokens:    &rec.InputTokens,
		OutputTokens:   &rec.OutputTokens,
		ContextPercent: &rec.ContextPercent,
		Activity:       &rec.Preview,
		CurrentStep:    &rec.CurrentStep,
		RecentActions:  rec.RecentActions,
	}
	s.broadcastLocked(models.PushActivityUpdate, update)
	s.mu.Unlock()
}

// emitLifecycle occasionally stops one session and replaces it with a
// fresh one, so the roster exercises removal and first-sighting paths.
func (s *Simulator) emitLifecycle() {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.pickLiveLocked()
	if rec == nil || s.rnd.Intn(3) != 0 {
		return
	}

	rec.Status = models.StatusStopped
	rec.CurrentStep = ""
	s.broadcastLocked(models.PushStatusChange, models.StatusChange{
		SessionID: rec.ID,
		Status:    string(models.StatusStopped),
	})

	id := uuid.NewString()
	s.sessions[id] = &models.SessionRecord{
		ID:      id,
		Status:  models.StatusStarting,
		Model:   simModels[s.rnd.Intn(len(simModels))],
		Preview: "Starting up",
	}
	s.order = append(s.order, id)
	s.broadcastLocked(models.PushStatusChange, models.StatusChange{
		SessionID: id,
		Status:    string(models.StatusStarting),
	})
}

func (s *Simulator) emitPrompt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	title := simPrompts[s.rnd.Intn(len(simPrompts))]
	s.broadcastLocked(models.PushNewPrompt, models.PromptRecord{
		ID:        uuid.NewString(),
		Title:     title,
		Body:      fmt.Sprintf("Prompt body for %q", title),
		CreatedAt: time.Now(),
	})
}

func (s *Simulator) pickLiveLocked() *models.SessionRecord {
	var live []*models.SessionRecord
	for _, id := range s.order {
		if rec := s.sessions[id]; !rec.Status.IsTerminal() {
			live = append(live, rec)
		}
	}
	if len(live) == 0 {
		return nil
	}
	return live[s.rnd.Intn(len(live))]
}

// broadcastLocked fans an envelope out to subscribers, dropping frames
// for slow consumers. Callers must hold s.mu.
func (s *Simulator) broadcastLocked(envType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.WithError(err).Error("Failed to marshal push payload")
		return
	}
	frame, err := json.Marshal(models.PushEnvelope{Type: envType, Data: data})
	if err != nil {
		s.logger.WithError(err).Error("Failed to marshal push envelope")
		return
	}
	for ch := range s.subscribers {
		select {
		case ch <- frame:
		default:
		}
	}
}
