package engine

import (
	"sync"

	"github.com/quarterdeck/core/pkg/models"
)

// PromptIndex collects prompts announced over the push socket. Prompts
// are library content, not session state: they never touch the session
// store.
type PromptIndex struct {
	mu      sync.RWMutex
	prompts []models.PromptRecord
	byID    map[string]int
}

// NewPromptIndex creates an empty index.
func NewPromptIndex() *PromptIndex {
	return &PromptIndex{byID: make(map[string]int)}
}

// Add inserts or updates a prompt by id.
func (p *PromptIndex) Add(rec models.PromptRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i, ok := p.byID[rec.ID]; ok {
		p.prompts[i] = rec
		return
	}
	p.byID[rec.ID] = len(p.prompts)
	p.prompts = append(p.prompts, rec)
}

// Prompts returns all known prompts in arrival order.
func (p *PromptIndex) Prompts() []models.PromptRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]models.PromptRecord, len(p.prompts))
	copy(out, p.prompts)
	return out
}

// Len returns the number of indexed prompts.
func (p *PromptIndex) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.prompts)
}
