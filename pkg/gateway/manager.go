package gateway

import (
	"context"
	"errors"
	"net/url"
	"sync"

	"github.com/sirupsen/logrus"
)

// Manager caches one Terminal per session so a view that reopens a
// session reuses its byte pipe. Its CloseSessions method is registered
// as the store's remove hook: when a session disappears from a
// snapshot, its terminal buffers are released.
type Manager struct {
	client *Client
	logger *logrus.Entry

	mu        sync.RWMutex
	terminals map[string]*Terminal
}

// NewManager creates a Manager over a gateway client.
func NewManager(client *Client, logger *logrus.Entry) *Manager {
	return &Manager{
		client:    client,
		logger:    logger,
		terminals: make(map[string]*Terminal),
	}
}

// GetOrOpen returns the cached terminal for a session, dialing a new
// one if needed.
func (m *Manager) GetOrOpen(ctx context.Context, sessionID string) (*Terminal, error) {
	m.mu.RLock()
	t, ok := m.terminals[sessionID]
	m.mu.RUnlock()
	if ok {
		return t, nil
	}

	wsURL, err := m.client.WebsocketURL("/ws/terminal")
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("session", sessionID)
	u.RawQuery = q.Encode()

	t, err = OpenTerminal(ctx, u.String(), sessionID, m.logger)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if existing, ok := m.terminals[sessionID]; ok {
		// Lost the race; keep the first one.
		m.mu.Unlock()
		t.Close()
		return existing, nil
	}
	m.terminals[sessionID] = t
	m.mu.Unlock()
	return t, nil
}

// Get returns the cached terminal for a session, or nil.
func (m *Manager) Get(sessionID string) *Terminal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.terminals[sessionID]
}

// CloseSessions releases the terminals for the given session ids. Ids
// without a cached terminal are ignored.
func (m *Manager) CloseSessions(ids []string) {
	m.mu.Lock()
	var doomed []*Terminal
	for _, id := range ids {
		if t, ok := m.terminals[id]; ok {
			doomed = append(doomed, t)
			delete(m.terminals, id)
		}
	}
	m.mu.Unlock()

	for _, t := range doomed {
		if err := t.Close(); err != nil {
			m.logger.WithError(err).WithField("session", t.SessionID()).Debug("Terminal close failed")
		}
	}
}

// CloseAll releases every cached terminal.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	doomed := make([]*Terminal, 0, len(m.terminals))
	for _, t := range m.terminals {
		doomed = append(doomed, t)
	}
	m.terminals = make(map[string]*Terminal)
	m.mu.Unlock()

	var errs []error
	for _, t := range doomed {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
