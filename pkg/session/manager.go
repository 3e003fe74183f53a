package session

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/forcelayout/pkg/errors"
)

// DefaultTTL is how long an idle session survives in a [Manager].
const DefaultTTL = 30 * time.Minute

// Manager is a registry of sessions keyed by id.
type Manager struct {
	ttl    time.Duration
	logger *log.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a registry. A ttl of zero uses [DefaultTTL].
func NewManager(ttl time.Duration, logger *log.Logger) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{ttl: ttl, logger: logger, sessions: make(map[string]*Session)}
}

// Create registers a new empty session.
func (m *Manager) Create() *Session {
	s := New(Options{Logger: m.logger})
	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()
	return s
}

// Put registers an existing session, replacing any with the same id.
func (m *Manager) Put(s *Session) {
	m.mu.Lock()
	old := m.sessions[s.ID()]
	m.sessions[s.ID()] = s
	m.mu.Unlock()
	if old != nil && old != s {
		_ = old.Close()
	}
}

// Get returns the session with the given id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, &errors.NotFoundError{Kind: KindSession, ID: id}
	}
	s.touch()
	return s, nil
}

// Delete closes and removes a session.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return &errors.NotFoundError{Kind: KindSession, ID: id}
	}
	return s.Close()
}

// Len returns the number of registered sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sessions returns the registered sessions in no particular order.
func (m *Manager) Sessions() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// Sweep closes sessions idle since before now-ttl. Sessions with a run in
// flight are kept. It returns the number of sessions removed.
func (m *Manager) Sweep(now time.Time) int {
	cutoff := now.Add(-m.ttl)
	var expired []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		if s.LastUsed().Before(cutoff) && !s.running() {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		_ = s.Close()
	}
	if len(expired) > 0 && m.logger != nil {
		m.logger.Debug("sessions expired", "count", len(expired))
	}
	return len(expired)
}

// StartSweeper calls Sweep every interval until ctx ends.
func (m *Manager) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				m.Sweep(now)
			}
		}
	}()
}

// Close closes every session.
func (m *Manager) Close() error {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range all {
		_ = s.Close()
	}
	return nil
}
