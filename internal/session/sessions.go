// Package session tracks per-platform browsing sessions reported by
// the browser clients. Sessions are keyed by platform and survive
// client disconnects; only explicit session-end or a new session-start
// replaces one.
package session

import (
	"sync"
	"time"

	"tempo/pkg/models"
)

// Store persists the session table. Satisfied by store.FileStore.
type Store interface {
	SaveSessions(sessions map[models.Platform]*models.SessionState) error
	LoadSessions() (map[models.Platform]*models.SessionState, error)
}

// Manager owns the per-platform session table.
type Manager struct {
	mu       sync.Mutex
	sessions map[models.Platform]*models.SessionState
	store    Store
	now      func() time.Time
}

// New creates a manager, restoring any persisted session table.
func New(store Store, now func() time.Time) (*Manager, error) {
	sessions, err := store.LoadSessions()
	if err != nil {
		return nil, err
	}
	return &Manager{
		sessions: sessions,
		store:    store,
		now:      now,
	}, nil
}

// Start opens (or restarts) a session for the platform.
func (m *Manager) Start(platform models.Platform, intent string, categories []string, filtered bool, multiplier float64) *models.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &models.SessionState{
		Platform:       platform,
		Active:         true,
		Filtered:       filtered,
		CostMultiplier: multiplier,
		Intent:         intent,
		Categories:     categories,
		StartedAt:      m.now(),
	}
	m.sessions[platform] = s
	m.persistLocked()
	copied := *s
	return &copied
}

// End closes the platform's session if one is open.
func (m *Manager) End(platform models.Platform) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[platform]
	if !ok || !s.Active {
		return
	}
	s.Active = false
	m.persistLocked()
}

// Heartbeat records activity and returns the session's multiplier.
// Heartbeats for a platform without an open session fall back to the
// given default multiplier.
func (m *Manager) Heartbeat(platform models.Platform, defaultMultiplier float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[platform]
	if !ok || !s.Active {
		return defaultMultiplier
	}
	s.LastHeartbeat = m.now()
	m.persistLocked()
	return s.CostMultiplier
}

// Get returns a copy of the platform's session, or nil.
func (m *Manager) Get(platform models.Platform) *models.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[platform]
	if !ok {
		return nil
	}
	copied := *s
	return &copied
}

// Active returns copies of all open sessions.
func (m *Manager) Active() []models.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.SessionState
	for _, s := range m.sessions {
		if s.Active {
			out = append(out, *s)
		}
	}
	return out
}

// PruneStale closes sessions whose last heartbeat is older than maxAge.
// Returns the platforms closed.
func (m *Manager) PruneStale(maxAge time.Duration) []models.Platform {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-maxAge)
	var closed []models.Platform
	for platform, s := range m.sessions {
		if !s.Active {
			continue
		}
		last := s.LastHeartbeat
		if last.IsZero() {
			last = s.StartedAt
		}
		if last.Before(cutoff) {
			s.Active = false
			closed = append(closed, platform)
		}
	}
	if len(closed) > 0 {
		m.persistLocked()
	}
	return closed
}

func (m *Manager) persistLocked() {
	// Session persistence is best-effort; in-memory state stays
	// authoritative on write failure.
	_ = m.store.SaveSessions(m.sessions)
}
