package session

import (
	"context"
	"sync"
	"time"

	"fintrack/internal/logger"
	"fintrack/internal/models"
	"fintrack/internal/store"

	"github.com/google/uuid"
)

func newID() string { return uuid.NewString() }

// Manager keeps one live Session per session id.
type Manager struct {
	backends store.Backends
	defaults Defaults
	idle     time.Duration

	base   context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(b store.Backends, d Defaults, idle time.Duration) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		backends: b,
		defaults: d,
		idle:     idle,
		base:     ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
	}
}

// Get returns the session for id, starting it on first use.
func (m *Manager) Get(id string, user models.User) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		s.Touch()
		return s, nil
	}

	st, err := store.Open(user, m.backends)
	if err != nil {
		return nil, err
	}
	s, err := Start(m.base, id, user, st, m.defaults)
	if err != nil {
		st.Close()
		return nil, err
	}
	m.sessions[id] = s
	logger.L().Info().Str("session_id", id).Str("mode", string(st.Mode())).Msg("session_started")
	return s, nil
}

// Close ends the session for id, if any.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	logger.L().Info().Str("session_id", id).Msg("session_closed")
	return s.Close()
}

// Sweep closes sessions idle since before now-idle and returns how many.
// Held sessions are never swept.
func (m *Manager) Sweep(now time.Time) int {
	if m.idle <= 0 {
		return 0
	}
	m.mu.Lock()
	var stale []*Session
	for id, s := range m.sessions {
		if !s.held() && now.Sub(s.LastSeen()) > m.idle {
			stale = append(stale, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range stale {
		if err := s.Close(); err != nil {
			logger.L().Warn().Err(err).Str("session_id", s.ID).Msg("session_close_failed")
		}
	}
	return len(stale)
}

// Run sweeps every interval until ctx ends.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := m.Sweep(now); n > 0 {
				logger.L().Info().Int("closed", n).Msg("idle_sessions_swept")
			}
		}
	}
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown closes every session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range all {
		s.Close()
	}
	m.cancel()
}
