package editor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"inkwell/api/internal/generation"
	"inkwell/api/internal/observe"
)

// Session is a controller bound to an owner and, optionally, a saved document.
type Session struct {
	*Controller
	Owner    string
	Filename string

	mu       sync.Mutex
	lastSeen time.Time
}

// Touch marks the session as used now.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

// LastSeen returns the last Touch time.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Manager keeps the live sessions of this process.
type Manager struct {
	gen     generation.Generator
	busy    BusyRegistry
	metrics *observe.Metrics
	logger  *slog.Logger
	clock   Clock
	base    []Option

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager returns a manager that builds controllers with gen and busy.
// opts are applied to every controller it creates.
func NewManager(gen generation.Generator, busy BusyRegistry, metrics *observe.Metrics, logger *slog.Logger, opts ...Option) *Manager {
	if busy == nil {
		busy = NewLocalBusy()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		gen:      gen,
		busy:     busy,
		metrics:  metrics,
		logger:   logger,
		clock:    realClock{},
		base:     opts,
		sessions: make(map[string]*Session),
	}
}

// Open creates a session for owner. filename may be empty for unsaved drafts.
func (m *Manager) Open(owner, filename string, opts ...Option) *Session {
	id := uuid.NewString()
	scope := "session:" + id
	if filename != "" {
		scope = "doc:" + owner + ":" + filename
	}

	all := []Option{
		WithBusyRegistry(m.busy),
		WithBusyScope(scope),
		WithLogger(m.logger),
		WithMetrics(m.metrics),
	}
	all = append(all, m.base...)
	all = append(all, opts...)

	s := &Session{
		Controller: New(id, m.gen, all...),
		Owner:      owner,
		Filename:   filename,
		lastSeen:   m.clock.Now(),
	}
	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.SessionOpened(context.Background())
	}
	m.logger.Info("editor session opened", "session_id", id, "owner", owner, "filename", filename)
	return s
}

// Get returns the session with id, touching it.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		s.Touch(m.clock.Now())
	}
	return s, ok
}

// Close removes and shuts down the session with id.
func (m *Manager) Close(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return false
	}
	s.Controller.Close()
	if m.metrics != nil {
		m.metrics.SessionClosed(context.Background())
	}
	m.logger.Info("editor session closed", "session_id", id)
	return true
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Reap closes sessions idle for longer than ttl and returns how many.
func (m *Manager) Reap(ttl time.Duration) int {
	cutoff := m.clock.Now().Add(-ttl)
	var stale []string
	m.mu.RLock()
	for id, s := range m.sessions {
		if s.LastSeen().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	m.mu.RUnlock()

	n := 0
	for _, id := range stale {
		if m.Close(id) {
			n++
		}
	}
	return n
}

// Run reaps idle sessions every interval until ctx is done, then closes
// everything that is left.
func (m *Manager) Run(ctx context.Context, ttl, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.CloseAll()
			return nil
		case <-ticker.C:
			if n := m.Reap(ttl); n > 0 {
				m.logger.Info("reaped idle editor sessions", "count", n)
			}
		}
	}
}

// CloseAll shuts down every session.
func (m *Manager) CloseAll() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	for _, id := range ids {
		m.Close(id)
	}
}
