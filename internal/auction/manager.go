package auction

import (
	"math/rand"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// NotifierFactory builds the presentation sink for a room's session.
type NotifierFactory func(room string) Notifier

// Manager keeps one session per chat room. Sessions are fully independent
// games; restart drops the old session and opens a fresh one.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	rules  Rules
	notify NotifierFactory
	clock  clockwork.Clock
	store  *Store
	repo   *Repository
	logger *zap.Logger
	seed   func() int64
}

type ManagerOption func(*Manager)

func WithClock(c clockwork.Clock) ManagerOption {
	return func(m *Manager) { m.clock = c }
}

func WithStore(s *Store) ManagerOption {
	return func(m *Manager) { m.store = s }
}

func WithRepository(r *Repository) ManagerOption {
	return func(m *Manager) { m.repo = r }
}

func WithLogger(l *zap.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// WithSeed overrides the per-session random seed source; tests pin it.
func WithSeed(fn func() int64) ManagerOption {
	return func(m *Manager) { m.seed = fn }
}

func NewManager(rules Rules, notify NotifierFactory, opts ...ManagerOption) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
		rules:    rules,
		notify:   notify,
		clock:    clockwork.NewRealClock(),
		logger:   zap.NewNop(),
		seed:     func() int64 { return time.Now().UnixNano() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns the room's session if one exists.
func (m *Manager) Get(room string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[room]
	return s, ok
}

// GetOrCreate returns the room's session, opening one on first use.
func (m *Manager) GetOrCreate(room string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[room]; ok {
		return s
	}
	s := m.open(room)
	m.sessions[room] = s
	return s
}

// Restart closes the room's session, dropping all state, and opens a new one.
func (m *Manager) Restart(room string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.sessions[room]; ok {
		old.Close()
		m.logger.Info("auction_restart", zap.String("room", room), zap.String("game_id", old.ID()))
	}
	s := m.open(room)
	m.sessions[room] = s
	return s
}

// CloseAll stops every session; used on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for room, s := range m.sessions {
		s.Close()
		delete(m.sessions, room)
	}
}

func (m *Manager) open(room string) *Session {
	var n Notifier
	if m.notify != nil {
		n = m.notify(room)
	}
	return NewSession(room, m.rules, Deps{
		Clock:    m.clock,
		Rand:     rand.New(rand.NewSource(m.seed())),
		Notifier: n,
		Store:    m.store,
		Repo:     m.repo,
		Logger:   m.logger,
	})
}
