package session

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/synx/internal/logging"
	"github.com/aretw0/synx/internal/runtime"
	"github.com/aretw0/synx/pkg/domain"
)

const (
	// DefaultMaxCallbacks bounds pending callback registrations per session.
	DefaultMaxCallbacks = 1024
	// DefaultMaxHandles bounds the handles a single session may hold.
	DefaultMaxHandles = 1 << 16
)

// Manager owns the open sessions of a process.
type Manager struct {
	store *runtime.Store

	mu       sync.Mutex
	sessions map[string]*Session

	maxCallbacks int
	maxHandles   int
	logger       *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMaxCallbacks bounds pending callback registrations per session.
func WithMaxCallbacks(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxCallbacks = n
		}
	}
}

// WithMaxHandles bounds the number of handles per session.
func WithMaxHandles(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxHandles = n
		}
	}
}

// NewManager creates a session manager over the given object store.
func NewManager(store *runtime.Store, opts ...Option) *Manager {
	m := &Manager{
		store:        store,
		sessions:     make(map[string]*Session),
		maxCallbacks: DefaultMaxCallbacks,
		maxHandles:   DefaultMaxHandles,
		logger:       logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open creates a session for a domain.
func (m *Manager) Open(ctx context.Context, d domain.DomainID) (*Session, error) {
	s := newSession(uuid.NewString(), d, m)

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	m.logger.Debug("session opened", "session_id", s.id, "domain", d)
	return s, nil
}

// Get returns an open session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrNoEnt)
	}
	return s, nil
}

// Pin returns an open session and keeps it from being torn down until the
// returned release function is called.
func (m *Manager) Pin(id string) (*Session, func(), error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return nil, nil, fmt.Errorf("session %s: %w", id, domain.ErrNoEnt)
	}
	s.mu.Lock()
	s.pins++
	s.mu.Unlock()
	m.mu.Unlock()

	var once sync.Once
	return s, func() { once.Do(func() { s.unpin() }) }, nil
}

// Close removes the session and tears it down once no operation pins it.
func (m *Manager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("session %s: %w", id, domain.ErrNoEnt)
	}

	s.mu.Lock()
	s.closed = true
	idle := s.pins == 0
	s.mu.Unlock()
	if idle {
		s.teardown(context.WithoutCancel(ctx))
	}
	m.logger.Debug("session closed", "session_id", id, "deferred", !idle)
	return nil
}

// CloseAll closes every open session.
func (m *Manager) CloseAll(ctx context.Context) {
	for _, info := range m.List() {
		_ = m.Close(ctx, info.ID)
	}
}

// Info summarizes an open session.
type Info struct {
	ID        string          `json:"id"`
	Domain    domain.DomainID `json:"domain"`
	Handles   int             `json:"handles"`
	Callbacks int             `json:"callbacks"`
	OpenedAt  time.Time       `json:"opened_at"`
}

// List describes the open sessions ordered by ID.
func (m *Manager) List() []Info {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	out := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Info())
	}
	slices.SortFunc(out, func(a, b Info) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
