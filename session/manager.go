package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/docpanel/docpanel/errors"
	"github.com/docpanel/docpanel/pkg/logging"
	"github.com/google/uuid"
)

// Store is the persistence interface for session snapshots. The in-memory
// implementation is the default; durable backends are optional adapters and
// the core never depends on their presence.
type Store interface {
	Save(ctx context.Context, record *Record) error
	Load(ctx context.Context, id string) (*Record, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]string, error)
	Exists(ctx context.Context, id string) (bool, error)
}

// Manager owns session lifecycle over a Store. Live sessions are kept in
// memory; the store holds snapshots for rehydration.
type Manager struct {
	mu       sync.RWMutex
	store    Store
	sessions map[string]*Session
	logger   *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithStore sets the persistence backend.
func WithStore(s Store) Option {
	return func(m *Manager) { m.store = s }
}

// WithLogger overrides the logger used by the manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a session manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logging.WithComponent("session_manager")
	}
	return m
}

// Create builds a new session over the given documents and team, assigns it
// an id and persists the initial snapshot.
func (m *Manager) Create(ctx context.Context, documentIDs []string, members []TeamMember) (*Session, error) {
	sess := New(uuid.NewString(), documentIDs, members)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.persistLocked(ctx, sess); err != nil {
		m.logger.Error("create session persist failed", "id", sess.ID, "error", err)
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	m.sessions[sess.ID] = sess

	m.logger.Info("session created", "id", sess.ID, "team_size", len(members), "documents", len(documentIDs))
	return sess, nil
}

// Get retrieves a live session, rehydrating it from the store if needed.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return sess, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[id]; ok {
		return sess, nil
	}
	if m.store == nil {
		return nil, fmt.Errorf("session %s: %w", id, errors.ErrNotFound)
	}

	record, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	sess = FromRecord(record)
	m.sessions[id] = sess
	m.logger.Info("session rehydrated", "id", id, "turns", sess.Log.Len())
	return sess, nil
}

// Save persists the current snapshot of a session.
func (m *Manager) Save(ctx context.Context, sess *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.persistLocked(ctx, sess); err != nil {
		m.logger.Error("save session failed", "id", sess.ID, "error", err)
		return err
	}
	return nil
}

// Delete removes a session from memory and from the store.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, id)
	if m.store == nil {
		return nil
	}
	if err := m.store.Delete(ctx, id); err != nil {
		m.logger.Error("delete session failed", "id", id, "error", err)
		return err
	}
	m.logger.Info("session deleted", "id", id)
	return nil
}

// List returns the ids of all known sessions.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	if m.store != nil {
		return m.store.List(ctx)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *Manager) persistLocked(ctx context.Context, sess *Session) error {
	if m.store == nil {
		return nil
	}
	return m.store.Save(ctx, sess.Snapshot())
}
