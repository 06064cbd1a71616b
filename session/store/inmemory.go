package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/docpanel/docpanel/errors"
	"github.com/docpanel/docpanel/session"
)

// InMemoryStore keeps session records in a process-local map. It is the
// default backend; durable backends exist as optional adapters.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*session.Record
}

// NewInMemoryStore creates an empty in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]*session.Record)}
}

// Save persists a session record.
func (s *InMemoryStore) Save(_ context.Context, record *session.Record) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("%w: session record cannot be nil or unidentified", errors.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ID] = record
	return nil
}

// Load retrieves a session record by id.
func (s *InMemoryStore) Load(_ context.Context, id string) (*session.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, errors.ErrNotFound)
	}
	return record, nil
}

// Delete removes a session record.
func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

// List returns all stored session ids.
func (s *InMemoryStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	return ids, nil
}

// Exists reports whether a session record is present.
func (s *InMemoryStore) Exists(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[id]
	return ok, nil
}
