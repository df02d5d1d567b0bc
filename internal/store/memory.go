// Package store provides storage backends for ScriptPipe.
//
// This file implements an in-memory store used in tests and when no DSN is
// configured.
package store

import (
	"sync"

	"github.com/BTreeMap/ScriptPipe/internal/models"
)

// InMemoryStore keeps archived scripts in memory.
type InMemoryStore struct {
	mu      sync.Mutex
	scripts []models.ScriptRecord
	nextID  int64
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{nextID: 1}
}

// SaveScript archives a completed script.
func (s *InMemoryStore) SaveScript(record models.ScriptRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record.ID = s.nextID
	s.nextID++
	s.scripts = append(s.scripts, record)
	return nil
}

// ListScripts returns archived scripts, newest first.
func (s *InMemoryStore) ListScripts() ([]models.ScriptRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ScriptRecord, len(s.scripts))
	for i, record := range s.scripts {
		out[len(s.scripts)-1-i] = record
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
