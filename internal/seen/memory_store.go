package seen

import (
	"context"
	"sync"
)

// MemoryStore keeps the seen-set in process memory. Persist calls are counted
// so tests can assert checkpoint behaviour.
type MemoryStore struct {
	mu       sync.Mutex
	set      Set
	persists int
	loadErr  error
	writeErr error
}

// NewMemoryStore creates a store seeded with initial.
func NewMemoryStore(initial Set) *MemoryStore {
	if initial == nil {
		initial = NewSet()
	}
	return &MemoryStore{set: initial.Clone()}
}

// Load returns a copy of the stored set.
func (s *MemoryStore) Load(_ context.Context) (Set, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.set.Clone(), nil
}

// Persist replaces the stored set with a copy of set.
func (s *MemoryStore) Persist(_ context.Context, set Set) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.set = set.Clone()
	s.persists++
	return nil
}

// Snapshot returns the currently persisted set.
func (s *MemoryStore) Snapshot() Set {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set.Clone()
}

// Persists returns how many successful Persist calls were made.
func (s *MemoryStore) Persists() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persists
}

// FailLoad makes subsequent Load calls return err.
func (s *MemoryStore) FailLoad(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadErr = err
}

// FailPersist makes subsequent Persist calls return err; nil restores success.
func (s *MemoryStore) FailPersist(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}
