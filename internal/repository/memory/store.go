package memory

import (
	"encoding/json"
	"sort"
	"sync"
)

// Store is an in-memory implementation of the collection store
type Store struct {
	mu          sync.RWMutex
	collections map[string]json.RawMessage
}

// NewStore creates a new in-memory collection store
func NewStore() *Store {
	return &Store{
		collections: make(map[string]json.RawMessage),
	}
}

// Get returns a copy of the payload, or nil when absent
func (s *Store) Get(name string) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payload, ok := s.collections[name]
	if !ok {
		return nil, nil
	}
	return append(json.RawMessage(nil), payload...), nil
}

// Set replaces a collection
func (s *Store) Set(name string, payload json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.collections[name] = append(json.RawMessage(nil), payload...)
	return nil
}

// Update applies fn under the write lock
func (s *Store) Update(name string, fn func(current json.RawMessage) (json.RawMessage, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current json.RawMessage
	if payload, ok := s.collections[name]; ok {
		current = append(json.RawMessage(nil), payload...)
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	if next != nil {
		s.collections[name] = append(json.RawMessage(nil), next...)
	}
	return nil
}

// Delete removes a collection
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.collections, name)
	return nil
}

// Names lists stored collections
func (s *Store) Names() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
