package store

import (
	"sync"

	"github.com/heysubinoy/pyazgate/pkg/kv"
)

// MemStore is an in-memory implementation of the kv.Store interface.
// Every operation holds mu exclusively, so at most one caller observes or
// mutates the map at a time.
type MemStore struct {
	mu   sync.Mutex
	data map[string]string
}

// Compile-time check to ensure MemStore implements kv.Store.
var _ kv.Store = (*MemStore)(nil)

// NewMemStore creates and returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		data: make(map[string]string),
	}
}

// Get retrieves a value by key from the store.
// Returns the value and true if found, empty string and false otherwise.
func (s *MemStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	val, ok := s.data[key]
	return val, ok
}

// Set stores a key-value pair in the store.
// Always returns nil for in-memory operations.
func (s *MemStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = value
	return nil
}

// Len returns the number of entries currently held.
func (s *MemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.data)
}
