package record

import (
	"sort"
	"sync"
)

// Change is a single write against a Store.
type Change struct {
	Key    string
	Value  string
	Delete bool
}

// Store is the backing store shared by a feed record and all of its item records.
// Apply must be atomic: either every change is persisted or none is.
type Store interface {
	Get(key string) (string, bool, error)
	Keys() ([]string, error)
	Apply(changes []Change) error
	Close() error
}

// MemoryStore keeps everything in a map. Used by tests and offline tooling.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]string

	// FailApply makes the next Apply calls return this error without writing.
	FailApply error
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

func (s *MemoryStore) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.data[key]
	return value, ok, nil
}

func (s *MemoryStore) Keys() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryStore) Apply(changes []Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailApply != nil {
		return s.FailApply
	}
	for _, c := range changes {
		if c.Delete {
			delete(s.data, c.Key)
		} else {
			s.data[c.Key] = c.Value
		}
	}
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// Len returns the number of stored keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
