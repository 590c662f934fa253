package dashboard

import (
	"encoding/json"
	"sync"
)

// Store keeps the latest payload for every function code. A single mutex
// guards the whole map so GetAll and Snapshot always see one consistent state.
type Store struct {
	mu      sync.RWMutex
	entries map[string]json.RawMessage
}

// NewStore creates a store seeded with the given default entries.
func NewStore(defaults map[string]json.RawMessage) *Store {
	s := &Store{
		entries: make(map[string]json.RawMessage, len(defaults)),
	}
	for code, value := range defaults {
		s.entries[code] = cloneRaw(value)
	}
	return s
}

// Get returns the current payload for a function code.
func (s *Store) Get(code string) (json.RawMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[code]
	if !ok {
		return nil, false
	}
	return cloneRaw(v), true
}

// GetAll returns a copy of the full mapping.
func (s *Store) GetAll() map[string]json.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make(map[string]json.RawMessage, len(s.entries))
	for code, v := range s.entries {
		result[code] = cloneRaw(v)
	}
	return result
}

// Snapshot encodes the full mapping as one JSON object.
func (s *Store) Snapshot() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.Marshal(s.entries)
}

// Len reports the number of categories held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// set replaces the entry for code wholesale. Only Intake calls it.
func (s *Store) set(code string, value json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[code] = cloneRaw(value)
}

func cloneRaw(v json.RawMessage) json.RawMessage {
	if v == nil {
		return nil
	}
	c := make(json.RawMessage, len(v))
	copy(c, v)
	return c
}
