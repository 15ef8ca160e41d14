package coretools

import "sync"

// ConfigStore is a thread-safe key-value store backing the
// configuration tools. Seeded values typically come from the loaded
// application config; tool writes stay in memory for the process
// lifetime.
type ConfigStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewConfigStore creates a store seeded with the given values.
func NewConfigStore(seed map[string]string) *ConfigStore {
	values := make(map[string]string, len(seed))
	for k, v := range seed {
		values[k] = v
	}
	return &ConfigStore{values: values}
}

// Get returns the value for a key and whether it exists.
func (s *ConfigStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.values[key]
	return value, ok
}

// Set stores a value.
func (s *ConfigStore) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
}

// Keys returns all keys in sorted order.
func (s *ConfigStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return sortedKeys(s.values)
}
