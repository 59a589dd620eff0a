// Package memory implements the storage ports in process memory. It backs
// the development profile and tests; nothing survives a restart.
package memory

import (
	"context"
	"sync"
)

// KV is an in-memory string key-value store.
type KV struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewKV returns an empty KV.
func NewKV() *KV {
	return &KV{data: make(map[string]string)}
}

// Get returns the value stored under key.
func (s *KV) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok, nil
}

// Set stores value under key.
func (s *KV) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

// Len returns the number of stored keys.
func (s *KV) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
