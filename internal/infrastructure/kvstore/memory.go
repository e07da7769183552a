// Package kvstore provides persistence backends for the state
// manager's identity fields: an in-memory map, a JSON file, and a
// Postgres table for server-hosted deployments.
package kvstore

import "sync"

// Memory is a map-backed store. Used in tests and whenever no durable
// backend is configured.
type Memory struct {
	mu      sync.Mutex
	strings map[string]string
	ints    map[string]int64
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		strings: make(map[string]string),
		ints:    make(map[string]int64),
	}
}

func (m *Memory) GetString(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.strings[key], nil
}

func (m *Memory) SetString(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strings[key] = value
	return nil
}

func (m *Memory) GetInt64(key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ints[key], nil
}

func (m *Memory) SetInt64(key string, value int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ints[key] = value
	return nil
}

func (m *Memory) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.strings, key)
	delete(m.ints, key)
	return nil
}
