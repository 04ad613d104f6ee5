// Package localstore provides the key-scoped local persistence used for guest
// carts, per-user cart caches, the session snapshot and sign-in preferences.
//
// Stores are pure byte maps. Typed access, format versioning and the bounded
// write retry live in Persister.
package localstore

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Store is a durable or process-scoped key/value map.
// Implementations must tolerate being cleared externally: a missing key is
// reported as found=false, never as an error.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error

	// Keys returns every stored key with the given prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Memory is a process-scoped Store. Its contents never survive a restart,
// which makes it the home of sessions the user asked not to remember.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// Get returns a copy of the stored value.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

// Set stores a copy of value under key.
func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	v := make([]byte, len(value))
	copy(v, value)
	m.mu.Lock()
	m.data[key] = v
	m.mu.Unlock()
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

// Keys lists keys with the given prefix.
func (m *Memory) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Clear drops every key, the same way a user clearing site data would.
func (m *Memory) Clear() {
	m.mu.Lock()
	m.data = make(map[string][]byte)
	m.mu.Unlock()
}

var _ Store = (*Memory)(nil)
