// Package cache provides response caches for the registry client: an
// in-process map for single-binary use and a Redis adapter for
// deployments that share conditional-GET state between processes.
package cache

import (
	"context"
	"sync"

	"github.com/git-pkgs/npmjs/client"
)

// Memory is an in-process cache. The zero value is not usable; use
// NewMemory.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]client.CachedResponse
}

var _ client.Cache = (*Memory)(nil)

// NewMemory returns an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]client.CachedResponse)}
}

// Get returns the stored response for key, or (nil, nil) on a miss. The
// body is copied so callers cannot mutate the stored entry.
func (m *Memory) Get(_ context.Context, key string) (*client.CachedResponse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	return &client.CachedResponse{
		ETag: entry.ETag,
		Body: append([]byte(nil), entry.Body...),
	}, nil
}

// Set stores the response under key, replacing any previous entry.
func (m *Memory) Set(_ context.Context, key string, res *client.CachedResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = client.CachedResponse{
		ETag: res.ETag,
		Body: append([]byte(nil), res.Body...),
	}
	return nil
}

// Len reports how many responses are stored.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
