// Package cache provides a small TTL cache abstraction used for webhook
// deduplication and other short-lived lookups. Two implementations are
// provided: an in-process map for single-node deployments and a Redis-backed
// store for deployments where several instances ingest callbacks.
package cache

import (
	"context"
	"sync"
	"time"
)

// TTLCache is the injectable cache contract: get/set/invalidate with a
// per-entry time to live.
type TTLCache interface {
	// Get returns the value for key and whether it was present and unexpired.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key for ttl.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Invalidate removes key if present.
	Invalidate(ctx context.Context, key string) error
}

// Memory is an in-process TTLCache. Expired entries are dropped lazily on
// read and swept opportunistically on write once the map grows.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// sweepThreshold is the entry count past which Set performs a full sweep of
// expired entries.
const sweepThreshold = 4096

// NewMemory returns an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry), Now: time.Now}
}

// Get implements TTLCache.
func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return "", false, nil
	}
	if m.Now().After(e.expiresAt) {
		delete(m.entries, key)
		return "", false, nil
	}
	return e.value, true, nil
}

// Set implements TTLCache.
func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.Now()
	if len(m.entries) >= sweepThreshold {
		for k, e := range m.entries {
			if now.After(e.expiresAt) {
				delete(m.entries, k)
			}
		}
	}
	m.entries[key] = memoryEntry{value: value, expiresAt: now.Add(ttl)}
	return nil
}

// Invalidate implements TTLCache.
func (m *Memory) Invalidate(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}
