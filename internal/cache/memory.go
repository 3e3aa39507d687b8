package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

type entry struct {
	raw       []byte
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Stats reports memory cache usage.
type Stats struct {
	Hits   int64
	Misses int64
	Size   int
}

// Memory is an in-process Store. Expired entries are dropped when read.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time

	hits   atomic.Int64
	misses atomic.Int64
}

// NewMemory creates an empty memory cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]entry), now: time.Now}
}

// Save implements Store.
func (m *Memory) Save(_ context.Context, key string, value any, ttl time.Duration) error {
	raw, err := encode(value)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}
	e := entry{raw: raw}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
	return nil
}

// Load implements Store.
func (m *Memory) Load(_ context.Context, key string, dest any) error {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()

	if ok && e.expired(m.now()) {
		m.mu.Lock()
		if current, still := m.entries[key]; still && current.expired(m.now()) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		ok = false
	}
	if !ok {
		m.misses.Add(1)
		return ErrNotFound
	}
	m.hits.Add(1)
	return decode(e.raw, dest)
}

// Destroy implements Store.
func (m *Memory) Destroy(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return false, nil
	}
	delete(m.entries, key)
	return !e.expired(m.now()), nil
}

// Stats returns hit and miss counters and the number of stored entries.
func (m *Memory) Stats() Stats {
	m.mu.RLock()
	size := len(m.entries)
	m.mu.RUnlock()
	return Stats{Hits: m.hits.Load(), Misses: m.misses.Load(), Size: size}
}

var _ Store = (*Memory)(nil)
