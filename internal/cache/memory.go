package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sanzolab/colorsync/internal/palette"
)

// Memory is an in-process Store guarded by a mutex. Each operation is a
// whole-value read or replace on a single key.
type Memory struct {
	mu      sync.Mutex
	ttl     time.Duration
	clock   palette.Clock
	entries map[string]Entry
}

// NewMemory builds a memory store with the given TTL. The TTL is an
// instance-level setting so tests can shrink it.
func NewMemory(ttl time.Duration, clock palette.Clock) *Memory {
	return &Memory{
		ttl:     ttl,
		clock:   clock,
		entries: make(map[string]Entry),
	}
}

// Put stores data under key, stamping it with the current time.
func (m *Memory) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = Entry{
		Data:     append([]byte(nil), data...),
		CachedAt: m.clock.Now(),
	}
	return nil
}

// Get returns the data for key, or a miss once the TTL has elapsed. Expired
// entries are purged on the way out.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if m.clock.Now().Sub(entry.CachedAt) >= m.ttl {
		delete(m.entries, key)
		return nil, false, nil
	}
	return append([]byte(nil), entry.Data...), true, nil
}

// Clear removes all entries.
func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]Entry)
	return nil
}

// Status reports the live (unexpired) entry count and keys.
func (m *Memory) Status(_ context.Context) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	keys := make([]string, 0, len(m.entries))
	for key, entry := range m.entries {
		if now.Sub(entry.CachedAt) >= m.ttl {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return Status{Entries: len(keys), Keys: keys}, nil
}
