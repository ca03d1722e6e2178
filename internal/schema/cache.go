package schema

import (
	"context"
	"sync"
	"time"

	"github.com/madison88admin/supplychain-app-sub002/internal/database"
)

// Cache stores table metadata keyed by the name the caller asked for.
// Implementations must be safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, table string) (*database.TableInfo, bool, error)
	Set(ctx context.Context, table string, info *database.TableInfo) error
	Delete(ctx context.Context, table string) error
}

// NopCache never stores anything.
type NopCache struct{}

func (NopCache) Get(context.Context, string) (*database.TableInfo, bool, error) {
	return nil, false, nil
}
func (NopCache) Set(context.Context, string, *database.TableInfo) error { return nil }
func (NopCache) Delete(context.Context, string) error                   { return nil }

// MemoryCache keeps entries in process memory until their TTL passes.
type MemoryCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	info    *database.TableInfo
	expires time.Time
}

// NewMemoryCache creates a MemoryCache. A ttl of zero or less keeps entries
// until they are deleted.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
}

func (m *MemoryCache) Get(_ context.Context, table string) (*database.TableInfo, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[table]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		m.mu.Lock()
		// Re-check: a concurrent Set may have refreshed the entry.
		if cur, ok := m.entries[table]; ok && cur.expires.Equal(e.expires) {
			delete(m.entries, table)
		}
		m.mu.Unlock()
		return nil, false, nil
	}
	return e.info, true, nil
}

func (m *MemoryCache) Set(_ context.Context, table string, info *database.TableInfo) error {
	var expires time.Time
	if m.ttl > 0 {
		expires = m.now().Add(m.ttl)
	}
	m.mu.Lock()
	m.entries[table] = memoryEntry{info: info, expires: expires}
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache) Delete(_ context.Context, table string) error {
	m.mu.Lock()
	delete(m.entries, table)
	m.mu.Unlock()
	return nil
}

// Len reports the number of stored entries, expired or not.
func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
