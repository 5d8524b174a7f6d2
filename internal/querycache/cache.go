// Package querycache holds collaborator API responses per browser session.
// Every entry belongs to exactly one session so that clearing a session's
// credential can drop everything fetched with it.
package querycache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sail-program/sail-gateway/internal/config"
)

// Entry is a cached upstream response.
type Entry struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// Cache stores entries per session.
type Cache interface {
	Get(ctx context.Context, sessionID, key string) (Entry, bool, error)
	Set(ctx context.Context, sessionID, key string, entry Entry) error
	// Invalidate drops every entry of the session.
	Invalidate(ctx context.Context, sessionID string) error
}

// New selects the cache implementation named by cfg.Driver.
func New(cfg config.CacheConfig, prefix string, client redis.UniversalClient) (Cache, error) {
	switch cfg.Driver {
	case config.StoreDriverMemory:
		return NewMemoryCache(cfg.TTL), nil
	case config.StoreDriverRedis:
		if client == nil {
			return nil, fmt.Errorf("query cache driver %q needs a redis client", cfg.Driver)
		}
		return NewRedisCache(client, prefix, cfg.TTL), nil
	default:
		return nil, fmt.Errorf("unknown query cache driver %q", cfg.Driver)
	}
}

type memoryEntry struct {
	entry     Entry
	expiresAt time.Time
}

// MemoryCache keeps entries in process memory.
type MemoryCache struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]map[string]memoryEntry
}

// NewMemoryCache builds a cache whose entries live for ttl (0 keeps them
// until invalidated).
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{ttl: ttl, now: time.Now, sessions: make(map[string]map[string]memoryEntry)}
}

func (m *MemoryCache) Get(_ context.Context, sessionID, key string) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[sessionID][key]
	if !ok {
		return Entry{}, false, nil
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.sessions[sessionID], key)
		return Entry{}, false, nil
	}
	return e.entry, true, nil
}

func (m *MemoryCache) Set(_ context.Context, sessionID, key string, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries, ok := m.sessions[sessionID]
	if !ok {
		entries = make(map[string]memoryEntry)
		m.sessions[sessionID] = entries
	}
	var expiresAt time.Time
	if m.ttl > 0 {
		expiresAt = m.now().Add(m.ttl)
	}
	entries[key] = memoryEntry{entry: entry, expiresAt: expiresAt}
	return nil
}

func (m *MemoryCache) Invalidate(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

// Len reports how many entries the session holds, expired ones included.
func (m *MemoryCache) Len(sessionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions[sessionID])
}
