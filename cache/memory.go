// Package cache provides caching implementations for gatehouse access
// decisions.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xraph/gatehouse"
)

// Compile-time interface check.
var _ gatehouse.Cache = (*Memory)(nil)

// Memory is an in-memory cache with TTL-based expiration. Only settled
// decisions reach it (the engine never caches pending), and identity
// keys rotate on every identity change, so invalidation plus TTL keep
// superseded identities out.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*entry
	ttl     time.Duration
	maxSize int
}

type entry struct {
	dec       gatehouse.AccessDecision
	expiresAt time.Time
}

// MemoryOption configures the memory cache.
type MemoryOption func(*Memory)

// WithTTL sets the cache entry time-to-live.
func WithTTL(ttl time.Duration) MemoryOption {
	return func(m *Memory) { m.ttl = ttl }
}

// WithMaxSize sets the maximum number of cache entries.
func WithMaxSize(n int) MemoryOption {
	return func(m *Memory) { m.maxSize = n }
}

// NewMemory creates a new in-memory decision cache.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries: make(map[string]*entry),
		ttl:     5 * time.Minute,
		maxSize: 10000,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns a cached decision.
func (m *Memory) Get(_ context.Context, identityKey string, req gatehouse.AccessRequest) (gatehouse.AccessDecision, bool) {
	key := cacheKey(identityKey, req)
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return gatehouse.AccessDecision{}, false
	}
	if time.Now().After(e.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return gatehouse.AccessDecision{}, false
	}
	return e.dec, true
}

// Set stores a decision in the cache.
func (m *Memory) Set(_ context.Context, identityKey string, req gatehouse.AccessRequest, dec gatehouse.AccessDecision) {
	key := cacheKey(identityKey, req)
	m.mu.Lock()
	defer m.mu.Unlock()

	// Evict if at capacity.
	if len(m.entries) >= m.maxSize {
		m.evictExpired()
		if len(m.entries) >= m.maxSize {
			// Evict oldest entry.
			m.evictOne()
		}
	}

	m.entries[key] = &entry{
		dec:       dec,
		expiresAt: time.Now().Add(m.ttl),
	}
}

// InvalidateIdentity removes all cached decisions for an identity key.
func (m *Memory) InvalidateIdentity(_ context.Context, identityKey string) {
	prefix := identityKey + "|"
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.entries {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			delete(m.entries, k)
		}
	}
}

func cacheKey(identityKey string, req gatehouse.AccessRequest) string {
	return fmt.Sprintf("%s|%s|%s|%s|%t|%t",
		identityKey,
		req.Role,
		req.Permission,
		req.Feature,
		req.ReadOnlyOK,
		req.AllowDegraded,
	)
}

// evictExpired removes all expired entries. Must hold write lock.
func (m *Memory) evictExpired() {
	now := time.Now()
	for k, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, k)
		}
	}
}

// evictOne removes one arbitrary entry. Must hold write lock.
func (m *Memory) evictOne() {
	for k := range m.entries {
		delete(m.entries, k)
		return
	}
}
