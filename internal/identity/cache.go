package identity

import (
	"context"
	"sync"
	"time"
)

// cached holds one resolved identity with its expiry.
type cached struct {
	identity  Identity
	expiresAt time.Time
}

func (c *cached) expired() bool {
	return time.Now().After(c.expiresAt)
}

// CachingResolver wraps a Resolver with a TTL cache. Only successful
// resolutions are cached: failures stay live so a recovered identity
// service is picked up immediately and fail-closed denials stay short.
type CachingResolver struct {
	inner Resolver
	ttl   time.Duration

	mu      sync.RWMutex
	entries map[string]*cached
}

// NewCachingResolver wraps inner with a TTL cache. A non-positive ttl
// disables caching entirely.
func NewCachingResolver(inner Resolver, ttl time.Duration) *CachingResolver {
	return &CachingResolver{
		inner:   inner,
		ttl:     ttl,
		entries: make(map[string]*cached),
	}
}

// Resolve implements Resolver.
func (c *CachingResolver) Resolve(ctx context.Context, userID string) (*Identity, error) {
	if c.ttl > 0 {
		c.mu.RLock()
		e, ok := c.entries[userID]
		c.mu.RUnlock()
		if ok && !e.expired() {
			id := e.identity
			return &id, nil
		}
	}

	id, err := c.inner.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}

	if c.ttl > 0 {
		c.mu.Lock()
		c.entries[userID] = &cached{identity: *id, expiresAt: time.Now().Add(c.ttl)}
		c.mu.Unlock()
	}
	return id, nil
}

// Evict removes all expired entries and returns how many were dropped.
func (c *CachingResolver) Evict() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if e.expired() {
			delete(c.entries, k)
			n++
		}
	}
	return n
}
