package geo

import (
	"context"
	"sync"
	"time"
)

const maxCacheEntries = 4096

type cacheEntry struct {
	location  *Location
	fetchedAt time.Time
}

// CachedResolver wraps a Resolver with a short-lived per-IP cache so an
// enrichment burst for the same address performs one real lookup.
// Misses are cached too.
type CachedResolver struct {
	inner Resolver
	ttl   time.Duration

	mu      sync.Mutex
	entries map[string]cacheEntry
	now     func() time.Time
}

func NewCachedResolver(inner Resolver, ttl time.Duration) *CachedResolver {
	return &CachedResolver{
		inner:   inner,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func (c *CachedResolver) Resolve(ctx context.Context, ip string) (*Location, error) {
	now := c.now()

	c.mu.Lock()
	if entry, ok := c.entries[ip]; ok && now.Sub(entry.fetchedAt) < c.ttl {
		c.mu.Unlock()
		return entry.location, nil
	}
	c.mu.Unlock()

	loc, err := c.inner.Resolve(ctx, ip)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if len(c.entries) >= maxCacheEntries {
		c.evictExpired(now)
	}
	c.entries[ip] = cacheEntry{location: loc, fetchedAt: now}
	c.mu.Unlock()

	return loc, nil
}

// evictExpired drops stale entries; if everything is fresh the whole map
// is reset rather than growing without bound. Caller holds the lock.
func (c *CachedResolver) evictExpired(now time.Time) {
	for ip, entry := range c.entries {
		if now.Sub(entry.fetchedAt) >= c.ttl {
			delete(c.entries, ip)
		}
	}
	if len(c.entries) >= maxCacheEntries {
		c.entries = make(map[string]cacheEntry)
	}
}

func (c *CachedResolver) Close() error {
	return c.inner.Close()
}
