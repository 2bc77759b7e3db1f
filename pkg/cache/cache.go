// Package cache is an in-memory TTL cache for the raw objects the resolver fetches over the
// network: DID documents and LinkedVerifiablePresentation bodies. It exists to keep repeated
// trust resolutions for the same DID from re-fetching the same bytes within one object TTL.
package cache

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Entry is one cached object: the decoded bytes plus when they were fetched.
type Entry struct {
	Body      []byte
	FetchedAt time.Time
}

// ObjectCache caches DID documents and VP bodies, keyed by their source URL or DID.
type ObjectCache struct {
	cache *ttlcache.Cache[string, *Entry]
	ttl   time.Duration
}

// New creates and starts an ObjectCache with the given TTL.
func New(ttl time.Duration) *ObjectCache {
	cache := ttlcache.New[string, *Entry](
		ttlcache.WithTTL[string, *Entry](ttl),
	)

	go cache.Start()

	return &ObjectCache{cache: cache, ttl: ttl}
}

// Get returns the cached entry for key, or nil if absent or expired.
func (c *ObjectCache) Get(key string) *Entry {
	item := c.cache.Get(key)
	if item == nil {
		return nil
	}
	return item.Value()
}

// Set stores body under key using the cache's default TTL.
func (c *ObjectCache) Set(key string, body []byte) {
	c.cache.Set(key, &Entry{Body: body, FetchedAt: time.Now()}, ttlcache.DefaultTTL)
}

// Invalidate removes key from the cache, forcing the next Get to miss.
func (c *ObjectCache) Invalidate(key string) {
	c.cache.Delete(key)
}

// Len returns the number of objects currently cached.
func (c *ObjectCache) Len() int {
	return c.cache.Len()
}

// Stop stops the cache's background expiration loop.
func (c *ObjectCache) Stop() {
	c.cache.Stop()
}
