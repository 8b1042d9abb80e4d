package memory

import (
	"context"
	"sync"
	"time"
)

// IdempotencyCache implements ports.IdempotencyCache in process memory.
// It stands in for the Redis cache when Redis is disabled.
type IdempotencyCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	claims  map[string]time.Time
	now     func() time.Time

	lastSweep time.Time
}

// sweepInterval bounds how often Set and Claim scan for expired keys.
const sweepInterval = time.Minute

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

func NewIdempotencyCache() *IdempotencyCache {
	return &IdempotencyCache{
		entries: make(map[string]cacheEntry),
		claims:  make(map[string]time.Time),
		now:     time.Now,
	}
}

func (c *IdempotencyCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, nil
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return nil, nil
	}
	return append([]byte(nil), e.value...), nil
}

func (c *IdempotencyCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.sweepLocked(now)
	c.entries[key] = cacheEntry{value: append([]byte(nil), value...), expiresAt: now.Add(ttl)}
	return nil
}

func (c *IdempotencyCache) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.sweepLocked(now)
	if exp, ok := c.claims[key]; ok && now.Before(exp) {
		return false, nil
	}
	c.claims[key] = now.Add(ttl)
	return true, nil
}

func (c *IdempotencyCache) Release(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.claims, key)
	return nil
}

// sweepLocked drops expired entries and claims. Callers hold c.mu.
func (c *IdempotencyCache) sweepLocked(now time.Time) {
	if now.Sub(c.lastSweep) < sweepInterval {
		return
	}
	c.lastSweep = now
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
		}
	}
	for key, exp := range c.claims {
		if !now.Before(exp) {
			delete(c.claims, key)
		}
	}
}
