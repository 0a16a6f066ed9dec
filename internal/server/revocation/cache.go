package revocation

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/server/auth"
)

const defaultCacheEntries = 100_000

// Cache is a read-through wrapper around a shared store. A "revoked" answer
// is kept until the token's exp because revocation never reverts. A "not
// revoked" answer is served for at most staleness, which bounds how long a
// revocation made on another instance can go unnoticed here.
type Cache struct {
	next       auth.RevocationStore
	staleness  time.Duration
	maxEntries int
	now        func() time.Time

	mu      sync.RWMutex
	revoked map[string]time.Time // jti -> until
	clear   map[string]time.Time // jti -> checked at
}

type CacheOption func(*Cache)

func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

func WithMaxEntries(n int) CacheOption {
	return func(c *Cache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// NewCache wraps next. A zero staleness disables caching of negative
// answers entirely; revoked answers are still remembered.
func NewCache(next auth.RevocationStore, staleness time.Duration, opts ...CacheOption) *Cache {
	c := &Cache{
		next:       next,
		staleness:  staleness,
		maxEntries: defaultCacheEntries,
		now:        time.Now,
		revoked:    make(map[string]time.Time),
		clear:      make(map[string]time.Time),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Cache) Revoke(ctx context.Context, jti string, reason auth.Reason, until time.Time) (bool, error) {
	first, err := c.next.Revoke(ctx, jti, reason, until)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	delete(c.clear, jti)
	c.rememberRevokedLocked(jti, until)
	c.mu.Unlock()

	return first, nil
}

func (c *Cache) IsRevoked(ctx context.Context, jti string) (bool, error) {
	now := c.now()

	c.mu.RLock()
	_, revoked := c.revoked[jti]
	checked, seen := c.clear[jti]
	c.mu.RUnlock()

	if revoked {
		return true, nil
	}
	if seen && now.Sub(checked) < c.staleness {
		return false, nil
	}

	revoked, err := c.next.IsRevoked(ctx, jti)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if revoked {
		delete(c.clear, jti)
		// The backing store does not tell us the exp; keep the answer for
		// one staleness window past now at minimum.
		c.rememberRevokedLocked(jti, now.Add(c.staleness))
		return true, nil
	}
	if c.staleness > 0 {
		if len(c.clear) >= c.maxEntries {
			c.sweepClearLocked(now)
		}
		if len(c.clear) < c.maxEntries {
			c.clear[jti] = now
		}
	}
	return false, nil
}

// PurgeExpired purges the backing store and drops local entries that can no
// longer matter.
func (c *Cache) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	n, err := c.next.PurgeExpired(ctx, now)

	c.mu.Lock()
	for jti, until := range c.revoked {
		if !until.After(now) {
			delete(c.revoked, jti)
		}
	}
	c.sweepClearLocked(now)
	c.mu.Unlock()

	return n, err
}

func (c *Cache) Unwrap() auth.RevocationStore { return c.next }

func (c *Cache) rememberRevokedLocked(jti string, until time.Time) {
	if prev, ok := c.revoked[jti]; ok && prev.After(until) {
		return
	}
	if len(c.revoked) >= c.maxEntries {
		return
	}
	c.revoked[jti] = until
}

func (c *Cache) sweepClearLocked(now time.Time) {
	for jti, checked := range c.clear {
		if now.Sub(checked) >= c.staleness {
			delete(c.clear, jti)
		}
	}
}
