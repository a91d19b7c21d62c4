// Package memory provides an in-memory implementation of repository.Cache.
// Bodleian uses it to hold resolved role permissions so authorization does
// not hit the database on every request.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/prn-tf/bodleian-archive/internal/repository"
)

// Cache is a process-local byte cache with per-entry TTLs. Entries are
// never shared across instances; stale reads are bounded by the TTL the
// caller chooses, not by any cross-node invalidation.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	done    chan struct{}
	once    sync.Once
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// NewCache creates a new in-memory cache and starts its eviction loop.
func NewCache() *Cache {
	c := &Cache{
		entries: make(map[string]entry),
		done:    make(chan struct{}),
	}
	go c.evictLoop()
	return c
}

func (c *Cache) evictLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for key, e := range c.entries {
				if e.expired(now) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		}
	}
}

// Stop terminates the eviction loop. Safe to call more than once.
func (c *Cache) Stop() {
	c.once.Do(func() { close(c.done) })
}

// Get retrieves a value by key. Expired and absent keys both report
// repository.ErrCacheMiss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || e.expired(time.Now()) {
		return nil, repository.ErrCacheMiss
	}

	// Callers get their own copy; cached bytes must stay immutable.
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

// Set stores a value. A non-positive ttl means the entry never expires.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	e := entry{value: stored}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}

	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	return nil
}

// Delete removes a key. Deleting an absent key is not an error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// Exists reports whether the key is present and unexpired.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	return ok && !e.expired(time.Now()), nil
}

var _ repository.Cache = (*Cache)(nil)
