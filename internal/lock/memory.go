package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLocker implements Locker with process-local state. It covers
// single-instance deployments: capacity locks and the session sweep lock
// only need to coordinate goroutines within one server process.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]memoryLock
}

type memoryLock struct {
	token     string
	expiresAt time.Time
}

// NewMemoryLocker creates a new in-memory locker. A background goroutine
// drops expired entries so long-lived processes don't accumulate keys.
func NewMemoryLocker() *MemoryLocker {
	ml := &MemoryLocker{
		locks: make(map[string]memoryLock),
	}
	go ml.evictLoop()
	return ml
}

func (m *MemoryLocker) evictLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.mu.Lock()
		now := time.Now()
		for key, l := range m.locks {
			if now.After(l.expiresAt) {
				delete(m.locks, key)
			}
		}
		m.mu.Unlock()
	}
}

// Acquire attempts to take the lock. An expired entry counts as free.
func (m *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if l, exists := m.locks[key]; exists && now.Before(l.expiresAt) {
		return false, nil
	}

	m.locks[key] = memoryLock{
		token:     uuid.NewString(),
		expiresAt: now.Add(ttl),
	}
	return true, nil
}

// AcquireWithRetry attempts to acquire the lock, retrying up to maxRetries
// times with retryDelay between attempts.
func (m *MemoryLocker) AcquireWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (bool, error) {
	for attempt := 0; ; attempt++ {
		acquired, err := m.Acquire(ctx, key, ttl)
		if acquired || err != nil {
			return acquired, err
		}
		if attempt >= maxRetries {
			return false, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(retryDelay):
		}
	}
}

// Release frees the lock. Returns false if it wasn't held.
func (m *MemoryLocker) Release(ctx context.Context, key string) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.locks[key]; !exists {
		return false, nil
	}
	delete(m.locks, key)
	return true, nil
}

// Extend pushes out the expiry of a held lock.
func (m *MemoryLocker) Extend(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	l, exists := m.locks[key]
	if !exists || time.Now().After(l.expiresAt) {
		delete(m.locks, key)
		return false, nil
	}

	l.expiresAt = time.Now().Add(ttl)
	m.locks[key] = l
	return true, nil
}

// IsHeld reports whether the lock is currently held and unexpired.
func (m *MemoryLocker) IsHeld(ctx context.Context, key string) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	l, exists := m.locks[key]
	if !exists {
		return false, nil
	}
	if time.Now().After(l.expiresAt) {
		delete(m.locks, key)
		return false, nil
	}
	return true, nil
}

var _ Locker = (*MemoryLocker)(nil)
