// Package lock provides the locking abstraction behind capacity accounting
// and background jobs. Single-node deployments use in-memory locks; with
// Redis enabled the same keys coordinate multiple server instances.
package lock

import (
	"context"
	"strconv"
	"time"
)

// Locker is a TTL-based advisory lock. Every lock expires on its own, so a
// crashed holder can never wedge capacity updates permanently.
type Locker interface {
	// Acquire attempts to take the lock. Returns false without error when
	// another holder has it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// AcquireWithRetry retries Acquire up to maxRetries times with
	// retryDelay between attempts.
	AcquireWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (bool, error)

	// Release frees the lock. Returns false if it wasn't held.
	Release(ctx context.Context, key string) (bool, error)

	// Extend pushes out the expiry of a held lock. Returns false if the
	// lock is no longer held.
	Extend(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsHeld reports whether the lock is currently held.
	IsHeld(ctx context.Context, key string) (bool, error)
}

// Lock binds a Locker to one key and tracks whether this instance holds it,
// so Release and Extend become no-ops once the lock is lost.
type Lock struct {
	locker Locker
	key    string
	held   bool
}

// NewLock creates a new Lock instance.
func NewLock(locker Locker, key string) *Lock {
	return &Lock{
		locker: locker,
		key:    key,
		held:   false,
	}
}

// Acquire attempts to acquire the lock.
func (l *Lock) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	acquired, err := l.locker.Acquire(ctx, l.key, ttl)
	if err != nil {
		return false, err
	}
	l.held = acquired
	return acquired, nil
}

// Release releases the lock.
func (l *Lock) Release(ctx context.Context) error {
	if !l.held {
		return nil
	}
	_, err := l.locker.Release(ctx, l.key)
	l.held = false
	return err
}

// Extend extends the lock TTL.
func (l *Lock) Extend(ctx context.Context, ttl time.Duration) error {
	if !l.held {
		return nil
	}
	extended, err := l.locker.Extend(ctx, l.key, ttl)
	if err != nil {
		return err
	}
	if !extended {
		l.held = false
	}
	return nil
}

// IsHeld returns whether the lock is held.
func (l *Lock) IsHeld() bool {
	return l.held
}

// =============================================================================
// Common Lock Keys
// =============================================================================

// Keys provides lock key generation for common scenarios.
var Keys = lockKeys{}

type lockKeys struct{}

// Location returns a lock key serializing capacity updates for a
// storage location. All document mutations that change a location's
// committed usage must hold this lock.
func (lockKeys) Location(locationID int64) string {
	return "lock:location:" + strconv.FormatInt(locationID, 10)
}

// SessionSweep returns a lock key for the expired-session cleanup job.
func (lockKeys) SessionSweep() string {
	return "lock:sweep:sessions"
}
