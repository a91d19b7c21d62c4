// Package repository defines data access interfaces for Bodleian Archive.
package repository

import (
	"context"
	"strconv"
	"time"
)

// Cache defines the interface for caching operations. The archive uses it
// for the read-mostly role/permission lookups that back every capability
// check. Implementations: in-memory (single node) or Redis (distributed).
type Cache interface {
	// Get retrieves a value by key.
	// Returns ErrCacheMiss if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with an optional TTL.
	// If ttl is 0, the value doesn't expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value by key.
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists.
	Exists(ctx context.Context, key string) (bool, error)
}

// CacheKeys provides cache key generation for common lookups.
var CacheKeys = cacheKeys{}

type cacheKeys struct{}

// Permission returns the cache key for a role's permission record.
func (cacheKeys) Permission(roleID int64) string {
	return "perm:role:" + strconv.FormatInt(roleID, 10)
}

// User returns the cache key for a user record.
func (cacheKeys) User(userID int64) string {
	return "user:" + strconv.FormatInt(userID, 10)
}
