package repository

import "errors"

// Repository errors
var (
	// ErrNotFound indicates the requested entity was not found.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate indicates a unique constraint was violated.
	ErrDuplicate = errors.New("duplicate entity")

	// ErrReferenced indicates a foreign key constraint blocked the operation.
	ErrReferenced = errors.New("entity is referenced")
)

// Cache errors
var (
	// ErrCacheMiss indicates the key was not found in cache.
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheUnavailable indicates the cache is unavailable.
	ErrCacheUnavailable = errors.New("cache unavailable")
)
