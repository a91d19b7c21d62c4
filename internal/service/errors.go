// Package service provides business logic services for Bodleian Archive.
package service

import "errors"

// Common service errors.
var (
	// Validation errors
	ErrInvalidPassword    = errors.New("invalid password: must be at least 8 characters")
	ErrInvalidEmail       = errors.New("invalid email format")
	ErrInvalidDisplayName = errors.New("invalid display name: must be 1-255 characters")
	ErrInvalidCapacity    = errors.New("invalid capacity: must be positive")
	ErrMissingFilename    = errors.New("original filename is required")

	// General errors
	ErrInternalError = errors.New("internal server error")
)
