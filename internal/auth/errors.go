// Package auth provides bearer-token session authentication for Bodleian Archive.
package auth

import "errors"

// Authentication errors.
var (
	// ErrMissingToken indicates no bearer credential was presented.
	ErrMissingToken = errors.New("missing bearer token")

	// ErrInvalidToken indicates the token did not resolve to a valid session.
	ErrInvalidToken = errors.New("invalid or expired session token")
)
