// Package domain contains the core business entities for Bodleian Archive.
package domain

import (
	"time"
)

// Session is the boundary type for authenticated sessions. Token generation
// and verification are infrastructure the core consumes; the core only
// trusts the resolved user identity for authorization checks.
type Session struct {
	// ID is the unique identifier for the session.
	ID int64 `json:"id"`

	// UserID is the authenticated user.
	UserID int64 `json:"user_id"`

	// Token is the opaque session payload presented by the client.
	// Never log the raw token.
	Token string `json:"-"`

	// RemoteAddr is the network origin that opened the session.
	RemoteAddr string `json:"remote_addr"`

	// IsActive indicates whether the session is still usable. Logout
	// deactivates the session instead of deleting it.
	IsActive bool `json:"is_active"`

	// CreatedAt is the timestamp when the session was opened.
	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt is the timestamp after which the session is rejected.
	ExpiresAt time.Time `json:"expires_at"`
}

// NewSession creates a new active Session.
func NewSession(userID int64, token, remoteAddr string, ttl time.Duration) *Session {
	now := time.Now().UTC()
	return &Session{
		UserID:     userID,
		Token:      token,
		RemoteAddr: remoteAddr,
		IsActive:   true,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
}

// IsValid reports whether the session can still authenticate requests.
func (s *Session) IsValid(now time.Time) bool {
	return s.IsActive && now.Before(s.ExpiresAt)
}
