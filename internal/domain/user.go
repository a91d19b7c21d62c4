// Package domain contains the core business entities for Bodleian Archive.
package domain

import (
	"time"
)

// User represents an account in the archive.
// Every user is bound to exactly one role, which determines its capabilities.
type User struct {
	// ID is the unique identifier for the user (auto-generated).
	ID int64 `json:"id"`

	// Email is the unique email address used for login.
	Email string `json:"email"`

	// PasswordHash is the bcrypt hash of the user's password.
	// This must never be exposed in API responses or written to logs.
	PasswordHash string `json:"-"`

	// DisplayName is the human-readable name shown in listings and audit views.
	DisplayName string `json:"display_name"`

	// RoleID references the role this user holds. A role that is held by
	// any user cannot be deleted.
	RoleID int64 `json:"role_id"`

	// IsActive indicates whether the account is usable. Accounts are
	// deactivated rather than hard-deleted so document ownership and audit
	// history stay intact. Inactive users fail every capability check.
	IsActive bool `json:"is_active"`

	// LastLoginAt is the timestamp of the most recent successful login.
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`

	// CreatedAt is the timestamp when the account was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is the timestamp when the account was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// NewUser creates a new active User with default values.
func NewUser(email, passwordHash, displayName string, roleID int64) *User {
	now := time.Now().UTC()
	return &User{
		Email:        email,
		PasswordHash: passwordHash,
		DisplayName:  displayName,
		RoleID:       roleID,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// CanAuthenticate returns true if the user is allowed to authenticate.
func (u *User) CanAuthenticate() bool {
	return u.IsActive
}

// Snapshot returns a point-in-time copy of the user's fields for the audit
// trail. The credential hash is deliberately excluded.
func (u *User) Snapshot() Snapshot {
	return Snapshot{
		"id":           u.ID,
		"email":        u.Email,
		"display_name": u.DisplayName,
		"role_id":      u.RoleID,
		"is_active":    u.IsActive,
	}
}
