package service

import (
	"github.com/prn-tf/bodleian-archive/internal/domain"
)

// Actor is the resolved identity an operation runs as: the authenticated
// user plus the permission record of their role. Middleware and the admin
// CLI build one Actor per request and hand it to the services.
type Actor struct {
	// User is the authenticated user.
	User *domain.User

	// Permission is the capability set of the user's role.
	Permission *domain.Permission
}

// Can reports whether the actor holds the given capability.
// Inactive users hold no capabilities regardless of role.
func (a *Actor) Can(c domain.Capability) bool {
	if a == nil || a.User == nil || a.Permission == nil {
		return false
	}
	if !a.User.IsActive {
		return false
	}
	return a.Permission.Grants(c)
}

// UserID returns the acting user's ID, or 0 for a nil actor.
func (a *Actor) UserID() int64 {
	if a == nil || a.User == nil {
		return 0
	}
	return a.User.ID
}

// authorize returns domain.ErrUnauthorized unless the actor holds the
// capability. Authorization is read-only and runs before any mutation.
func authorize(a *Actor, c domain.Capability) error {
	if a.Can(c) {
		return nil
	}
	return domain.NewDomainError(domain.ErrUnauthorized, "missing capability", string(c))
}
