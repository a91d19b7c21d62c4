// Package domain contains the core business entities for Bodleian Archive.
// These are pure Go structs with no external dependencies, representing
// the fundamental concepts of the document archive.
package domain

// Capability is one of the five atomic permission flags.
// Capabilities form a closed set; unknown names never authorize anything.
type Capability string

const (
	// CapabilityView allows reading and searching documents.
	CapabilityView Capability = "view"

	// CapabilityModify allows updating document metadata and restoring documents.
	CapabilityModify Capability = "modify"

	// CapabilityAdd allows creating new documents.
	CapabilityAdd Capability = "add"

	// CapabilityRemove allows soft-deleting documents.
	CapabilityRemove Capability = "remove"

	// CapabilityManageUsers allows administrative user management.
	CapabilityManageUsers Capability = "manage-users"
)

// ParseCapability maps a capability name to its Capability value.
// Returns false for names outside the closed set.
func ParseCapability(name string) (Capability, bool) {
	switch Capability(name) {
	case CapabilityView, CapabilityModify, CapabilityAdd, CapabilityRemove, CapabilityManageUsers:
		return Capability(name), true
	}
	return "", false
}

// Well-known role names. The role set is seeded at boot and immutable
// during normal operation.
const (
	RoleNameUser    = "user"
	RoleNameAdmin   = "admin"
	RoleNameManager = "manager"
)

// Role is a named tier in the permission model.
// Every role owns exactly one Permission record.
type Role struct {
	// ID is the unique identifier for the role.
	ID int64 `json:"id"`

	// Name is the unique role name (user, admin, manager).
	Name string `json:"name"`

	// Description explains what the role is for.
	Description string `json:"description"`
}

// Permission holds the capability flags granted to a role.
// One row per role; deleting a role removes its permission record with it.
type Permission struct {
	// ID is the unique identifier for the permission record.
	ID int64 `json:"id"`

	// RoleID is the owning role.
	RoleID int64 `json:"role_id"`

	// CanView allows reading and searching documents.
	CanView bool `json:"can_view"`

	// CanModify allows updating documents and restoring soft-deleted ones.
	CanModify bool `json:"can_modify"`

	// CanAdd allows creating documents.
	CanAdd bool `json:"can_add"`

	// CanRemove allows soft-deleting documents.
	CanRemove bool `json:"can_remove"`

	// CanManageUsers allows creating and deactivating user accounts.
	CanManageUsers bool `json:"can_manage_users"`
}

// Grants reports whether the permission record grants the given capability.
// Capabilities outside the closed set are never granted.
func (p *Permission) Grants(c Capability) bool {
	switch c {
	case CapabilityView:
		return p.CanView
	case CapabilityModify:
		return p.CanModify
	case CapabilityAdd:
		return p.CanAdd
	case CapabilityRemove:
		return p.CanRemove
	case CapabilityManageUsers:
		return p.CanManageUsers
	}
	return false
}
