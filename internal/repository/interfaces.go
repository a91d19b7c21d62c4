// Package repository defines data access interfaces for Bodleian Archive.
// These interfaces abstract database operations, allowing for different
// implementations (SQLite, PostgreSQL, in-memory for testing) while keeping
// the service layer clean.
package repository

import (
	"context"

	"github.com/prn-tf/bodleian-archive/internal/domain"
)

// =============================================================================
// Role / Permission Repository
// =============================================================================

// RoleRepository defines the interface for role and permission data access.
// Roles are read-mostly configuration seeded at boot.
type RoleRepository interface {
	// GetByID retrieves a role by ID.
	GetByID(ctx context.Context, id int64) (*domain.Role, error)

	// GetByName retrieves a role by its unique name.
	GetByName(ctx context.Context, name string) (*domain.Role, error)

	// List returns all roles.
	List(ctx context.Context) ([]*domain.Role, error)

	// GetPermission retrieves the permission record owned by a role.
	GetPermission(ctx context.Context, roleID int64) (*domain.Permission, error)

	// UpdatePermission replaces the capability flags of a role's permission record.
	UpdatePermission(ctx context.Context, perm *domain.Permission) error

	// Delete removes a role and, via cascade, its permission record.
	// Fails with domain.ErrInvalidReference while any user holds the role.
	Delete(ctx context.Context, id int64) error

	// CountUsers returns the number of users bound to the role.
	CountUsers(ctx context.Context, roleID int64) (int64, error)
}

// =============================================================================
// User Repository
// =============================================================================

// UserRepository defines the interface for user data access.
type UserRepository interface {
	// Create creates a new user.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id int64) (*domain.User, error)

	// GetByEmail retrieves a user by email.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// Update updates an existing user.
	Update(ctx context.Context, user *domain.User) error

	// UpdateLastLogin stamps the last-login timestamp.
	UpdateLastLogin(ctx context.Context, id int64) error

	// Delete removes a user. Callers enforce the creator-reference rule
	// first; the row-level effect clears modifier and audit references.
	Delete(ctx context.Context, id int64) error

	// List returns all users with pagination.
	List(ctx context.Context, opts ListOptions) (*ListResult[domain.User], error)

	// ExistsByEmail checks if a user with the given email exists.
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

// =============================================================================
// Storage Location Repository
// =============================================================================

// LocationRepository defines the interface for storage location data access.
type LocationRepository interface {
	// Create registers a new storage location.
	Create(ctx context.Context, loc *domain.StorageLocation) error

	// GetByID retrieves a location by ID.
	GetByID(ctx context.Context, id int64) (*domain.StorageLocation, error)

	// GetByName retrieves a location by its unique name.
	GetByName(ctx context.Context, name string) (*domain.StorageLocation, error)

	// List returns all locations.
	List(ctx context.Context) ([]*domain.StorageLocation, error)

	// Update updates a location's declared fields. The used-space figure is
	// excluded; it is written only through UpdateUsedBytes.
	Update(ctx context.Context, loc *domain.StorageLocation) error

	// UpdateUsedBytes writes the derived used-space figure.
	UpdateUsedBytes(ctx context.Context, id int64, usedBytes int64) error

	// Delete removes a location. Callers reject the delete while non-deleted
	// documents reference it.
	Delete(ctx context.Context, id int64) error
}

// =============================================================================
// Document Type Repository
// =============================================================================

// DocumentTypeRepository defines the interface for document type data access.
type DocumentTypeRepository interface {
	// Create creates a new document type.
	Create(ctx context.Context, t *domain.DocumentType) error

	// GetByID retrieves a type by ID.
	GetByID(ctx context.Context, id int64) (*domain.DocumentType, error)

	// GetByName retrieves a type by its unique name.
	GetByName(ctx context.Context, name string) (*domain.DocumentType, error)

	// List returns all types ordered by sort order.
	List(ctx context.Context) ([]*domain.DocumentType, error)

	// Update updates an existing type.
	Update(ctx context.Context, t *domain.DocumentType) error

	// Delete removes a type. Callers reject the delete while non-deleted
	// documents reference it.
	Delete(ctx context.Context, id int64) error
}

// =============================================================================
// Document Repository
// =============================================================================

// DocumentRepository defines the interface for document metadata access.
type DocumentRepository interface {
	// Create creates a new document record.
	Create(ctx context.Context, doc *domain.Document) error

	// GetByID retrieves a document by ID, regardless of lifecycle state.
	GetByID(ctx context.Context, id int64) (*domain.Document, error)

	// Update updates an existing document record.
	Update(ctx context.Context, doc *domain.Document) error

	// UpdateStatus writes only the lifecycle state and modifier.
	UpdateStatus(ctx context.Context, id int64, status domain.DocumentStatus, modifiedBy int64) error

	// Search returns documents matching the given filters, ranked by
	// relevance when a full-text query is present, ties broken by most
	// recent upload first.
	Search(ctx context.Context, opts SearchOptions) (*ListResult[domain.Document], error)

	// SumActiveSizeByLocation returns the total size in bytes of all
	// non-deleted documents assigned to a location. This is the committed,
	// consistent read the capacity accountant writes back.
	SumActiveSizeByLocation(ctx context.Context, locationID int64) (int64, error)

	// CountActiveByLocation returns the number of non-deleted documents
	// assigned to a location.
	CountActiveByLocation(ctx context.Context, locationID int64) (int64, error)

	// CountActiveByType returns the number of non-deleted documents of a type.
	CountActiveByType(ctx context.Context, typeID int64) (int64, error)

	// CountByCreator returns the number of documents (any state) created by a user.
	CountByCreator(ctx context.Context, userID int64) (int64, error)

	// ClearModifier nulls the modifier reference everywhere it points at the
	// given user. Run before deleting the user.
	ClearModifier(ctx context.Context, userID int64) error
}

// SearchOptions contains filters for document queries.
type SearchOptions struct {
	// Query is the ranked full-text match over filename, description and
	// tags. Empty means no text filtering.
	Query string

	// TypeID filters by document type when non-zero.
	TypeID int64

	// LocationID filters by storage location when non-zero.
	LocationID int64

	// Status filters by lifecycle state. Empty means all non-deleted states.
	Status domain.DocumentStatus

	// IncludeDeleted includes soft-deleted documents when no Status filter
	// is set. Default listings exclude them.
	IncludeDeleted bool

	// CreatedBy filters by creator when non-zero.
	CreatedBy int64

	// YearFrom/YearTo bound the reference year when non-zero.
	YearFrom int
	YearTo   int

	// MonthFrom/MonthTo bound the reference month when non-zero.
	MonthFrom int
	MonthTo   int

	// Limit and Offset paginate the result.
	Limit  int
	Offset int
}

// =============================================================================
// Activity Log Repository
// =============================================================================

// AuditRepository defines the interface for the append-only activity log.
// Entries are never updated or deleted by normal operation.
type AuditRepository interface {
	// Append writes one activity log entry.
	Append(ctx context.Context, entry *domain.ActivityLogEntry) error

	// ListByDocument returns entries for a document, most recent first.
	ListByDocument(ctx context.Context, documentID int64, opts ListOptions) (*ListResult[domain.ActivityLogEntry], error)

	// ListByUser returns entries for a user, most recent first.
	ListByUser(ctx context.Context, userID int64, opts ListOptions) (*ListResult[domain.ActivityLogEntry], error)

	// List returns entries with pagination, most recent first.
	List(ctx context.Context, opts ListOptions) (*ListResult[domain.ActivityLogEntry], error)
}

// =============================================================================
// Session Repository
// =============================================================================

// SessionRepository defines the interface for session data access.
// Session mechanics are an infrastructure boundary; the core only consumes
// the resolved identity.
type SessionRepository interface {
	// Create opens a new session.
	Create(ctx context.Context, s *domain.Session) error

	// GetByToken retrieves a session by its opaque token.
	GetByToken(ctx context.Context, token string) (*domain.Session, error)

	// Deactivate marks a session inactive (logout).
	Deactivate(ctx context.Context, id int64) error

	// DeleteExpired removes sessions past their expiry.
	DeleteExpired(ctx context.Context) (int64, error)
}

// =============================================================================
// Common Types
// =============================================================================

// ListOptions contains common pagination options.
type ListOptions struct {
	// Offset is the number of records to skip.
	Offset int

	// Limit is the maximum number of records to return.
	Limit int
}

// ListResult is a generic paginated list result.
type ListResult[T any] struct {
	// Items is the list of items.
	Items []*T

	// Total is the total number of items (without pagination).
	Total int64

	// Offset is the current offset.
	Offset int

	// Limit is the current limit.
	Limit int
}
