// Package domain contains the core business entities for Bodleian Archive.
package domain

import (
	"errors"
	"fmt"
)

// Domain errors - these represent business rule violations.
// They are distinct from infrastructure errors (database, network, etc.).

var (
	// ===========================================
	// Authorization Errors
	// ===========================================

	// ErrUnauthorized indicates the capability check failed or the acting
	// user is inactive.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidCredentials indicates authentication failed.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrSessionExpired indicates the presented session token is no longer valid.
	ErrSessionExpired = errors.New("session has expired")

	// ===========================================
	// Not-Found Errors
	// ===========================================

	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrRoleNotFound indicates the requested role does not exist.
	ErrRoleNotFound = errors.New("role not found")

	// ErrPermissionNotFound indicates the role has no permission record.
	// With a correctly seeded database this never happens.
	ErrPermissionNotFound = errors.New("permission record not found")

	// ErrLocationNotFound indicates the requested storage location does not exist.
	ErrLocationNotFound = errors.New("storage location not found")

	// ErrTypeNotFound indicates the requested document type does not exist.
	ErrTypeNotFound = errors.New("document type not found")

	// ErrDocumentNotFound indicates the requested document does not exist.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrSessionNotFound indicates the presented session token is unknown.
	ErrSessionNotFound = errors.New("session not found")

	// ===========================================
	// Integrity Errors
	// ===========================================

	// ErrInvalidReference indicates an attempt to delete an entity still
	// referenced by non-deleted documents, or to assign a document to a
	// non-existent or offline location.
	ErrInvalidReference = errors.New("invalid reference")

	// ErrInvalidTransition indicates an illegal document lifecycle transition.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")

	// ErrConflictingUpdate indicates a concurrent write was detected during
	// capacity recalculation and retries were exhausted.
	ErrConflictingUpdate = errors.New("conflicting concurrent update")

	// ErrAuditSinkFailure indicates the activity log append failed. It never
	// rolls back the committed business mutation.
	ErrAuditSinkFailure = errors.New("audit sink failure")

	// ===========================================
	// Validation Errors
	// ===========================================

	// ErrUserAlreadyExists indicates a user with the same email exists.
	ErrUserAlreadyExists = errors.New("user already exists")

	// ErrLocationAlreadyExists indicates a location with the same name exists.
	ErrLocationAlreadyExists = errors.New("storage location already exists")

	// ErrTypeAlreadyExists indicates a document type with the same name exists.
	ErrTypeAlreadyExists = errors.New("document type already exists")

	// ErrExtensionNotAllowed indicates the file extension is rejected by the
	// document type's allowed-extension policy.
	ErrExtensionNotAllowed = errors.New("file extension not allowed for document type")

	// ErrTypeInactive indicates the document type is not accepting new documents.
	ErrTypeInactive = errors.New("document type is inactive")
)

// DomainError wraps a domain error with additional context.
type DomainError struct {
	// Err is the underlying domain error.
	Err error

	// Message provides additional context.
	Message string

	// Resource identifies the affected resource (e.g. document ID, location name).
	Resource string
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Err.Error(), e.Message, e.Resource)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error for errors.Is/errors.As.
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError with context.
func NewDomainError(err error, message, resource string) *DomainError {
	return &DomainError{
		Err:      err,
		Message:  message,
		Resource: resource,
	}
}
