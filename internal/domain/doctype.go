// Package domain contains the core business entities for Bodleian Archive.
package domain

import (
	"strings"
	"time"
)

// DocumentType is a classification taxonomy entry with an allowed-extension
// policy. Types referenced by non-deleted documents cannot be removed.
type DocumentType struct {
	// ID is the unique identifier for the type.
	ID int64 `json:"id"`

	// Name is the unique type name (e.g. "invoice", "contract").
	Name string `json:"name"`

	// Icon is a display hint for UIs.
	Icon string `json:"icon"`

	// Color is a display hint for UIs (hex string).
	Color string `json:"color"`

	// AllowedExtensions is a comma-separated list of file extensions
	// accepted for this type, without dots (e.g. "pdf,png,jpg").
	// Empty means any extension is accepted.
	AllowedExtensions string `json:"allowed_extensions"`

	// IsActive indicates whether the type can be assigned to new documents.
	IsActive bool `json:"is_active"`

	// SortOrder controls display ordering in listings.
	SortOrder int `json:"sort_order"`

	// CreatedAt is the timestamp when the type was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is the timestamp when the type was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// NewDocumentType creates a new active DocumentType.
func NewDocumentType(name, allowedExtensions string) *DocumentType {
	now := time.Now().UTC()
	return &DocumentType{
		Name:              name,
		AllowedExtensions: allowedExtensions,
		IsActive:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// AllowsExtension reports whether the given file extension is accepted by
// the type's policy. The comparison ignores case and leading dots.
func (t *DocumentType) AllowsExtension(ext string) bool {
	if strings.TrimSpace(t.AllowedExtensions) == "" {
		return true
	}
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, allowed := range strings.Split(t.AllowedExtensions, ",") {
		if strings.ToLower(strings.TrimSpace(allowed)) == ext {
			return true
		}
	}
	return false
}

// Snapshot returns a point-in-time copy of the type's fields for the audit
// trail.
func (t *DocumentType) Snapshot() Snapshot {
	return Snapshot{
		"id":                 t.ID,
		"name":               t.Name,
		"allowed_extensions": t.AllowedExtensions,
		"is_active":          t.IsActive,
		"sort_order":         t.SortOrder,
	}
}
