// Package domain contains the core business entities for Bodleian Archive.
package domain

import (
	"time"
)

// DocumentStatus represents the lifecycle state of a document.
type DocumentStatus string

const (
	// StatusDraft is the initial state for documents not yet published.
	StatusDraft DocumentStatus = "draft"

	// StatusActive is the normal, visible state.
	StatusActive DocumentStatus = "active"

	// StatusArchived marks documents kept for reference but out of the
	// day-to-day working set. Archived documents still occupy capacity.
	StatusArchived DocumentStatus = "archived"

	// StatusDeleted is the soft-deleted state. The row persists for audit
	// and history but is excluded from capacity accounting and default
	// listings.
	StatusDeleted DocumentStatus = "deleted"
)

// ParseDocumentStatus maps a status name to its DocumentStatus value.
func ParseDocumentStatus(name string) (DocumentStatus, bool) {
	switch DocumentStatus(name) {
	case StatusDraft, StatusActive, StatusArchived, StatusDeleted:
		return DocumentStatus(name), true
	}
	return "", false
}

// CanTransitionTo reports whether the lifecycle transition from s to target
// is legal. The machine is draft -> active -> archived, any non-deleted
// state -> deleted, and deleted -> active (restore). Self-transitions are
// invalid, which is what makes a repeated soft delete fail instead of
// decrementing capacity twice.
func (s DocumentStatus) CanTransitionTo(target DocumentStatus) bool {
	if s == target {
		return false
	}
	switch s {
	case StatusDraft:
		return target == StatusActive || target == StatusDeleted
	case StatusActive:
		return target == StatusArchived || target == StatusDeleted
	case StatusArchived:
		return target == StatusDeleted
	case StatusDeleted:
		return target == StatusActive
	}
	return false
}

// CountsTowardCapacity reports whether a document in this state contributes
// to its location's used-space figure.
func (s DocumentStatus) CountsTowardCapacity() bool {
	return s != StatusDeleted
}

// Document is the central entity of the archive: the metadata record of a
// stored file. The raw bytes live on the referenced storage location; the
// archive keeps the path, the checksum and the descriptive fields.
type Document struct {
	// ID is the unique identifier for the document.
	ID int64 `json:"id"`

	// Filename is the name the file is stored under on the location
	// (unique, generated at upload time).
	Filename string `json:"filename"`

	// OriginalFilename is the name of the file as uploaded.
	OriginalFilename string `json:"original_filename"`

	// Path is the location-relative path of the stored file.
	Path string `json:"path"`

	// Extension is the lowercase file extension without the dot.
	Extension string `json:"extension"`

	// MimeType is the MIME type of the file.
	MimeType string `json:"mime_type"`

	// SizeBytes is the file size in bytes.
	SizeBytes int64 `json:"size_bytes"`

	// TypeID references the document type. The referenced type cannot be
	// deleted while this document is non-deleted.
	TypeID int64 `json:"type_id"`

	// LocationID references the storage location holding the bytes.
	LocationID int64 `json:"location_id"`

	// CreatedBy is the user who created the document. The reference is
	// permanent: a user who created documents cannot be deleted.
	CreatedBy int64 `json:"created_by"`

	// ModifiedBy is the user who last modified the document. Cleared (not
	// rejected) if that user is later removed.
	ModifiedBy *int64 `json:"modified_by,omitempty"`

	// Description is free text, included in full-text search.
	Description string `json:"description"`

	// Tags is a comma-separated tag list, included in full-text search.
	Tags string `json:"tags"`

	// ReferenceYear optionally assigns the document to a fiscal year.
	ReferenceYear *int `json:"reference_year,omitempty"`

	// ReferenceMonth optionally assigns the document to a month (1-12).
	ReferenceMonth *int `json:"reference_month,omitempty"`

	// DocumentNumber is an optional external reference number.
	DocumentNumber string `json:"document_number,omitempty"`

	// Amount is an optional monetary amount, in minor currency units.
	Amount *int64 `json:"amount,omitempty"`

	// Status is the lifecycle state.
	Status DocumentStatus `json:"status"`

	// Checksum is the SHA-256 hash of the file content.
	Checksum string `json:"checksum"`

	// DocumentDate is the date the document refers to (not the upload time).
	DocumentDate time.Time `json:"document_date"`

	// CreatedAt is the timestamp when the record was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is the timestamp when the record was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// IsDeleted returns true if the document is soft-deleted.
func (d *Document) IsDeleted() bool {
	return d.Status == StatusDeleted
}

// Snapshot returns a point-in-time copy of the document's audit-relevant
// fields. Stored as the before/after blobs on activity log entries.
func (d *Document) Snapshot() Snapshot {
	s := Snapshot{
		"id":                d.ID,
		"filename":          d.Filename,
		"original_filename": d.OriginalFilename,
		"path":              d.Path,
		"extension":         d.Extension,
		"mime_type":         d.MimeType,
		"size_bytes":        d.SizeBytes,
		"type_id":           d.TypeID,
		"location_id":       d.LocationID,
		"created_by":        d.CreatedBy,
		"description":       d.Description,
		"tags":              d.Tags,
		"document_number":   d.DocumentNumber,
		"status":            string(d.Status),
		"checksum":          d.Checksum,
		"document_date":     d.DocumentDate.UTC().Format(time.RFC3339),
	}
	if d.ModifiedBy != nil {
		s["modified_by"] = *d.ModifiedBy
	}
	if d.ReferenceYear != nil {
		s["reference_year"] = *d.ReferenceYear
	}
	if d.ReferenceMonth != nil {
		s["reference_month"] = *d.ReferenceMonth
	}
	if d.Amount != nil {
		s["amount"] = *d.Amount
	}
	return s
}
