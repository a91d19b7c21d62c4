// Package domain contains the core business entities for Bodleian Archive.
package domain

import (
	"time"
)

// LocationStatus represents the operational state of a storage location.
type LocationStatus string

const (
	// LocationActive means the location accepts new documents.
	LocationActive LocationStatus = "active"

	// LocationMaintenance means the location is temporarily degraded.
	// Existing documents remain assigned; metadata operations still work.
	LocationMaintenance LocationStatus = "maintenance"

	// LocationOffline means the location is unusable. New documents cannot
	// be created on or moved to an offline location.
	LocationOffline LocationStatus = "offline"
)

// ParseLocationStatus maps a status name to its LocationStatus value.
func ParseLocationStatus(name string) (LocationStatus, bool) {
	switch LocationStatus(name) {
	case LocationActive, LocationMaintenance, LocationOffline:
		return LocationStatus(name), true
	}
	return "", false
}

// StorageLocation is a named external storage backend for document bytes.
// The archive stores only metadata; the bytes live at the location's
// address/path pair. UsedBytes is derived state: it always equals the sum of
// sizes of the non-deleted documents assigned to the location.
type StorageLocation struct {
	// ID is the unique identifier for the location.
	ID int64 `json:"id"`

	// Name is the unique display name of the location.
	Name string `json:"name"`

	// Address is the network address of the backing storage service.
	Address string `json:"address"`

	// BasePath is the root path on the backing service under which
	// document files are written.
	BasePath string `json:"base_path"`

	// CapacityBytes is the declared total capacity of the location.
	CapacityBytes int64 `json:"capacity_bytes"`

	// UsedBytes is the derived used-space figure, maintained by the
	// capacity accountant. Never set it directly from API input.
	UsedBytes int64 `json:"used_bytes"`

	// Status is the operational state of the location.
	Status LocationStatus `json:"status"`

	// CreatedAt is the timestamp when the location was registered.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is the timestamp when the location was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// NewStorageLocation creates a new active StorageLocation.
func NewStorageLocation(name, address, basePath string, capacityBytes int64) *StorageLocation {
	now := time.Now().UTC()
	return &StorageLocation{
		Name:          name,
		Address:       address,
		BasePath:      basePath,
		CapacityBytes: capacityBytes,
		Status:        LocationActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// FreeBytes returns the remaining declared capacity. The accountant tracks
// truth and never blocks writes, so this can go negative on over-commit.
func (l *StorageLocation) FreeBytes() int64 {
	return l.CapacityBytes - l.UsedBytes
}

// UsageRatio returns used capacity as a fraction of declared capacity.
// Returns 0 when no capacity is declared.
func (l *StorageLocation) UsageRatio() float64 {
	if l.CapacityBytes <= 0 {
		return 0
	}
	return float64(l.UsedBytes) / float64(l.CapacityBytes)
}

// AcceptsDocuments reports whether new documents may be assigned to the
// location. Offline locations reject assignment; maintenance only degrades.
func (l *StorageLocation) AcceptsDocuments() bool {
	return l.Status != LocationOffline
}

// Snapshot returns a point-in-time copy of the location's fields for the
// audit trail.
func (l *StorageLocation) Snapshot() Snapshot {
	return Snapshot{
		"id":             l.ID,
		"name":           l.Name,
		"address":        l.Address,
		"base_path":      l.BasePath,
		"capacity_bytes": l.CapacityBytes,
		"used_bytes":     l.UsedBytes,
		"status":         string(l.Status),
	}
}
