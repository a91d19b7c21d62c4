package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/prn-tf/bodleian-archive/internal/domain"
	"github.com/prn-tf/bodleian-archive/internal/repository"
)

// locationRepository implements repository.LocationRepository for SQLite.
type locationRepository struct {
	db *DB
}

// NewLocationRepository creates a new SQLite storage location repository.
func NewLocationRepository(db *DB) repository.LocationRepository {
	return &locationRepository{db: db}
}

const locationColumns = `id, name, address, base_path, capacity_bytes, used_bytes, status, created_at, updated_at`

// Create registers a new storage location.
func (r *locationRepository) Create(ctx context.Context, loc *domain.StorageLocation) error {
	query := `
		INSERT INTO storage_locations (name, address, base_path, capacity_bytes, used_bytes, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		loc.Name,
		loc.Address,
		loc.BasePath,
		loc.CapacityBytes,
		loc.UsedBytes,
		string(loc.Status),
		formatTime(loc.CreatedAt),
		formatTime(loc.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: name '%s'", domain.ErrLocationAlreadyExists, loc.Name)
		}
		return fmt.Errorf("failed to create storage location: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	loc.ID = id

	return nil
}

// GetByID retrieves a location by ID.
func (r *locationRepository) GetByID(ctx context.Context, id int64) (*domain.StorageLocation, error) {
	return r.getLocation(ctx, `SELECT `+locationColumns+` FROM storage_locations WHERE id = ?`, id)
}

// GetByName retrieves a location by its unique name.
func (r *locationRepository) GetByName(ctx context.Context, name string) (*domain.StorageLocation, error) {
	return r.getLocation(ctx, `SELECT `+locationColumns+` FROM storage_locations WHERE name = ?`, name)
}

func (r *locationRepository) getLocation(ctx context.Context, query string, arg any) (*domain.StorageLocation, error) {
	loc := &domain.StorageLocation{}
	var status, createdAt, updatedAt string

	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&loc.ID,
		&loc.Name,
		&loc.Address,
		&loc.BasePath,
		&loc.CapacityBytes,
		&loc.UsedBytes,
		&status,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrLocationNotFound
		}
		return nil, fmt.Errorf("failed to get storage location: %w", err)
	}

	loc.Status = domain.LocationStatus(status)
	loc.CreatedAt = parseTime(createdAt)
	loc.UpdatedAt = parseTime(updatedAt)

	return loc, nil
}

// List returns all locations.
func (r *locationRepository) List(ctx context.Context) ([]*domain.StorageLocation, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+locationColumns+` FROM storage_locations ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list storage locations: %w", err)
	}
	defer rows.Close()

	var locations []*domain.StorageLocation
	for rows.Next() {
		loc := &domain.StorageLocation{}
		var status, createdAt, updatedAt string

		err := rows.Scan(
			&loc.ID,
			&loc.Name,
			&loc.Address,
			&loc.BasePath,
			&loc.CapacityBytes,
			&loc.UsedBytes,
			&status,
			&createdAt,
			&updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan storage location: %w", err)
		}

		loc.Status = domain.LocationStatus(status)
		loc.CreatedAt = parseTime(createdAt)
		loc.UpdatedAt = parseTime(updatedAt)
		locations = append(locations, loc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating storage locations: %w", err)
	}

	return locations, nil
}

// Update updates a location's declared fields. used_bytes is deliberately
// not written here; only the capacity accountant touches it.
func (r *locationRepository) Update(ctx context.Context, loc *domain.StorageLocation) error {
	loc.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE storage_locations
		SET name = ?, address = ?, base_path = ?, capacity_bytes = ?, status = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		loc.Name,
		loc.Address,
		loc.BasePath,
		loc.CapacityBytes,
		string(loc.Status),
		formatTime(loc.UpdatedAt),
		loc.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: name '%s'", domain.ErrLocationAlreadyExists, loc.Name)
		}
		return fmt.Errorf("failed to update storage location: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return domain.ErrLocationNotFound
	}
	return nil
}

// UpdateUsedBytes writes the derived used-space figure.
func (r *locationRepository) UpdateUsedBytes(ctx context.Context, id int64, usedBytes int64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE storage_locations SET used_bytes = ?, updated_at = ? WHERE id = ?`,
		usedBytes, formatTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("failed to update used bytes: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return domain.ErrLocationNotFound
	}
	return nil
}

// Delete removes a location. Documents referencing it block the delete via
// RESTRICT.
func (r *locationRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM storage_locations WHERE id = ?`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.NewDomainError(domain.ErrInvalidReference, "location is referenced by existing documents", "")
		}
		return fmt.Errorf("failed to delete storage location: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return domain.ErrLocationNotFound
	}
	return nil
}

// Ensure locationRepository implements repository.LocationRepository.
var _ repository.LocationRepository = (*locationRepository)(nil)
