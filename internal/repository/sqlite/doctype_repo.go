package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/prn-tf/bodleian-archive/internal/domain"
	"github.com/prn-tf/bodleian-archive/internal/repository"
)

// doctypeRepository implements repository.DocumentTypeRepository for SQLite.
type doctypeRepository struct {
	db *DB
}

// NewDocumentTypeRepository creates a new SQLite document type repository.
func NewDocumentTypeRepository(db *DB) repository.DocumentTypeRepository {
	return &doctypeRepository{db: db}
}

const doctypeColumns = `id, name, icon, color, allowed_extensions, is_active, sort_order, created_at, updated_at`

// Create creates a new document type.
func (r *doctypeRepository) Create(ctx context.Context, t *domain.DocumentType) error {
	query := `
		INSERT INTO document_types (name, icon, color, allowed_extensions, is_active, sort_order, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		t.Name,
		t.Icon,
		t.Color,
		t.AllowedExtensions,
		boolToInt(t.IsActive),
		t.SortOrder,
		formatTime(t.CreatedAt),
		formatTime(t.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: name '%s'", domain.ErrTypeAlreadyExists, t.Name)
		}
		return fmt.Errorf("failed to create document type: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	t.ID = id

	return nil
}

// GetByID retrieves a type by ID.
func (r *doctypeRepository) GetByID(ctx context.Context, id int64) (*domain.DocumentType, error) {
	return r.getType(ctx, `SELECT `+doctypeColumns+` FROM document_types WHERE id = ?`, id)
}

// GetByName retrieves a type by its unique name.
func (r *doctypeRepository) GetByName(ctx context.Context, name string) (*domain.DocumentType, error) {
	return r.getType(ctx, `SELECT `+doctypeColumns+` FROM document_types WHERE name = ?`, name)
}

func (r *doctypeRepository) getType(ctx context.Context, query string, arg any) (*domain.DocumentType, error) {
	t := &domain.DocumentType{}
	var isActive int
	var createdAt, updatedAt string

	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&t.ID,
		&t.Name,
		&t.Icon,
		&t.Color,
		&t.AllowedExtensions,
		&isActive,
		&t.SortOrder,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrTypeNotFound
		}
		return nil, fmt.Errorf("failed to get document type: %w", err)
	}

	t.IsActive = isActive != 0
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)

	return t, nil
}

// List returns all types ordered by sort order, then name.
func (r *doctypeRepository) List(ctx context.Context) ([]*domain.DocumentType, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+doctypeColumns+` FROM document_types ORDER BY sort_order, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list document types: %w", err)
	}
	defer rows.Close()

	var types []*domain.DocumentType
	for rows.Next() {
		t := &domain.DocumentType{}
		var isActive int
		var createdAt, updatedAt string

		err := rows.Scan(
			&t.ID,
			&t.Name,
			&t.Icon,
			&t.Color,
			&t.AllowedExtensions,
			&isActive,
			&t.SortOrder,
			&createdAt,
			&updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document type: %w", err)
		}

		t.IsActive = isActive != 0
		t.CreatedAt = parseTime(createdAt)
		t.UpdatedAt = parseTime(updatedAt)
		types = append(types, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating document types: %w", err)
	}

	return types, nil
}

// Update updates an existing type.
func (r *doctypeRepository) Update(ctx context.Context, t *domain.DocumentType) error {
	t.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE document_types
		SET name = ?, icon = ?, color = ?, allowed_extensions = ?, is_active = ?, sort_order = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		t.Name,
		t.Icon,
		t.Color,
		t.AllowedExtensions,
		boolToInt(t.IsActive),
		t.SortOrder,
		formatTime(t.UpdatedAt),
		t.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: name '%s'", domain.ErrTypeAlreadyExists, t.Name)
		}
		return fmt.Errorf("failed to update document type: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return domain.ErrTypeNotFound
	}
	return nil
}

// Delete removes a type. Documents referencing it block the delete via
// RESTRICT.
func (r *doctypeRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM document_types WHERE id = ?`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.NewDomainError(domain.ErrInvalidReference, "type is referenced by existing documents", "")
		}
		return fmt.Errorf("failed to delete document type: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return domain.ErrTypeNotFound
	}
	return nil
}

// Ensure doctypeRepository implements repository.DocumentTypeRepository.
var _ repository.DocumentTypeRepository = (*doctypeRepository)(nil)
