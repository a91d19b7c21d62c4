package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/prn-tf/bodleian-archive/internal/domain"
	"github.com/prn-tf/bodleian-archive/internal/repository"
)

// documentRepository implements repository.DocumentRepository for SQLite.
type documentRepository struct {
	db *DB
}

// NewDocumentRepository creates a new SQLite document repository.
func NewDocumentRepository(db *DB) repository.DocumentRepository {
	return &documentRepository{db: db}
}

const documentColumns = `id, filename, original_filename, path, extension, mime_type, size_bytes,
	type_id, location_id, created_by, modified_by, description, tags,
	reference_year, reference_month, document_number, amount, status, checksum,
	document_date, created_at, updated_at`

// Create creates a new document record.
func (r *documentRepository) Create(ctx context.Context, doc *domain.Document) error {
	query := `
		INSERT INTO documents (filename, original_filename, path, extension, mime_type, size_bytes,
			type_id, location_id, created_by, modified_by, description, tags,
			reference_year, reference_month, document_number, amount, status, checksum,
			document_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		doc.Filename,
		doc.OriginalFilename,
		doc.Path,
		doc.Extension,
		doc.MimeType,
		doc.SizeBytes,
		doc.TypeID,
		doc.LocationID,
		doc.CreatedBy,
		nullableInt64(doc.ModifiedBy),
		doc.Description,
		doc.Tags,
		nullableInt(doc.ReferenceYear),
		nullableInt(doc.ReferenceMonth),
		doc.DocumentNumber,
		nullableInt64(doc.Amount),
		string(doc.Status),
		doc.Checksum,
		formatTime(doc.DocumentDate),
		formatTime(doc.CreatedAt),
		formatTime(doc.UpdatedAt),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.NewDomainError(domain.ErrInvalidReference, "document references a missing type, location or user", "")
		}
		return fmt.Errorf("failed to create document: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	doc.ID = id

	return nil
}

// GetByID retrieves a document by ID, regardless of lifecycle state.
func (r *documentRepository) GetByID(ctx context.Context, id int64) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row.Scan)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// scanDocument reads one document row worth of columns.
func scanDocument(scan func(dest ...any) error) (*domain.Document, error) {
	doc := &domain.Document{}
	var modifiedBy, amount sql.NullInt64
	var refYear, refMonth sql.NullInt64
	var status, documentDate, createdAt, updatedAt string

	err := scan(
		&doc.ID,
		&doc.Filename,
		&doc.OriginalFilename,
		&doc.Path,
		&doc.Extension,
		&doc.MimeType,
		&doc.SizeBytes,
		&doc.TypeID,
		&doc.LocationID,
		&doc.CreatedBy,
		&modifiedBy,
		&doc.Description,
		&doc.Tags,
		&refYear,
		&refMonth,
		&doc.DocumentNumber,
		&amount,
		&status,
		&doc.Checksum,
		&documentDate,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	doc.ModifiedBy = scanNullableInt64(modifiedBy)
	doc.Amount = scanNullableInt64(amount)
	doc.ReferenceYear = scanNullableInt(refYear)
	doc.ReferenceMonth = scanNullableInt(refMonth)
	doc.Status = domain.DocumentStatus(status)
	doc.DocumentDate = parseTime(documentDate)
	doc.CreatedAt = parseTime(createdAt)
	doc.UpdatedAt = parseTime(updatedAt)

	return doc, nil
}

// Update updates an existing document record.
func (r *documentRepository) Update(ctx context.Context, doc *domain.Document) error {
	doc.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE documents
		SET original_filename = ?, path = ?, extension = ?, mime_type = ?, size_bytes = ?,
			type_id = ?, location_id = ?, modified_by = ?, description = ?, tags = ?,
			reference_year = ?, reference_month = ?, document_number = ?, amount = ?,
			status = ?, checksum = ?, document_date = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		doc.OriginalFilename,
		doc.Path,
		doc.Extension,
		doc.MimeType,
		doc.SizeBytes,
		doc.TypeID,
		doc.LocationID,
		nullableInt64(doc.ModifiedBy),
		doc.Description,
		doc.Tags,
		nullableInt(doc.ReferenceYear),
		nullableInt(doc.ReferenceMonth),
		doc.DocumentNumber,
		nullableInt64(doc.Amount),
		string(doc.Status),
		doc.Checksum,
		formatTime(doc.DocumentDate),
		formatTime(doc.UpdatedAt),
		doc.ID,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.NewDomainError(domain.ErrInvalidReference, "document references a missing type, location or user", "")
		}
		return fmt.Errorf("failed to update document: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

// UpdateStatus writes only the lifecycle state and modifier.
func (r *documentRepository) UpdateStatus(ctx context.Context, id int64, status domain.DocumentStatus, modifiedBy int64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, modified_by = ?, updated_at = ? WHERE id = ?`,
		string(status), modifiedBy, formatTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

// Search returns documents matching the given filters. When a full-text
// query is present, filename matches weigh 3, description matches 2 and tag
// matches 1; ties are broken by most recent upload first.
func (r *documentRepository) Search(ctx context.Context, opts repository.SearchOptions) (*repository.ListResult[domain.Document], error) {
	var conds []string
	var args []any

	if opts.Status != "" {
		conds = append(conds, `status = ?`)
		args = append(args, string(opts.Status))
	} else if !opts.IncludeDeleted {
		conds = append(conds, `status != ?`)
		args = append(args, string(domain.StatusDeleted))
	}
	if opts.TypeID != 0 {
		conds = append(conds, `type_id = ?`)
		args = append(args, opts.TypeID)
	}
	if opts.LocationID != 0 {
		conds = append(conds, `location_id = ?`)
		args = append(args, opts.LocationID)
	}
	if opts.CreatedBy != 0 {
		conds = append(conds, `created_by = ?`)
		args = append(args, opts.CreatedBy)
	}
	if opts.YearFrom != 0 {
		conds = append(conds, `reference_year >= ?`)
		args = append(args, opts.YearFrom)
	}
	if opts.YearTo != 0 {
		conds = append(conds, `reference_year <= ?`)
		args = append(args, opts.YearTo)
	}
	if opts.MonthFrom != 0 {
		conds = append(conds, `reference_month >= ?`)
		args = append(args, opts.MonthFrom)
	}
	if opts.MonthTo != 0 {
		conds = append(conds, `reference_month <= ?`)
		args = append(args, opts.MonthTo)
	}

	rank := `0`
	if opts.Query != "" {
		pattern := "%" + escapeLike(opts.Query) + "%"
		rank = `(CASE WHEN original_filename LIKE ? ESCAPE '\' THEN 3 ELSE 0 END
			+ CASE WHEN description LIKE ? ESCAPE '\' THEN 2 ELSE 0 END
			+ CASE WHEN tags LIKE ? ESCAPE '\' THEN 1 ELSE 0 END)`
		args = append([]any{pattern, pattern, pattern}, args...)
		conds = append(conds, `(original_filename LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\' OR tags LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern, pattern)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	// Count without pagination. The count query carries no rank column, so
	// the rank placeholders are trimmed from the front of args.
	countArgs := args
	if opts.Query != "" {
		countArgs = args[3:]
	}
	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`+where, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + documentColumns + `, ` + rank + ` AS rank
		FROM documents` + where + `
		ORDER BY rank DESC, created_at DESC
		LIMIT ? OFFSET ?`
	args = append(args, limit, opts.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}
	defer rows.Close()

	var docs []*domain.Document
	for rows.Next() {
		var rankVal int
		doc, err := scanDocumentWithRank(rows.Scan, &rankVal)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}

	return &repository.ListResult[domain.Document]{
		Items:  docs,
		Total:  total,
		Offset: opts.Offset,
		Limit:  limit,
	}, nil
}

// scanDocumentWithRank reads a document row followed by the rank column.
func scanDocumentWithRank(scan func(dest ...any) error, rank *int) (*domain.Document, error) {
	return scanDocument(func(dest ...any) error {
		return scan(append(dest, rank)...)
	})
}

// SumActiveSizeByLocation returns the total size in bytes of all non-deleted
// documents assigned to a location.
func (r *documentRepository) SumActiveSizeByLocation(ctx context.Context, locationID int64) (int64, error) {
	var sum int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(size_bytes), 0) FROM documents WHERE location_id = ? AND status != ?`,
		locationID, string(domain.StatusDeleted)).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum document sizes: %w", err)
	}
	return sum, nil
}

// CountActiveByLocation returns the number of non-deleted documents assigned
// to a location.
func (r *documentRepository) CountActiveByLocation(ctx context.Context, locationID int64) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE location_id = ? AND status != ?`,
		locationID, string(domain.StatusDeleted)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents by location: %w", err)
	}
	return count, nil
}

// CountActiveByType returns the number of non-deleted documents of a type.
func (r *documentRepository) CountActiveByType(ctx context.Context, typeID int64) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE type_id = ? AND status != ?`,
		typeID, string(domain.StatusDeleted)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents by type: %w", err)
	}
	return count, nil
}

// CountByCreator returns the number of documents (any state) created by a user.
func (r *documentRepository) CountByCreator(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE created_by = ?`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents by creator: %w", err)
	}
	return count, nil
}

// ClearModifier nulls the modifier reference everywhere it points at the
// given user.
func (r *documentRepository) ClearModifier(ctx context.Context, userID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE documents SET modified_by = NULL WHERE modified_by = ?`, userID)
	if err != nil {
		return fmt.Errorf("failed to clear modifier references: %w", err)
	}
	return nil
}

// escapeLike escapes LIKE wildcards in user-supplied search terms.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// Ensure documentRepository implements repository.DocumentRepository.
var _ repository.DocumentRepository = (*documentRepository)(nil)
