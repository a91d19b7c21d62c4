package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/prn-tf/bodleian-archive/internal/domain"
	"github.com/prn-tf/bodleian-archive/internal/repository"
)

// auditRepository implements repository.AuditRepository for SQLite.
// The activity log is append-only; there are no update or delete methods.
type auditRepository struct {
	db *DB
}

// NewAuditRepository creates a new SQLite activity log repository.
func NewAuditRepository(db *DB) repository.AuditRepository {
	return &auditRepository{db: db}
}

const auditColumns = `id, user_id, document_id, action, description, remote_addr, user_agent, before_state, after_state, created_at`

// Append writes one activity log entry.
func (r *auditRepository) Append(ctx context.Context, entry *domain.ActivityLogEntry) error {
	before, err := entry.Before.MarshalText()
	if err != nil {
		return fmt.Errorf("failed to serialize before snapshot: %w", err)
	}
	after, err := entry.After.MarshalText()
	if err != nil {
		return fmt.Errorf("failed to serialize after snapshot: %w", err)
	}

	query := `
		INSERT INTO activity_log (user_id, document_id, action, description, remote_addr, user_agent, before_state, after_state, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		nullableInt64(entry.UserID),
		nullableInt64(entry.DocumentID),
		string(entry.Action),
		entry.Description,
		entry.RemoteAddr,
		entry.UserAgent,
		nullableString(before),
		nullableString(after),
		formatTime(entry.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to append activity log entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	entry.ID = id

	return nil
}

// ListByDocument returns entries for a document, most recent first.
func (r *auditRepository) ListByDocument(ctx context.Context, documentID int64, opts repository.ListOptions) (*repository.ListResult[domain.ActivityLogEntry], error) {
	return r.list(ctx, ` WHERE document_id = ?`, []any{documentID}, opts)
}

// ListByUser returns entries for a user, most recent first.
func (r *auditRepository) ListByUser(ctx context.Context, userID int64, opts repository.ListOptions) (*repository.ListResult[domain.ActivityLogEntry], error) {
	return r.list(ctx, ` WHERE user_id = ?`, []any{userID}, opts)
}

// List returns entries with pagination, most recent first.
func (r *auditRepository) List(ctx context.Context, opts repository.ListOptions) (*repository.ListResult[domain.ActivityLogEntry], error) {
	return r.list(ctx, ``, nil, opts)
}

func (r *auditRepository) list(ctx context.Context, where string, args []any, opts repository.ListOptions) (*repository.ListResult[domain.ActivityLogEntry], error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM activity_log`+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count activity log entries: %w", err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + auditColumns + ` FROM activity_log` + where + `
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`
	args = append(args, limit, opts.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity log entries: %w", err)
	}
	defer rows.Close()

	var entries []*domain.ActivityLogEntry
	for rows.Next() {
		entry, err := scanAuditEntry(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity log entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activity log entries: %w", err)
	}

	return &repository.ListResult[domain.ActivityLogEntry]{
		Items:  entries,
		Total:  total,
		Offset: opts.Offset,
		Limit:  limit,
	}, nil
}

// scanAuditEntry reads one activity log row worth of columns.
func scanAuditEntry(scan func(dest ...any) error) (*domain.ActivityLogEntry, error) {
	entry := &domain.ActivityLogEntry{}
	var userID, documentID sql.NullInt64
	var action, createdAt string
	var before, after sql.NullString

	err := scan(
		&entry.ID,
		&userID,
		&documentID,
		&action,
		&entry.Description,
		&entry.RemoteAddr,
		&entry.UserAgent,
		&before,
		&after,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	entry.UserID = scanNullableInt64(userID)
	entry.DocumentID = scanNullableInt64(documentID)
	entry.Action = domain.ActionKind(action)
	entry.CreatedAt = parseTime(createdAt)

	if entry.Before, err = domain.UnmarshalSnapshot(before.String); err != nil {
		return nil, fmt.Errorf("corrupt before snapshot: %w", err)
	}
	if entry.After, err = domain.UnmarshalSnapshot(after.String); err != nil {
		return nil, fmt.Errorf("corrupt after snapshot: %w", err)
	}

	return entry, nil
}

// Ensure auditRepository implements repository.AuditRepository.
var _ repository.AuditRepository = (*auditRepository)(nil)
