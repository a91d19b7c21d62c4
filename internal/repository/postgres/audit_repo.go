package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/prn-tf/bodleian-archive/internal/domain"
	"github.com/prn-tf/bodleian-archive/internal/repository"
)

// auditRepository implements repository.AuditRepository on PostgreSQL.
// It is used when the activity log is mirrored to an external database
// that survives the primary SQLite file.
type auditRepository struct {
	db *DB
}

// NewAuditRepository creates a new PostgreSQL audit repository.
func NewAuditRepository(db *DB) repository.AuditRepository {
	return &auditRepository{db: db}
}

// EnsureSchema creates the activity_log table if it does not exist.
// The mirror owns its own schema; the SQLite migrations do not apply here.
func EnsureSchema(ctx context.Context, db *DB) error {
	query := `
		CREATE TABLE IF NOT EXISTS activity_log (
			id           BIGSERIAL PRIMARY KEY,
			user_id      BIGINT,
			document_id  BIGINT,
			action       TEXT NOT NULL,
			description  TEXT NOT NULL DEFAULT '',
			remote_addr  TEXT NOT NULL DEFAULT '',
			user_agent   TEXT NOT NULL DEFAULT '',
			before_state TEXT,
			after_state  TEXT,
			created_at   TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_activity_log_user ON activity_log (user_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_activity_log_document ON activity_log (document_id, created_at DESC)
	`

	if _, err := db.Pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to ensure activity_log schema: %w", err)
	}
	return nil
}

// Append writes one activity log entry.
func (r *auditRepository) Append(ctx context.Context, entry *domain.ActivityLogEntry) error {
	before, err := entry.Before.MarshalText()
	if err != nil {
		return fmt.Errorf("failed to marshal before snapshot: %w", err)
	}
	after, err := entry.After.MarshalText()
	if err != nil {
		return fmt.Errorf("failed to marshal after snapshot: %w", err)
	}

	query := `
		INSERT INTO activity_log (user_id, document_id, action, description, remote_addr, user_agent, before_state, after_state, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	err = r.db.Pool.QueryRow(ctx, query,
		entry.UserID,
		entry.DocumentID,
		string(entry.Action),
		entry.Description,
		entry.RemoteAddr,
		entry.UserAgent,
		nullIfEmpty(before),
		nullIfEmpty(after),
		entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to append activity log entry: %w", err)
	}

	return nil
}

// ListByDocument returns entries for a document, most recent first.
func (r *auditRepository) ListByDocument(ctx context.Context, documentID int64, opts repository.ListOptions) (*repository.ListResult[domain.ActivityLogEntry], error) {
	return r.list(ctx, "document_id = $1", []any{documentID}, opts)
}

// ListByUser returns entries for a user, most recent first.
func (r *auditRepository) ListByUser(ctx context.Context, userID int64, opts repository.ListOptions) (*repository.ListResult[domain.ActivityLogEntry], error) {
	return r.list(ctx, "user_id = $1", []any{userID}, opts)
}

// List returns entries with pagination, most recent first.
func (r *auditRepository) List(ctx context.Context, opts repository.ListOptions) (*repository.ListResult[domain.ActivityLogEntry], error) {
	return r.list(ctx, "", nil, opts)
}

func (r *auditRepository) list(ctx context.Context, where string, args []any, opts repository.ListOptions) (*repository.ListResult[domain.ActivityLogEntry], error) {
	countQuery := `SELECT COUNT(*) FROM activity_log`
	if where != "" {
		countQuery += " WHERE " + where
	}

	var total int64
	if err := r.db.Pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count activity log entries: %w", err)
	}

	query := `
		SELECT id, user_id, document_id, action, description, remote_addr, user_agent, before_state, after_state, created_at
		FROM activity_log
	`
	if where != "" {
		query += " WHERE " + where
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, opts.Limit, opts.Offset)

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity log entries: %w", err)
	}
	defer rows.Close()

	var entries []*domain.ActivityLogEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
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
		Limit:  opts.Limit,
	}, nil
}

func scanEntry(row pgx.Row) (*domain.ActivityLogEntry, error) {
	entry := &domain.ActivityLogEntry{}
	var action string
	var before, after *string

	err := row.Scan(
		&entry.ID,
		&entry.UserID,
		&entry.DocumentID,
		&action,
		&entry.Description,
		&entry.RemoteAddr,
		&entry.UserAgent,
		&before,
		&after,
		&entry.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan activity log entry: %w", err)
	}

	entry.Action = domain.ActionKind(action)
	if before != nil {
		if entry.Before, err = domain.UnmarshalSnapshot(*before); err != nil {
			return nil, fmt.Errorf("failed to decode before snapshot: %w", err)
		}
	}
	if after != nil {
		if entry.After, err = domain.UnmarshalSnapshot(*after); err != nil {
			return nil, fmt.Errorf("failed to decode after snapshot: %w", err)
		}
	}

	return entry, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Ensure auditRepository implements repository.AuditRepository
var _ repository.AuditRepository = (*auditRepository)(nil)
