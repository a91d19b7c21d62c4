package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/prn-tf/bodleian-archive/internal/domain"
	"github.com/prn-tf/bodleian-archive/internal/repository"
)

// sessionRepository implements repository.SessionRepository for SQLite.
type sessionRepository struct {
	db *DB
}

// NewSessionRepository creates a new SQLite session repository.
func NewSessionRepository(db *DB) repository.SessionRepository {
	return &sessionRepository{db: db}
}

// Create opens a new session.
func (r *sessionRepository) Create(ctx context.Context, s *domain.Session) error {
	query := `
		INSERT INTO sessions (user_id, token, remote_addr, is_active, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		s.UserID,
		s.Token,
		s.RemoteAddr,
		boolToInt(s.IsActive),
		formatTime(s.CreatedAt),
		formatTime(s.ExpiresAt),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrUserNotFound
		}
		return fmt.Errorf("failed to create session: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	s.ID = id

	return nil
}

// GetByToken retrieves a session by its opaque token.
func (r *sessionRepository) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	query := `
		SELECT id, user_id, token, remote_addr, is_active, created_at, expires_at
		FROM sessions
		WHERE token = ?
	`

	s := &domain.Session{}
	var isActive int
	var createdAt, expiresAt string

	err := r.db.QueryRowContext(ctx, query, token).Scan(
		&s.ID,
		&s.UserID,
		&s.Token,
		&s.RemoteAddr,
		&isActive,
		&createdAt,
		&expiresAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	s.IsActive = isActive != 0
	s.CreatedAt = parseTime(createdAt)
	s.ExpiresAt = parseTime(expiresAt)

	return s, nil
}

// Deactivate marks a session inactive (logout).
func (r *sessionRepository) Deactivate(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `UPDATE sessions SET is_active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate session: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// DeleteExpired removes sessions past their expiry.
func (r *sessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at < ?`, formatTime(time.Now().UTC()))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return result.RowsAffected()
}

// Ensure sessionRepository implements repository.SessionRepository.
var _ repository.SessionRepository = (*sessionRepository)(nil)
