package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/prn-tf/bodleian-archive/internal/config"
	"github.com/prn-tf/bodleian-archive/internal/domain"
	"github.com/prn-tf/bodleian-archive/internal/lock"
	"github.com/prn-tf/bodleian-archive/internal/pkg/crypto"
	"github.com/prn-tf/bodleian-archive/internal/repository"
)

// SessionService implements login, logout and token resolution. Bearer
// tokens are opaque random values; the service only trusts the resolved
// user identity.
type SessionService struct {
	sessionRepo repository.SessionRepository
	userRepo    repository.UserRepository
	audit       *AuditService
	locker      lock.Locker
	ttl         time.Duration
	logger      zerolog.Logger
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	sessionRepo repository.SessionRepository,
	userRepo repository.UserRepository,
	audit *AuditService,
	locker lock.Locker,
	cfg config.AuthConfig,
	logger zerolog.Logger,
) *SessionService {
	return &SessionService{
		sessionRepo: sessionRepo,
		userRepo:    userRepo,
		audit:       audit,
		locker:      locker,
		ttl:         cfg.SessionTTL,
		logger:      logger.With().Str("service", "session").Logger(),
	}
}

// Login verifies credentials and opens a session. Inactive users and wrong
// passwords fail with the same error so login probing learns nothing.
func (s *SessionService) Login(ctx context.Context, email, password string, meta RequestMeta) (*domain.Session, *domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, nil, domain.ErrInvalidCredentials
		}
		s.logger.Error().Err(err).Msg("failed to load user for login")
		return nil, nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if !user.CanAuthenticate() {
		return nil, nil, domain.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, nil, domain.ErrInvalidCredentials
	}

	token, err := crypto.GenerateSessionToken()
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to generate session token")
		return nil, nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	session := domain.NewSession(user.ID, token, meta.RemoteAddr, s.ttl)
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		s.logger.Error().Err(err).Int64("user_id", user.ID).Msg("failed to create session")
		return nil, nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	if err := s.userRepo.UpdateLastLogin(ctx, user.ID); err != nil {
		s.logger.Warn().Err(err).Int64("user_id", user.ID).Msg("failed to stamp last login")
	}

	entry := domain.NewActivityLogEntry(domain.ActionLogin, fmt.Sprintf("user %q logged in", user.Email))
	entry.UserID = &user.ID
	entry.RemoteAddr = meta.RemoteAddr
	entry.UserAgent = meta.UserAgent
	s.audit.Record(ctx, entry)

	s.logger.Info().Int64("user_id", user.ID).Msg("session opened")
	return session, user, nil
}

// Resolve maps a bearer token to its user. Expired or deactivated sessions
// and inactive users fail resolution.
func (s *SessionService) Resolve(ctx context.Context, token string) (*domain.User, *domain.Session, error) {
	if token == "" {
		return nil, nil, domain.ErrSessionNotFound
	}

	session, err := s.sessionRepo.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if !session.IsValid(time.Now().UTC()) {
		return nil, nil, domain.ErrSessionExpired
	}

	user, err := s.userRepo.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, nil, domain.ErrSessionNotFound
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if !user.IsActive {
		return nil, nil, domain.NewDomainError(domain.ErrUnauthorized, "inactive user", user.Email)
	}

	return user, session, nil
}

// Logout deactivates a session. Idempotent for already-inactive sessions.
func (s *SessionService) Logout(ctx context.Context, session *domain.Session, user *domain.User, meta RequestMeta) error {
	if err := s.sessionRepo.Deactivate(ctx, session.ID); err != nil {
		s.logger.Error().Err(err).Int64("session_id", session.ID).Msg("failed to deactivate session")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	entry := domain.NewActivityLogEntry(domain.ActionLogout, fmt.Sprintf("user %q logged out", user.Email))
	entry.UserID = &user.ID
	entry.RemoteAddr = meta.RemoteAddr
	entry.UserAgent = meta.UserAgent
	s.audit.Record(ctx, entry)

	s.logger.Info().Int64("user_id", user.ID).Msg("session closed")
	return nil
}

// SweepExpired removes sessions past their expiry. The sweep lock keeps
// multiple instances from racing; a contended lock is not an error.
func (s *SessionService) SweepExpired(ctx context.Context) (int64, error) {
	sweepLock := lock.NewLock(s.locker, lock.Keys.SessionSweep())
	acquired, err := sweepLock.Acquire(ctx, time.Minute)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if !acquired {
		return 0, nil
	}
	defer func() {
		if rerr := sweepLock.Release(ctx); rerr != nil {
			s.logger.Warn().Err(rerr).Msg("failed to release sweep lock")
		}
	}()

	removed, err := s.sessionRepo.DeleteExpired(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("session sweep failed")
		return 0, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if removed > 0 {
		s.logger.Info().Int64("removed", removed).Msg("expired sessions swept")
	}
	return removed, nil
}

// RunSweeper runs SweepExpired on the given interval until ctx is done.
func (s *SessionService) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepExpired(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("session sweep iteration failed")
			}
		}
	}
}
