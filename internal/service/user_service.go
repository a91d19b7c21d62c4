package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/prn-tf/bodleian-archive/internal/domain"
	"github.com/prn-tf/bodleian-archive/internal/repository"
)

// UserService implements the user directory operations. Everything except
// a user changing their own password requires manage-users.
type UserService struct {
	userRepo   repository.UserRepository
	roleRepo   repository.RoleRepository
	docRepo    repository.DocumentRepository
	audit      *AuditService
	bcryptCost int
	logger     zerolog.Logger
}

// NewUserService creates a new UserService.
func NewUserService(
	userRepo repository.UserRepository,
	roleRepo repository.RoleRepository,
	docRepo repository.DocumentRepository,
	audit *AuditService,
	bcryptCost int,
	logger zerolog.Logger,
) *UserService {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &UserService{
		userRepo:   userRepo,
		roleRepo:   roleRepo,
		docRepo:    docRepo,
		audit:      audit,
		bcryptCost: bcryptCost,
		logger:     logger.With().Str("service", "user").Logger(),
	}
}

// CreateUserInput contains the data needed to create a user.
type CreateUserInput struct {
	Email       string
	Password    string
	DisplayName string
	RoleID      int64
	Meta        RequestMeta
}

// Create creates a new user account. Requires manage-users. The email must
// be unique and the role must exist.
func (s *UserService) Create(ctx context.Context, actor *Actor, input CreateUserInput) (*domain.User, error) {
	if err := authorize(actor, domain.CapabilityManageUsers); err != nil {
		return nil, err
	}

	email := strings.ToLower(strings.TrimSpace(input.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidEmail
	}
	if len(input.Password) < 8 {
		return nil, ErrInvalidPassword
	}
	displayName := strings.TrimSpace(input.DisplayName)
	if displayName == "" || len(displayName) > 255 {
		return nil, ErrInvalidDisplayName
	}

	exists, err := s.userRepo.ExistsByEmail(ctx, email)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to check email existence")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if exists {
		return nil, domain.NewDomainError(domain.ErrUserAlreadyExists, "email already registered", email)
	}

	role, err := s.roleRepo.GetByID(ctx, input.RoleID)
	if err != nil {
		if errors.Is(err, domain.ErrRoleNotFound) {
			return nil, domain.NewDomainError(domain.ErrInvalidReference, "role does not exist", "")
		}
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.bcryptCost)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to hash password")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	now := time.Now().UTC()
	user := &domain.User{
		Email:        email,
		PasswordHash: string(hash),
		DisplayName:  displayName,
		RoleID:       role.ID,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrUserAlreadyExists) {
			return nil, domain.NewDomainError(domain.ErrUserAlreadyExists, "email already registered", email)
		}
		s.logger.Error().Err(err).Msg("failed to create user")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.recordAudit(ctx, actor, fmt.Sprintf("user %q created with role %q", email, role.Name), nil, user.Snapshot(), input.Meta)

	s.logger.Info().
		Int64("user_id", user.ID).
		Str("email", email).
		Str("role", role.Name).
		Msg("user created")

	return user, nil
}

// Get retrieves a user by ID. Requires manage-users unless the actor asks
// about themselves.
func (s *UserService) Get(ctx context.Context, actor *Actor, userID int64) (*domain.User, error) {
	if actor.UserID() != userID {
		if err := authorize(actor, domain.CapabilityManageUsers); err != nil {
			return nil, err
		}
	}
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return user, nil
}

// List returns all users with pagination. Requires manage-users.
func (s *UserService) List(ctx context.Context, actor *Actor, opts repository.ListOptions) (*repository.ListResult[domain.User], error) {
	if err := authorize(actor, domain.CapabilityManageUsers); err != nil {
		return nil, err
	}
	result, err := s.userRepo.List(ctx, clampList(opts))
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list users")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return result, nil
}

// SetActive toggles a user's active flag. Requires manage-users.
// Deactivated users fail authentication and every authorization check.
func (s *UserService) SetActive(ctx context.Context, actor *Actor, userID int64, active bool, meta RequestMeta) (*domain.User, error) {
	if err := authorize(actor, domain.CapabilityManageUsers); err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if user.IsActive == active {
		return user, nil
	}

	before := user.Snapshot()
	user.IsActive = active
	user.UpdatedAt = time.Now().UTC()
	if err := s.userRepo.Update(ctx, user); err != nil {
		s.logger.Error().Err(err).Int64("user_id", userID).Msg("failed to update user")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	verb := "deactivated"
	if active {
		verb = "activated"
	}
	s.recordAudit(ctx, actor, fmt.Sprintf("user %q %s", user.Email, verb), before, user.Snapshot(), meta)

	s.logger.Info().Int64("user_id", userID).Bool("active", active).Msg("user active flag changed")
	return user, nil
}

// SetRole changes a user's role. Requires manage-users. The change takes
// effect on the user's next authorization check.
func (s *UserService) SetRole(ctx context.Context, actor *Actor, userID, roleID int64, meta RequestMeta) (*domain.User, error) {
	if err := authorize(actor, domain.CapabilityManageUsers); err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	role, err := s.roleRepo.GetByID(ctx, roleID)
	if err != nil {
		if errors.Is(err, domain.ErrRoleNotFound) {
			return nil, domain.NewDomainError(domain.ErrInvalidReference, "role does not exist", "")
		}
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if user.RoleID == role.ID {
		return user, nil
	}

	before := user.Snapshot()
	user.RoleID = role.ID
	user.UpdatedAt = time.Now().UTC()
	if err := s.userRepo.Update(ctx, user); err != nil {
		s.logger.Error().Err(err).Int64("user_id", userID).Msg("failed to update user")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.recordAudit(ctx, actor, fmt.Sprintf("user %q assigned role %q", user.Email, role.Name), before, user.Snapshot(), meta)

	s.logger.Info().Int64("user_id", userID).Str("role", role.Name).Msg("user role changed")
	return user, nil
}

// UpdatePassword changes the actor's own password after verifying the
// current one.
func (s *UserService) UpdatePassword(ctx context.Context, actor *Actor, currentPassword, newPassword string, meta RequestMeta) error {
	if actor == nil || actor.User == nil {
		return domain.NewDomainError(domain.ErrUnauthorized, "no authenticated user", "")
	}
	if len(newPassword) < 8 {
		return ErrInvalidPassword
	}

	user, err := s.userRepo.GetByID(ctx, actor.UserID())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(currentPassword)); err != nil {
		return domain.ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.bcryptCost)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to hash password")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	user.PasswordHash = string(hash)
	user.UpdatedAt = time.Now().UTC()
	if err := s.userRepo.Update(ctx, user); err != nil {
		s.logger.Error().Err(err).Int64("user_id", user.ID).Msg("failed to update user")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.recordAudit(ctx, actor, fmt.Sprintf("user %q changed password", user.Email), nil, nil, meta)

	s.logger.Info().Int64("user_id", user.ID).Msg("password updated")
	return nil
}

// Delete removes a user account. Requires manage-users. A user who created
// documents cannot be deleted; deactivate them instead. Modifier and audit
// references to the user are cleared, never rejected, so the activity log
// stays complete.
func (s *UserService) Delete(ctx context.Context, actor *Actor, userID int64, meta RequestMeta) error {
	if err := authorize(actor, domain.CapabilityManageUsers); err != nil {
		return err
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	created, err := s.docRepo.CountByCreator(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if created > 0 {
		return domain.NewDomainError(domain.ErrInvalidReference,
			fmt.Sprintf("user created %d documents, deactivate instead", created), user.Email)
	}

	before := user.Snapshot()

	if err := s.docRepo.ClearModifier(ctx, userID); err != nil {
		s.logger.Error().Err(err).Int64("user_id", userID).Msg("failed to clear modifier references")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if err := s.userRepo.Delete(ctx, userID); err != nil {
		s.logger.Error().Err(err).Int64("user_id", userID).Msg("failed to delete user")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.recordAudit(ctx, actor, fmt.Sprintf("user %q deleted", user.Email), before, nil, meta)

	s.logger.Info().Int64("user_id", userID).Str("email", user.Email).Msg("user deleted")
	return nil
}

func (s *UserService) recordAudit(ctx context.Context, actor *Actor, description string, before, after domain.Snapshot, meta RequestMeta) {
	entry := domain.NewActivityLogEntry(domain.ActionManageUsers, description)
	userID := actor.UserID()
	entry.UserID = &userID
	entry.Before = before
	entry.After = after
	entry.RemoteAddr = meta.RemoteAddr
	entry.UserAgent = meta.UserAgent
	s.audit.Record(ctx, entry)
}
