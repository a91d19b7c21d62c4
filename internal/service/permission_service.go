package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/bodleian-archive/internal/domain"
	"github.com/prn-tf/bodleian-archive/internal/repository"
)

// PermissionService is the permission evaluator: it resolves role
// permission records and answers capability checks. Permissions are
// read-mostly configuration, so resolved records are cached.
type PermissionService struct {
	roleRepo repository.RoleRepository
	cache    repository.Cache
	cacheTTL time.Duration
	logger   zerolog.Logger
}

// NewPermissionService creates a new PermissionService.
// cache may be nil, in which case every resolution hits the repository.
func NewPermissionService(roleRepo repository.RoleRepository, cache repository.Cache, cacheTTL time.Duration, logger zerolog.Logger) *PermissionService {
	return &PermissionService{
		roleRepo: roleRepo,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger.With().Str("service", "permission").Logger(),
	}
}

// Resolve returns the permission record owned by a role.
func (s *PermissionService) Resolve(ctx context.Context, roleID int64) (*domain.Permission, error) {
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, repository.CacheKeys.Permission(roleID)); err == nil {
			var perm domain.Permission
			if err := json.Unmarshal(data, &perm); err == nil {
				return &perm, nil
			}
			// Unreadable cache entries are dropped, not trusted.
			_ = s.cache.Delete(ctx, repository.CacheKeys.Permission(roleID))
		}
	}

	perm, err := s.roleRepo.GetPermission(ctx, roleID)
	if err != nil {
		if errors.Is(err, domain.ErrPermissionNotFound) || errors.Is(err, domain.ErrRoleNotFound) {
			return nil, err
		}
		s.logger.Error().Err(err).Int64("role_id", roleID).Msg("failed to resolve permission")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	if s.cache != nil {
		if data, err := json.Marshal(perm); err == nil {
			if err := s.cache.Set(ctx, repository.CacheKeys.Permission(roleID), data, s.cacheTTL); err != nil {
				s.logger.Debug().Err(err).Int64("role_id", roleID).Msg("failed to cache permission")
			}
		}
	}

	return perm, nil
}

// ActorFor builds the Actor a request runs as. The permission record is
// resolved even for inactive users; Actor.Can refuses them anyway.
func (s *PermissionService) ActorFor(ctx context.Context, user *domain.User) (*Actor, error) {
	perm, err := s.Resolve(ctx, user.RoleID)
	if err != nil {
		return nil, err
	}
	return &Actor{User: user, Permission: perm}, nil
}

// Authorize checks a single capability for a user. Inactive users are
// always unauthorized; capabilities outside the closed set never authorize.
func (s *PermissionService) Authorize(ctx context.Context, user *domain.User, c domain.Capability) error {
	if user == nil || !user.IsActive {
		return domain.NewDomainError(domain.ErrUnauthorized, "inactive user", "")
	}

	perm, err := s.Resolve(ctx, user.RoleID)
	if err != nil {
		return err
	}

	return authorize(&Actor{User: user, Permission: perm}, c)
}

// ListRoles returns all roles.
func (s *PermissionService) ListRoles(ctx context.Context) ([]*domain.Role, error) {
	roles, err := s.roleRepo.List(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list roles")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return roles, nil
}

// GetRoleByName returns the role with the given name.
func (s *PermissionService) GetRoleByName(ctx context.Context, name string) (*domain.Role, error) {
	role, err := s.roleRepo.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, domain.ErrRoleNotFound) {
			return nil, err
		}
		s.logger.Error().Err(err).Str("role", name).Msg("failed to get role")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return role, nil
}

// UpdatePermission replaces the capability flags of a role's permission
// record. Requires manage-users. The cached record is invalidated so the
// new flags take effect on the next resolution.
func (s *PermissionService) UpdatePermission(ctx context.Context, actor *Actor, perm *domain.Permission) error {
	if err := authorize(actor, domain.CapabilityManageUsers); err != nil {
		return err
	}

	if err := s.roleRepo.UpdatePermission(ctx, perm); err != nil {
		if errors.Is(err, domain.ErrPermissionNotFound) {
			return err
		}
		s.logger.Error().Err(err).Int64("role_id", perm.RoleID).Msg("failed to update permission")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, repository.CacheKeys.Permission(perm.RoleID)); err != nil {
			s.logger.Debug().Err(err).Int64("role_id", perm.RoleID).Msg("failed to invalidate cached permission")
		}
	}

	s.logger.Info().
		Int64("role_id", perm.RoleID).
		Int64("updated_by", actor.UserID()).
		Msg("permission record updated")

	return nil
}
