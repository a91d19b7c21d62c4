package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/bodleian-archive/internal/cache/memory"
	"github.com/prn-tf/bodleian-archive/internal/domain"
)

func seedPermissions(roleRepo *mockRoleRepository) {
	roleRepo.On("GetPermission", mock.Anything, int64(1)).Return(&domain.Permission{
		RoleID: 1, CanView: true,
	}, nil)
	roleRepo.On("GetPermission", mock.Anything, int64(2)).Return(&domain.Permission{
		RoleID: 2, CanView: true, CanModify: true, CanAdd: true, CanRemove: true,
	}, nil)
	roleRepo.On("GetPermission", mock.Anything, int64(3)).Return(&domain.Permission{
		RoleID: 3, CanView: true, CanModify: true, CanAdd: true, CanRemove: true, CanManageUsers: true,
	}, nil)
}

func TestPermissionService_Authorize_RoleMatrix(t *testing.T) {
	tests := []struct {
		name       string
		roleID     int64
		capability domain.Capability
		wantErr    bool
	}{
		{name: "user can view", roleID: 1, capability: domain.CapabilityView},
		{name: "user cannot add", roleID: 1, capability: domain.CapabilityAdd, wantErr: true},
		{name: "user cannot remove", roleID: 1, capability: domain.CapabilityRemove, wantErr: true},
		{name: "admin can add", roleID: 2, capability: domain.CapabilityAdd},
		{name: "admin can remove", roleID: 2, capability: domain.CapabilityRemove},
		{name: "admin cannot manage users", roleID: 2, capability: domain.CapabilityManageUsers, wantErr: true},
		{name: "manager can manage users", roleID: 3, capability: domain.CapabilityManageUsers},
		{name: "unknown capability never authorizes", roleID: 3, capability: domain.Capability("publish"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			roleRepo := &mockRoleRepository{}
			seedPermissions(roleRepo)
			svc := NewPermissionService(roleRepo, nil, 0, zerolog.Nop())

			user := &domain.User{ID: 10, RoleID: tt.roleID, IsActive: true}
			err := svc.Authorize(context.Background(), user, tt.capability)

			if tt.wantErr {
				require.ErrorIs(t, err, domain.ErrUnauthorized)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestPermissionService_Authorize_InactiveUser(t *testing.T) {
	roleRepo := &mockRoleRepository{}
	svc := NewPermissionService(roleRepo, nil, 0, zerolog.Nop())

	user := &domain.User{ID: 10, RoleID: 3, IsActive: false}
	err := svc.Authorize(context.Background(), user, domain.CapabilityView)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	roleRepo.AssertNotCalled(t, "GetPermission", mock.Anything, mock.Anything)
}

func TestPermissionService_Resolve_Cached(t *testing.T) {
	roleRepo := &mockRoleRepository{}
	roleRepo.On("GetPermission", mock.Anything, int64(2)).Return(&domain.Permission{
		RoleID: 2, CanView: true, CanAdd: true,
	}, nil).Once()

	cache := memory.NewCache()
	defer cache.Stop()

	svc := NewPermissionService(roleRepo, cache, time.Minute, zerolog.Nop())

	first, err := svc.Resolve(context.Background(), 2)
	require.NoError(t, err)
	require.True(t, first.CanAdd)

	// Second resolution is served from cache; the Once expectation above
	// fails the test if the repository is hit again.
	second, err := svc.Resolve(context.Background(), 2)
	require.NoError(t, err)
	require.True(t, second.CanAdd)

	roleRepo.AssertExpectations(t)
}

func TestPermissionService_UpdatePermission(t *testing.T) {
	t.Run("requires manage-users", func(t *testing.T) {
		roleRepo := &mockRoleRepository{}
		svc := NewPermissionService(roleRepo, nil, 0, zerolog.Nop())

		err := svc.UpdatePermission(context.Background(), adminActor(), &domain.Permission{RoleID: 1})
		require.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("invalidates cached record", func(t *testing.T) {
		roleRepo := &mockRoleRepository{}
		roleRepo.On("GetPermission", mock.Anything, int64(1)).Return(&domain.Permission{
			RoleID: 1, CanView: true,
		}, nil).Once()
		roleRepo.On("UpdatePermission", mock.Anything, mock.AnythingOfType("*domain.Permission")).Return(nil)
		roleRepo.On("GetPermission", mock.Anything, int64(1)).Return(&domain.Permission{
			RoleID: 1, CanView: true, CanAdd: true,
		}, nil).Once()

		cache := memory.NewCache()
		defer cache.Stop()
		svc := NewPermissionService(roleRepo, cache, time.Minute, zerolog.Nop())

		before, err := svc.Resolve(context.Background(), 1)
		require.NoError(t, err)
		require.False(t, before.CanAdd)

		err = svc.UpdatePermission(context.Background(), managerActor(), &domain.Permission{RoleID: 1, CanView: true, CanAdd: true})
		require.NoError(t, err)

		after, err := svc.Resolve(context.Background(), 1)
		require.NoError(t, err)
		require.True(t, after.CanAdd)

		roleRepo.AssertExpectations(t)
	})
}
