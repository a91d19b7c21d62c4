package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/prn-tf/bodleian-archive/internal/domain"
	"github.com/prn-tf/bodleian-archive/internal/repository"
)

func newTestUserService(t *testing.T) (*UserService, *mockUserRepository, *mockRoleRepository, *mockDocumentRepository) {
	t.Helper()
	userRepo := &mockUserRepository{}
	roleRepo := &mockRoleRepository{}
	docRepo := &mockDocumentRepository{}

	audit, _ := newTestAudit()
	t.Cleanup(audit.Close)

	svc := NewUserService(userRepo, roleRepo, docRepo, audit, bcrypt.MinCost, zerolog.Nop())
	return svc, userRepo, roleRepo, docRepo
}

func TestUserService_Create(t *testing.T) {
	tests := []struct {
		name    string
		actor   *Actor
		input   CreateUserInput
		setup   func(*mockUserRepository, *mockRoleRepository)
		wantErr error
	}{
		{
			name:  "success",
			actor: managerActor(),
			input: CreateUserInput{
				Email:       "Alex@Example.com",
				Password:    "correct horse",
				DisplayName: "Alex",
				RoleID:      1,
			},
			setup: func(userRepo *mockUserRepository, roleRepo *mockRoleRepository) {
				userRepo.On("ExistsByEmail", mock.Anything, "alex@example.com").Return(false, nil)
				roleRepo.On("GetByID", mock.Anything, int64(1)).Return(&domain.Role{ID: 1, Name: "user"}, nil)
				userRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.User")).Return(nil)
			},
		},
		{
			name:  "admin lacks manage-users",
			actor: adminActor(),
			input: CreateUserInput{
				Email:       "alex@example.com",
				Password:    "correct horse",
				DisplayName: "Alex",
				RoleID:      1,
			},
			setup:   func(*mockUserRepository, *mockRoleRepository) {},
			wantErr: domain.ErrUnauthorized,
		},
		{
			name:  "short password",
			actor: managerActor(),
			input: CreateUserInput{
				Email:       "alex@example.com",
				Password:    "short",
				DisplayName: "Alex",
				RoleID:      1,
			},
			setup:   func(*mockUserRepository, *mockRoleRepository) {},
			wantErr: ErrInvalidPassword,
		},
		{
			name:  "malformed email",
			actor: managerActor(),
			input: CreateUserInput{
				Email:       "not-an-email",
				Password:    "correct horse",
				DisplayName: "Alex",
				RoleID:      1,
			},
			setup:   func(*mockUserRepository, *mockRoleRepository) {},
			wantErr: ErrInvalidEmail,
		},
		{
			name:  "duplicate email",
			actor: managerActor(),
			input: CreateUserInput{
				Email:       "alex@example.com",
				Password:    "correct horse",
				DisplayName: "Alex",
				RoleID:      1,
			},
			setup: func(userRepo *mockUserRepository, roleRepo *mockRoleRepository) {
				userRepo.On("ExistsByEmail", mock.Anything, "alex@example.com").Return(true, nil)
			},
			wantErr: domain.ErrUserAlreadyExists,
		},
		{
			name:  "unknown role",
			actor: managerActor(),
			input: CreateUserInput{
				Email:       "alex@example.com",
				Password:    "correct horse",
				DisplayName: "Alex",
				RoleID:      99,
			},
			setup: func(userRepo *mockUserRepository, roleRepo *mockRoleRepository) {
				userRepo.On("ExistsByEmail", mock.Anything, "alex@example.com").Return(false, nil)
				roleRepo.On("GetByID", mock.Anything, int64(99)).Return(nil, domain.ErrRoleNotFound)
			},
			wantErr: domain.ErrInvalidReference,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, userRepo, roleRepo, _ := newTestUserService(t)
			tt.setup(userRepo, roleRepo)

			user, err := svc.Create(context.Background(), tt.actor, tt.input)

			if tt.wantErr != nil {
				require.Error(t, err)
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				require.Equal(t, "alex@example.com", user.Email)
				require.True(t, user.IsActive)
				require.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(tt.input.Password)))
			}

			mock.AssertExpectationsForObjects(t, userRepo, roleRepo)
		})
	}
}

func TestUserService_Delete(t *testing.T) {
	t.Run("user with created documents cannot be deleted", func(t *testing.T) {
		svc, userRepo, _, docRepo := newTestUserService(t)

		userRepo.On("GetByID", mock.Anything, int64(5)).Return(&domain.User{ID: 5, Email: "a@b.de", IsActive: true}, nil)
		docRepo.On("CountByCreator", mock.Anything, int64(5)).Return(int64(3), nil)

		err := svc.Delete(context.Background(), managerActor(), 5, RequestMeta{})
		require.ErrorIs(t, err, domain.ErrInvalidReference)

		userRepo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	})

	t.Run("modifier references cleared before delete", func(t *testing.T) {
		svc, userRepo, _, docRepo := newTestUserService(t)

		userRepo.On("GetByID", mock.Anything, int64(5)).Return(&domain.User{ID: 5, Email: "a@b.de", IsActive: true}, nil)
		docRepo.On("CountByCreator", mock.Anything, int64(5)).Return(int64(0), nil)
		docRepo.On("ClearModifier", mock.Anything, int64(5)).Return(nil)
		userRepo.On("Delete", mock.Anything, int64(5)).Return(nil)

		err := svc.Delete(context.Background(), managerActor(), 5, RequestMeta{})
		require.NoError(t, err)

		mock.AssertExpectationsForObjects(t, userRepo, docRepo)
	})
}

func TestUserService_SetActive(t *testing.T) {
	svc, userRepo, _, _ := newTestUserService(t)

	userRepo.On("GetByID", mock.Anything, int64(5)).Return(&domain.User{ID: 5, Email: "a@b.de", IsActive: true}, nil)
	userRepo.On("Update", mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
		return !u.IsActive
	})).Return(nil)

	user, err := svc.SetActive(context.Background(), managerActor(), 5, false, RequestMeta{})
	require.NoError(t, err)
	require.False(t, user.IsActive)
}

func TestUserService_SetRole(t *testing.T) {
	svc, userRepo, roleRepo, _ := newTestUserService(t)

	userRepo.On("GetByID", mock.Anything, int64(5)).Return(&domain.User{ID: 5, Email: "a@b.de", RoleID: 1, IsActive: true}, nil)
	roleRepo.On("GetByID", mock.Anything, int64(2)).Return(&domain.Role{ID: 2, Name: "admin"}, nil)
	userRepo.On("Update", mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
		return u.RoleID == 2
	})).Return(nil)

	user, err := svc.SetRole(context.Background(), managerActor(), 5, 2, RequestMeta{})
	require.NoError(t, err)
	require.Equal(t, int64(2), user.RoleID)
}

func TestUserService_UpdatePassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("old password"), bcrypt.MinCost)
	require.NoError(t, err)

	t.Run("success", func(t *testing.T) {
		svc, userRepo, _, _ := newTestUserService(t)
		actor := userActor()

		userRepo.On("GetByID", mock.Anything, actor.UserID()).Return(&domain.User{ID: actor.UserID(), Email: "a@b.de", PasswordHash: string(hash), IsActive: true}, nil)
		userRepo.On("Update", mock.Anything, mock.AnythingOfType("*domain.User")).Return(nil)

		err := svc.UpdatePassword(context.Background(), actor, "old password", "new password", RequestMeta{})
		require.NoError(t, err)
	})

	t.Run("wrong current password", func(t *testing.T) {
		svc, userRepo, _, _ := newTestUserService(t)
		actor := userActor()

		userRepo.On("GetByID", mock.Anything, actor.UserID()).Return(&domain.User{ID: actor.UserID(), Email: "a@b.de", PasswordHash: string(hash), IsActive: true}, nil)

		err := svc.UpdatePassword(context.Background(), actor, "wrong", "new password", RequestMeta{})
		require.ErrorIs(t, err, domain.ErrInvalidCredentials)
	})
}

func TestUserService_List_Unauthorized(t *testing.T) {
	svc, _, _, _ := newTestUserService(t)

	_, err := svc.List(context.Background(), adminActor(), repository.ListOptions{Limit: 20})
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}
