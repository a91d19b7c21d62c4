package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/prn-tf/bodleian-archive/internal/config"
	"github.com/prn-tf/bodleian-archive/internal/domain"
	"github.com/prn-tf/bodleian-archive/internal/lock"
)

func newTestSessionService(t *testing.T) (*SessionService, *mockSessionRepository, *mockUserRepository) {
	t.Helper()
	sessionRepo := &mockSessionRepository{}
	userRepo := &mockUserRepository{}

	audit, _ := newTestAudit()
	t.Cleanup(audit.Close)

	svc := NewSessionService(sessionRepo, userRepo, audit, lock.NewMemoryLocker(), config.AuthConfig{
		SessionTTL: time.Hour,
	}, zerolog.Nop())
	return svc, sessionRepo, userRepo
}

func testAccount(t *testing.T, password string) *domain.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &domain.User{ID: 5, Email: "alex@example.com", PasswordHash: string(hash), RoleID: 1, IsActive: true}
}

func TestSessionService_Login(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		svc, sessionRepo, userRepo := newTestSessionService(t)
		account := testAccount(t, "correct horse")

		userRepo.On("GetByEmail", mock.Anything, "alex@example.com").Return(account, nil)
		sessionRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Session")).Return(nil)
		userRepo.On("UpdateLastLogin", mock.Anything, int64(5)).Return(nil)

		session, user, err := svc.Login(context.Background(), "Alex@Example.com", "correct horse", RequestMeta{RemoteAddr: "10.0.0.1"})
		require.NoError(t, err)
		require.Equal(t, int64(5), user.ID)
		require.NotEmpty(t, session.Token)
		require.True(t, session.IsValid(time.Now().UTC()))
	})

	t.Run("wrong password", func(t *testing.T) {
		svc, _, userRepo := newTestSessionService(t)
		userRepo.On("GetByEmail", mock.Anything, "alex@example.com").Return(testAccount(t, "correct horse"), nil)

		_, _, err := svc.Login(context.Background(), "alex@example.com", "wrong", RequestMeta{})
		require.ErrorIs(t, err, domain.ErrInvalidCredentials)
	})

	t.Run("unknown email and inactive user fail identically", func(t *testing.T) {
		svc, _, userRepo := newTestSessionService(t)
		inactive := testAccount(t, "correct horse")
		inactive.IsActive = false

		userRepo.On("GetByEmail", mock.Anything, "ghost@example.com").Return(nil, domain.ErrUserNotFound)
		userRepo.On("GetByEmail", mock.Anything, "alex@example.com").Return(inactive, nil)

		_, _, err1 := svc.Login(context.Background(), "ghost@example.com", "correct horse", RequestMeta{})
		_, _, err2 := svc.Login(context.Background(), "alex@example.com", "correct horse", RequestMeta{})
		require.ErrorIs(t, err1, domain.ErrInvalidCredentials)
		require.ErrorIs(t, err2, domain.ErrInvalidCredentials)
	})
}

func TestSessionService_Resolve(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		svc, sessionRepo, userRepo := newTestSessionService(t)
		account := testAccount(t, "pw12345678")
		session := domain.NewSession(account.ID, "tok", "10.0.0.1", time.Hour)

		sessionRepo.On("GetByToken", mock.Anything, "tok").Return(session, nil)
		userRepo.On("GetByID", mock.Anything, int64(5)).Return(account, nil)

		user, got, err := svc.Resolve(context.Background(), "tok")
		require.NoError(t, err)
		require.Equal(t, account.ID, user.ID)
		require.Equal(t, session, got)
	})

	t.Run("expired session", func(t *testing.T) {
		svc, sessionRepo, _ := newTestSessionService(t)
		expired := domain.NewSession(5, "tok", "", -time.Minute)

		sessionRepo.On("GetByToken", mock.Anything, "tok").Return(expired, nil)

		_, _, err := svc.Resolve(context.Background(), "tok")
		require.ErrorIs(t, err, domain.ErrSessionExpired)
	})

	t.Run("deactivated session", func(t *testing.T) {
		svc, sessionRepo, _ := newTestSessionService(t)
		loggedOut := domain.NewSession(5, "tok", "", time.Hour)
		loggedOut.IsActive = false

		sessionRepo.On("GetByToken", mock.Anything, "tok").Return(loggedOut, nil)

		_, _, err := svc.Resolve(context.Background(), "tok")
		require.ErrorIs(t, err, domain.ErrSessionExpired)
	})

	t.Run("deactivated user", func(t *testing.T) {
		svc, sessionRepo, userRepo := newTestSessionService(t)
		account := testAccount(t, "pw12345678")
		account.IsActive = false

		sessionRepo.On("GetByToken", mock.Anything, "tok").Return(domain.NewSession(5, "tok", "", time.Hour), nil)
		userRepo.On("GetByID", mock.Anything, int64(5)).Return(account, nil)

		_, _, err := svc.Resolve(context.Background(), "tok")
		require.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("empty token", func(t *testing.T) {
		svc, _, _ := newTestSessionService(t)

		_, _, err := svc.Resolve(context.Background(), "")
		require.ErrorIs(t, err, domain.ErrSessionNotFound)
	})
}

func TestSessionService_Logout(t *testing.T) {
	svc, sessionRepo, _ := newTestSessionService(t)
	account := testAccount(t, "pw12345678")
	session := domain.NewSession(account.ID, "tok", "", time.Hour)
	session.ID = 11

	sessionRepo.On("Deactivate", mock.Anything, int64(11)).Return(nil)

	err := svc.Logout(context.Background(), session, account, RequestMeta{})
	require.NoError(t, err)
	sessionRepo.AssertExpectations(t)
}

func TestSessionService_SweepExpired(t *testing.T) {
	t.Run("removes expired sessions", func(t *testing.T) {
		svc, sessionRepo, _ := newTestSessionService(t)
		sessionRepo.On("DeleteExpired", mock.Anything).Return(int64(3), nil)

		removed, err := svc.SweepExpired(context.Background())
		require.NoError(t, err)
		require.Equal(t, int64(3), removed)
	})

	t.Run("contended sweep lock is a no-op", func(t *testing.T) {
		locker := lock.NewMemoryLocker()
		acquired, err := locker.Acquire(context.Background(), lock.Keys.SessionSweep(), time.Minute)
		require.NoError(t, err)
		require.True(t, acquired)

		sessionRepo := &mockSessionRepository{}
		audit, _ := newTestAudit()
		t.Cleanup(audit.Close)
		svc := NewSessionService(sessionRepo, &mockUserRepository{}, audit, locker, config.AuthConfig{SessionTTL: time.Hour}, zerolog.Nop())

		removed, err := svc.SweepExpired(context.Background())
		require.NoError(t, err)
		require.Equal(t, int64(0), removed)

		sessionRepo.AssertNotCalled(t, "DeleteExpired", mock.Anything)
	})
}
