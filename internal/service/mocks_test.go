// Package service provides business logic services for Bodleian Archive.
package service

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"

	"github.com/prn-tf/bodleian-archive/internal/config"
	"github.com/prn-tf/bodleian-archive/internal/domain"
	"github.com/prn-tf/bodleian-archive/internal/repository"
)

// =============================================================================
// Mock Repository Types
// =============================================================================

type mockDocumentRepository struct {
	mock.Mock
}

func (m *mockDocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	args := m.Called(ctx, doc)
	return args.Error(0)
}

func (m *mockDocumentRepository) GetByID(ctx context.Context, id int64) (*domain.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *mockDocumentRepository) Update(ctx context.Context, doc *domain.Document) error {
	args := m.Called(ctx, doc)
	return args.Error(0)
}

func (m *mockDocumentRepository) UpdateStatus(ctx context.Context, id int64, status domain.DocumentStatus, modifiedBy int64) error {
	args := m.Called(ctx, id, status, modifiedBy)
	return args.Error(0)
}

func (m *mockDocumentRepository) Search(ctx context.Context, opts repository.SearchOptions) (*repository.ListResult[domain.Document], error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.ListResult[domain.Document]), args.Error(1)
}

func (m *mockDocumentRepository) SumActiveSizeByLocation(ctx context.Context, locationID int64) (int64, error) {
	args := m.Called(ctx, locationID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockDocumentRepository) CountActiveByLocation(ctx context.Context, locationID int64) (int64, error) {
	args := m.Called(ctx, locationID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockDocumentRepository) CountActiveByType(ctx context.Context, typeID int64) (int64, error) {
	args := m.Called(ctx, typeID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockDocumentRepository) CountByCreator(ctx context.Context, userID int64) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockDocumentRepository) ClearModifier(ctx context.Context, userID int64) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

type mockLocationRepository struct {
	mock.Mock
}

func (m *mockLocationRepository) Create(ctx context.Context, loc *domain.StorageLocation) error {
	args := m.Called(ctx, loc)
	return args.Error(0)
}

func (m *mockLocationRepository) GetByID(ctx context.Context, id int64) (*domain.StorageLocation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.StorageLocation), args.Error(1)
}

func (m *mockLocationRepository) GetByName(ctx context.Context, name string) (*domain.StorageLocation, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.StorageLocation), args.Error(1)
}

func (m *mockLocationRepository) List(ctx context.Context) ([]*domain.StorageLocation, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.StorageLocation), args.Error(1)
}

func (m *mockLocationRepository) Update(ctx context.Context, loc *domain.StorageLocation) error {
	args := m.Called(ctx, loc)
	return args.Error(0)
}

func (m *mockLocationRepository) UpdateUsedBytes(ctx context.Context, id int64, usedBytes int64) error {
	args := m.Called(ctx, id, usedBytes)
	return args.Error(0)
}

func (m *mockLocationRepository) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type mockDocumentTypeRepository struct {
	mock.Mock
}

func (m *mockDocumentTypeRepository) Create(ctx context.Context, t *domain.DocumentType) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *mockDocumentTypeRepository) GetByID(ctx context.Context, id int64) (*domain.DocumentType, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DocumentType), args.Error(1)
}

func (m *mockDocumentTypeRepository) GetByName(ctx context.Context, name string) (*domain.DocumentType, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DocumentType), args.Error(1)
}

func (m *mockDocumentTypeRepository) List(ctx context.Context) ([]*domain.DocumentType, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.DocumentType), args.Error(1)
}

func (m *mockDocumentTypeRepository) Update(ctx context.Context, t *domain.DocumentType) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *mockDocumentTypeRepository) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type mockUserRepository struct {
	mock.Mock
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) Update(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepository) UpdateLastLogin(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockUserRepository) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockUserRepository) List(ctx context.Context, opts repository.ListOptions) (*repository.ListResult[domain.User], error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.ListResult[domain.User]), args.Error(1)
}

func (m *mockUserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

type mockRoleRepository struct {
	mock.Mock
}

func (m *mockRoleRepository) GetByID(ctx context.Context, id int64) (*domain.Role, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Role), args.Error(1)
}

func (m *mockRoleRepository) GetByName(ctx context.Context, name string) (*domain.Role, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Role), args.Error(1)
}

func (m *mockRoleRepository) List(ctx context.Context) ([]*domain.Role, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Role), args.Error(1)
}

func (m *mockRoleRepository) GetPermission(ctx context.Context, roleID int64) (*domain.Permission, error) {
	args := m.Called(ctx, roleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Permission), args.Error(1)
}

func (m *mockRoleRepository) UpdatePermission(ctx context.Context, perm *domain.Permission) error {
	args := m.Called(ctx, perm)
	return args.Error(0)
}

func (m *mockRoleRepository) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockRoleRepository) CountUsers(ctx context.Context, roleID int64) (int64, error) {
	args := m.Called(ctx, roleID)
	return args.Get(0).(int64), args.Error(1)
}

type mockSessionRepository struct {
	mock.Mock
}

func (m *mockSessionRepository) Create(ctx context.Context, s *domain.Session) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *mockSessionRepository) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *mockSessionRepository) Deactivate(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockSessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type mockAuditRepository struct {
	mock.Mock
}

func (m *mockAuditRepository) Append(ctx context.Context, entry *domain.ActivityLogEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *mockAuditRepository) ListByDocument(ctx context.Context, documentID int64, opts repository.ListOptions) (*repository.ListResult[domain.ActivityLogEntry], error) {
	args := m.Called(ctx, documentID, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.ListResult[domain.ActivityLogEntry]), args.Error(1)
}

func (m *mockAuditRepository) ListByUser(ctx context.Context, userID int64, opts repository.ListOptions) (*repository.ListResult[domain.ActivityLogEntry], error) {
	args := m.Called(ctx, userID, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.ListResult[domain.ActivityLogEntry]), args.Error(1)
}

func (m *mockAuditRepository) List(ctx context.Context, opts repository.ListOptions) (*repository.ListResult[domain.ActivityLogEntry], error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.ListResult[domain.ActivityLogEntry]), args.Error(1)
}

type mockStorageBackend struct {
	mock.Mock
}

func (m *mockStorageBackend) Store(ctx context.Context, path string, reader io.Reader) (string, int64, error) {
	args := m.Called(ctx, path, reader)
	return args.String(0), args.Get(1).(int64), args.Error(2)
}

func (m *mockStorageBackend) Retrieve(ctx context.Context, path string) (io.ReadCloser, error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *mockStorageBackend) Delete(ctx context.Context, path string) error {
	args := m.Called(ctx, path)
	return args.Error(0)
}

func (m *mockStorageBackend) Exists(ctx context.Context, path string) (bool, error) {
	args := m.Called(ctx, path)
	return args.Bool(0), args.Error(1)
}

// =============================================================================
// Actor Fixtures
// =============================================================================

func actorWith(userID int64, perm *domain.Permission) *Actor {
	return &Actor{
		User: &domain.User{
			ID:       userID,
			Email:    "actor@example.com",
			IsActive: true,
			RoleID:   perm.RoleID,
		},
		Permission: perm,
	}
}

// managerActor holds all five capabilities.
func managerActor() *Actor {
	return actorWith(1, &domain.Permission{
		RoleID: 3, CanView: true, CanModify: true, CanAdd: true, CanRemove: true, CanManageUsers: true,
	})
}

// adminActor holds every document capability but not manage-users.
func adminActor() *Actor {
	return actorWith(2, &domain.Permission{
		RoleID: 2, CanView: true, CanModify: true, CanAdd: true, CanRemove: true,
	})
}

// userActor holds view only.
func userActor() *Actor {
	return actorWith(3, &domain.Permission{
		RoleID: 1, CanView: true,
	})
}

func inactiveActor() *Actor {
	a := managerActor()
	a.User.IsActive = false
	return a
}

// =============================================================================
// Service Fixtures
// =============================================================================

// newTestAudit returns an AuditService whose primary sink accepts every
// entry. Close it to stop the retry worker.
func newTestAudit() (*AuditService, *mockAuditRepository) {
	repo := &mockAuditRepository{}
	repo.On("Append", mock.Anything, mock.Anything).Return(nil).Maybe()
	svc := NewAuditService(repo, nil, config.AuditConfig{RetryAttempts: 1, RetryDelay: 0, QueueSize: 8}, nil, zerolog.Nop())
	return svc, repo
}

func testCapacityConfig() config.CapacityConfig {
	return config.CapacityConfig{
		LockTTL:        5 * time.Second,
		LockRetries:    2,
		LockRetryDelay: 0,
		WarnThreshold:  0.9,
	}
}
