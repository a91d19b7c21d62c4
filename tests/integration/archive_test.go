// Package integration provides end-to-end tests for the Bodleian Archive
// backend. The full stack runs in-process against an in-memory SQLite
// database and a filesystem storage backend under t.TempDir().
package integration

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/prn-tf/bodleian-archive/internal/cache/memory"
	"github.com/prn-tf/bodleian-archive/internal/config"
	"github.com/prn-tf/bodleian-archive/internal/domain"
	"github.com/prn-tf/bodleian-archive/internal/lock"
	"github.com/prn-tf/bodleian-archive/internal/repository"
	"github.com/prn-tf/bodleian-archive/internal/repository/sqlite"
	"github.com/prn-tf/bodleian-archive/internal/service"
	"github.com/prn-tf/bodleian-archive/internal/storage"
)

type testEnv struct {
	db          *sqlite.DB
	documents   *service.DocumentService
	locations   *service.LocationService
	types       *service.DocumentTypeService
	users       *service.UserService
	sessions    *service.SessionService
	permissions *service.PermissionService
	capacity    *service.CapacityService
	audit       *service.AuditService
	locRepo     repository.LocationRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := zerolog.Nop()

	db, err := sqlite.NewDB(ctx, sqlite.DefaultConfig(":memory:"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(ctx))

	docRepo := sqlite.NewDocumentRepository(db)
	typeRepo := sqlite.NewDocumentTypeRepository(db)
	locRepo := sqlite.NewLocationRepository(db)
	userRepo := sqlite.NewUserRepository(db)
	roleRepo := sqlite.NewRoleRepository(db)
	sessionRepo := sqlite.NewSessionRepository(db)
	auditRepo := sqlite.NewAuditRepository(db)

	backend, err := storage.NewFilesystemBackend(t.TempDir(), t.TempDir(), logger)
	require.NoError(t, err)

	locker := lock.NewMemoryLocker()
	permCache := memory.NewCache()
	t.Cleanup(permCache.Stop)

	auditSvc := service.NewAuditService(auditRepo, nil, config.AuditConfig{
		RetryAttempts: 2,
		RetryDelay:    time.Millisecond,
		QueueSize:     16,
	}, nil, logger)
	t.Cleanup(auditSvc.Close)

	capacitySvc := service.NewCapacityService(docRepo, locRepo, locker, config.CapacityConfig{
		LockTTL:       5 * time.Second,
		LockRetries:   3,
		WarnThreshold: 0.9,
	}, nil, logger)

	env := &testEnv{
		db:          db,
		documents:   service.NewDocumentService(docRepo, typeRepo, locRepo, backend, capacitySvc, auditSvc, nil, logger),
		locations:   service.NewLocationService(locRepo, docRepo, auditSvc, logger),
		types:       service.NewDocumentTypeService(typeRepo, docRepo, auditSvc, logger),
		users:       service.NewUserService(userRepo, roleRepo, docRepo, auditSvc, bcrypt.MinCost, logger),
		sessions:    service.NewSessionService(sessionRepo, userRepo, auditSvc, locker, config.AuthConfig{SessionTTL: time.Hour}, logger),
		permissions: service.NewPermissionService(roleRepo, permCache, time.Minute, logger),
		capacity:    capacitySvc,
		audit:       auditSvc,
		locRepo:     locRepo,
	}

	// Seed the first manager directly; the services require manage-users
	// for account creation and no account exists yet.
	hash, err := bcrypt.GenerateFromPassword([]byte("bootstrap1"), bcrypt.MinCost)
	require.NoError(t, err)
	manager := domain.NewUser("manager@example.com", string(hash), "The Manager", managerRoleID(t, ctx, roleRepo))
	require.NoError(t, userRepo.Create(ctx, manager))

	return env
}

func managerRoleID(t *testing.T, ctx context.Context, roles repository.RoleRepository) int64 {
	t.Helper()
	role, err := roles.GetByName(ctx, domain.RoleNameManager)
	require.NoError(t, err)
	return role.ID
}

// loginAs opens a session for the given credentials and resolves the actor
// the way the HTTP middleware would.
func (e *testEnv) loginAs(t *testing.T, email, password string) *service.Actor {
	t.Helper()
	ctx := context.Background()

	session, _, err := e.sessions.Login(ctx, email, password, service.RequestMeta{RemoteAddr: "127.0.0.1"})
	require.NoError(t, err)

	user, _, err := e.sessions.Resolve(ctx, session.Token)
	require.NoError(t, err)

	actor, err := e.permissions.ActorFor(ctx, user)
	require.NoError(t, err)
	return actor
}

func (e *testEnv) usedBytes(t *testing.T, locationID int64) int64 {
	t.Helper()
	loc, err := e.locRepo.GetByID(context.Background(), locationID)
	require.NoError(t, err)
	return loc.UsedBytes
}

func TestDocumentLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	env := newTestEnv(t)
	ctx := context.Background()
	manager := env.loginAs(t, "manager@example.com", "bootstrap1")

	loc, err := env.locations.Create(ctx, manager, service.CreateLocationInput{
		Name:          "vault-a",
		Address:       "fs01.internal",
		BasePath:      "/srv/archive/a",
		CapacityBytes: 1 << 30,
	})
	require.NoError(t, err)
	require.Zero(t, loc.UsedBytes)

	docType, err := env.types.Create(ctx, manager, service.CreateTypeInput{
		Name:              "Invoice",
		AllowedExtensions: "pdf, PNG",
	})
	require.NoError(t, err)

	content := strings.Repeat("x", 2048)
	doc, err := env.documents.Create(ctx, manager, service.CreateDocumentInput{
		OriginalFilename: "invoice-2026-001.pdf",
		Content:          strings.NewReader(content),
		MimeType:         "application/pdf",
		TypeID:           docType.ID,
		LocationID:       loc.ID,
		Description:      "Steuer invoice January",
		Tags:             "steuer,2026",
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusActive, doc.Status)
	require.Equal(t, int64(len(content)), doc.SizeBytes)
	require.NotEmpty(t, doc.Checksum)
	require.Equal(t, doc.SizeBytes, env.usedBytes(t, loc.ID))

	t.Run("Download", func(t *testing.T) {
		got, reader, err := env.documents.Open(ctx, manager, doc.ID, service.RequestMeta{})
		require.NoError(t, err)
		defer reader.Close()

		body, err := io.ReadAll(reader)
		require.NoError(t, err)
		require.Equal(t, content, string(body))
		require.Equal(t, doc.ID, got.ID)
	})

	t.Run("Search", func(t *testing.T) {
		result, err := env.documents.Search(ctx, manager, service.SearchInput{Query: "steuer"})
		require.NoError(t, err)
		require.Equal(t, int64(1), result.Total)
		require.Equal(t, doc.ID, result.Items[0].ID)
	})

	t.Run("UpdateMetadata", func(t *testing.T) {
		desc := "Steuer invoice January, corrected"
		updated, err := env.documents.Update(ctx, manager, service.UpdateDocumentInput{
			DocumentID:  doc.ID,
			Description: &desc,
		})
		require.NoError(t, err)
		require.Equal(t, desc, updated.Description)
	})

	t.Run("DeleteReleasesCapacity", func(t *testing.T) {
		require.NoError(t, env.documents.Delete(ctx, manager, doc.ID, service.RequestMeta{}))
		require.Zero(t, env.usedBytes(t, loc.ID))

		// Soft-deleted documents disappear from default search.
		result, err := env.documents.Search(ctx, manager, service.SearchInput{Query: "steuer"})
		require.NoError(t, err)
		require.Zero(t, result.Total)

		// Double delete is an invalid transition, not a second decrement.
		err = env.documents.Delete(ctx, manager, doc.ID, service.RequestMeta{})
		require.ErrorIs(t, err, domain.ErrInvalidTransition)
		require.Zero(t, env.usedBytes(t, loc.ID))
	})

	t.Run("RestoreReclaimsCapacity", func(t *testing.T) {
		restored, err := env.documents.Restore(ctx, manager, doc.ID, service.RequestMeta{})
		require.NoError(t, err)
		require.Equal(t, domain.StatusActive, restored.Status)
		require.Equal(t, doc.SizeBytes, env.usedBytes(t, loc.ID))
	})

	t.Run("History", func(t *testing.T) {
		// The audit queue is asynchronous only on retry; direct appends
		// land before the triggering call returns.
		result, err := env.audit.ListByDocument(ctx, manager, doc.ID, repository.ListOptions{Limit: 50})
		require.NoError(t, err)

		actions := make(map[domain.ActionKind]bool, len(result.Items))
		for _, entry := range result.Items {
			actions[entry.Action] = true
		}
		require.True(t, actions[domain.ActionUpload])
		require.True(t, actions[domain.ActionDownload])
		require.True(t, actions[domain.ActionDelete])
		require.True(t, actions[domain.ActionRestore])
	})
}

func TestMoveBetweenLocations(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	env := newTestEnv(t)
	ctx := context.Background()
	manager := env.loginAs(t, "manager@example.com", "bootstrap1")

	locA, err := env.locations.Create(ctx, manager, service.CreateLocationInput{
		Name: "vault-a", Address: "fs01", BasePath: "/srv/a", CapacityBytes: 1 << 30,
	})
	require.NoError(t, err)
	locB, err := env.locations.Create(ctx, manager, service.CreateLocationInput{
		Name: "vault-b", Address: "fs02", BasePath: "/srv/b", CapacityBytes: 1 << 30,
	})
	require.NoError(t, err)

	docType, err := env.types.Create(ctx, manager, service.CreateTypeInput{Name: "Scan"})
	require.NoError(t, err)

	content := strings.Repeat("y", 4096)
	doc, err := env.documents.Create(ctx, manager, service.CreateDocumentInput{
		OriginalFilename: "scan-001.png",
		Content:          strings.NewReader(content),
		TypeID:           docType.ID,
		LocationID:       locA.ID,
	})
	require.NoError(t, err)
	require.Equal(t, doc.SizeBytes, env.usedBytes(t, locA.ID))

	moved, err := env.documents.Update(ctx, manager, service.UpdateDocumentInput{
		DocumentID: doc.ID,
		LocationID: &locB.ID,
	})
	require.NoError(t, err)
	require.Equal(t, locB.ID, moved.LocationID)

	// Both sides of the move are recalculated under their locks.
	require.Zero(t, env.usedBytes(t, locA.ID))
	require.Equal(t, doc.SizeBytes, env.usedBytes(t, locB.ID))
}

func TestRoleEnforcement(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	env := newTestEnv(t)
	ctx := context.Background()
	manager := env.loginAs(t, "manager@example.com", "bootstrap1")

	roleRepo := sqlite.NewRoleRepository(env.db)
	readerRole, err := roleRepo.GetByName(ctx, domain.RoleNameUser)
	require.NoError(t, err)

	_, err = env.users.Create(ctx, manager, service.CreateUserInput{
		Email:       "reader@example.com",
		Password:    "readonly1",
		DisplayName: "The Reader",
		RoleID:      readerRole.ID,
	})
	require.NoError(t, err)

	reader := env.loginAs(t, "reader@example.com", "readonly1")

	loc, err := env.locations.Create(ctx, manager, service.CreateLocationInput{
		Name: "vault-a", Address: "fs01", BasePath: "/srv/a", CapacityBytes: 1 << 20,
	})
	require.NoError(t, err)
	docType, err := env.types.Create(ctx, manager, service.CreateTypeInput{Name: "Letter"})
	require.NoError(t, err)

	// A read-only role can search but not upload, delete or manage users.
	_, err = env.documents.Search(ctx, reader, service.SearchInput{})
	require.NoError(t, err)

	_, err = env.documents.Create(ctx, reader, service.CreateDocumentInput{
		OriginalFilename: "letter.pdf",
		Content:          strings.NewReader("hello"),
		TypeID:           docType.ID,
		LocationID:       loc.ID,
	})
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = env.users.List(ctx, reader, repository.ListOptions{})
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = env.audit.List(ctx, reader, repository.ListOptions{})
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestSessionExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	env := newTestEnv(t)
	ctx := context.Background()

	session, user, err := env.sessions.Login(ctx, "manager@example.com", "bootstrap1", service.RequestMeta{})
	require.NoError(t, err)

	_, _, err = env.sessions.Resolve(ctx, session.Token)
	require.NoError(t, err)

	require.NoError(t, env.sessions.Logout(ctx, session, user, service.RequestMeta{}))

	_, _, err = env.sessions.Resolve(ctx, session.Token)
	require.ErrorIs(t, err, domain.ErrSessionExpired)

	_, _, err = env.sessions.Login(ctx, "manager@example.com", "wrong-password", service.RequestMeta{})
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
}
