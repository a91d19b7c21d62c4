package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/bodleian-archive/internal/config"
	"github.com/prn-tf/bodleian-archive/internal/domain"
	"github.com/prn-tf/bodleian-archive/internal/lock"
)

func newTestCapacityService(locker lock.Locker, cfg config.CapacityConfig) (*CapacityService, *mockDocumentRepository, *mockLocationRepository) {
	docRepo := &mockDocumentRepository{}
	locRepo := &mockLocationRepository{}
	svc := NewCapacityService(docRepo, locRepo, locker, cfg, nil, zerolog.Nop())
	return svc, docRepo, locRepo
}

func TestCapacityService_Recalculate(t *testing.T) {
	svc, docRepo, locRepo := newTestCapacityService(lock.NewMemoryLocker(), testCapacityConfig())

	docRepo.On("SumActiveSizeByLocation", mock.Anything, int64(1)).Return(int64(42<<20), nil)
	locRepo.On("UpdateUsedBytes", mock.Anything, int64(1), int64(42<<20)).Return(nil)

	sum, err := svc.Recalculate(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, int64(42<<20), sum)

	mock.AssertExpectationsForObjects(t, docRepo, locRepo)
}

func TestCapacityService_WithLocationLocks_Contended(t *testing.T) {
	locker := lock.NewMemoryLocker()
	cfg := testCapacityConfig()
	cfg.LockRetries = 1
	cfg.LockRetryDelay = time.Millisecond
	svc, _, _ := newTestCapacityService(locker, cfg)

	// Hold the lock so acquisition inside the accountant exhausts retries.
	acquired, err := locker.Acquire(context.Background(), lock.Keys.Location(1), time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	err = svc.WithLocationLocks(context.Background(), []int64{1}, func(ctx context.Context) error {
		t.Fatal("critical section must not run without the lock")
		return nil
	})
	require.ErrorIs(t, err, domain.ErrConflictingUpdate)
}

func TestCapacityService_WithLocationLocks_ReleasesOnError(t *testing.T) {
	locker := lock.NewMemoryLocker()
	svc, _, _ := newTestCapacityService(locker, testCapacityConfig())

	ran := false
	err := svc.WithLocationLocks(context.Background(), []int64{1, 2}, func(ctx context.Context) error {
		ran = true
		return domain.ErrDocumentNotFound
	})
	require.True(t, ran)
	require.ErrorIs(t, err, domain.ErrDocumentNotFound)

	// Both locks must be free again.
	for _, id := range []int64{1, 2} {
		held, err := locker.IsHeld(context.Background(), lock.Keys.Location(id))
		require.NoError(t, err)
		require.False(t, held)
	}
}

func TestCapacityService_WithLocationLocks_DedupesIDs(t *testing.T) {
	locker := lock.NewMemoryLocker()
	svc, _, _ := newTestCapacityService(locker, testCapacityConfig())

	// The same location passed twice (a move that fell through to the same
	// target) must not deadlock against itself.
	err := svc.WithLocationLocks(context.Background(), []int64{3, 3}, func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err)
}

func TestCapacityService_Report(t *testing.T) {
	svc, docRepo, locRepo := newTestCapacityService(lock.NewMemoryLocker(), testCapacityConfig())

	locRepo.On("List", mock.Anything).Return([]*domain.StorageLocation{
		{ID: 1, Name: "shelf-a", CapacityBytes: 100, UsedBytes: 95, Status: domain.LocationActive},
		{ID: 2, Name: "shelf-b", CapacityBytes: 100, UsedBytes: 10, Status: domain.LocationActive},
	}, nil)
	docRepo.On("CountActiveByLocation", mock.Anything, int64(1)).Return(int64(4), nil)
	docRepo.On("CountActiveByLocation", mock.Anything, int64(2)).Return(int64(1), nil)

	report, err := svc.Report(context.Background(), userActor())
	require.NoError(t, err)
	require.Len(t, report, 2)

	require.True(t, report[0].NearCapacity)
	require.Equal(t, int64(5), report[0].FreeBytes)
	require.Equal(t, int64(4), report[0].DocumentCount)

	require.False(t, report[1].NearCapacity)
	require.Equal(t, int64(90), report[1].FreeBytes)
}

func TestCapacityService_Recount_RequiresManageUsers(t *testing.T) {
	svc, _, _ := newTestCapacityService(lock.NewMemoryLocker(), testCapacityConfig())

	err := svc.Recount(context.Background(), adminActor())
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}
