package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/prn-tf/bodleian-archive/internal/config"
	"github.com/prn-tf/bodleian-archive/internal/domain"
	"github.com/prn-tf/bodleian-archive/internal/lock"
	"github.com/prn-tf/bodleian-archive/internal/metrics"
	"github.com/prn-tf/bodleian-archive/internal/repository"
)

// CapacityService is the capacity accountant. It keeps every storage
// location's used-space figure equal to the sum of sizes of its non-deleted
// documents by recalculating from a committed read whenever a document
// mutation touches that location. Recalculation is summation, never an
// incremental add or subtract, so concurrent writers cannot drift the
// figure. The accountant tracks truth only; it never blocks a write for
// exceeding capacity.
type CapacityService struct {
	docRepo repository.DocumentRepository
	locRepo repository.LocationRepository
	locker  lock.Locker
	cfg     config.CapacityConfig
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewCapacityService creates a new CapacityService.
func NewCapacityService(
	docRepo repository.DocumentRepository,
	locRepo repository.LocationRepository,
	locker lock.Locker,
	cfg config.CapacityConfig,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *CapacityService {
	return &CapacityService{
		docRepo: docRepo,
		locRepo: locRepo,
		locker:  locker,
		cfg:     cfg,
		metrics: m,
		logger:  logger.With().Str("service", "capacity").Logger(),
	}
}

// WithLocationLocks runs fn while holding the capacity locks of the given
// locations. Locks are acquired in ascending ID order so two concurrent
// moves between the same pair of locations cannot deadlock. Acquisition is
// retried a bounded number of times; exhaustion surfaces as
// domain.ErrConflictingUpdate.
func (s *CapacityService) WithLocationLocks(ctx context.Context, locationIDs []int64, fn func(ctx context.Context) error) error {
	ids := dedupeSorted(locationIDs)

	held := make([]string, 0, len(ids))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			if _, err := s.locker.Release(ctx, held[i]); err != nil {
				s.logger.Warn().Err(err).Str("key", held[i]).Msg("failed to release location lock")
			}
		}
	}

	for _, id := range ids {
		key := lock.Keys.Location(id)
		acquired, err := s.locker.AcquireWithRetry(ctx, key, s.cfg.LockTTL, s.cfg.LockRetries, s.cfg.LockRetryDelay)
		if err != nil {
			release()
			return fmt.Errorf("%w: %v", ErrInternalError, err)
		}
		if !acquired {
			release()
			return domain.NewDomainError(domain.ErrConflictingUpdate, "location lock contended", key)
		}
		held = append(held, key)
	}
	defer release()

	return fn(ctx)
}

// Recalculate recomputes a location's used-space figure from the committed
// sum of its non-deleted document sizes and writes it back. Callers must
// hold the location's capacity lock.
func (s *CapacityService) Recalculate(ctx context.Context, locationID int64) (int64, error) {
	sum, err := s.docRepo.SumActiveSizeByLocation(ctx, locationID)
	if err != nil {
		s.logger.Error().Err(err).Int64("location_id", locationID).Msg("failed to sum document sizes")
		return 0, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	if err := s.locRepo.UpdateUsedBytes(ctx, locationID, sum); err != nil {
		if errors.Is(err, domain.ErrLocationNotFound) {
			return 0, err
		}
		s.logger.Error().Err(err).Int64("location_id", locationID).Msg("failed to write used-space figure")
		return 0, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.metrics.SetLocationUsedBytes(locationID, sum)
	s.logger.Debug().
		Int64("location_id", locationID).
		Int64("used_bytes", sum).
		Msg("location usage recalculated")

	return sum, nil
}

// Recount recalculates every location from scratch. Used by the admin CLI
// to reconcile after manual database surgery. Requires manage-users.
func (s *CapacityService) Recount(ctx context.Context, actor *Actor) error {
	if err := authorize(actor, domain.CapabilityManageUsers); err != nil {
		return err
	}

	locations, err := s.locRepo.List(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	for _, loc := range locations {
		locID := loc.ID
		err := s.WithLocationLocks(ctx, []int64{locID}, func(ctx context.Context) error {
			_, err := s.Recalculate(ctx, locID)
			return err
		})
		if err != nil {
			return err
		}
	}

	s.logger.Info().Int("locations", len(locations)).Msg("full capacity recount completed")
	return nil
}

// LocationUsage is the consumer-side capacity view over one location.
type LocationUsage struct {
	Location      *domain.StorageLocation
	DocumentCount int64
	FreeBytes     int64
	UsageRatio    float64
	NearCapacity  bool
}

// Report derives free space and near-capacity warnings for all locations.
// Requires view. The warning threshold is a reporting policy; the
// accountant itself never rejects writes over it.
func (s *CapacityService) Report(ctx context.Context, actor *Actor) ([]*LocationUsage, error) {
	if err := authorize(actor, domain.CapabilityView); err != nil {
		return nil, err
	}

	locations, err := s.locRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	report := make([]*LocationUsage, 0, len(locations))
	for _, loc := range locations {
		count, err := s.docRepo.CountActiveByLocation(ctx, loc.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
		}
		report = append(report, &LocationUsage{
			Location:      loc,
			DocumentCount: count,
			FreeBytes:     loc.FreeBytes(),
			UsageRatio:    loc.UsageRatio(),
			NearCapacity:  loc.UsageRatio() >= s.cfg.WarnThreshold,
		})
	}

	return report, nil
}

// dedupeSorted returns the unique location IDs in ascending order.
func dedupeSorted(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
