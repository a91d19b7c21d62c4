package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/bodleian-archive/internal/config"
	"github.com/prn-tf/bodleian-archive/internal/domain"
	"github.com/prn-tf/bodleian-archive/internal/metrics"
	"github.com/prn-tf/bodleian-archive/internal/repository"
)

// AuditService records the append-only activity log. The log is a pure
// sink: Record never fails the calling operation. A failed append goes to
// a bounded in-process retry queue flushed by a background worker, giving
// at-least-once delivery; duplicate entries are tolerable, missing ones
// are not, so exhausted retries are logged with the full entry payload.
type AuditService struct {
	repo    repository.AuditRepository
	mirror  repository.AuditRepository
	cfg     config.AuditConfig
	metrics *metrics.Metrics
	logger  zerolog.Logger

	queue chan *domain.ActivityLogEntry
	done  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once
}

// NewAuditService creates a new AuditService and starts its retry worker.
// mirror may be nil; when set, every entry is also appended to it
// best-effort (the mirror never gates the primary append).
func NewAuditService(
	repo repository.AuditRepository,
	mirror repository.AuditRepository,
	cfg config.AuditConfig,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *AuditService {
	s := &AuditService{
		repo:    repo,
		mirror:  mirror,
		cfg:     cfg,
		metrics: m,
		logger:  logger.With().Str("service", "audit").Logger(),
		queue:   make(chan *domain.ActivityLogEntry, cfg.QueueSize),
		done:    make(chan struct{}),
	}

	s.wg.Add(1)
	go s.retryWorker()

	return s
}

// Record appends one activity log entry. It never returns an error: the
// triggering operation has already committed and audit failure must not
// make business data invisible. Failed appends are queued for retry.
func (s *AuditService) Record(ctx context.Context, entry *domain.ActivityLogEntry) {
	if err := s.repo.Append(ctx, entry); err != nil {
		s.logger.Warn().Err(err).
			Str("action", string(entry.Action)).
			Msg("activity log append failed, queueing for retry")
		s.metrics.ObserveAuditRetry()
		s.enqueue(entry)
		return
	}

	s.mirrorAppend(ctx, entry)
}

// ListByDocument returns the log entries for a document. Requires view.
func (s *AuditService) ListByDocument(ctx context.Context, actor *Actor, documentID int64, opts repository.ListOptions) (*repository.ListResult[domain.ActivityLogEntry], error) {
	if err := authorize(actor, domain.CapabilityView); err != nil {
		return nil, err
	}
	return s.repo.ListByDocument(ctx, documentID, clampList(opts))
}

// ListByUser returns the log entries recorded for a user's actions.
// Requires manage-users.
func (s *AuditService) ListByUser(ctx context.Context, actor *Actor, userID int64, opts repository.ListOptions) (*repository.ListResult[domain.ActivityLogEntry], error) {
	if err := authorize(actor, domain.CapabilityManageUsers); err != nil {
		return nil, err
	}
	return s.repo.ListByUser(ctx, userID, clampList(opts))
}

// List returns the full log. Requires manage-users.
func (s *AuditService) List(ctx context.Context, actor *Actor, opts repository.ListOptions) (*repository.ListResult[domain.ActivityLogEntry], error) {
	if err := authorize(actor, domain.CapabilityManageUsers); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, clampList(opts))
}

// Close stops the retry worker after draining queued entries.
func (s *AuditService) Close() {
	s.once.Do(func() {
		close(s.done)
	})
	s.wg.Wait()
}

// enqueue places an entry on the retry queue, dropping it when full.
func (s *AuditService) enqueue(entry *domain.ActivityLogEntry) {
	select {
	case s.queue <- entry:
	default:
		s.metrics.ObserveAuditDropped()
		s.logger.Error().
			Str("action", string(entry.Action)).
			Interface("entry", entry).
			Msg("activity log retry queue full, entry dropped")
	}
}

// retryWorker flushes the retry queue in the background. Retries use a
// fresh context; the triggering request is long gone by the time an entry
// lands here.
func (s *AuditService) retryWorker() {
	defer s.wg.Done()

	for {
		select {
		case entry := <-s.queue:
			s.retryAppend(entry)
		case <-s.done:
			// Drain what is already queued before stopping.
			for {
				select {
				case entry := <-s.queue:
					s.retryAppend(entry)
				default:
					return
				}
			}
		}
	}
}

// retryAppend attempts a queued entry a bounded number of times.
func (s *AuditService) retryAppend(entry *domain.ActivityLogEntry) {
	ctx := context.Background()

	for attempt := 1; attempt <= s.cfg.RetryAttempts; attempt++ {
		if err := s.repo.Append(ctx, entry); err == nil {
			s.mirrorAppend(ctx, entry)
			return
		} else if attempt < s.cfg.RetryAttempts {
			s.metrics.ObserveAuditRetry()
			select {
			case <-time.After(s.cfg.RetryDelay):
			case <-s.done:
			}
		}
	}

	// The entry payload goes to the process log so it can be replayed.
	s.metrics.ObserveAuditDropped()
	s.logger.Error().
		Str("action", string(entry.Action)).
		Interface("entry", entry).
		Msg("activity log append exhausted retries")
}

// mirrorAppend copies an entry to the external mirror, best-effort.
func (s *AuditService) mirrorAppend(ctx context.Context, entry *domain.ActivityLogEntry) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.Append(ctx, entry); err != nil {
		s.logger.Warn().Err(err).
			Str("action", string(entry.Action)).
			Msg("activity log mirror append failed")
	}
}

// clampList applies the default and maximum page sizes.
func clampList(opts repository.ListOptions) repository.ListOptions {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.Limit > 100 {
		opts.Limit = 100
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	return opts
}
