package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/bodleian-archive/internal/domain"
	"github.com/prn-tf/bodleian-archive/internal/repository"
)

// LocationService implements the storage location catalog operations.
// The used-space figure is owned by the capacity accountant; this service
// never writes it from API input.
type LocationService struct {
	locRepo repository.LocationRepository
	docRepo repository.DocumentRepository
	audit   *AuditService
	logger  zerolog.Logger
}

// NewLocationService creates a new LocationService.
func NewLocationService(
	locRepo repository.LocationRepository,
	docRepo repository.DocumentRepository,
	audit *AuditService,
	logger zerolog.Logger,
) *LocationService {
	return &LocationService{
		locRepo: locRepo,
		docRepo: docRepo,
		audit:   audit,
		logger:  logger.With().Str("service", "location").Logger(),
	}
}

// CreateLocationInput contains the data needed to register a location.
type CreateLocationInput struct {
	Name          string
	Address       string
	BasePath      string
	CapacityBytes int64
	Meta          RequestMeta
}

// Create registers a new storage location. Requires add. New locations
// start active with a zero used-space figure.
func (s *LocationService) Create(ctx context.Context, actor *Actor, input CreateLocationInput) (*domain.StorageLocation, error) {
	if err := authorize(actor, domain.CapabilityAdd); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, domain.NewDomainError(domain.ErrInvalidReference, "location name is required", "")
	}
	if input.CapacityBytes <= 0 {
		return nil, ErrInvalidCapacity
	}

	loc := domain.NewStorageLocation(name, strings.TrimSpace(input.Address), strings.TrimSpace(input.BasePath), input.CapacityBytes)
	if err := s.locRepo.Create(ctx, loc); err != nil {
		if errors.Is(err, domain.ErrLocationAlreadyExists) {
			return nil, domain.NewDomainError(domain.ErrLocationAlreadyExists, "name already registered", name)
		}
		s.logger.Error().Err(err).Str("name", name).Msg("failed to create location")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.recordAudit(ctx, actor, domain.ActionCreate, fmt.Sprintf("storage location %q registered", name), nil, loc.Snapshot(), input.Meta)

	s.logger.Info().Int64("location_id", loc.ID).Str("name", name).Msg("storage location registered")
	return loc, nil
}

// Get retrieves a location by ID. Requires view.
func (s *LocationService) Get(ctx context.Context, actor *Actor, locationID int64) (*domain.StorageLocation, error) {
	if err := authorize(actor, domain.CapabilityView); err != nil {
		return nil, err
	}
	loc, err := s.locRepo.GetByID(ctx, locationID)
	if err != nil {
		if errors.Is(err, domain.ErrLocationNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return loc, nil
}

// List returns all locations. Requires view.
func (s *LocationService) List(ctx context.Context, actor *Actor) ([]*domain.StorageLocation, error) {
	if err := authorize(actor, domain.CapabilityView); err != nil {
		return nil, err
	}
	locs, err := s.locRepo.List(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list locations")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return locs, nil
}

// UpdateLocationInput contains the updatable location fields. Nil pointers
// leave the current value unchanged. The used-space figure is not here on
// purpose.
type UpdateLocationInput struct {
	LocationID    int64
	Name          *string
	Address       *string
	BasePath      *string
	CapacityBytes *int64
	Status        *domain.LocationStatus
	Meta          RequestMeta
}

// Update modifies a location's declared fields. Requires modify. Setting a
// location offline stops new document assignment without touching the
// documents already on it.
func (s *LocationService) Update(ctx context.Context, actor *Actor, input UpdateLocationInput) (*domain.StorageLocation, error) {
	if err := authorize(actor, domain.CapabilityModify); err != nil {
		return nil, err
	}

	loc, err := s.locRepo.GetByID(ctx, input.LocationID)
	if err != nil {
		if errors.Is(err, domain.ErrLocationNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	before := loc.Snapshot()

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, domain.NewDomainError(domain.ErrInvalidReference, "location name is required", "")
		}
		loc.Name = name
	}
	if input.Address != nil {
		loc.Address = strings.TrimSpace(*input.Address)
	}
	if input.BasePath != nil {
		loc.BasePath = strings.TrimSpace(*input.BasePath)
	}
	if input.CapacityBytes != nil {
		if *input.CapacityBytes <= 0 {
			return nil, ErrInvalidCapacity
		}
		loc.CapacityBytes = *input.CapacityBytes
	}
	if input.Status != nil {
		if _, ok := domain.ParseLocationStatus(string(*input.Status)); !ok {
			return nil, domain.NewDomainError(domain.ErrInvalidReference, "unknown location status", string(*input.Status))
		}
		loc.Status = *input.Status
	}
	loc.UpdatedAt = time.Now().UTC()

	if err := s.locRepo.Update(ctx, loc); err != nil {
		if errors.Is(err, domain.ErrLocationAlreadyExists) {
			return nil, domain.NewDomainError(domain.ErrLocationAlreadyExists, "name already registered", loc.Name)
		}
		s.logger.Error().Err(err).Int64("location_id", loc.ID).Msg("failed to update location")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.recordAudit(ctx, actor, domain.ActionModify, fmt.Sprintf("storage location %q updated", loc.Name), before, loc.Snapshot(), input.Meta)

	s.logger.Info().Int64("location_id", loc.ID).Msg("storage location updated")
	return loc, nil
}

// Delete removes a location. Requires remove. Rejected while any non-deleted
// document is assigned to it.
func (s *LocationService) Delete(ctx context.Context, actor *Actor, locationID int64, meta RequestMeta) error {
	if err := authorize(actor, domain.CapabilityRemove); err != nil {
		return err
	}

	loc, err := s.locRepo.GetByID(ctx, locationID)
	if err != nil {
		if errors.Is(err, domain.ErrLocationNotFound) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	count, err := s.docRepo.CountActiveByLocation(ctx, locationID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if count > 0 {
		return domain.NewDomainError(domain.ErrInvalidReference,
			fmt.Sprintf("%d documents still assigned", count), loc.Name)
	}

	if err := s.locRepo.Delete(ctx, locationID); err != nil {
		s.logger.Error().Err(err).Int64("location_id", locationID).Msg("failed to delete location")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.recordAudit(ctx, actor, domain.ActionDelete, fmt.Sprintf("storage location %q deleted", loc.Name), loc.Snapshot(), nil, meta)

	s.logger.Info().Int64("location_id", locationID).Str("name", loc.Name).Msg("storage location deleted")
	return nil
}

func (s *LocationService) recordAudit(ctx context.Context, actor *Actor, action domain.ActionKind, description string, before, after domain.Snapshot, meta RequestMeta) {
	entry := domain.NewActivityLogEntry(action, description)
	userID := actor.UserID()
	entry.UserID = &userID
	entry.Before = before
	entry.After = after
	entry.RemoteAddr = meta.RemoteAddr
	entry.UserAgent = meta.UserAgent
	s.audit.Record(ctx, entry)
}
