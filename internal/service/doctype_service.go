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

// DocumentTypeService implements the document type taxonomy operations.
type DocumentTypeService struct {
	typeRepo repository.DocumentTypeRepository
	docRepo  repository.DocumentRepository
	audit    *AuditService
	logger   zerolog.Logger
}

// NewDocumentTypeService creates a new DocumentTypeService.
func NewDocumentTypeService(
	typeRepo repository.DocumentTypeRepository,
	docRepo repository.DocumentRepository,
	audit *AuditService,
	logger zerolog.Logger,
) *DocumentTypeService {
	return &DocumentTypeService{
		typeRepo: typeRepo,
		docRepo:  docRepo,
		audit:    audit,
		logger:   logger.With().Str("service", "doctype").Logger(),
	}
}

// CreateTypeInput contains the data needed to create a document type.
type CreateTypeInput struct {
	Name              string
	Icon              string
	Color             string
	AllowedExtensions string
	SortOrder         int
	Meta              RequestMeta
}

// Create creates a new document type. Requires add. An empty extension list
// accepts any extension.
func (s *DocumentTypeService) Create(ctx context.Context, actor *Actor, input CreateTypeInput) (*domain.DocumentType, error) {
	if err := authorize(actor, domain.CapabilityAdd); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, domain.NewDomainError(domain.ErrInvalidReference, "type name is required", "")
	}

	t := domain.NewDocumentType(name, normalizeExtensions(input.AllowedExtensions))
	t.Icon = input.Icon
	t.Color = input.Color
	t.SortOrder = input.SortOrder

	if err := s.typeRepo.Create(ctx, t); err != nil {
		if errors.Is(err, domain.ErrTypeAlreadyExists) {
			return nil, domain.NewDomainError(domain.ErrTypeAlreadyExists, "name already registered", name)
		}
		s.logger.Error().Err(err).Str("name", name).Msg("failed to create document type")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.recordAudit(ctx, actor, domain.ActionCreate, fmt.Sprintf("document type %q created", name), nil, t.Snapshot(), input.Meta)

	s.logger.Info().Int64("type_id", t.ID).Str("name", name).Msg("document type created")
	return t, nil
}

// Get retrieves a type by ID. Requires view.
func (s *DocumentTypeService) Get(ctx context.Context, actor *Actor, typeID int64) (*domain.DocumentType, error) {
	if err := authorize(actor, domain.CapabilityView); err != nil {
		return nil, err
	}
	t, err := s.typeRepo.GetByID(ctx, typeID)
	if err != nil {
		if errors.Is(err, domain.ErrTypeNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return t, nil
}

// List returns all types ordered by sort order. Requires view.
func (s *DocumentTypeService) List(ctx context.Context, actor *Actor) ([]*domain.DocumentType, error) {
	if err := authorize(actor, domain.CapabilityView); err != nil {
		return nil, err
	}
	types, err := s.typeRepo.List(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list document types")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return types, nil
}

// UpdateTypeInput contains the updatable type fields. Nil pointers leave
// the current value unchanged.
type UpdateTypeInput struct {
	TypeID            int64
	Name              *string
	Icon              *string
	Color             *string
	AllowedExtensions *string
	IsActive          *bool
	SortOrder         *int
	Meta              RequestMeta
}

// Update modifies a document type. Requires modify. Tightening the
// extension policy only affects future creates; existing documents keep
// their extension.
func (s *DocumentTypeService) Update(ctx context.Context, actor *Actor, input UpdateTypeInput) (*domain.DocumentType, error) {
	if err := authorize(actor, domain.CapabilityModify); err != nil {
		return nil, err
	}

	t, err := s.typeRepo.GetByID(ctx, input.TypeID)
	if err != nil {
		if errors.Is(err, domain.ErrTypeNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	before := t.Snapshot()

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, domain.NewDomainError(domain.ErrInvalidReference, "type name is required", "")
		}
		t.Name = name
	}
	if input.Icon != nil {
		t.Icon = *input.Icon
	}
	if input.Color != nil {
		t.Color = *input.Color
	}
	if input.AllowedExtensions != nil {
		t.AllowedExtensions = normalizeExtensions(*input.AllowedExtensions)
	}
	if input.IsActive != nil {
		t.IsActive = *input.IsActive
	}
	if input.SortOrder != nil {
		t.SortOrder = *input.SortOrder
	}
	t.UpdatedAt = time.Now().UTC()

	if err := s.typeRepo.Update(ctx, t); err != nil {
		if errors.Is(err, domain.ErrTypeAlreadyExists) {
			return nil, domain.NewDomainError(domain.ErrTypeAlreadyExists, "name already registered", t.Name)
		}
		s.logger.Error().Err(err).Int64("type_id", t.ID).Msg("failed to update document type")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.recordAudit(ctx, actor, domain.ActionModify, fmt.Sprintf("document type %q updated", t.Name), before, t.Snapshot(), input.Meta)

	s.logger.Info().Int64("type_id", t.ID).Msg("document type updated")
	return t, nil
}

// Delete removes a document type. Requires remove. Rejected while any
// non-deleted document references it; deactivate the type instead.
func (s *DocumentTypeService) Delete(ctx context.Context, actor *Actor, typeID int64, meta RequestMeta) error {
	if err := authorize(actor, domain.CapabilityRemove); err != nil {
		return err
	}

	t, err := s.typeRepo.GetByID(ctx, typeID)
	if err != nil {
		if errors.Is(err, domain.ErrTypeNotFound) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	count, err := s.docRepo.CountActiveByType(ctx, typeID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if count > 0 {
		return domain.NewDomainError(domain.ErrInvalidReference,
			fmt.Sprintf("%d documents still reference the type", count), t.Name)
	}

	if err := s.typeRepo.Delete(ctx, typeID); err != nil {
		s.logger.Error().Err(err).Int64("type_id", typeID).Msg("failed to delete document type")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.recordAudit(ctx, actor, domain.ActionDelete, fmt.Sprintf("document type %q deleted", t.Name), t.Snapshot(), nil, meta)

	s.logger.Info().Int64("type_id", typeID).Str("name", t.Name).Msg("document type deleted")
	return nil
}

// normalizeExtensions lowercases the comma-separated extension list and
// strips dots and whitespace.
func normalizeExtensions(list string) string {
	if strings.TrimSpace(list) == "" {
		return ""
	}
	parts := strings.Split(list, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(p), "."))
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ",")
}

func (s *DocumentTypeService) recordAudit(ctx context.Context, actor *Actor, action domain.ActionKind, description string, before, after domain.Snapshot, meta RequestMeta) {
	entry := domain.NewActivityLogEntry(action, description)
	userID := actor.UserID()
	entry.UserID = &userID
	entry.Before = before
	entry.After = after
	entry.RemoteAddr = meta.RemoteAddr
	entry.UserAgent = meta.UserAgent
	s.audit.Record(ctx, entry)
}
