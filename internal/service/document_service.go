package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/bodleian-archive/internal/domain"
	"github.com/prn-tf/bodleian-archive/internal/extract"
	"github.com/prn-tf/bodleian-archive/internal/metrics"
	"github.com/prn-tf/bodleian-archive/internal/repository"
	"github.com/prn-tf/bodleian-archive/internal/storage"
)

// DocumentService implements the document repository operations: create,
// update, lifecycle transitions, soft-delete, restore and ranked search.
// Every mutation runs its capacity recalculation under the affected
// location locks before returning, so a reader can never observe a
// document change without the used-space figure already reflecting it.
type DocumentService struct {
	docRepo  repository.DocumentRepository
	typeRepo repository.DocumentTypeRepository
	locRepo  repository.LocationRepository
	backend  storage.Backend
	capacity *CapacityService
	audit    *AuditService
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// NewDocumentService creates a new DocumentService.
func NewDocumentService(
	docRepo repository.DocumentRepository,
	typeRepo repository.DocumentTypeRepository,
	locRepo repository.LocationRepository,
	backend storage.Backend,
	capacity *CapacityService,
	audit *AuditService,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *DocumentService {
	return &DocumentService{
		docRepo:  docRepo,
		typeRepo: typeRepo,
		locRepo:  locRepo,
		backend:  backend,
		capacity: capacity,
		audit:    audit,
		metrics:  m,
		logger:   logger.With().Str("service", "document").Logger(),
	}
}

// RequestMeta carries the network origin of an operation for audit entries.
type RequestMeta struct {
	RemoteAddr string
	UserAgent  string
}

// CreateDocumentInput contains the data needed to create a document.
type CreateDocumentInput struct {
	// OriginalFilename is the name of the file as uploaded. Required.
	OriginalFilename string

	// Content is the file content. When nil, the file already lives on the
	// location and SizeBytes/Checksum are taken from the input instead.
	Content io.Reader

	// SizeBytes and Checksum describe pre-existing content (Content nil).
	SizeBytes int64
	Checksum  string

	MimeType       string
	TypeID         int64
	LocationID     int64
	Description    string
	Tags           string
	ReferenceYear  *int
	ReferenceMonth *int
	DocumentNumber string
	Amount         *int64

	// DocumentDate defaults to the extraction suggestion, then upload time.
	DocumentDate time.Time

	// Draft creates the document in draft state instead of active.
	Draft bool

	// Suggestion is the advisory output of the extraction service, if the
	// caller obtained one. Explicit input fields always win over it.
	Suggestion *extract.Suggestion

	Meta RequestMeta
}

// Create creates a new document. Requires add. The assigned location must
// exist and not be offline; the type must exist, be active and allow the
// file's extension. The location's used-space figure is recalculated under
// the location lock before the create returns.
func (s *DocumentService) Create(ctx context.Context, actor *Actor, input CreateDocumentInput) (*domain.Document, error) {
	if err := authorize(actor, domain.CapabilityAdd); err != nil {
		return nil, err
	}

	if input.OriginalFilename == "" {
		return nil, ErrMissingFilename
	}

	docType, err := s.typeRepo.GetByID(ctx, input.TypeID)
	if err != nil {
		return nil, s.wrap(err, "failed to load document type")
	}
	if !docType.IsActive {
		return nil, domain.NewDomainError(domain.ErrTypeInactive, "type not accepting documents", docType.Name)
	}

	ext := storage.Extension(input.OriginalFilename)
	if !docType.AllowsExtension(ext) {
		return nil, domain.NewDomainError(domain.ErrExtensionNotAllowed, ext, docType.Name)
	}

	loc, err := s.locRepo.GetByID(ctx, input.LocationID)
	if err != nil {
		if errors.Is(err, domain.ErrLocationNotFound) {
			return nil, domain.NewDomainError(domain.ErrInvalidReference, "location does not exist", "")
		}
		return nil, s.wrap(err, "failed to load location")
	}
	if !loc.AcceptsDocuments() {
		return nil, domain.NewDomainError(domain.ErrInvalidReference, "location is offline", loc.Name)
	}

	now := time.Now().UTC()
	storedName := storage.StoredFilename(input.OriginalFilename)
	path := storage.DocumentPath(now, storedName)

	checksum := input.Checksum
	size := input.SizeBytes
	if input.Content != nil {
		checksum, size, err = s.backend.Store(ctx, path, input.Content)
		if err != nil {
			s.logger.Error().Err(err).Str("path", path).Msg("failed to store document content")
			return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
		}
	}

	status := domain.StatusActive
	if input.Draft {
		status = domain.StatusDraft
	}

	doc := &domain.Document{
		Filename:         storedName,
		OriginalFilename: input.OriginalFilename,
		Path:             path,
		Extension:        ext,
		MimeType:         input.MimeType,
		SizeBytes:        size,
		TypeID:           docType.ID,
		LocationID:       loc.ID,
		CreatedBy:        actor.UserID(),
		Description:      input.Description,
		Tags:             input.Tags,
		ReferenceYear:    input.ReferenceYear,
		ReferenceMonth:   input.ReferenceMonth,
		DocumentNumber:   input.DocumentNumber,
		Amount:           input.Amount,
		Status:           status,
		Checksum:         checksum,
		DocumentDate:     s.documentDate(input, now),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err = s.capacity.WithLocationLocks(ctx, []int64{loc.ID}, func(ctx context.Context) error {
		if err := s.docRepo.Create(ctx, doc); err != nil {
			return s.wrap(err, "failed to create document")
		}
		_, err := s.capacity.Recalculate(ctx, loc.ID)
		return err
	})
	if err != nil {
		s.metrics.ObserveOperation("document_create", "error")
		return nil, err
	}

	action := domain.ActionCreate
	if input.Content != nil {
		action = domain.ActionUpload
	}
	s.recordAudit(ctx, actor, action, fmt.Sprintf("document %q created", doc.OriginalFilename), &doc.ID, nil, doc.Snapshot(), input.Meta)

	s.metrics.ObserveOperation("document_create", "ok")
	s.logger.Info().
		Int64("document_id", doc.ID).
		Int64("location_id", loc.ID).
		Int64("size_bytes", doc.SizeBytes).
		Msg("document created")

	return doc, nil
}

// UpdateDocumentInput contains the updatable document fields. Nil pointers
// leave the current value unchanged.
type UpdateDocumentInput struct {
	DocumentID     int64
	Description    *string
	Tags           *string
	TypeID         *int64
	LocationID     *int64
	ReferenceYear  *int
	ReferenceMonth *int
	DocumentNumber *string
	Amount         *int64
	DocumentDate   *time.Time
	Meta           RequestMeta
}

// Update modifies a document's metadata or moves it between locations.
// Requires modify. A move recalculates both the old and the new location
// under both locks: the old location's contribution must zero out in the
// same guarded step that adds it to the new one.
func (s *DocumentService) Update(ctx context.Context, actor *Actor, input UpdateDocumentInput) (*domain.Document, error) {
	if err := authorize(actor, domain.CapabilityModify); err != nil {
		return nil, err
	}

	doc, err := s.docRepo.GetByID(ctx, input.DocumentID)
	if err != nil {
		return nil, s.wrap(err, "failed to load document")
	}
	if doc.IsDeleted() {
		return nil, domain.NewDomainError(domain.ErrInvalidTransition, "cannot modify a deleted document", "")
	}

	before := doc.Snapshot()
	oldLocationID := doc.LocationID

	if input.TypeID != nil && *input.TypeID != doc.TypeID {
		docType, err := s.typeRepo.GetByID(ctx, *input.TypeID)
		if err != nil {
			return nil, s.wrap(err, "failed to load document type")
		}
		if !docType.IsActive {
			return nil, domain.NewDomainError(domain.ErrTypeInactive, "type not accepting documents", docType.Name)
		}
		if !docType.AllowsExtension(doc.Extension) {
			return nil, domain.NewDomainError(domain.ErrExtensionNotAllowed, doc.Extension, docType.Name)
		}
		doc.TypeID = docType.ID
	}

	if input.LocationID != nil && *input.LocationID != doc.LocationID {
		loc, err := s.locRepo.GetByID(ctx, *input.LocationID)
		if err != nil {
			if errors.Is(err, domain.ErrLocationNotFound) {
				return nil, domain.NewDomainError(domain.ErrInvalidReference, "location does not exist", "")
			}
			return nil, s.wrap(err, "failed to load location")
		}
		if !loc.AcceptsDocuments() {
			return nil, domain.NewDomainError(domain.ErrInvalidReference, "location is offline", loc.Name)
		}
		doc.LocationID = loc.ID
	}

	if input.Description != nil {
		doc.Description = *input.Description
	}
	if input.Tags != nil {
		doc.Tags = *input.Tags
	}
	if input.ReferenceYear != nil {
		doc.ReferenceYear = input.ReferenceYear
	}
	if input.ReferenceMonth != nil {
		doc.ReferenceMonth = input.ReferenceMonth
	}
	if input.DocumentNumber != nil {
		doc.DocumentNumber = *input.DocumentNumber
	}
	if input.Amount != nil {
		doc.Amount = input.Amount
	}
	if input.DocumentDate != nil {
		doc.DocumentDate = input.DocumentDate.UTC()
	}

	modifier := actor.UserID()
	doc.ModifiedBy = &modifier
	doc.UpdatedAt = time.Now().UTC()

	moved := doc.LocationID != oldLocationID
	lockIDs := []int64{doc.LocationID}
	if moved {
		lockIDs = append(lockIDs, oldLocationID)
	}

	err = s.capacity.WithLocationLocks(ctx, lockIDs, func(ctx context.Context) error {
		if err := s.docRepo.Update(ctx, doc); err != nil {
			return s.wrap(err, "failed to update document")
		}
		if moved {
			if _, err := s.capacity.Recalculate(ctx, oldLocationID); err != nil {
				return err
			}
		}
		_, err := s.capacity.Recalculate(ctx, doc.LocationID)
		return err
	})
	if err != nil {
		s.metrics.ObserveOperation("document_update", "error")
		return nil, err
	}

	s.recordAudit(ctx, actor, domain.ActionModify, fmt.Sprintf("document %q updated", doc.OriginalFilename), &doc.ID, before, doc.Snapshot(), input.Meta)

	s.metrics.ObserveOperation("document_update", "ok")
	s.logger.Info().
		Int64("document_id", doc.ID).
		Bool("moved", moved).
		Msg("document updated")

	return doc, nil
}

// Transition moves a document along its lifecycle (draft to active, active
// to archived). Requires modify. Soft delete and restore have their own
// operations; this rejects transitions into or out of deleted.
func (s *DocumentService) Transition(ctx context.Context, actor *Actor, documentID int64, target domain.DocumentStatus, meta RequestMeta) (*domain.Document, error) {
	if err := authorize(actor, domain.CapabilityModify); err != nil {
		return nil, err
	}

	if target == domain.StatusDeleted {
		return nil, domain.NewDomainError(domain.ErrInvalidTransition, "use delete for soft deletion", "")
	}

	doc, err := s.docRepo.GetByID(ctx, documentID)
	if err != nil {
		return nil, s.wrap(err, "failed to load document")
	}
	if doc.IsDeleted() {
		return nil, domain.NewDomainError(domain.ErrInvalidTransition, "use restore for deleted documents", "")
	}
	if !doc.Status.CanTransitionTo(target) {
		return nil, domain.NewDomainError(domain.ErrInvalidTransition,
			fmt.Sprintf("%s to %s", doc.Status, target), "")
	}

	before := doc.Snapshot()
	if err := s.docRepo.UpdateStatus(ctx, doc.ID, target, actor.UserID()); err != nil {
		return nil, s.wrap(err, "failed to update lifecycle state")
	}

	modifier := actor.UserID()
	doc.Status = target
	doc.ModifiedBy = &modifier
	doc.UpdatedAt = time.Now().UTC()

	s.recordAudit(ctx, actor, domain.ActionModify, fmt.Sprintf("document %q moved to %s", doc.OriginalFilename, target), &doc.ID, before, doc.Snapshot(), meta)

	s.metrics.ObserveOperation("document_transition", "ok")
	return doc, nil
}

// Delete soft-deletes a document. Requires remove. The row persists for
// audit and history; the location's used-space figure is recalculated so
// the document no longer counts. A second delete is an invalid transition,
// which is what guarantees the decrement happens exactly once.
func (s *DocumentService) Delete(ctx context.Context, actor *Actor, documentID int64, meta RequestMeta) error {
	if err := authorize(actor, domain.CapabilityRemove); err != nil {
		return err
	}

	doc, err := s.docRepo.GetByID(ctx, documentID)
	if err != nil {
		return s.wrap(err, "failed to load document")
	}
	if !doc.Status.CanTransitionTo(domain.StatusDeleted) {
		return domain.NewDomainError(domain.ErrInvalidTransition,
			fmt.Sprintf("%s to %s", doc.Status, domain.StatusDeleted), "")
	}

	before := doc.Snapshot()

	err = s.capacity.WithLocationLocks(ctx, []int64{doc.LocationID}, func(ctx context.Context) error {
		if err := s.docRepo.UpdateStatus(ctx, doc.ID, domain.StatusDeleted, actor.UserID()); err != nil {
			return s.wrap(err, "failed to soft-delete document")
		}
		_, err := s.capacity.Recalculate(ctx, doc.LocationID)
		return err
	})
	if err != nil {
		s.metrics.ObserveOperation("document_delete", "error")
		return err
	}

	modifier := actor.UserID()
	doc.Status = domain.StatusDeleted
	doc.ModifiedBy = &modifier

	s.recordAudit(ctx, actor, domain.ActionDelete, fmt.Sprintf("document %q deleted", doc.OriginalFilename), &doc.ID, before, doc.Snapshot(), meta)

	s.metrics.ObserveOperation("document_delete", "ok")
	s.logger.Info().Int64("document_id", doc.ID).Msg("document soft-deleted")
	return nil
}

// Restore reverses a soft delete back to active. Requires modify. The
// location's used-space figure is recalculated so the document counts again.
func (s *DocumentService) Restore(ctx context.Context, actor *Actor, documentID int64, meta RequestMeta) (*domain.Document, error) {
	if err := authorize(actor, domain.CapabilityModify); err != nil {
		return nil, err
	}

	doc, err := s.docRepo.GetByID(ctx, documentID)
	if err != nil {
		return nil, s.wrap(err, "failed to load document")
	}
	if !doc.Status.CanTransitionTo(domain.StatusActive) || !doc.IsDeleted() {
		return nil, domain.NewDomainError(domain.ErrInvalidTransition,
			fmt.Sprintf("%s to %s", doc.Status, domain.StatusActive), "")
	}

	before := doc.Snapshot()

	err = s.capacity.WithLocationLocks(ctx, []int64{doc.LocationID}, func(ctx context.Context) error {
		if err := s.docRepo.UpdateStatus(ctx, doc.ID, domain.StatusActive, actor.UserID()); err != nil {
			return s.wrap(err, "failed to restore document")
		}
		_, err := s.capacity.Recalculate(ctx, doc.LocationID)
		return err
	})
	if err != nil {
		s.metrics.ObserveOperation("document_restore", "error")
		return nil, err
	}

	modifier := actor.UserID()
	doc.Status = domain.StatusActive
	doc.ModifiedBy = &modifier
	doc.UpdatedAt = time.Now().UTC()

	s.recordAudit(ctx, actor, domain.ActionRestore, fmt.Sprintf("document %q restored", doc.OriginalFilename), &doc.ID, before, doc.Snapshot(), meta)

	s.metrics.ObserveOperation("document_restore", "ok")
	s.logger.Info().Int64("document_id", doc.ID).Msg("document restored")
	return doc, nil
}

// Get retrieves a document by ID. Requires view.
func (s *DocumentService) Get(ctx context.Context, actor *Actor, documentID int64) (*domain.Document, error) {
	if err := authorize(actor, domain.CapabilityView); err != nil {
		return nil, err
	}

	doc, err := s.docRepo.GetByID(ctx, documentID)
	if err != nil {
		return nil, s.wrap(err, "failed to load document")
	}
	return doc, nil
}

// Open retrieves a document's metadata and opens its content stream.
// Requires view. A download audit entry is recorded.
func (s *DocumentService) Open(ctx context.Context, actor *Actor, documentID int64, meta RequestMeta) (*domain.Document, io.ReadCloser, error) {
	if err := authorize(actor, domain.CapabilityView); err != nil {
		return nil, nil, err
	}

	doc, err := s.docRepo.GetByID(ctx, documentID)
	if err != nil {
		return nil, nil, s.wrap(err, "failed to load document")
	}
	if doc.IsDeleted() {
		return nil, nil, domain.ErrDocumentNotFound
	}

	content, err := s.backend.Retrieve(ctx, doc.Path)
	if err != nil {
		if errors.Is(err, storage.ErrContentNotFound) {
			return nil, nil, domain.NewDomainError(domain.ErrDocumentNotFound, "stored content missing", doc.Path)
		}
		s.logger.Error().Err(err).Int64("document_id", doc.ID).Msg("failed to open document content")
		return nil, nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.recordAudit(ctx, actor, domain.ActionDownload, fmt.Sprintf("document %q downloaded", doc.OriginalFilename), &doc.ID, nil, nil, meta)

	return doc, content, nil
}

// SearchInput contains the document query parameters.
type SearchInput struct {
	Query          string
	TypeID         int64
	LocationID     int64
	Status         domain.DocumentStatus
	IncludeDeleted bool
	CreatedBy      int64
	YearFrom       int
	YearTo         int
	MonthFrom      int
	MonthTo        int
	Limit          int
	Offset         int
}

// Search queries documents with filters and a ranked full-text match over
// filename, description and tags. Requires view. Results are ordered by
// relevance, ties broken by most recent upload first; soft-deleted
// documents are excluded unless explicitly requested.
func (s *DocumentService) Search(ctx context.Context, actor *Actor, input SearchInput) (*repository.ListResult[domain.Document], error) {
	if err := authorize(actor, domain.CapabilityView); err != nil {
		return nil, err
	}

	opts := repository.SearchOptions{
		Query:          input.Query,
		TypeID:         input.TypeID,
		LocationID:     input.LocationID,
		Status:         input.Status,
		IncludeDeleted: input.IncludeDeleted,
		CreatedBy:      input.CreatedBy,
		YearFrom:       input.YearFrom,
		YearTo:         input.YearTo,
		MonthFrom:      input.MonthFrom,
		MonthTo:        input.MonthTo,
		Limit:          input.Limit,
		Offset:         input.Offset,
	}
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.Limit > 100 {
		opts.Limit = 100
	}

	result, err := s.docRepo.Search(ctx, opts)
	if err != nil {
		s.logger.Error().Err(err).Msg("document search failed")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return result, nil
}

// documentDate picks the document date: explicit input wins, then the
// extraction suggestion, then the upload time.
func (s *DocumentService) documentDate(input CreateDocumentInput, now time.Time) time.Time {
	if !input.DocumentDate.IsZero() {
		return input.DocumentDate.UTC()
	}
	if input.Suggestion != nil && input.Suggestion.DocumentDate != nil {
		return input.Suggestion.DocumentDate.UTC()
	}
	return now
}

// recordAudit builds and records one activity log entry.
func (s *DocumentService) recordAudit(ctx context.Context, actor *Actor, action domain.ActionKind, description string, documentID *int64, before, after domain.Snapshot, meta RequestMeta) {
	entry := domain.NewActivityLogEntry(action, description)
	userID := actor.UserID()
	entry.UserID = &userID
	entry.DocumentID = documentID
	entry.Before = before
	entry.After = after
	entry.RemoteAddr = meta.RemoteAddr
	entry.UserAgent = meta.UserAgent
	s.audit.Record(ctx, entry)
}

// wrap passes domain errors through untouched and hides infrastructure
// failures behind ErrInternalError.
func (s *DocumentService) wrap(err error, msg string) error {
	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	switch {
	case errors.Is(err, domain.ErrDocumentNotFound),
		errors.Is(err, domain.ErrTypeNotFound),
		errors.Is(err, domain.ErrLocationNotFound),
		errors.Is(err, domain.ErrInvalidReference),
		errors.Is(err, domain.ErrInvalidTransition):
		return err
	}
	s.logger.Error().Err(err).Msg(msg)
	return fmt.Errorf("%w: %v", ErrInternalError, err)
}
