package service

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/bodleian-archive/internal/domain"
	"github.com/prn-tf/bodleian-archive/internal/extract"
	"github.com/prn-tf/bodleian-archive/internal/lock"
	"github.com/prn-tf/bodleian-archive/internal/repository"
)

func newTestDocumentService(t *testing.T) (*DocumentService, *mockDocumentRepository, *mockDocumentTypeRepository, *mockLocationRepository, *mockStorageBackend) {
	t.Helper()
	docRepo := &mockDocumentRepository{}
	typeRepo := &mockDocumentTypeRepository{}
	locRepo := &mockLocationRepository{}
	backend := &mockStorageBackend{}

	audit, _ := newTestAudit()
	t.Cleanup(audit.Close)

	capacity := NewCapacityService(docRepo, locRepo, lock.NewMemoryLocker(), testCapacityConfig(), nil, zerolog.Nop())
	svc := NewDocumentService(docRepo, typeRepo, locRepo, backend, capacity, audit, nil, zerolog.Nop())
	return svc, docRepo, typeRepo, locRepo, backend
}

func testDocType() *domain.DocumentType {
	return &domain.DocumentType{ID: 1, Name: "invoice", AllowedExtensions: "pdf,png", IsActive: true}
}

func testLocation() *domain.StorageLocation {
	return &domain.StorageLocation{ID: 1, Name: "shelf-a", CapacityBytes: 10 << 30, Status: domain.LocationActive}
}

func testDocument() *domain.Document {
	return &domain.Document{
		ID:               7,
		Filename:         "f0e1.pdf",
		OriginalFilename: "invoice.pdf",
		Path:             "2026/08/f0e1.pdf",
		Extension:        "pdf",
		SizeBytes:        1 << 20,
		TypeID:           1,
		LocationID:       1,
		CreatedBy:        1,
		Status:           domain.StatusActive,
	}
}

func TestDocumentService_Create(t *testing.T) {
	tests := []struct {
		name    string
		actor   *Actor
		input   CreateDocumentInput
		setup   func(*mockDocumentRepository, *mockDocumentTypeRepository, *mockLocationRepository, *mockStorageBackend)
		wantErr error
	}{
		{
			name:  "success - content upload recalculates location usage",
			actor: managerActor(),
			input: CreateDocumentInput{
				OriginalFilename: "invoice.pdf",
				Content:          bytes.NewReader([]byte("pdf bytes")),
				TypeID:           1,
				LocationID:       1,
			},
			setup: func(docRepo *mockDocumentRepository, typeRepo *mockDocumentTypeRepository, locRepo *mockLocationRepository, backend *mockStorageBackend) {
				typeRepo.On("GetByID", mock.Anything, int64(1)).Return(testDocType(), nil)
				locRepo.On("GetByID", mock.Anything, int64(1)).Return(testLocation(), nil)
				backend.On("Store", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return("abc123", int64(9), nil)
				docRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Document")).Return(nil)
				docRepo.On("SumActiveSizeByLocation", mock.Anything, int64(1)).Return(int64(9), nil)
				locRepo.On("UpdateUsedBytes", mock.Anything, int64(1), int64(9)).Return(nil)
			},
		},
		{
			name:  "missing filename",
			actor: managerActor(),
			input: CreateDocumentInput{TypeID: 1, LocationID: 1},
			setup: func(*mockDocumentRepository, *mockDocumentTypeRepository, *mockLocationRepository, *mockStorageBackend) {
			},
			wantErr: ErrMissingFilename,
		},
		{
			name:  "extension not allowed by type policy",
			actor: managerActor(),
			input: CreateDocumentInput{
				OriginalFilename: "virus.exe",
				TypeID:           1,
				LocationID:       1,
			},
			setup: func(docRepo *mockDocumentRepository, typeRepo *mockDocumentTypeRepository, locRepo *mockLocationRepository, backend *mockStorageBackend) {
				typeRepo.On("GetByID", mock.Anything, int64(1)).Return(testDocType(), nil)
			},
			wantErr: domain.ErrExtensionNotAllowed,
		},
		{
			name:  "inactive type",
			actor: managerActor(),
			input: CreateDocumentInput{
				OriginalFilename: "invoice.pdf",
				TypeID:           1,
				LocationID:       1,
			},
			setup: func(docRepo *mockDocumentRepository, typeRepo *mockDocumentTypeRepository, locRepo *mockLocationRepository, backend *mockStorageBackend) {
				inactive := testDocType()
				inactive.IsActive = false
				typeRepo.On("GetByID", mock.Anything, int64(1)).Return(inactive, nil)
			},
			wantErr: domain.ErrTypeInactive,
		},
		{
			name:  "offline location rejects new documents",
			actor: managerActor(),
			input: CreateDocumentInput{
				OriginalFilename: "invoice.pdf",
				TypeID:           1,
				LocationID:       1,
			},
			setup: func(docRepo *mockDocumentRepository, typeRepo *mockDocumentTypeRepository, locRepo *mockLocationRepository, backend *mockStorageBackend) {
				typeRepo.On("GetByID", mock.Anything, int64(1)).Return(testDocType(), nil)
				offline := testLocation()
				offline.Status = domain.LocationOffline
				locRepo.On("GetByID", mock.Anything, int64(1)).Return(offline, nil)
			},
			wantErr: domain.ErrInvalidReference,
		},
		{
			name:  "view-only actor cannot create",
			actor: userActor(),
			input: CreateDocumentInput{
				OriginalFilename: "invoice.pdf",
				TypeID:           1,
				LocationID:       1,
			},
			setup: func(*mockDocumentRepository, *mockDocumentTypeRepository, *mockLocationRepository, *mockStorageBackend) {
			},
			wantErr: domain.ErrUnauthorized,
		},
		{
			name:  "inactive actor cannot create",
			actor: inactiveActor(),
			input: CreateDocumentInput{
				OriginalFilename: "invoice.pdf",
				TypeID:           1,
				LocationID:       1,
			},
			setup: func(*mockDocumentRepository, *mockDocumentTypeRepository, *mockLocationRepository, *mockStorageBackend) {
			},
			wantErr: domain.ErrUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, docRepo, typeRepo, locRepo, backend := newTestDocumentService(t)
			tt.setup(docRepo, typeRepo, locRepo, backend)

			doc, err := svc.Create(context.Background(), tt.actor, tt.input)

			if tt.wantErr != nil {
				require.Error(t, err)
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				require.Equal(t, domain.StatusActive, doc.Status)
				require.Equal(t, "abc123", doc.Checksum)
				require.Equal(t, int64(9), doc.SizeBytes)
				require.NotEqual(t, doc.OriginalFilename, doc.Filename)
			}

			mock.AssertExpectationsForObjects(t, docRepo, typeRepo, locRepo, backend)
		})
	}
}

func TestDocumentService_Create_Draft(t *testing.T) {
	svc, docRepo, typeRepo, locRepo, _ := newTestDocumentService(t)

	typeRepo.On("GetByID", mock.Anything, int64(1)).Return(testDocType(), nil)
	locRepo.On("GetByID", mock.Anything, int64(1)).Return(testLocation(), nil)
	docRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Document")).Return(nil)
	docRepo.On("SumActiveSizeByLocation", mock.Anything, int64(1)).Return(int64(1<<20), nil)
	locRepo.On("UpdateUsedBytes", mock.Anything, int64(1), int64(1<<20)).Return(nil)

	doc, err := svc.Create(context.Background(), managerActor(), CreateDocumentInput{
		OriginalFilename: "invoice.pdf",
		SizeBytes:        1 << 20,
		Checksum:         "precomputed",
		TypeID:           1,
		LocationID:       1,
		Draft:            true,
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusDraft, doc.Status)
	require.Equal(t, "precomputed", doc.Checksum)
}

func TestDocumentService_DeleteThenRestore(t *testing.T) {
	// One create, one delete and one restore against a 10 GiB location:
	// the used-space figure must go 1 MiB -> 0 -> 1 MiB, each step written
	// from a fresh committed sum.
	svc, docRepo, typeRepo, locRepo, _ := newTestDocumentService(t)
	_ = typeRepo

	active := testDocument()
	deleted := testDocument()
	deleted.Status = domain.StatusDeleted

	docRepo.On("GetByID", mock.Anything, int64(7)).Return(active, nil).Once()
	docRepo.On("UpdateStatus", mock.Anything, int64(7), domain.StatusDeleted, int64(1)).Return(nil).Once()
	docRepo.On("SumActiveSizeByLocation", mock.Anything, int64(1)).Return(int64(0), nil).Once()
	locRepo.On("UpdateUsedBytes", mock.Anything, int64(1), int64(0)).Return(nil).Once()

	err := svc.Delete(context.Background(), managerActor(), 7, RequestMeta{})
	require.NoError(t, err)

	docRepo.On("GetByID", mock.Anything, int64(7)).Return(deleted, nil).Once()
	docRepo.On("UpdateStatus", mock.Anything, int64(7), domain.StatusActive, int64(1)).Return(nil).Once()
	docRepo.On("SumActiveSizeByLocation", mock.Anything, int64(1)).Return(int64(1<<20), nil).Once()
	locRepo.On("UpdateUsedBytes", mock.Anything, int64(1), int64(1<<20)).Return(nil).Once()

	restored, err := svc.Restore(context.Background(), managerActor(), 7, RequestMeta{})
	require.NoError(t, err)
	require.Equal(t, domain.StatusActive, restored.Status)

	mock.AssertExpectationsForObjects(t, docRepo, locRepo)
}

func TestDocumentService_Delete_AlreadyDeleted(t *testing.T) {
	// A second delete must fail as an invalid transition, not decrement
	// the location again.
	svc, docRepo, _, locRepo, _ := newTestDocumentService(t)

	deleted := testDocument()
	deleted.Status = domain.StatusDeleted
	docRepo.On("GetByID", mock.Anything, int64(7)).Return(deleted, nil)

	err := svc.Delete(context.Background(), managerActor(), 7, RequestMeta{})
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	locRepo.AssertNotCalled(t, "UpdateUsedBytes", mock.Anything, mock.Anything, mock.Anything)
}

func TestDocumentService_Update_MoveRecalculatesBothLocations(t *testing.T) {
	svc, docRepo, _, locRepo, _ := newTestDocumentService(t)

	doc := testDocument()
	target := &domain.StorageLocation{ID: 2, Name: "shelf-b", CapacityBytes: 10 << 30, Status: domain.LocationActive}

	docRepo.On("GetByID", mock.Anything, int64(7)).Return(doc, nil)
	locRepo.On("GetByID", mock.Anything, int64(2)).Return(target, nil)
	docRepo.On("Update", mock.Anything, mock.AnythingOfType("*domain.Document")).Return(nil)

	// Old location loses the document, new location gains it.
	docRepo.On("SumActiveSizeByLocation", mock.Anything, int64(1)).Return(int64(0), nil).Once()
	locRepo.On("UpdateUsedBytes", mock.Anything, int64(1), int64(0)).Return(nil).Once()
	docRepo.On("SumActiveSizeByLocation", mock.Anything, int64(2)).Return(int64(1<<20), nil).Once()
	locRepo.On("UpdateUsedBytes", mock.Anything, int64(2), int64(1<<20)).Return(nil).Once()

	newLoc := int64(2)
	updated, err := svc.Update(context.Background(), managerActor(), UpdateDocumentInput{
		DocumentID: 7,
		LocationID: &newLoc,
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), updated.LocationID)
	require.NotNil(t, updated.ModifiedBy)

	mock.AssertExpectationsForObjects(t, docRepo, locRepo)
}

func TestDocumentService_Update_DeletedDocument(t *testing.T) {
	svc, docRepo, _, _, _ := newTestDocumentService(t)

	deleted := testDocument()
	deleted.Status = domain.StatusDeleted
	docRepo.On("GetByID", mock.Anything, int64(7)).Return(deleted, nil)

	desc := "new description"
	_, err := svc.Update(context.Background(), managerActor(), UpdateDocumentInput{
		DocumentID:  7,
		Description: &desc,
	})
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestDocumentService_Transition(t *testing.T) {
	tests := []struct {
		name    string
		from    domain.DocumentStatus
		target  domain.DocumentStatus
		wantErr error
	}{
		{name: "draft to active", from: domain.StatusDraft, target: domain.StatusActive},
		{name: "active to archived", from: domain.StatusActive, target: domain.StatusArchived},
		{name: "self transition invalid", from: domain.StatusActive, target: domain.StatusActive, wantErr: domain.ErrInvalidTransition},
		{name: "archived to draft invalid", from: domain.StatusArchived, target: domain.StatusDraft, wantErr: domain.ErrInvalidTransition},
		{name: "deleted handled by restore", from: domain.StatusDeleted, target: domain.StatusActive, wantErr: domain.ErrInvalidTransition},
		{name: "deletion handled by delete", from: domain.StatusActive, target: domain.StatusDeleted, wantErr: domain.ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, docRepo, _, _, _ := newTestDocumentService(t)

			doc := testDocument()
			doc.Status = tt.from
			if tt.target != domain.StatusDeleted {
				docRepo.On("GetByID", mock.Anything, int64(7)).Return(doc, nil).Maybe()
			}
			docRepo.On("UpdateStatus", mock.Anything, int64(7), tt.target, int64(1)).Return(nil).Maybe()

			got, err := svc.Transition(context.Background(), managerActor(), 7, tt.target, RequestMeta{})

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				require.Equal(t, tt.target, got.Status)
			}
		})
	}
}

func TestDocumentService_Restore_ActiveDocument(t *testing.T) {
	svc, docRepo, _, _, _ := newTestDocumentService(t)

	docRepo.On("GetByID", mock.Anything, int64(7)).Return(testDocument(), nil)

	_, err := svc.Restore(context.Background(), managerActor(), 7, RequestMeta{})
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestDocumentService_Open(t *testing.T) {
	svc, docRepo, _, _, backend := newTestDocumentService(t)

	doc := testDocument()
	docRepo.On("GetByID", mock.Anything, int64(7)).Return(doc, nil)
	backend.On("Retrieve", mock.Anything, doc.Path).Return(io.NopCloser(bytes.NewReader([]byte("pdf bytes"))), nil)

	got, content, err := svc.Open(context.Background(), userActor(), 7, RequestMeta{})
	require.NoError(t, err)
	defer content.Close()

	body, err := io.ReadAll(content)
	require.NoError(t, err)
	require.Equal(t, "pdf bytes", string(body))
	require.Equal(t, doc.ID, got.ID)
}

func TestDocumentService_Open_Deleted(t *testing.T) {
	svc, docRepo, _, _, _ := newTestDocumentService(t)

	deleted := testDocument()
	deleted.Status = domain.StatusDeleted
	docRepo.On("GetByID", mock.Anything, int64(7)).Return(deleted, nil)

	_, _, err := svc.Open(context.Background(), userActor(), 7, RequestMeta{})
	require.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

func TestDocumentService_Search(t *testing.T) {
	svc, docRepo, _, _, _ := newTestDocumentService(t)

	docRepo.On("Search", mock.Anything, mock.MatchedBy(func(opts repository.SearchOptions) bool {
		return opts.Query == "steuer" && opts.Limit == 20 && !opts.IncludeDeleted
	})).Return(&repository.ListResult[domain.Document]{
		Items: []*domain.Document{testDocument()},
		Total: 1,
		Limit: 20,
	}, nil)

	result, err := svc.Search(context.Background(), userActor(), SearchInput{Query: "steuer"})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	require.Equal(t, int64(1), result.Total)
}

func TestDocumentService_Search_Unauthorized(t *testing.T) {
	svc, _, _, _, _ := newTestDocumentService(t)

	noView := actorWith(9, &domain.Permission{RoleID: 9})
	_, err := svc.Search(context.Background(), noView, SearchInput{Query: "x"})
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestDocumentService_Create_DocumentDateFromSuggestion(t *testing.T) {
	svc, docRepo, typeRepo, locRepo, _ := newTestDocumentService(t)

	typeRepo.On("GetByID", mock.Anything, int64(1)).Return(testDocType(), nil)
	locRepo.On("GetByID", mock.Anything, int64(1)).Return(testLocation(), nil)
	docRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Document")).Return(nil)
	docRepo.On("SumActiveSizeByLocation", mock.Anything, int64(1)).Return(int64(0), nil)
	locRepo.On("UpdateUsedBytes", mock.Anything, int64(1), int64(0)).Return(nil)

	suggested := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	doc, err := svc.Create(context.Background(), managerActor(), CreateDocumentInput{
		OriginalFilename: "invoice.pdf",
		TypeID:           1,
		LocationID:       1,
		Suggestion:       &extract.Suggestion{DocumentDate: &suggested},
	})
	require.NoError(t, err)
	require.True(t, doc.DocumentDate.Equal(suggested))
}
