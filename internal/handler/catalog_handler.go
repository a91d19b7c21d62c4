package handler

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/prn-tf/bodleian-archive/internal/auth"
	"github.com/prn-tf/bodleian-archive/internal/domain"
	"github.com/prn-tf/bodleian-archive/internal/service"
)

// CatalogHandler handles the storage location and document type catalogs.
type CatalogHandler struct {
	locations *service.LocationService
	types     *service.DocumentTypeService
	capacity  *service.CapacityService
	logger    zerolog.Logger
}

// NewCatalogHandler creates a new CatalogHandler.
func NewCatalogHandler(locations *service.LocationService, types *service.DocumentTypeService, capacity *service.CapacityService, logger zerolog.Logger) *CatalogHandler {
	return &CatalogHandler{
		locations: locations,
		types:     types,
		capacity:  capacity,
		logger:    logger.With().Str("handler", "catalog").Logger(),
	}
}

// =============================================================================
// Storage Locations
// =============================================================================

type createLocationRequest struct {
	Name          string `json:"name"`
	Address       string `json:"address"`
	BasePath      string `json:"base_path"`
	CapacityBytes int64  `json:"capacity_bytes"`
}

// CreateLocation handles POST /api/v1/locations.
func (h *CatalogHandler) CreateLocation(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())

	var req createLocationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, domain.NewDomainError(domain.ErrInvalidReference, "malformed request body", ""))
		return
	}

	loc, err := h.locations.Create(r.Context(), id.Actor, service.CreateLocationInput{
		Name:          req.Name,
		Address:       req.Address,
		BasePath:      req.BasePath,
		CapacityBytes: req.CapacityBytes,
		Meta:          requestMeta(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, loc)
}

// ListLocations handles GET /api/v1/locations.
func (h *CatalogHandler) ListLocations(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())

	locs, err := h.locations.List(r.Context(), id.Actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, locs)
}

// GetLocation handles GET /api/v1/locations/{locationID}.
func (h *CatalogHandler) GetLocation(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	locationID, err := pathID(r, "locationID")
	if err != nil {
		writeError(w, err)
		return
	}

	loc, err := h.locations.Get(r.Context(), id.Actor, locationID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

type updateLocationRequest struct {
	Name          *string `json:"name"`
	Address       *string `json:"address"`
	BasePath      *string `json:"base_path"`
	CapacityBytes *int64  `json:"capacity_bytes"`
	Status        *string `json:"status"`
}

// UpdateLocation handles PATCH /api/v1/locations/{locationID}.
func (h *CatalogHandler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	locationID, err := pathID(r, "locationID")
	if err != nil {
		writeError(w, err)
		return
	}

	var req updateLocationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, domain.NewDomainError(domain.ErrInvalidReference, "malformed request body", ""))
		return
	}

	input := service.UpdateLocationInput{
		LocationID:    locationID,
		Name:          req.Name,
		Address:       req.Address,
		BasePath:      req.BasePath,
		CapacityBytes: req.CapacityBytes,
		Meta:          requestMeta(r),
	}
	if req.Status != nil {
		status := domain.LocationStatus(*req.Status)
		input.Status = &status
	}

	loc, err := h.locations.Update(r.Context(), id.Actor, input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

// DeleteLocation handles DELETE /api/v1/locations/{locationID}.
func (h *CatalogHandler) DeleteLocation(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	locationID, err := pathID(r, "locationID")
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.locations.Delete(r.Context(), id.Actor, locationID, requestMeta(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// CapacityReport handles GET /api/v1/locations/usage.
func (h *CatalogHandler) CapacityReport(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())

	report, err := h.capacity.Report(r.Context(), id.Actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// =============================================================================
// Document Types
// =============================================================================

type createTypeRequest struct {
	Name              string `json:"name"`
	Icon              string `json:"icon"`
	Color             string `json:"color"`
	AllowedExtensions string `json:"allowed_extensions"`
	SortOrder         int    `json:"sort_order"`
}

// CreateType handles POST /api/v1/types.
func (h *CatalogHandler) CreateType(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())

	var req createTypeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, domain.NewDomainError(domain.ErrInvalidReference, "malformed request body", ""))
		return
	}

	t, err := h.types.Create(r.Context(), id.Actor, service.CreateTypeInput{
		Name:              req.Name,
		Icon:              req.Icon,
		Color:             req.Color,
		AllowedExtensions: req.AllowedExtensions,
		SortOrder:         req.SortOrder,
		Meta:              requestMeta(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// ListTypes handles GET /api/v1/types.
func (h *CatalogHandler) ListTypes(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())

	types, err := h.types.List(r.Context(), id.Actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types)
}

// GetType handles GET /api/v1/types/{typeID}.
func (h *CatalogHandler) GetType(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	typeID, err := pathID(r, "typeID")
	if err != nil {
		writeError(w, err)
		return
	}

	t, err := h.types.Get(r.Context(), id.Actor, typeID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type updateTypeRequest struct {
	Name              *string `json:"name"`
	Icon              *string `json:"icon"`
	Color             *string `json:"color"`
	AllowedExtensions *string `json:"allowed_extensions"`
	IsActive          *bool   `json:"is_active"`
	SortOrder         *int    `json:"sort_order"`
}

// UpdateType handles PATCH /api/v1/types/{typeID}.
func (h *CatalogHandler) UpdateType(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	typeID, err := pathID(r, "typeID")
	if err != nil {
		writeError(w, err)
		return
	}

	var req updateTypeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, domain.NewDomainError(domain.ErrInvalidReference, "malformed request body", ""))
		return
	}

	t, err := h.types.Update(r.Context(), id.Actor, service.UpdateTypeInput{
		TypeID:            typeID,
		Name:              req.Name,
		Icon:              req.Icon,
		Color:             req.Color,
		AllowedExtensions: req.AllowedExtensions,
		IsActive:          req.IsActive,
		SortOrder:         req.SortOrder,
		Meta:              requestMeta(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// DeleteType handles DELETE /api/v1/types/{typeID}.
func (h *CatalogHandler) DeleteType(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	typeID, err := pathID(r, "typeID")
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.types.Delete(r.Context(), id.Actor, typeID, requestMeta(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
