package handler

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/prn-tf/bodleian-archive/internal/auth"
	"github.com/prn-tf/bodleian-archive/internal/domain"
	"github.com/prn-tf/bodleian-archive/internal/repository"
	"github.com/prn-tf/bodleian-archive/internal/service"
)

// AdminHandler handles user administration, permission management and the
// activity log views.
type AdminHandler struct {
	users       *service.UserService
	permissions *service.PermissionService
	audit       *service.AuditService
	capacity    *service.CapacityService
	logger      zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(users *service.UserService, permissions *service.PermissionService, audit *service.AuditService, capacity *service.CapacityService, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		users:       users,
		permissions: permissions,
		audit:       audit,
		capacity:    capacity,
		logger:      logger.With().Str("handler", "admin").Logger(),
	}
}

// =============================================================================
// Users
// =============================================================================

type createUserRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	RoleID      int64  `json:"role_id"`
}

// CreateUser handles POST /api/v1/users.
func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())

	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, domain.NewDomainError(domain.ErrInvalidReference, "malformed request body", ""))
		return
	}

	user, err := h.users.Create(r.Context(), id.Actor, service.CreateUserInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		RoleID:      req.RoleID,
		Meta:        requestMeta(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// ListUsers handles GET /api/v1/users.
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	query := r.URL.Query()

	result, err := h.users.List(r.Context(), id.Actor, repository.ListOptions{
		Limit:  queryInt(query.Get("limit")),
		Offset: queryInt(query.Get("offset")),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetUser handles GET /api/v1/users/{userID}.
func (h *AdminHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	userID, err := pathID(r, "userID")
	if err != nil {
		writeError(w, err)
		return
	}

	user, err := h.users.Get(r.Context(), id.Actor, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

// SetUserActive handles PUT /api/v1/users/{userID}/active.
func (h *AdminHandler) SetUserActive(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	userID, err := pathID(r, "userID")
	if err != nil {
		writeError(w, err)
		return
	}

	var req setActiveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, domain.NewDomainError(domain.ErrInvalidReference, "malformed request body", ""))
		return
	}

	user, err := h.users.SetActive(r.Context(), id.Actor, userID, req.Active, requestMeta(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type setRoleRequest struct {
	RoleID int64 `json:"role_id"`
}

// SetUserRole handles PUT /api/v1/users/{userID}/role.
func (h *AdminHandler) SetUserRole(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	userID, err := pathID(r, "userID")
	if err != nil {
		writeError(w, err)
		return
	}

	var req setRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, domain.NewDomainError(domain.ErrInvalidReference, "malformed request body", ""))
		return
	}

	user, err := h.users.SetRole(r.Context(), id.Actor, userID, req.RoleID, requestMeta(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// DeleteUser handles DELETE /api/v1/users/{userID}.
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	userID, err := pathID(r, "userID")
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.users.Delete(r.Context(), id.Actor, userID, requestMeta(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// =============================================================================
// Roles and Permissions
// =============================================================================

// ListRoles handles GET /api/v1/roles.
func (h *AdminHandler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.permissions.ListRoles(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roles)
}

// GetRolePermission handles GET /api/v1/roles/{roleID}/permission.
func (h *AdminHandler) GetRolePermission(w http.ResponseWriter, r *http.Request) {
	roleID, err := pathID(r, "roleID")
	if err != nil {
		writeError(w, err)
		return
	}

	perm, err := h.permissions.Resolve(r.Context(), roleID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, perm)
}

type updatePermissionRequest struct {
	CanView        bool `json:"can_view"`
	CanModify      bool `json:"can_modify"`
	CanAdd         bool `json:"can_add"`
	CanRemove      bool `json:"can_remove"`
	CanManageUsers bool `json:"can_manage_users"`
}

// UpdateRolePermission handles PUT /api/v1/roles/{roleID}/permission.
func (h *AdminHandler) UpdateRolePermission(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	roleID, err := pathID(r, "roleID")
	if err != nil {
		writeError(w, err)
		return
	}

	var req updatePermissionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, domain.NewDomainError(domain.ErrInvalidReference, "malformed request body", ""))
		return
	}

	perm := &domain.Permission{
		RoleID:         roleID,
		CanView:        req.CanView,
		CanModify:      req.CanModify,
		CanAdd:         req.CanAdd,
		CanRemove:      req.CanRemove,
		CanManageUsers: req.CanManageUsers,
	}
	if err := h.permissions.UpdatePermission(r.Context(), id.Actor, perm); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, perm)
}

// =============================================================================
// Activity Log
// =============================================================================

// ListActivity handles GET /api/v1/activity.
func (h *AdminHandler) ListActivity(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	query := r.URL.Query()
	opts := repository.ListOptions{
		Limit:  queryInt(query.Get("limit")),
		Offset: queryInt(query.Get("offset")),
	}

	if userID := queryInt64(query.Get("user_id")); userID > 0 {
		result, err := h.audit.ListByUser(r.Context(), id.Actor, userID, opts)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	result, err := h.audit.List(r.Context(), id.Actor, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// =============================================================================
// Capacity
// =============================================================================

// RecountCapacity handles POST /api/v1/admin/capacity/recount.
func (h *AdminHandler) RecountCapacity(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())

	if err := h.capacity.Recount(r.Context(), id.Actor); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
