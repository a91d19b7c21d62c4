package handler

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/bodleian-archive/internal/auth"
	"github.com/prn-tf/bodleian-archive/internal/domain"
	"github.com/prn-tf/bodleian-archive/internal/service"
)

// AuthHandler handles login, logout and password changes.
type AuthHandler struct {
	sessions *service.SessionService
	users    *service.UserService
	logger   zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(sessions *service.SessionService, users *service.UserService, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		sessions: sessions,
		users:    users,
		logger:   logger.With().Str("handler", "auth").Logger(),
	}
}

// requestMeta extracts the audit-relevant request origin.
func requestMeta(r *http.Request) service.RequestMeta {
	return service.RequestMeta{
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *domain.User `json:"user"`
}

// Login handles POST /api/v1/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, domain.NewDomainError(domain.ErrInvalidReference, "malformed request body", ""))
		return
	}

	session, user, err := h.sessions.Login(r.Context(), req.Email, req.Password, requestMeta(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		User:      user,
	})
}

// Logout handles POST /api/v1/auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if id == nil {
		writeError(w, domain.ErrSessionNotFound)
		return
	}

	if err := h.sessions.Logout(r.Context(), id.Session, id.User, requestMeta(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ChangePassword handles PUT /api/v1/auth/password.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if id == nil {
		writeError(w, domain.ErrSessionNotFound)
		return
	}

	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, domain.NewDomainError(domain.ErrInvalidReference, "malformed request body", ""))
		return
	}

	if err := h.users.UpdatePassword(r.Context(), id.Actor, req.CurrentPassword, req.NewPassword, requestMeta(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// Me handles GET /api/v1/auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if id == nil {
		writeError(w, domain.ErrSessionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":       id.User,
		"permission": id.Actor.Permission,
	})
}
