// Package handler provides HTTP handlers for the Bodleian Archive API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/prn-tf/bodleian-archive/internal/domain"
	"github.com/prn-tf/bodleian-archive/internal/service"
)

// errorResponse is the JSON shape of every error reply.
type errorResponse struct {
	Error    string `json:"error"`
	Resource string `json:"resource,omitempty"`
}

// writeError maps a service error to its HTTP status and writes the JSON
// error body.
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)

	body := errorResponse{Error: err.Error()}
	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		body.Resource = domainErr.Resource
	}
	if status == http.StatusInternalServerError {
		// Never leak internals to the client.
		body = errorResponse{Error: "internal server error"}
		log.Error().Err(err).Msg("request failed")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// statusFor maps domain and service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials),
		errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrSessionExpired):
		return http.StatusUnauthorized

	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden

	case errors.Is(err, domain.ErrDocumentNotFound),
		errors.Is(err, domain.ErrLocationNotFound),
		errors.Is(err, domain.ErrTypeNotFound),
		errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrRoleNotFound),
		errors.Is(err, domain.ErrPermissionNotFound):
		return http.StatusNotFound

	case errors.Is(err, domain.ErrUserAlreadyExists),
		errors.Is(err, domain.ErrLocationAlreadyExists),
		errors.Is(err, domain.ErrTypeAlreadyExists),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrConflictingUpdate):
		return http.StatusConflict

	case errors.Is(err, domain.ErrInvalidReference),
		errors.Is(err, domain.ErrExtensionNotAllowed),
		errors.Is(err, domain.ErrTypeInactive),
		errors.Is(err, service.ErrInvalidPassword),
		errors.Is(err, service.ErrInvalidEmail),
		errors.Is(err, service.ErrInvalidDisplayName),
		errors.Is(err, service.ErrInvalidCapacity),
		errors.Is(err, service.ErrMissingFilename):
		return http.StatusBadRequest
	}

	return http.StatusInternalServerError
}

// writeJSON writes a JSON response body with the given status.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// decodeJSON parses a JSON request body into dst.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
