// Package auth provides bearer-token session authentication for Bodleian Archive.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/prn-tf/bodleian-archive/internal/domain"
	"github.com/prn-tf/bodleian-archive/internal/service"
)

// SessionResolver maps a bearer token to its user and session.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (*domain.User, *domain.Session, error)
}

// ActorSource builds the capability-carrying actor for a resolved user.
type ActorSource interface {
	ActorFor(ctx context.Context, user *domain.User) (*service.Actor, error)
}

// Config contains configuration for the auth middleware.
type Config struct {
	// SkipPaths are paths that skip authentication.
	SkipPaths []string
}

// DefaultConfig returns the default auth configuration.
func DefaultConfig() Config {
	return Config{
		SkipPaths: []string{"/health", "/metrics", "/api/v1/auth/login"},
	}
}

// Middleware creates an authentication middleware. Requests without a
// valid session token are rejected with 401; the resolved identity is
// placed on the request context for the handlers.
func Middleware(sessions SessionResolver, actors ActorSource, config Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, path := range config.SkipPaths {
				if r.URL.Path == path {
					next.ServeHTTP(w, r)
					return
				}
			}

			token := BearerToken(r)
			if token == "" {
				writeUnauthorized(w, ErrMissingToken)
				return
			}

			user, session, err := sessions.Resolve(r.Context(), token)
			if err != nil {
				if errors.Is(err, domain.ErrSessionNotFound) ||
					errors.Is(err, domain.ErrSessionExpired) ||
					errors.Is(err, domain.ErrUnauthorized) {
					writeUnauthorized(w, ErrInvalidToken)
					return
				}
				log.Error().Err(err).Msg("session resolution failed")
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}

			actor, err := actors.ActorFor(r.Context(), user)
			if err != nil {
				log.Error().Err(err).Int64("user_id", user.ID).Msg("actor resolution failed")
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}

			ctx := WithIdentity(r.Context(), &Identity{
				User:    user,
				Session: session,
				Actor:   actor,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeUnauthorized writes a 401 JSON error response.
func writeUnauthorized(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="bodleian"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
