// Package auth provides bearer-token session authentication for Bodleian Archive.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/prn-tf/bodleian-archive/internal/domain"
	"github.com/prn-tf/bodleian-archive/internal/service"
)

// =============================================================================
// Identity Types
// =============================================================================

// Identity is the resolved caller of an authenticated request: the user,
// the session the token belongs to, and the actor the services run as.
type Identity struct {
	// User is the authenticated user.
	User *domain.User

	// Session is the session the presented token resolved to.
	Session *domain.Session

	// Actor carries the user's capability set for authorization checks.
	Actor *service.Actor
}

// contextKey is a private type for context values set by this package.
type contextKey int

const identityKey contextKey = iota

// WithIdentity returns a context carrying the resolved identity.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext returns the identity set by the middleware, or nil for
// unauthenticated requests.
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey).(*Identity)
	return id
}

// =============================================================================
// Token Extraction
// =============================================================================

// BearerToken extracts the session token from the Authorization header.
// Returns the empty string when no bearer credential is present.
func BearerToken(r *http.Request) string {
	header := r.Header.Get(AuthorizationHeader)
	if header == "" {
		return ""
	}
	if !strings.HasPrefix(header, BearerPrefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, BearerPrefix))
}
