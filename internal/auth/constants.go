// Package auth provides bearer-token session authentication for Bodleian Archive.
package auth

const (
	// AuthorizationHeader is the HTTP header carrying the session token.
	AuthorizationHeader = "Authorization"

	// BearerPrefix is the authorization scheme prefix.
	BearerPrefix = "Bearer "
)
