package session

import (
	"context"
	"strings"
)

type contextKey int

const claimsKey contextKey = iota

// HeaderAuthorization carries the bearer token, in HTTP headers and gRPC
// metadata alike.
const HeaderAuthorization = "authorization"

const bearerPrefix = "Bearer "

// ContextWithClaims returns a context carrying verified session claims.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext returns the session claims stored by the middleware or
// interceptors. It never returns non-nil claims with false.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok && claims != nil
}

// ExtractBearerToken returns the token from an Authorization header value,
// or "" if the value is not a bearer credential. The scheme is matched
// case-insensitively.
func ExtractBearerToken(authHeader string) string {
	if len(authHeader) <= len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(bearerPrefix):])
}
