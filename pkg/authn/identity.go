// Package authn implements the bearer-token validator (C2): JWKS-backed
// JWT verification, claim extraction, and an advisory token cache.
package authn

import (
	"context"
	"time"
)

// Identity is derived from a validated bearer token. It is never persisted.
type Identity struct {
	Subject     string
	DisplayName string
	Groups      []string
	TokenExpiry time.Time
	RawClaims   map[string]any
}

type contextKey string

const identityContextKey contextKey = "authn.identity"

// WithIdentity attaches an Identity to ctx for downstream handlers.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// FromContext retrieves the Identity attached by WithIdentity.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(Identity)
	return id, ok
}
