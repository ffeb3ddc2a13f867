// Package auth validates bearer tokens and decides whether a caller may
// request premium quality or use admin routes.
package auth

import (
	"context"
	"strings"
)

// Identity is the authenticated caller behind a bearer token.
type Identity struct {
	Subject string   `json:"id"`
	Email   string   `json:"email"`
	Roles   []string `json:"roles"`
}

// HasRole reports whether the identity holds role (case-insensitive).
func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	for _, r := range i.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the identity holds at least one of roles.
func (i *Identity) HasAnyRole(roles []string) bool {
	for _, r := range roles {
		if i.HasRole(r) {
			return true
		}
	}
	return false
}

// Validator turns a raw bearer token into an Identity.
type Validator interface {
	Validate(ctx context.Context, token string) (*Identity, error)
}

type identityKey struct{}
type tokenKey struct{}

// WithIdentity stores the caller identity and its raw token in ctx.
func WithIdentity(ctx context.Context, id *Identity, token string) context.Context {
	ctx = context.WithValue(ctx, identityKey{}, id)
	return context.WithValue(ctx, tokenKey{}, token)
}

// IdentityFrom returns the caller identity, or nil for anonymous requests.
func IdentityFrom(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}

// TokenFrom returns the raw bearer token of the caller, if any.
func TokenFrom(ctx context.Context) string {
	t, _ := ctx.Value(tokenKey{}).(string)
	return t
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
