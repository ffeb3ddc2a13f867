package auth

import (
	"github.com/iconidentify/tubevault/internal/domain"
)

// Gate decides whether a caller may run a download request.
type Gate struct {
	premiumRoles []string
}

// NewGate creates a gate. With no premium roles configured, any
// authenticated identity may request premium quality.
func NewGate(premiumRoles []string) *Gate {
	return &Gate{premiumRoles: premiumRoles}
}

// Authorize returns nil when id may run req, domain.ErrUnauthorized when a
// premium request has no identity, and domain.ErrForbidden when the identity
// lacks a premium role.
func (g *Gate) Authorize(req domain.DownloadRequest, id *Identity) error {
	if !domain.RequiresPrivilege(req) {
		return nil
	}
	if id == nil {
		return domain.ErrUnauthorized
	}
	if len(g.premiumRoles) > 0 && !id.HasAnyRole(g.premiumRoles) {
		return domain.ErrForbidden
	}
	return nil
}
