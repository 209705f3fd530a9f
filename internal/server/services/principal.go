package services

import (
	"context"
	"time"

	"github.com/dmitrijs2005/taskauth/internal/common"
)

// Principal is an authenticated caller: a token that verified and whose
// session is still active.
type Principal struct {
	ID        string
	Username  string
	Role      string
	ExpiresAt time.Time
	// Token is the raw bearer token, kept so logout can revoke it.
	Token string
}

// IsAdmin reports whether the principal holds the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == common.RoleAdmin
}

// SystemPrincipal is an admin principal for operator tooling that acts
// with direct database access instead of a bearer token.
func SystemPrincipal(name string) Principal {
	return Principal{ID: "system", Username: name, Role: common.RoleAdmin}
}

// ClientInfo is diagnostic data recorded with a session.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

type principalKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal stored by WithPrincipal.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
