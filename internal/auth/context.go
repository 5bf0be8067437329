package auth

import (
	"context"

	"github.com/MarioNunes35/Portal-de-aplicativos/internal/access"
)

// Principal captures the evaluated caller propagated through the request context.
type Principal struct {
	// PrincipalID is the Casbin-ready identifier (e.g., user:alice@example.com).
	PrincipalID string
	Identity    access.Identity
	// SessionID references the active session row when available.
	SessionID string
	// Roles lists the role names the caller holds.
	Roles    []string
	Decision access.Decision
}

type principalContextKey struct{}

// SetPrincipalContext stores the principal on the context for downstream consumers.
func SetPrincipalContext(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, principal)
}

// GetPrincipalFromContext retrieves the principal from the context.
func GetPrincipalFromContext(ctx context.Context) (Principal, bool) {
	principal, ok := ctx.Value(principalContextKey{}).(Principal)
	return principal, ok
}
