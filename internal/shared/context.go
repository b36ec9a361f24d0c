package shared

import (
	"context"
	"time"

	"github.com/securhealth/portal/internal/policy"
)

// Principal is the verified bearer of a request credential.
type Principal struct {
	Identity  policy.Identity
	TokenID   string
	ExpiresAt time.Time
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}

// IdentityFromContext is a shorthand for handlers that only need attributes.
func IdentityFromContext(ctx context.Context) (policy.Identity, bool) {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return policy.Identity{}, false
	}
	return p.Identity, true
}
