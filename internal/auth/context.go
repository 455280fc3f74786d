package auth

import (
	"context"
)

type principalKey struct{}

// WithPrincipal attaches the authenticated caller identity to ctx.
func WithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, principalKey{}, principal)
}

// PrincipalFrom returns the caller identity, or "" when the request was not
// authenticated.
func PrincipalFrom(ctx context.Context) string {
	p, _ := ctx.Value(principalKey{}).(string)
	return p
}
