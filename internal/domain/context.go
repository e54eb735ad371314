package domain

import "context"

type identityKey struct{}

// ContextWithIdentity attaches the authenticated caller to ctx.
func ContextWithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the caller attached by the transport, or the
// zero Identity for anonymous requests.
func IdentityFromContext(ctx context.Context) Identity {
	identity, _ := ctx.Value(identityKey{}).(Identity)
	return identity
}
