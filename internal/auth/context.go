package auth

import "context"

// Identity is the authenticated caller of the relay.
type Identity struct {
	Subject  string
	Issuer   string
	Audience string
}

type contextKey string

const identityKey contextKey = "auth_identity"

// WithIdentity attaches identity to request context.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext retrieves identity from request context.
func FromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey).(*Identity)
	return id, ok
}
