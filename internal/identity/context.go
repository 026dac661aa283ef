package identity

import (
	"context"

	"github.com/Mihendy/pp-2025/internal/store"
)

type contextKey struct{}

// WithUser returns a context carrying the authenticated user.
func WithUser(ctx context.Context, u *store.User) context.Context {
	return context.WithValue(ctx, contextKey{}, u)
}

// UserFrom extracts the authenticated user from the context.
func UserFrom(ctx context.Context) (*store.User, bool) {
	u, ok := ctx.Value(contextKey{}).(*store.User)
	return u, ok
}
