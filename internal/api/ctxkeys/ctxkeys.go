// Package ctxkeys holds the typed context keys shared by middleware and
// handlers. It is a leaf package so both can import it without a cycle.
package ctxkeys

import "context"

// Key is the named type for all API context keys; context.Value compares both
// type and value, so string keys from other packages cannot collide.
type Key string

const (
	// UserID carries the authenticated user id (int64), injected by the auth middleware.
	UserID Key = "user_id"
	// Role carries the optional role claim of the token.
	Role Key = "role"
)

// WithValue adds a ctxkeys.Key value to the context.
func WithValue(ctx context.Context, key Key, value any) context.Context {
	return context.WithValue(ctx, key, value)
}

// UserIDFrom returns the authenticated user id, or false when absent.
func UserIDFrom(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(UserID).(int64)
	return id, ok && id > 0
}
