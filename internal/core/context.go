package core

import "context"

type contextKey string

const ctxKeyUser contextKey = "user"

// ContextWithUser records the acting user for creator and last-modified fields.
func ContextWithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, ctxKeyUser, user)
}

// UserFromContext extracts the acting user, or "" when none was recorded.
func UserFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyUser).(string); ok {
		return v
	}
	return ""
}
