package auth

import (
	"context"

	"google.golang.org/grpc/metadata"
)

type UserContext struct {
	UserID     string
	IsApproved bool
	IsAdmin    bool
}

type contextKey struct{}

func WithUser(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

func FromContext(ctx context.Context) (*UserContext, bool) {
	user, ok := ctx.Value(contextKey{}).(*UserContext)
	return user, ok && user != nil
}

// GetUserID returns the caller set by the HTTP middleware or the gRPC interceptor,
// falling back to the raw x-user-id metadata.
func GetUserID(ctx context.Context) string {
	if user, ok := FromContext(ctx); ok {
		return user.UserID
	}

	md, ok := metadata.FromIncomingContext(ctx)
	if ok {
		if val := md.Get("x-user-id"); len(val) > 0 {
			return val[0]
		}
	}
	return ""
}
