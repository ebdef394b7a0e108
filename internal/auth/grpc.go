package auth

import (
	"context"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// ContextInterceptor copies the caller headers set by the gateway into a UserContext.
func ContextInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return handler(ctx, req)
		}

		userID := first(md, "x-user-id")
		if userID == "" {
			return handler(ctx, req)
		}
		approved, _ := strconv.ParseBool(first(md, "x-user-approved"))
		admin, _ := strconv.ParseBool(first(md, "x-user-admin"))

		ctx = WithUser(ctx, &UserContext{UserID: userID, IsApproved: approved, IsAdmin: admin})
		return handler(ctx, req)
	}
}

func first(md metadata.MD, key string) string {
	if val := md.Get(key); len(val) > 0 {
		return val[0]
	}
	return ""
}
