package auth

import (
	"net/http"
	"strings"

	"github.com/fekuna/omnipos-fulfillment-service/internal/apperr"
	"github.com/fekuna/omnipos-fulfillment-service/internal/httpx"
	"github.com/fekuna/omnipos-fulfillment-service/internal/platform/logger"
)

// Authenticate resolves the bearer token into a UserContext. Requests without a valid token get a 401.
func Authenticate(jwtManager *JWTManager, log logger.ZapLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, found := strings.CutPrefix(header, "Bearer ")
			if !found || strings.TrimSpace(token) == "" {
				httpx.RespondError(w, r, log, apperr.Unauthorized("missing bearer token"))
				return
			}

			claims, err := jwtManager.ValidateToken(strings.TrimSpace(token))
			if err != nil {
				httpx.RespondError(w, r, log, apperr.Unauthorized(err.Error()))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), claims.User())))
		})
	}
}

// RequireApproved rejects authenticated callers whose account is not approved yet.
func RequireApproved(log logger.ZapLogger) func(http.Handler) http.Handler {
	return requireUser(log, "account is not approved", func(u *UserContext) bool { return u.IsApproved || u.IsAdmin })
}

func RequireAdmin(log logger.ZapLogger) func(http.Handler) http.Handler {
	return requireUser(log, "admin role required", func(u *UserContext) bool { return u.IsAdmin })
}

func requireUser(log logger.ZapLogger, message string, allowed func(*UserContext) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := FromContext(r.Context())
			if !ok {
				httpx.RespondError(w, r, log, apperr.Unauthorized("not authenticated"))
				return
			}
			if !allowed(user) {
				httpx.RespondError(w, r, log, apperr.Forbidden(message))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
