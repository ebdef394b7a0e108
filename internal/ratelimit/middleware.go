package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/fekuna/omnipos-fulfillment-service/internal/apperr"
	"github.com/fekuna/omnipos-fulfillment-service/internal/auth"
	"github.com/fekuna/omnipos-fulfillment-service/internal/httpx"
	"github.com/fekuna/omnipos-fulfillment-service/internal/platform/logger"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Config struct {
	Limit  int
	Window time.Duration
}

// Middleware limits requests per (route, user). Anonymous callers are keyed by remote address.
// A nil limiter lets everything through, and so does a failing Redis.
func Middleware(limiter *Limiter, cfg Config, log logger.ZapLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil || cfg.Limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := routeOf(r)
			client := clientOf(r)

			result, err := limiter.Allow(r.Context(), route+":"+client, cfg.Limit, cfg.Window)
			if err != nil {
				log.Error("rate limit check failed", zap.String("route", route), zap.String("client", client), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			if !result.Allowed {
				log.Warn("rate limit exceeded",
					zap.String("route", route),
					zap.String("client", client),
					zap.Int("limit", result.Limit),
					zap.Time("reset_at", result.ResetAt),
				)
				httpx.RespondError(w, r, log, &apperr.RateLimitError{
					Limit:     result.Limit,
					Remaining: result.Remaining,
					ResetAt:   result.ResetAt,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func routeOf(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return r.Method + " " + pattern
		}
	}
	return r.Method + " " + r.URL.Path
}

func clientOf(r *http.Request) string {
	if userID := auth.GetUserID(r.Context()); userID != "" {
		return "user:" + userID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
