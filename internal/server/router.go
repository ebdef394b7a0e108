package server

import (
	"net/http"
	"time"

	"github.com/fekuna/omnipos-fulfillment-service/internal/auth"
	fulfillmentHandler "github.com/fekuna/omnipos-fulfillment-service/internal/fulfillment/handler"
	inventoryHandler "github.com/fekuna/omnipos-fulfillment-service/internal/inventory/handler"
	"github.com/fekuna/omnipos-fulfillment-service/internal/platform/logger"
	"github.com/fekuna/omnipos-fulfillment-service/internal/ratelimit"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type RouterConfig struct {
	Inventory   *inventoryHandler.InventoryHandler
	Fulfillment *fulfillmentHandler.FulfillmentHandler
	Health      *Health

	JWT *auth.JWTManager

	CSRFEnabled bool
	CSRF        auth.CSRFConfig

	// Limiter may be nil when Redis is not configured.
	Limiter   *ratelimit.Limiter
	RateLimit ratelimit.Config

	RequestTimeout time.Duration
	Logger         logger.ZapLogger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	r.Handle("/healthz", cfg.Health)
	r.Get("/csrf-token", auth.CSRFTokenHandler(cfg.CSRF))

	limit := ratelimit.Middleware(cfg.Limiter, cfg.RateLimit, cfg.Logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Authenticate(cfg.JWT, cfg.Logger))
		r.Use(auth.RequireApproved(cfg.Logger))
		if cfg.CSRFEnabled {
			r.Use(auth.CSRF(cfg.CSRF, cfg.Logger))
		}

		cfg.Inventory.RegisterRoutes(r, limit)
		cfg.Fulfillment.RegisterRoutes(r, limit)
	})

	return r
}
