package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/fekuna/omnipos-fulfillment-service/internal/httpx"
	"github.com/fekuna/omnipos-fulfillment-service/internal/platform/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Check pings one dependency.
type Check func(ctx context.Context) error

// Health runs the dependency checks for /healthz and mirrors the result into the gRPC health service.
type Health struct {
	mu      sync.RWMutex
	checks  map[string]Check
	grpc    *health.Server
	timeout time.Duration
	logger  logger.ZapLogger
}

func NewHealth(grpcHealth *health.Server, log logger.ZapLogger) *Health {
	return &Health{
		checks:  make(map[string]Check),
		grpc:    grpcHealth,
		timeout: 2 * time.Second,
		logger:  log,
	}
}

func (h *Health) Register(name string, check Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

type HealthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Run executes every check concurrently.
func (h *Health) Run(ctx context.Context) HealthReport {
	h.mu.RLock()
	checks := make(map[string]Check, len(h.checks))
	for name, c := range h.checks {
		checks[name] = c
	}
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var (
		mu     sync.Mutex
		g      errgroup.Group
		report = HealthReport{Status: "ok", Checks: make(map[string]string, len(checks))}
	)
	for name, check := range checks {
		g.Go(func() error {
			status := "ok"
			if err := check(ctx); err != nil {
				status = err.Error()
			}
			mu.Lock()
			defer mu.Unlock()
			report.Checks[name] = status
			if status != "ok" {
				report.Status = "degraded"
			}
			return nil
		})
	}
	_ = g.Wait()

	h.publish(report)
	return report
}

func (h *Health) publish(report HealthReport) {
	if h.grpc == nil {
		return
	}
	status := healthpb.HealthCheckResponse_SERVING
	if report.Status != "ok" {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.grpc.SetServingStatus("", status)
}

func (h *Health) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report := h.Run(r.Context())
	code := http.StatusOK
	if report.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	httpx.Respond(w, code, report)
}

// Watch refreshes the gRPC serving status every interval until ctx is done.
func (h *Health) Watch(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	h.Run(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			report := h.Run(ctx)
			if report.Status != "ok" {
				h.logger.Warn("dependency check failed", zap.Any("checks", report.Checks))
			}
		}
	}
}
