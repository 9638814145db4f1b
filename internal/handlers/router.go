package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/asakaida/attrgate/internal/infrastructure/metrics"
)

// HealthChecker reports whether a backing store is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// RouterConfig holds everything the HTTP router serves
type RouterConfig struct {
	ServicePath         string
	Gateway             *GatewayHandler
	Health              HealthChecker // optional
	Logger              *logrus.Logger
	RateLimiter         *RateLimiter                // optional
	Collector           *metrics.Collector          // optional
	Exporter            *metrics.PrometheusExporter // optional
	TrustForwardedProto bool
}

// NewRouter builds the chi router of the gateway service
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	if cfg.TrustForwardedProto {
		r.Use(middleware.RealIP)
	}
	r.Use(RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	if cfg.Collector != nil {
		r.Use(metrics.HTTPMiddleware(cfg.Collector, cfg.Exporter))
	}

	r.Get("/healthz", healthHandler(cfg.Health))

	r.Group(func(r chi.Router) {
		if cfg.RateLimiter != nil {
			r.Use(cfg.RateLimiter.Handler)
		}
		r.Handle(cfg.ServicePath, cfg.Gateway)
	})

	return r
}

func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		status, code := "ok", http.StatusOK
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := checker.HealthCheck(ctx); err != nil {
				status, code = "unavailable", http.StatusServiceUnavailable
			}
		}

		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
	}
}
