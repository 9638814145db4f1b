package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"google.golang.org/grpc"
)

// recorder is the part of the exporter the interceptors use
type recorder interface {
	RecordRequest(key string)
	RecordDuration(key string, durationSeconds float64)
	RecordError(key string)
}

func observe(collector *Collector, exporter *PrometheusExporter, key string, start time.Time, failed bool) {
	duration := time.Since(start).Seconds()

	targets := []recorder{collector}
	if exporter != nil {
		targets = append(targets, exporter)
	}
	for _, r := range targets {
		r.RecordRequest(key)
		r.RecordDuration(key, duration)
		if failed {
			r.RecordError(key)
		}
	}
}

// UnaryServerInterceptor returns a gRPC interceptor that records metrics for each request.
func UnaryServerInterceptor(collector *Collector, exporter *PrometheusExporter) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		observe(collector, exporter, info.FullMethod, start, err != nil)
		return resp, err
	}
}

// HTTPMiddleware returns chi middleware that records metrics per route.
// Responses with status 400 or above count as errors.
func HTTPMiddleware(collector *Collector, exporter *PrometheusExporter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			observe(collector, exporter, routeKey(r), start, ww.Status() >= http.StatusBadRequest)
		})
	}
}

// routeKey labels a request by its matched chi pattern, not the raw path
func routeKey(r *http.Request) string {
	pattern := ""
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		pattern = rctx.RoutePattern()
	}
	if pattern == "" {
		pattern = "unmatched"
	}
	return r.Method + " " + pattern
}
