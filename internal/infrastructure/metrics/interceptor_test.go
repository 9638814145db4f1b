package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc"

	"github.com/asakaida/attrgate/pkg/cache"
)

func TestUnaryServerInterceptor_RecordsRequest(t *testing.T) {
	collector := NewCollector()
	interceptor := UnaryServerInterceptor(collector, nil)

	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return "response", nil
	}
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	for i := 0; i < 3; i++ {
		if _, err := interceptor(context.Background(), "request", info, handler); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	m := collector.GetRequestMetrics()
	if count := m.RequestCounts["/grpc.health.v1.Health/Check"]; count != 3 {
		t.Errorf("expected request count 3, got %d", count)
	}
	if _, ok := m.TotalDurationSeconds["/grpc.health.v1.Health/Check"]; !ok {
		t.Error("expected duration to be recorded")
	}
	if count := m.ErrorCounts["/grpc.health.v1.Health/Check"]; count != 0 {
		t.Errorf("expected no errors, got %d", count)
	}
}

func TestUnaryServerInterceptor_RecordsError(t *testing.T) {
	collector := NewCollector()
	exporter := NewPrometheusExporter(collector, prometheus.NewRegistry())
	interceptor := UnaryServerInterceptor(collector, exporter)

	expectedErr := errors.New("test error")
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, expectedErr
	}
	info := &grpc.UnaryServerInfo{FullMethod: "/test.Service/ErrorMethod"}

	if _, err := interceptor(context.Background(), "request", info, handler); err != expectedErr {
		t.Fatalf("expected error %v, got %v", expectedErr, err)
	}

	if count := collector.GetRequestMetrics().ErrorCounts["/test.Service/ErrorMethod"]; count != 1 {
		t.Errorf("expected error count 1, got %d", count)
	}
	if got := testutil.ToFloat64(exporter.errors.WithLabelValues("/test.Service/ErrorMethod")); got != 1 {
		t.Errorf("expected prometheus error count 1, got %v", got)
	}
}

func TestHTTPMiddleware(t *testing.T) {
	collector := NewCollector()
	exporter := NewPrometheusExporter(collector, prometheus.NewRegistry())

	r := chi.NewRouter()
	r.Use(HTTPMiddleware(collector, exporter))
	r.Post("/ProductService-Service", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/forbidden", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	for _, path := range []string{"/ProductService-Service", "/ProductService-Service", "/forbidden", "/nowhere"} {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader("{}"))
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	m := collector.GetRequestMetrics()
	if count := m.RequestCounts["POST /ProductService-Service"]; count != 2 {
		t.Errorf("expected 2 service requests, got %d (%v)", count, m.RequestCounts)
	}
	if count := m.ErrorCounts["POST /forbidden"]; count != 1 {
		t.Errorf("expected 1 forbidden error, got %d", count)
	}
	if count := m.ErrorCounts["POST /ProductService-Service"]; count != 0 {
		t.Errorf("expected no service errors, got %d", count)
	}
	if got := testutil.ToFloat64(exporter.requests.WithLabelValues("POST /ProductService-Service")); got != 2 {
		t.Errorf("expected prometheus request count 2, got %v", got)
	}
}

type stubCache struct {
	metrics *cache.Metrics
	size    int
}

func (s *stubCache) Metrics() *cache.Metrics { return s.metrics }
func (s *stubCache) Len() int                { return s.size }

func TestPrometheusExporter_CacheMetrics(t *testing.T) {
	collector := NewCollector()
	reg := prometheus.NewRegistry()
	exporter := NewPrometheusExporter(collector, reg)

	// No cache configured
	exporter.Update()
	if got := testutil.ToFloat64(exporter.cacheKeys); got != 0 {
		t.Errorf("expected 0 keys without cache, got %v", got)
	}

	stub := &stubCache{metrics: &cache.Metrics{Hits: 3, Misses: 1, KeysEvicted: 2}, size: 4}
	collector.SetCache(stub, stub)
	exporter.Update()

	if got := testutil.ToFloat64(exporter.cacheHitRate); got != 0.75 {
		t.Errorf("expected hit rate 0.75, got %v", got)
	}
	if got := testutil.ToFloat64(exporter.cacheKeys); got != 4 {
		t.Errorf("expected 4 keys, got %v", got)
	}

	expected := `
# HELP attrgate_schema_cache_hits_total Total number of schema cache hits
# TYPE attrgate_schema_cache_hits_total counter
attrgate_schema_cache_hits_total 3
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "attrgate_schema_cache_hits_total"); err != nil {
		t.Error(err)
	}
}

func TestPrometheusExporter_RecordFault(t *testing.T) {
	collector := NewCollector()
	exporter := NewPrometheusExporter(collector, prometheus.NewRegistry())

	exporter.RecordFault("BAD REQUEST")
	exporter.RecordFault("BAD REQUEST")

	if count := collector.GetRequestMetrics().FaultCounts["BAD REQUEST"]; count != 2 {
		t.Errorf("expected fault count 2, got %d", count)
	}
	if got := testutil.ToFloat64(exporter.faults.WithLabelValues("BAD REQUEST")); got != 2 {
		t.Errorf("expected prometheus fault count 2, got %v", got)
	}
}
