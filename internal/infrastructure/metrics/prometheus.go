package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusExporter exports metrics to Prometheus format.
type PrometheusExporter struct {
	collector *Collector

	cacheHitRate prometheus.Gauge
	cacheKeys    prometheus.Gauge
	requests     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	errors       *prometheus.CounterVec
	faults       *prometheus.CounterVec
}

// NewPrometheusExporter creates a new Prometheus exporter registered on reg.
// Cache counters are read from the collector at scrape time.
func NewPrometheusExporter(collector *Collector, reg prometheus.Registerer) *PrometheusExporter {
	factory := promauto.With(reg)

	factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "attrgate_schema_cache_hits_total",
		Help: "Total number of schema cache hits",
	}, func() float64 {
		return float64(collector.GetCacheMetrics().Hits)
	})
	factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "attrgate_schema_cache_misses_total",
		Help: "Total number of schema cache misses",
	}, func() float64 {
		return float64(collector.GetCacheMetrics().Misses)
	})
	factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "attrgate_schema_cache_evictions_total",
		Help: "Total number of schema cache evictions",
	}, func() float64 {
		return float64(collector.GetCacheMetrics().Evictions)
	})

	return &PrometheusExporter{
		collector: collector,
		cacheHitRate: factory.NewGauge(prometheus.GaugeOpts{
			Name: "attrgate_schema_cache_hit_rate",
			Help: "Current schema cache hit rate (0.0 to 1.0)",
		}),
		cacheKeys: factory.NewGauge(prometheus.GaugeOpts{
			Name: "attrgate_schema_cache_keys_current",
			Help: "Current number of entity types in the schema cache",
		}),
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "attrgate_requests_total",
				Help: "Total number of requests",
			},
			[]string{"route"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "attrgate_request_duration_seconds",
				Help:    "Duration of requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
			},
			[]string{"route"},
		),
		errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "attrgate_request_errors_total",
				Help: "Total number of requests answered with an error status",
			},
			[]string{"route"},
		),
		faults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "attrgate_gateway_faults_total",
				Help: "Total number of fault payloads returned by the gateway",
			},
			[]string{"fault"},
		),
	}
}

// Update updates Gauge metrics from the collector.
// This should be called periodically (e.g., every 10 seconds).
func (e *PrometheusExporter) Update() {
	cacheMetrics := e.collector.GetCacheMetrics()
	e.cacheHitRate.Set(cacheMetrics.HitRate)
	e.cacheKeys.Set(float64(cacheMetrics.KeysCurrent))
}

// RecordRequest records a request in Prometheus.
func (e *PrometheusExporter) RecordRequest(route string) {
	e.requests.WithLabelValues(route).Inc()
}

// RecordDuration records a duration in Prometheus.
func (e *PrometheusExporter) RecordDuration(route string, durationSeconds float64) {
	e.duration.WithLabelValues(route).Observe(durationSeconds)
}

// RecordError records an error in Prometheus.
func (e *PrometheusExporter) RecordError(route string) {
	e.errors.WithLabelValues(route).Inc()
}

// RecordFault records a gateway fault in both the collector and Prometheus.
func (e *PrometheusExporter) RecordFault(fault string) {
	e.collector.RecordFault(fault)
	e.faults.WithLabelValues(fault).Inc()
}
