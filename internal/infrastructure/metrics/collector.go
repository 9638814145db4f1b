package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/asakaida/attrgate/pkg/cache"
)

// CacheSource exposes the statistics of a cache, such as the schema cache
type CacheSource interface {
	Metrics() *cache.Metrics
}

// sizedCache is implemented by caches that can report their entry count
type sizedCache interface {
	Len() int
}

// Collector collects and aggregates metrics for the application.
type Collector struct {
	// Request metrics keyed by "<METHOD> <route>" or gRPC full method
	requests sync.Map // map[string]*uint64
	errors   sync.Map // map[string]*uint64
	duration sync.Map // map[string]*durationValue

	// Gateway faults keyed by fault message
	faults sync.Map // map[string]*uint64

	cacheMu sync.RWMutex
	cache   CacheSource
	sized   sizedCache
}

// durationValue holds duration with mutex for thread-safe updates.
type durationValue struct {
	mu           sync.Mutex
	totalSeconds float64
}

// CacheMetrics holds cache performance metrics.
type CacheMetrics struct {
	Hits        uint64
	Misses      uint64
	HitRate     float64
	KeysCurrent int64
	Evictions   uint64
}

// RequestMetrics holds request metrics.
type RequestMetrics struct {
	RequestCounts        map[string]uint64
	ErrorCounts          map[string]uint64
	FaultCounts          map[string]uint64
	TotalDurationSeconds map[string]float64
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{}
}

// SetCache sets the cache whose statistics are reported.
// sized may be nil when the backend cannot count its entries.
func (c *Collector) SetCache(source CacheSource, sized sizedCache) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.cache = source
	c.sized = sized
}

// RecordRequest records a request.
func (c *Collector) RecordRequest(key string) {
	atomic.AddUint64(c.getOrCreateCounter(&c.requests, key), 1)
}

// RecordError records a failed request.
func (c *Collector) RecordError(key string) {
	atomic.AddUint64(c.getOrCreateCounter(&c.errors, key), 1)
}

// RecordFault records a fault payload returned by the gateway.
func (c *Collector) RecordFault(fault string) {
	atomic.AddUint64(c.getOrCreateCounter(&c.faults, fault), 1)
}

// RecordDuration records the duration of a request in seconds.
func (c *Collector) RecordDuration(key string, durationSeconds float64) {
	val, _ := c.duration.LoadOrStore(key, &durationValue{})
	dv := val.(*durationValue)

	dv.mu.Lock()
	dv.totalSeconds += durationSeconds
	dv.mu.Unlock()
}

// GetCacheMetrics returns current cache metrics.
func (c *Collector) GetCacheMetrics() *CacheMetrics {
	c.cacheMu.RLock()
	source, sized := c.cache, c.sized
	c.cacheMu.RUnlock()

	if source == nil {
		return &CacheMetrics{}
	}

	metrics := source.Metrics()
	if metrics == nil {
		return &CacheMetrics{}
	}

	result := &CacheMetrics{
		Hits:      metrics.Hits,
		Misses:    metrics.Misses,
		HitRate:   metrics.HitRate(),
		Evictions: metrics.KeysEvicted,
	}
	if sized != nil {
		result.KeysCurrent = int64(sized.Len())
	}

	return result
}

// GetRequestMetrics returns current request metrics.
func (c *Collector) GetRequestMetrics() *RequestMetrics {
	result := &RequestMetrics{
		RequestCounts:        loadCounters(&c.requests),
		ErrorCounts:          loadCounters(&c.errors),
		FaultCounts:          loadCounters(&c.faults),
		TotalDurationSeconds: make(map[string]float64),
	}

	c.duration.Range(func(key, value interface{}) bool {
		dv := value.(*durationValue)
		dv.mu.Lock()
		result.TotalDurationSeconds[key.(string)] = dv.totalSeconds
		dv.mu.Unlock()
		return true
	})

	return result
}

func loadCounters(m *sync.Map) map[string]uint64 {
	out := make(map[string]uint64)
	m.Range(func(key, value interface{}) bool {
		out[key.(string)] = atomic.LoadUint64(value.(*uint64))
		return true
	})
	return out
}

// getOrCreateCounter gets or creates a counter for the given key.
func (c *Collector) getOrCreateCounter(m *sync.Map, key string) *uint64 {
	val, _ := m.LoadOrStore(key, new(uint64))
	return val.(*uint64)
}
