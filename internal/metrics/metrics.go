// Package metrics is cachegate's observability component (G): monotonic
// request/cache/error counters plus an upstream latency histogram keyed by
// store id, exposed as both a JSON snapshot and Prometheus text exposition.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Registry owns every counter and the latency histogram, backed by a single
// prometheus.Registry. Both /stats and /metrics read out of these same
// collectors rather than keeping parallel counters.
type Registry struct {
	promRegistry    *prometheus.Registry
	promRequests    prometheus.Counter
	promCacheHits   prometheus.Counter
	promCacheMisses prometheus.Counter
	promUpstreamErr prometheus.Counter
	promAuthFail    prometheus.Counter
	promLatency     *prometheus.HistogramVec
}

// New builds a fresh Registry with its own prometheus.Registry, so a process
// never accidentally shares counters with the global default registry.
func New() *Registry {
	r := &Registry{promRegistry: prometheus.NewRegistry()}

	r.promRequests = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cachegate_requests_total",
		Help: "Total HTTP requests handled.",
	})
	r.promCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cachegate_cache_hits_total",
		Help: "Total cache hits.",
	})
	r.promCacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cachegate_cache_misses_total",
		Help: "Total cache misses.",
	})
	r.promUpstreamErr = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cachegate_upstream_errors_total",
		Help: "Total upstream store errors.",
	})
	r.promAuthFail = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cachegate_auth_failures_total",
		Help: "Total presign/bearer authentication failures.",
	})
	r.promLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cachegate_upstream_latency_seconds",
		Help:    "Upstream store call latency in seconds, by store id.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms .. ~8.2s
	}, []string{"store_id"})

	r.promRegistry.MustRegister(
		r.promRequests, r.promCacheHits, r.promCacheMisses,
		r.promUpstreamErr, r.promAuthFail, r.promLatency,
	)
	return r
}

func (r *Registry) IncRequests()      { r.promRequests.Inc() }
func (r *Registry) IncCacheHit()      { r.promCacheHits.Inc() }
func (r *Registry) IncCacheMiss()     { r.promCacheMisses.Inc() }
func (r *Registry) IncUpstreamError() { r.promUpstreamErr.Inc() }
func (r *Registry) IncAuthFailure()   { r.promAuthFail.Inc() }

// ObserveUpstreamLatency records a single upstream call's duration in
// seconds against the store it was made to.
func (r *Registry) ObserveUpstreamLatency(storeID string, seconds float64) {
	r.promLatency.WithLabelValues(storeID).Observe(seconds)
}

// Snapshot is the JSON-serializable form of the counters, returned by
// GET /stats.
type Snapshot struct {
	RequestsTotal  uint64 `json:"requests_total"`
	CacheHits      uint64 `json:"cache_hits"`
	CacheMisses    uint64 `json:"cache_misses"`
	UpstreamErrors uint64 `json:"upstream_errors"`
	AuthFailures   uint64 `json:"auth_failures"`
	CacheBytes     int64  `json:"cache_bytes_used"`
	CacheEntries   int    `json:"cache_entries"`
}

// Snapshot reads every counter straight out of the prometheus collectors
// backing /metrics, plus cache size observers passed in by the caller (the
// fetcher owns the cache, not this package).
func (r *Registry) Snapshot(cacheBytes int64, cacheEntries int) Snapshot {
	return Snapshot{
		RequestsTotal:  counterValue(r.promRequests),
		CacheHits:      counterValue(r.promCacheHits),
		CacheMisses:    counterValue(r.promCacheMisses),
		UpstreamErrors: counterValue(r.promUpstreamErr),
		AuthFailures:   counterValue(r.promAuthFail),
		CacheBytes:     cacheBytes,
		CacheEntries:   cacheEntries,
	}
}

// counterValue reads a counter's current value through the same Write
// method promhttp uses to render /metrics, so /stats can never drift from
// the Prometheus exposition.
func counterValue(c prometheus.Counter) uint64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return uint64(m.GetCounter().GetValue())
}

// Handler returns the Prometheus text exposition HTTP handler for /metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.promRegistry, promhttp.HandlerOpts{})
}
