// Package metrics provides Prometheus metrics for the best-instance service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Selection metrics
	SelectionsTotal   *prometheus.CounterVec
	SelectionDuration *prometheus.HistogramVec

	// Selector state metrics, fed from the engine's counters
	CandidatesDropped *prometheus.GaugeVec
	CacheHits         prometheus.Gauge
	CacheMisses       prometheus.Gauge
	CachedSelections  prometheus.Gauge

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates a new Metrics instance and registers with Prometheus.
func New() *Metrics {
	m := &Metrics{
		SelectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bestinstance",
			Name:      "selections_total",
			Help:      "Total number of selection requests.",
		}, []string{"usage_class", "status"}),
		SelectionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bestinstance",
			Name:      "selection_duration_seconds",
			Help:      "Selection request duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1s to ~3.5m
		}, []string{"usage_class"}),
		CandidatesDropped: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "bestinstance",
			Name:      "candidates_dropped_total",
			Help:      "Candidates dropped during selection, by reason.",
		}, []string{"reason"}),
		CacheHits: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bestinstance",
			Name:      "cache_hits_total",
			Help:      "Selection cache hits.",
		}),
		CacheMisses: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bestinstance",
			Name:      "cache_misses_total",
			Help:      "Selection cache misses.",
		}),
		CachedSelections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bestinstance",
			Name:      "cached_selections",
			Help:      "Selection results currently cached.",
		}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bestinstance",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bestinstance",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	// Register all metrics
	prometheus.MustRegister(
		m.SelectionsTotal,
		m.SelectionDuration,
		m.CandidatesDropped,
		m.CacheHits,
		m.CacheMisses,
		m.CachedSelections,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)

	return m
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordSelection records a selection request metric.
func (m *Metrics) RecordSelection(usageClass, status string, duration float64) {
	m.SelectionsTotal.WithLabelValues(usageClass, status).Inc()
	m.SelectionDuration.WithLabelValues(usageClass).Observe(duration)
}

// RecordHTTPRequest records an HTTP request metric.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// SetDroppedCandidates sets the dropped-candidate totals by reason.
func (m *Metrics) SetDroppedCandidates(noPrice, noHistory, noFrequency int64) {
	m.CandidatesDropped.WithLabelValues("no_price").Set(float64(noPrice))
	m.CandidatesDropped.WithLabelValues("no_history").Set(float64(noHistory))
	m.CandidatesDropped.WithLabelValues("no_frequency").Set(float64(noFrequency))
}

// SetCacheStats sets the cache state metrics.
func (m *Metrics) SetCacheStats(hits, misses int64, cached int) {
	m.CacheHits.Set(float64(hits))
	m.CacheMisses.Set(float64(misses))
	m.CachedSelections.Set(float64(cached))
}
