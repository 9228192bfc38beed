// Package metrics exposes procontext's runtime counters via
// github.com/prometheus/client_golang, the pack's Prometheus client of
// choice (see toolhive-registry-server and AdGuardDNS, both of which wire
// promauto collectors into a private registry rather than hand-rolling
// atomic counters).
//
// Each Metrics instance owns its own prometheus.Registry rather than
// registering against the global DefaultRegisterer, so multiple instances
// (e.g. in tests) never collide on collector names.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "procontext"

// Metrics holds the Prometheus collectors for a running procontext
// instance.
type Metrics struct {
	registry *prometheus.Registry

	ResolveCalls  *prometheus.CounterVec
	FetchCalls    *prometheus.CounterVec
	FetchDuration prometheus.Histogram
	CacheHits     *prometheus.CounterVec
	CacheMisses   *prometheus.CounterVec
	AllowlistSize prometheus.Gauge
}

// New builds a Metrics bound to a fresh, private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		ResolveCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolve_calls_total",
			Help:      "Count of resolve_library tool calls by outcome (matched, no_match, error).",
		}, []string{"outcome"}),

		FetchCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_calls_total",
			Help:      "Count of outbound document fetches by result code.",
		}, []string{"code"}),

		FetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of outbound document fetches.",
			Buckets:   prometheus.DefBuckets,
		}),

		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Count of cache hits by table (toc, page).",
		}, []string{"table"}),

		CacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Count of cache misses by table (toc, page).",
		}, []string{"table"}),

		AllowlistSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "allowlist_size",
			Help:      "Current number of base domains in the fetch allowlist.",
		}),
	}
}

// Handler returns the HTTP handler that serves this instance's private
// registry. cmd/procontext mounts it at /metrics only when the HTTP
// transport is active; the stdio transport never calls it.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
