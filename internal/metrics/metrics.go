// Package metrics provides Prometheus metrics for the browser.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Default histogram buckets for fetch and API latency.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// Metrics holds all Prometheus metric collectors for the browser.
type Metrics struct {
	Registry *prometheus.Registry

	FetchesTotal  *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec
	CacheLookups  *prometheus.CounterVec
	Redirects     prometheus.Counter

	ConnectionsOpened *prometheus.CounterVec
	OpenConnections   prometheus.Gauge

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge
}

// New creates a Metrics instance with a custom registry and all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		FetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bowsernet_fetch_requests_total",
			Help: "Total document fetches by scheme and outcome.",
		}, []string{"scheme", "outcome"}),

		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bowsernet_fetch_duration_seconds",
			Help:    "Document fetch latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"scheme"}),

		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bowsernet_cache_lookups_total",
			Help: "Response cache lookups by result.",
		}, []string{"result"}),

		Redirects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bowsernet_redirects_total",
			Help: "Redirects followed.",
		}),

		ConnectionsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bowsernet_pool_connections_opened_total",
			Help: "Connections dialed by the pool.",
		}, []string{"tls"}),

		OpenConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bowsernet_pool_open_connections",
			Help: "Connections currently held by the pool.",
		}),

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bowsernet_http_requests_total",
			Help: "Total inbound API requests.",
		}, []string{"method", "status_code", "path_prefix"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bowsernet_http_request_duration_seconds",
			Help:    "Inbound API request latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "path_prefix"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bowsernet_http_requests_in_flight",
			Help: "Number of API requests currently being processed.",
		}),
	}

	reg.MustRegister(
		m.FetchesTotal,
		m.FetchDuration,
		m.CacheLookups,
		m.Redirects,
		m.ConnectionsOpened,
		m.OpenConnections,
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
	)

	return m
}

// knownMethods lists the allowed HTTP method label values (bounded cardinality).
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// NormalizeMethod returns a bounded HTTP method label for Prometheus metrics.
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

// knownPrefixes lists the allowed path label values (bounded cardinality).
var knownPrefixes = []string{"/fetch", "/healthz", "/status", "/metrics"}

// NormalizePath returns a bounded path label for Prometheus metrics.
func NormalizePath(path string) string {
	for _, prefix := range knownPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") || strings.HasPrefix(path, prefix+"?") {
			return prefix
		}
	}
	return "other"
}
