package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "appendix"

// Upstream call kinds used as the "kind" label.
const (
	KindPortal  = "portal"
	KindQuery   = "query"
	KindExport  = "export"
	KindBasemap = "basemap"
)

// Metrics holds the Prometheus collectors for the factor lookup pipeline.
type Metrics struct {
	// Upstream ArcGIS traffic.
	UpstreamRequests *prometheus.CounterVec   // labels: kind, outcome={success,error,timeout,not_image}
	UpstreamDuration *prometheus.HistogramVec // labels: kind

	// Factor lookups.
	ResponseCache    *prometheus.CounterVec   // labels: result={hit,miss,error}
	FetchDuration    *prometheus.HistogramVec // labels: images={0,1}
	FetchErrors      *prometheus.CounterVec   // labels: class={input,resolution,transport,internal}
	LocatorResolves  *prometheus.CounterVec   // labels: factor, result={resolved,error}
	LocatorCacheSize prometheus.Gauge

	// Collaborators.
	PDFRenders             *prometheus.CounterVec // labels: outcome
	TurnstileVerifications *prometheus.CounterVec // labels: outcome
	PrewarmPending         prometheus.Gauge
}

// NewRegistry returns a registry carrying the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "ArcGIS requests by kind and outcome.",
		}, []string{"kind", "outcome"}),
		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_duration_seconds",
			Help:      "ArcGIS request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}, []string{"kind"}),
		ResponseCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "response_cache_total",
			Help:      "Factor response cache lookups by result.",
		}, []string{"result"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_factors_duration_seconds",
			Help:      "End to end duration of uncached factor lookups.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40},
		}, []string{"images"}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_factors_errors_total",
			Help:      "Failed factor lookups by error class.",
		}, []string{"class"}),
		LocatorResolves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "locator_resolves_total",
			Help:      "Portal item resolutions by factor and result.",
		}, []string{"factor", "result"}),
		LocatorCacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "locator_cache_entries",
			Help:      "Service descriptors held by the locator.",
		}),
		PDFRenders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pdf_renders_total",
			Help:      "HTML to PDF conversions by outcome.",
		}, []string{"outcome"}),
		TurnstileVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turnstile_verifications_total",
			Help:      "Turnstile token checks by outcome.",
		}, []string{"outcome"}),
		PrewarmPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "prewarm_pending_items",
			Help:      "Catalog items not yet resolved by the prewarm job.",
		}),
	}

	reg.MustRegister(
		m.UpstreamRequests,
		m.UpstreamDuration,
		m.ResponseCache,
		m.FetchDuration,
		m.FetchErrors,
		m.LocatorResolves,
		m.LocatorCacheSize,
		m.PDFRenders,
		m.TurnstileVerifications,
		m.PrewarmPending,
	)

	return m
}

// NewMetricsForTesting registers on a throwaway registry so tests can build
// as many instances as they like.
func NewMetricsForTesting() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
