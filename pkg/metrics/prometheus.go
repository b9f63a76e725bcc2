package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusProvider implements the Provider interface using Prometheus.
// Each provider owns its registry so several can coexist in one process.
type PrometheusProvider struct {
	registry         *prometheus.Registry
	requestDuration  *prometheus.HistogramVec
	requestTotal     *prometheus.CounterVec
	requestsInFlight prometheus.Gauge
	queryDuration    *prometheus.HistogramVec
	queryTotal       *prometheus.CounterVec
	mutationTotal    *prometheus.CounterVec
	cacheHits        *prometheus.CounterVec
	cacheMisses      *prometheus.CounterVec
	panicsTotal      *prometheus.CounterVec
}

// NewPrometheusProvider creates a new Prometheus metrics provider. A nil cfg uses DefaultConfig.
func NewPrometheusProvider(cfg *Config) *PrometheusProvider {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.ApplyDefaults()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)
	ns := cfg.Namespace

	return &PrometheusProvider{
		registry: reg,
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   cfg.HTTPRequestBuckets,
			},
			[]string{"method", "path", "status"},
		),
		requestTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		requestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: ns,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
		queryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Name:      "query_duration_seconds",
				Help:      "Duration of select, count and exists queries in seconds",
				Buckets:   cfg.QueryBuckets,
			},
			[]string{"table", "kind"},
		),
		queryTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "queries_total",
				Help:      "Total number of select, count and exists queries",
			},
			[]string{"table", "kind", "status"},
		),
		mutationTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "mutations_total",
				Help:      "Total number of mutations by outcome status",
			},
			[]string{"model", "operation", "status"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "cache_hits_total",
				Help:      "Total number of cache hits",
			},
			[]string{"provider"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "cache_misses_total",
				Help:      "Total number of cache misses",
			},
			[]string{"provider"},
		),
		panicsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "panics_total",
				Help:      "Total number of recovered panics",
			},
			[]string{"location"},
		),
	}
}

func (p *PrometheusProvider) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	p.requestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
	p.requestTotal.WithLabelValues(method, path, status).Inc()
}

func (p *PrometheusProvider) IncRequestsInFlight() {
	p.requestsInFlight.Inc()
}

func (p *PrometheusProvider) DecRequestsInFlight() {
	p.requestsInFlight.Dec()
}

func (p *PrometheusProvider) RecordQuery(table, kind string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	p.queryDuration.WithLabelValues(table, kind).Observe(duration.Seconds())
	p.queryTotal.WithLabelValues(table, kind, status).Inc()
}

func (p *PrometheusProvider) RecordMutation(model, operation, status string) {
	p.mutationTotal.WithLabelValues(model, operation, status).Inc()
}

func (p *PrometheusProvider) RecordCacheHit(provider string) {
	p.cacheHits.WithLabelValues(provider).Inc()
}

func (p *PrometheusProvider) RecordCacheMiss(provider string) {
	p.cacheMisses.WithLabelValues(provider).Inc()
}

func (p *PrometheusProvider) RecordPanic(location string) {
	p.panicsTotal.WithLabelValues(location).Inc()
}

// Registry exposes the provider's registry, mainly for tests.
func (p *PrometheusProvider) Registry() *prometheus.Registry {
	return p.registry
}

func (p *PrometheusProvider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
