package observability

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus implements LayoutHooks, CacheHooks and HTTPHooks on a private
// registry. Register it with the Set* functions and serve Handler.
type Prometheus struct {
	registry *prometheus.Registry

	LayoutRuns       *prometheus.CounterVec
	LayoutDuration   *prometheus.HistogramVec
	LayoutIterations prometheus.Counter
	LayoutsActive    prometheus.Gauge

	CacheOps      *prometheus.CounterVec
	CacheSetBytes prometheus.Counter

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewPrometheus creates the collectors on a fresh registry.
func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Prometheus{
		registry: reg,

		LayoutRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forcelayout_layout_runs_total",
				Help: "Layout runs by termination reason",
			},
			[]string{"reason"},
		),
		LayoutDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "forcelayout_layout_duration_seconds",
				Help:    "Wall time of layout runs",
				Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10, 30},
			},
			[]string{"reason"},
		),
		LayoutIterations: f.NewCounter(prometheus.CounterOpts{
			Name: "forcelayout_layout_iterations_total",
			Help: "Simulation iterations completed across all runs",
		}),
		LayoutsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "forcelayout_layouts_active",
			Help: "Layout runs currently in flight",
		}),

		CacheOps: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forcelayout_cache_operations_total",
				Help: "Cache lookups and writes by key type and result",
			},
			[]string{"key_type", "result"},
		),
		CacheSetBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "forcelayout_cache_set_bytes_total",
			Help: "Bytes written to the cache",
		}),

		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forcelayout_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "forcelayout_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forcelayout_http_errors_total",
				Help: "Handler errors mapped to error responses",
			},
			[]string{"method", "route"},
		),
	}
}

// Registry returns the underlying registry.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Register installs p as the layout, cache and HTTP hooks.
func (p *Prometheus) Register() {
	SetLayoutHooks(p)
	SetCacheHooks(p)
	SetHTTPHooks(p)
}

func (p *Prometheus) OnLayoutStart(context.Context, string, int, int) {
	p.LayoutsActive.Inc()
}

// OnIteration is a no-op; iterations are counted once per run on completion.
func (p *Prometheus) OnIteration(context.Context, string, int, float64) {}

func (p *Prometheus) OnLayoutComplete(_ context.Context, _ string, reason string, iterations int, d time.Duration, err error) {
	if reason == "" {
		// Rejected before the run started.
		reason = "invalid"
	} else {
		p.LayoutsActive.Dec()
	}
	p.LayoutRuns.WithLabelValues(reason).Inc()
	p.LayoutDuration.WithLabelValues(reason).Observe(d.Seconds())
	p.LayoutIterations.Add(float64(iterations))
}

func (p *Prometheus) OnCacheHit(_ context.Context, keyType string) {
	p.CacheOps.WithLabelValues(keyType, "hit").Inc()
}

func (p *Prometheus) OnCacheMiss(_ context.Context, keyType string) {
	p.CacheOps.WithLabelValues(keyType, "miss").Inc()
}

func (p *Prometheus) OnCacheSet(_ context.Context, keyType string, size int) {
	p.CacheOps.WithLabelValues(keyType, "set").Inc()
	p.CacheSetBytes.Add(float64(size))
}

func (p *Prometheus) OnRequest(context.Context, string, string) {}

func (p *Prometheus) OnResponse(_ context.Context, method, route string, status int, d time.Duration) {
	p.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	p.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (p *Prometheus) OnError(_ context.Context, method, route string, _ error) {
	p.HTTPErrors.WithLabelValues(method, route).Inc()
}

var (
	_ LayoutHooks = (*Prometheus)(nil)
	_ CacheHooks  = (*Prometheus)(nil)
	_ HTTPHooks   = (*Prometheus)(nil)
)
