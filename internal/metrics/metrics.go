package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors holds the router metrics. A nil *Collectors is a valid no-op.
type Collectors struct {
	registry *prometheus.Registry

	Outcomes         *prometheus.CounterVec
	Duration         *prometheus.HistogramVec
	InFlight         prometheus.Gauge
	RecorderFailures prometheus.Counter
	Orphaned         *prometheus.CounterVec
	CacheHits        *prometheus.CounterVec
}

// New creates collectors registered on a private registry together with the
// Go runtime and process collectors.
func New() *Collectors {
	c := &Collectors{
		registry: prometheus.NewRegistry(),
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "router_outcomes_total",
			Help: "Terminal outcomes by capability, status and reason.",
		}, []string{"capability", "status", "reason"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "router_execution_duration_seconds",
			Help:    "Capability execution time in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"capability"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "router_executions_in_flight",
			Help: "Capabilities currently executing.",
		}),
		RecorderFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "router_recorder_failures_total",
			Help: "Interaction records that could not be persisted.",
		}),
		Orphaned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "router_orphaned_executions_total",
			Help: "Executions abandoned after their timeout.",
		}, []string{"capability"}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "router_cache_hits_total",
			Help: "Read-only capability results served from cache.",
		}, []string{"capability"}),
	}
	c.registry.MustRegister(
		c.Outcomes, c.Duration, c.InFlight, c.RecorderFailures, c.Orphaned, c.CacheHits,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry exposes the underlying registry.
func (c *Collectors) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the metrics in Prometheus text format.
func (c *Collectors) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveOutcome counts a terminal outcome.
func (c *Collectors) ObserveOutcome(capability, status, reason string) {
	if c == nil {
		return
	}
	c.Outcomes.WithLabelValues(capability, status, reason).Inc()
}

// ObserveDuration records execution time.
func (c *Collectors) ObserveDuration(capability string, d time.Duration) {
	if c == nil {
		return
	}
	c.Duration.WithLabelValues(capability).Observe(d.Seconds())
}

// ExecutionStarted increments the in-flight gauge and returns its decrement.
func (c *Collectors) ExecutionStarted() func() {
	if c == nil {
		return func() {}
	}
	c.InFlight.Inc()
	return c.InFlight.Dec
}

// RecorderFailed counts a failed persistence attempt.
func (c *Collectors) RecorderFailed() {
	if c == nil {
		return
	}
	c.RecorderFailures.Inc()
}

// ExecutionOrphaned counts an execution left running after its timeout.
func (c *Collectors) ExecutionOrphaned(capability string) {
	if c == nil {
		return
	}
	c.Orphaned.WithLabelValues(capability).Inc()
}

// CacheHit counts a cached result.
func (c *Collectors) CacheHit(capability string) {
	if c == nil {
		return
	}
	c.CacheHits.WithLabelValues(capability).Inc()
}
