// Package metrics exposes Prometheus instrumentation for the service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds every metric the service records
type Collector struct {
	registry *prometheus.Registry

	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	executions        *prometheus.CounterVec
	outboxPending     prometheus.Gauge
	reconcileAttempts *prometheus.CounterVec
	archiveFetches    *prometheus.CounterVec
	cacheLookups      *prometheus.CounterVec
	streamClients     prometheus.Gauge
}

// NewCollector registers the metrics on a fresh registry
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewCollectorWithRegistry(namespace, registry)
}

// NewCollectorWithRegistry registers the metrics on registry
func NewCollectorWithRegistry(namespace string, registry *prometheus.Registry) *Collector {
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
		executions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "executions_total",
				Help:      "Execution trigger outcomes",
			},
			[]string{"outcome"},
		),
		outboxPending: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "execution_outbox_pending",
				Help:      "Execution records waiting to be written",
			},
		),
		reconcileAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "execution_reconcile_attempts_total",
				Help:      "Outbox write attempts by result",
			},
			[]string{"result"},
		),
		archiveFetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "result_archive_fetches_total",
				Help:      "Archived result downloads by result",
			},
			[]string{"result"},
		),
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Cache lookups by result",
			},
			[]string{"result"},
		),
		streamClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "result_stream_clients",
				Help:      "Open result stream connections",
			},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Registry returns the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveRequest records one HTTP request
func (c *Collector) ObserveRequest(route, method string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// Execution outcomes
const (
	ExecutionStarted     = "started"
	ExecutionRejected    = "rejected"
	ExecutionStartFailed = "start_failed"
	ExecutionNotRecorded = "not_recorded"
)

// RecordExecution counts an execution trigger outcome
func (c *Collector) RecordExecution(outcome string) {
	if c == nil {
		return
	}
	c.executions.WithLabelValues(outcome).Inc()
}

// SetOutboxPending sets the number of queued execution records
func (c *Collector) SetOutboxPending(n int) {
	if c == nil {
		return
	}
	c.outboxPending.Set(float64(n))
}

// RecordReconcile counts one outbox write attempt
func (c *Collector) RecordReconcile(success bool) {
	if c == nil {
		return
	}
	c.reconcileAttempts.WithLabelValues(resultLabel(success)).Inc()
}

// RecordArchiveFetch counts one archived result download
func (c *Collector) RecordArchiveFetch(success bool) {
	if c == nil {
		return
	}
	c.archiveFetches.WithLabelValues(resultLabel(success)).Inc()
}

// RecordCacheLookup counts one cache lookup
func (c *Collector) RecordCacheLookup(hit bool) {
	if c == nil {
		return
	}
	if hit {
		c.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	c.cacheLookups.WithLabelValues("miss").Inc()
}

// StreamOpened increments the open stream gauge
func (c *Collector) StreamOpened() {
	if c != nil {
		c.streamClients.Inc()
	}
}

// StreamClosed decrements the open stream gauge
func (c *Collector) StreamClosed() {
	if c != nil {
		c.streamClients.Dec()
	}
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
