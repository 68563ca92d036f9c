// Package metrics exposes Prometheus instrumentation for the stock engine.
// All Record* methods are safe on a nil *Metrics so services can run without it.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Engine
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	ClaimConflicts    prometheus.Counter
	LeaseFallbacks    prometheus.Counter
	BatchLines        *prometheus.CounterVec
	AggregateDrift    prometheus.Counter

	// Workers
	JobsProcessed *prometheus.CounterVec
	CircuitState  *prometheus.GaugeVec
}

// New creates and registers all collectors under the given namespace.
func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{registry: registry}

	m.HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	m.HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	m.OperationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stock_operations_total",
		Help:      "Stock engine operations by name and outcome kind",
	}, []string{"operation", "outcome"})

	m.OperationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "stock_operation_duration_seconds",
		Help:      "Stock engine operation latency, including claim and transaction",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"operation"})

	m.ClaimConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "barcode_claim_conflicts_total",
		Help:      "Claims rejected because the barcode was already in flight",
	})

	m.LeaseFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "barcode_lease_fallbacks_total",
		Help:      "Claims that proceeded on the in-process set because the lease backend was unavailable",
	})

	m.BatchLines = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "batch_lines_total",
		Help:      "Order batch lines by destination and outcome",
	}, []string{"destination", "outcome"})

	m.AggregateDrift = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "aggregate_drift_total",
		Help:      "Bulk aggregate rows found out of line with the ledger during reconcile",
	})

	m.JobsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "worker_jobs_total",
		Help:      "Async jobs processed by type and outcome",
	}, []string{"type", "outcome"})

	m.CircuitState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"name"})

	registry.MustRegister(
		m.HTTPRequestsTotal, m.HTTPRequestDuration,
		m.OperationsTotal, m.OperationDuration,
		m.ClaimConflicts, m.LeaseFallbacks, m.BatchLines, m.AggregateDrift,
		m.JobsProcessed, m.CircuitState,
	)
	return m
}

// Handler returns the /metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) RecordHTTPRequest(method, path string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// RecordOperation counts one engine call. outcome is "ok" or an error kind.
func (m *Metrics) RecordOperation(operation, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(operation, outcome).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (m *Metrics) RecordClaimConflict() {
	if m == nil {
		return
	}
	m.ClaimConflicts.Inc()
}

func (m *Metrics) RecordLeaseFallback() {
	if m == nil {
		return
	}
	m.LeaseFallbacks.Inc()
}

func (m *Metrics) RecordBatchLine(destination, outcome string) {
	if m == nil {
		return
	}
	m.BatchLines.WithLabelValues(destination, outcome).Inc()
}

func (m *Metrics) RecordAggregateDrift() {
	if m == nil {
		return
	}
	m.AggregateDrift.Inc()
}

func (m *Metrics) RecordJob(jobType string, success bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !success {
		outcome = "failed"
	}
	m.JobsProcessed.WithLabelValues(jobType, outcome).Inc()
}

func (m *Metrics) SetCircuitState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitState.WithLabelValues(name).Set(float64(state))
}
