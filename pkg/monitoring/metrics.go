package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Token operation results
const (
	ResultSuccess  = "success"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// MetricsCollector holds the service's Prometheus collectors on its own registry
type MetricsCollector struct {
	serviceName string
	registry    *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	ledgerAppendsTotal        *prometheus.CounterVec
	ledgerAppendDuration      prometheus.Histogram
	ledgerLength              prometheus.Gauge
	ledgerIntegrityViolations prometheus.Counter
	ledgerVerificationsTotal  *prometheus.CounterVec

	tokenOperationsTotal *prometheus.CounterVec

	systemErrors *prometheus.CounterVec
}

// NewMetricsCollector creates and registers the service collectors
func NewMetricsCollector(serviceName string) *MetricsCollector {
	constLabels := prometheus.Labels{"service": serviceName}

	m := &MetricsCollector{
		serviceName: serviceName,
		registry:    prometheus.NewRegistry(),

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: constLabels,
			},
			[]string{"method", "endpoint", "status_code"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "Duration of HTTP requests in seconds",
				Buckets:     prometheus.DefBuckets,
				ConstLabels: constLabels,
			},
			[]string{"method", "endpoint"},
		),

		ledgerAppendsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "ledger_appends_total",
				Help:        "Total number of ledger append attempts",
				ConstLabels: constLabels,
			},
			[]string{"kind", "status"},
		),
		ledgerAppendDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:        "ledger_append_duration_seconds",
				Help:        "Duration of ledger appends including persistence",
				Buckets:     []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
				ConstLabels: constLabels,
			},
		),
		ledgerLength: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name:        "ledger_length_blocks",
				Help:        "Number of blocks in the ledger including genesis",
				ConstLabels: constLabels,
			},
		),
		ledgerIntegrityViolations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name:        "ledger_integrity_violations_total",
				Help:        "Total number of integrity violations found by verification",
				ConstLabels: constLabels,
			},
		),
		ledgerVerificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "ledger_verifications_total",
				Help:        "Total number of whole-chain verifications",
				ConstLabels: constLabels,
			},
			[]string{"valid"},
		),

		tokenOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "access_token_operations_total",
				Help:        "Total number of access token operations",
				ConstLabels: constLabels,
			},
			[]string{"operation", "result"},
		),

		systemErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "system_errors_total",
				Help:        "Total number of system errors",
				ConstLabels: constLabels,
			},
			[]string{"error_type", "component"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.ledgerAppendsTotal,
		m.ledgerAppendDuration,
		m.ledgerLength,
		m.ledgerIntegrityViolations,
		m.ledgerVerificationsTotal,
		m.tokenOperationsTotal,
		m.systemErrors,
	)

	return m
}

// Registry exposes the underlying registry, mainly for tests
func (m *MetricsCollector) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records HTTP request metrics
func (m *MetricsCollector) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordLedgerAppend records one append attempt and, on success, the new chain length
func (m *MetricsCollector) RecordLedgerAppend(kind string, success bool, duration time.Duration, length int) {
	status := ResultSuccess
	if !success {
		status = ResultError
	}
	m.ledgerAppendsTotal.WithLabelValues(kind, status).Inc()
	m.ledgerAppendDuration.Observe(duration.Seconds())
	if success {
		m.ledgerLength.Set(float64(length))
	}
}

// SetLedgerLength sets the chain length gauge
func (m *MetricsCollector) SetLedgerLength(length int) {
	m.ledgerLength.Set(float64(length))
}

// RecordVerification records a whole-chain verification and its violations
func (m *MetricsCollector) RecordVerification(valid bool, violations int) {
	m.ledgerVerificationsTotal.WithLabelValues(strconv.FormatBool(valid)).Inc()
	m.ledgerIntegrityViolations.Add(float64(violations))
}

// RecordTokenOperation records an issue, validate or revoke outcome
func (m *MetricsCollector) RecordTokenOperation(operation, result string) {
	m.tokenOperationsTotal.WithLabelValues(operation, result).Inc()
}

// RecordSystemError records system error metrics
func (m *MetricsCollector) RecordSystemError(errorType, component string) {
	m.systemErrors.WithLabelValues(errorType, component).Inc()
}

// Handler returns the Prometheus metrics HTTP handler for this collector's registry
func (m *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
