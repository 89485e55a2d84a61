package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all the Prometheus metrics for subnet interface management
type Metrics struct {
	// Assignment metrics
	AssignmentsTotal   *prometheus.CounterVec
	AssignmentErrors   *prometheus.CounterVec
	UnassignmentsTotal *prometheus.CounterVec
	UnassignmentErrors *prometheus.CounterVec
	OperationDuration  *prometheus.HistogramVec
	UnassignInFlight   prometheus.Gauge

	// Cache metrics
	CacheInvalidationsTotal *prometheus.CounterVec

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec

	// Remote API metrics
	APICallsTotal    *prometheus.CounterVec
	APICallDuration  *prometheus.HistogramVec
	APIErrors        *prometheus.CounterVec
	ThrottlingEvents prometheus.Counter
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// NewMetrics creates and registers all metrics (singleton pattern)
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = createMetrics()
	})
	return metricsInstance
}

// createMetrics creates and registers all metrics
func createMetrics() *Metrics {
	m := &Metrics{
		AssignmentsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subnet_assignments_total",
				Help: "Total number of subnet interface assignments submitted",
			},
			[]string{"generation", "status"},
		),

		AssignmentErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subnet_assignment_errors_total",
				Help: "Total number of failed subnet interface assignments",
			},
			[]string{"generation", "error_category"},
		),

		UnassignmentsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subnet_unassignments_total",
				Help: "Total number of subnet interface deletions",
			},
			[]string{"generation", "status"},
		),

		UnassignmentErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subnet_unassignment_errors_total",
				Help: "Total number of failed subnet interface deletions",
			},
			[]string{"generation", "error_category"},
		),

		OperationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "subnet_operation_duration_seconds",
				Help:    "Duration of assignment operations in seconds",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
			},
			[]string{"operation"},
		),

		UnassignInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "subnet_unassignments_in_flight",
				Help: "Current number of interface deletions in progress",
			},
		),

		CacheInvalidationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_invalidations_total",
				Help: "Total number of cached queries marked stale",
			},
			[]string{"kind"},
		),

		CircuitBreakerState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Current state of circuit breakers (0=closed, 1=open, 2=half-open)",
			},
			[]string{"backend"},
		),

		APICallsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "infra_api_calls_total",
				Help: "Total number of remote API calls",
			},
			[]string{"backend", "operation", "status"},
		),

		APICallDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "infra_api_call_duration_seconds",
				Help:    "Duration of remote API calls in seconds",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"backend", "operation"},
		),

		APIErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "infra_api_errors_total",
				Help: "Total number of remote API errors",
			},
			[]string{"backend", "operation", "error_category"},
		),

		ThrottlingEvents: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "infra_api_throttling_events_total",
				Help: "Total number of throttled remote API calls",
			},
		),
	}

	return m
}

// RecordAssignment records metrics for an assignment submission
func (m *Metrics) RecordAssignment(generation, status string, duration time.Duration) {
	m.AssignmentsTotal.WithLabelValues(generation, status).Inc()
	m.OperationDuration.WithLabelValues("assign").Observe(duration.Seconds())
}

// RecordAssignmentError records a failed assignment
func (m *Metrics) RecordAssignmentError(generation, errorCategory string) {
	m.AssignmentErrors.WithLabelValues(generation, errorCategory).Inc()
}

// RecordUnassignment records metrics for one interface deletion
func (m *Metrics) RecordUnassignment(generation, status string, duration time.Duration) {
	m.UnassignmentsTotal.WithLabelValues(generation, status).Inc()
	m.OperationDuration.WithLabelValues("unassign").Observe(duration.Seconds())
}

// RecordUnassignmentError records a failed interface deletion
func (m *Metrics) RecordUnassignmentError(generation, errorCategory string) {
	m.UnassignmentErrors.WithLabelValues(generation, errorCategory).Inc()
}

// UpdateUnassignInFlight updates the number of deletions in progress
func (m *Metrics) UpdateUnassignInFlight(delta int) {
	m.UnassignInFlight.Add(float64(delta))
}

// RecordCacheInvalidation records a cached query marked stale
func (m *Metrics) RecordCacheInvalidation(kind string) {
	m.CacheInvalidationsTotal.WithLabelValues(kind).Inc()
}

// RecordCircuitBreakerState records the current state of a circuit breaker
func (m *Metrics) RecordCircuitBreakerState(backend string, state int) {
	m.CircuitBreakerState.WithLabelValues(backend).Set(float64(state))
}

// RecordAPICall records metrics for a remote API call
func (m *Metrics) RecordAPICall(backend, operation, status string, duration time.Duration) {
	m.APICallsTotal.WithLabelValues(backend, operation, status).Inc()
	m.APICallDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

// RecordAPIError records a remote API error
func (m *Metrics) RecordAPIError(backend, operation, errorCategory string) {
	m.APIErrors.WithLabelValues(backend, operation, errorCategory).Inc()
}

// RecordThrottling records a throttled remote API call
func (m *Metrics) RecordThrottling() {
	m.ThrottlingEvents.Inc()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
