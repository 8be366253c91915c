package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Upload metrics
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insight_gateway_uploads_total",
		Help: "Total number of uploads received, by detected media type",
	}, []string{"media_type"})

	uploadBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insight_gateway_upload_bytes_total",
		Help: "Total uploaded bytes, by detected media type",
	}, []string{"media_type"})

	activeRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "insight_gateway_active_requests",
		Help: "Number of pipeline runs in flight",
	})

	// Pipeline metrics
	stageTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insight_gateway_stage_transitions_total",
		Help: "Pipeline stage transitions",
	}, []string{"stage"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "insight_gateway_request_duration_seconds",
		Help:    "End-to-end pipeline duration in seconds",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"outcome"})

	// Provider metrics
	providerRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insight_gateway_provider_requests_total",
		Help: "Total number of external provider requests",
	}, []string{"provider", "status"})

	providerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "insight_gateway_provider_latency_seconds",
		Help:    "External provider latency in seconds",
		Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"provider"})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insight_gateway_errors_total",
		Help: "Total number of errors",
	}, []string{"kind", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "insight_gateway_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insight_gateway_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})

	// Housekeeping
	sweptFiles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "insight_gateway_swept_upload_files_total",
		Help: "Stale upload files removed by the janitor",
	})
)

// RequestMetrics tracks metrics for a single pipeline run
type RequestMetrics struct {
	startTime time.Time
}

// NewRequestMetrics starts tracking a pipeline run
func NewRequestMetrics() *RequestMetrics {
	activeRequests.Inc()
	return &RequestMetrics{startTime: time.Now()}
}

// RecordUpload records an accepted upload
func (m *RequestMetrics) RecordUpload(mediaType string, size int64) {
	uploadsTotal.WithLabelValues(mediaType).Inc()
	uploadBytes.WithLabelValues(mediaType).Add(float64(size))
}

// RecordStage records a state machine transition
func (m *RequestMetrics) RecordStage(stage string) {
	stageTransitions.WithLabelValues(stage).Inc()
}

// RecordEnd records the end of the run
func (m *RequestMetrics) RecordEnd(outcome string) {
	activeRequests.Dec()
	requestDuration.WithLabelValues(outcome).Observe(time.Since(m.startTime).Seconds())
}

// RecordError records an error
func (m *RequestMetrics) RecordError(kind, component string) {
	RecordError(kind, component)
}

// RecordError records an error outside a pipeline run
func RecordError(kind, component string) {
	errorsTotal.WithLabelValues(kind, component).Inc()
}

// ObserveProvider records the outcome and latency of one external call
func ObserveProvider(provider string, start time.Time, success bool) {
	providerLatency.WithLabelValues(provider).Observe(time.Since(start).Seconds())

	status := "success"
	if !success {
		status = "error"
	}
	providerRequests.WithLabelValues(provider, status).Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}

// RecordSweptFiles records files removed by the upload janitor
func RecordSweptFiles(n int) {
	sweptFiles.Add(float64(n))
}
