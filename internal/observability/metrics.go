package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Transcription metrics
	transcriptionRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "note_builder_transcription_requests_total",
		Help: "Total number of prerecorded transcription requests",
	}, []string{"status"})

	transcriptionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "note_builder_transcription_latency_seconds",
		Help:    "Prerecorded transcription latency in seconds",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	})

	audioBytesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "note_builder_audio_bytes_total",
		Help: "Total audio bytes received",
	}, []string{"source"}) // source: "upload" or "dictation"

	// Note-generation metrics
	generationRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "note_builder_generation_requests_total",
		Help: "Total number of note-generation requests",
	}, []string{"status"})

	generationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "note_builder_generation_latency_seconds",
		Help:    "Note-generation latency in seconds",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
	})

	// Validation metrics
	validations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "note_builder_validations_total",
		Help: "Total number of note validations",
	}, []string{"result"}) // result: "complete" or "incomplete"

	missingFields = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "note_builder_missing_fields_total",
		Help: "Missing required fields reported by validation",
	}, []string{"field"})

	// Export metrics
	exports = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "note_builder_exports_total",
		Help: "Total number of note exports",
	}, []string{"format"})

	// Workflow session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "note_builder_active_sessions",
		Help: "Number of active workflow sessions",
	})

	// Live dictation metrics
	activeDictations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "note_builder_active_dictations",
		Help: "Number of active live dictation streams",
	})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "note_builder_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics (live dictation STT path)
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "note_builder_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "note_builder_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})
)

// RecordTranscription records the outcome and latency of a prerecorded
// transcription call.
func RecordTranscription(start time.Time, err error) {
	transcriptionLatency.Observe(time.Since(start).Seconds())
	status := "success"
	if err != nil {
		status = "error"
		errorsTotal.WithLabelValues("transport", "stt").Inc()
	}
	transcriptionRequests.WithLabelValues(status).Inc()
}

// RecordAudioBytes records audio volume by input source.
func RecordAudioBytes(source string, n int) {
	audioBytesReceived.WithLabelValues(source).Add(float64(n))
}

// RecordGeneration records the outcome and latency of a note-generation call.
func RecordGeneration(start time.Time, err error) {
	generationLatency.Observe(time.Since(start).Seconds())
	status := "success"
	if err != nil {
		status = "error"
		errorsTotal.WithLabelValues("transport", "notegen").Inc()
	}
	generationRequests.WithLabelValues(status).Inc()
}

// RecordValidation records a validation outcome and any missing fields.
func RecordValidation(complete bool, missing []string) {
	result := "complete"
	if !complete {
		result = "incomplete"
	}
	validations.WithLabelValues(result).Inc()
	for _, field := range missing {
		missingFields.WithLabelValues(field).Inc()
	}
}

// RecordExport records a note export by format.
func RecordExport(format string) {
	exports.WithLabelValues(format).Inc()
}

// SessionOpened increments the active workflow session gauge.
func SessionOpened() {
	activeSessions.Inc()
}

// SessionClosed decrements the active workflow session gauge.
func SessionClosed() {
	activeSessions.Dec()
}

// DictationStarted increments the active dictation gauge.
func DictationStarted() {
	activeDictations.Inc()
}

// DictationEnded decrements the active dictation gauge.
func DictationEnded() {
	activeDictations.Dec()
}

// UpdateCircuitBreakerState updates the circuit breaker state gauge
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments the circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}

// IncrementError increments the error counter for a component
func IncrementError(errType, component string) {
	errorsTotal.WithLabelValues(errType, component).Inc()
}
