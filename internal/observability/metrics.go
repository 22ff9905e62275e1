package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline stages timed per request.
const (
	StageUpload     = "upload"
	StageConvert    = "convert"
	StageTranscribe = "transcribe"
	StageDiarize    = "diarize"
	StageAlign      = "align"
	StagePersist    = "persist"
)

var (
	// Request metrics
	activeRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "speech_gateway_active_requests",
		Help: "Number of transcription requests in progress",
	})

	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speech_gateway_requests_total",
		Help: "Total number of transcription requests",
	}, []string{"mode", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "speech_gateway_request_duration_seconds",
		Help:    "End-to-end transcription request latency in seconds",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"mode"})

	stageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "speech_gateway_stage_latency_seconds",
		Help:    "Latency of each pipeline stage in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"stage"})

	// Engine metrics
	engineInitializations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speech_gateway_engine_initializations_total",
		Help: "Engine load attempts by kind and result",
	}, []string{"kind", "result"})

	engineLoadLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "speech_gateway_engine_load_seconds",
		Help:    "Time spent loading an engine in seconds",
		Buckets: []float64{0.1, 1, 5, 15, 30, 60, 120, 300},
	}, []string{"kind"})

	speakersDetected = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "speech_gateway_speakers_detected",
		Help:    "Number of speakers per diarized transcript",
		Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10},
	})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speech_gateway_errors_total",
		Help: "Total number of errors",
	}, []string{"kind", "stage"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "speech_gateway_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"engine"})

	circuitBreakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speech_gateway_circuit_breaker_transitions_total",
		Help: "Circuit breaker state transitions",
	}, []string{"engine", "to"})

	// Audio metrics
	audioBytesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "speech_gateway_audio_bytes_total",
		Help: "Total uploaded audio bytes accepted",
	})
)

// RequestMetrics tracks metrics for a single transcription request.
type RequestMetrics struct {
	requestID string
	mode      string
	startTime time.Time

	mu     sync.Mutex
	stages map[string]time.Time
	done   bool
}

// NewRequestMetrics creates a new metrics tracker for a request
func NewRequestMetrics(requestID, mode string) *RequestMetrics {
	activeRequests.Inc()
	return &RequestMetrics{
		requestID: requestID,
		mode:      mode,
		startTime: time.Now(),
		stages:    make(map[string]time.Time),
	}
}

// StageStart records the start of a pipeline stage
func (m *RequestMetrics) StageStart(stage string) {
	m.mu.Lock()
	m.stages[stage] = time.Now()
	m.mu.Unlock()
}

// StageEnd observes the latency of a stage started with StageStart.
func (m *RequestMetrics) StageEnd(stage string) {
	m.mu.Lock()
	start, ok := m.stages[stage]
	delete(m.stages, stage)
	m.mu.Unlock()

	if ok {
		stageLatency.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}

// RecordError records an error by kind and the stage it surfaced in.
func (m *RequestMetrics) RecordError(kind, stage string) {
	errorsTotal.WithLabelValues(kind, stage).Inc()
}

// RecordAudioBytes records accepted upload bytes
func (m *RequestMetrics) RecordAudioBytes(bytes int64) {
	audioBytesProcessed.Add(float64(bytes))
}

// RecordSpeakers records the speaker count of a diarized transcript.
func (m *RequestMetrics) RecordSpeakers(n int) {
	speakersDetected.Observe(float64(n))
}

// Finish records the request outcome. Calls after the first are ignored.
func (m *RequestMetrics) Finish(success bool) {
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		return
	}
	m.done = true
	m.mu.Unlock()

	activeRequests.Dec()
	status := "success"
	if !success {
		status = "error"
	}
	requestsTotal.WithLabelValues(m.mode, status).Inc()
	requestDuration.WithLabelValues(m.mode).Observe(time.Since(m.startTime).Seconds())
}

// ObserveEngineLoad records an engine load attempt. Its signature matches engine.Observer.
func ObserveEngineLoad(kind, key string, elapsed time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	engineInitializations.WithLabelValues(kind, result).Inc()
	engineLoadLatency.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(engine string, state int) {
	circuitBreakerState.WithLabelValues(engine).Set(float64(state))
}

// RecordCircuitBreakerTransition counts a transition and updates the state gauge.
func RecordCircuitBreakerTransition(engine string, to int, toName string) {
	circuitBreakerTransitions.WithLabelValues(engine, toName).Inc()
	UpdateCircuitBreakerState(engine, to)
}
