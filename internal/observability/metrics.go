package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/harlantwood/convo/internal/resilience"
)

var (
	// Render metrics
	renderRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "convo_render_requests_total",
		Help: "Total number of render requests",
	}, []string{"status"})

	renderLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "convo_render_latency_seconds",
		Help:    "Render latency in seconds, including decoding",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	})

	schemaBuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "convo_schema_builds_total",
		Help: "Total number of schema builds",
	}, []string{"status"})

	// Transcription stream metrics
	activeStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "convo_active_streams",
		Help: "Number of active transcription streams",
	})

	totalStreams = promauto.NewCounter(prometheus.CounterOpts{
		Name: "convo_streams_total",
		Help: "Total number of transcription streams opened",
	})

	streamDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "convo_stream_duration_seconds",
		Help:    "Duration of transcription streams in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	// STT metrics
	sttConnectLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "convo_stt_connect_latency_seconds",
		Help:    "Time from session start to the speech service accepting audio",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
	})

	sttChunks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "convo_stt_chunks_total",
		Help: "Total number of final transcript chunks delivered",
	})

	// TTS metrics
	ttsRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "convo_tts_requests_total",
		Help: "Total number of TTS requests",
	}, []string{"status"})

	ttsLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "convo_tts_latency_seconds",
		Help:    "TTS synthesis latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "convo_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "convo_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "convo_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})

	// Audio metrics
	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "convo_audio_bytes_total",
		Help: "Total audio bytes processed",
	}, []string{"direction"}) // direction: "in" or "out"
)

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// StreamMetrics tracks metrics for a single transcription stream
type StreamMetrics struct {
	sessionID    string
	startTime    time.Time
	sttStartTime time.Time
	mu           sync.Mutex
}

// NewStreamMetrics creates a new metrics tracker for a stream
func NewStreamMetrics(sessionID string) *StreamMetrics {
	return &StreamMetrics{
		sessionID: sessionID,
		startTime: time.Now(),
	}
}

// RecordStreamStart records the start of a stream
func (m *StreamMetrics) RecordStreamStart() {
	activeStreams.Inc()
	totalStreams.Inc()
}

// RecordStreamEnd records the end of a stream
func (m *StreamMetrics) RecordStreamEnd() {
	activeStreams.Dec()
	streamDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordSTTStart marks the beginning of the speech service connection
func (m *StreamMetrics) RecordSTTStart() {
	m.mu.Lock()
	m.sttStartTime = time.Now()
	m.mu.Unlock()
}

// RecordSTTConnected observes how long the speech service took to connect
func (m *StreamMetrics) RecordSTTConnected() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.sttStartTime.IsZero() {
		sttConnectLatency.Observe(time.Since(m.sttStartTime).Seconds())
	}
}

// RecordChunk counts a delivered transcript chunk
func (m *StreamMetrics) RecordChunk() {
	sttChunks.Inc()
}

// RecordError records an error
func (m *StreamMetrics) RecordError(errorType, component string) {
	RecordError(errorType, component)
}

// RecordAudioBytes records audio bytes processed
func (m *StreamMetrics) RecordAudioBytes(direction string, bytes int64) {
	audioBytesProcessed.WithLabelValues(direction).Add(float64(bytes))
}

// RecordRender records a render request and its latency
func RecordRender(success bool, latency time.Duration) {
	renderRequests.WithLabelValues(status(success)).Inc()
	renderLatency.Observe(latency.Seconds())
}

// RecordSchemaBuild records a schema build
func RecordSchemaBuild(success bool) {
	schemaBuilds.WithLabelValues(status(success)).Inc()
}

// RecordTTS records a synthesis request and its latency
func RecordTTS(success bool, latency time.Duration) {
	ttsRequests.WithLabelValues(status(success)).Inc()
	ttsLatency.Observe(latency.Seconds())
}

// RecordError records an error outside a stream
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state resilience.CircuitState) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}

// InstrumentBreaker exports a breaker's state and logs its transitions
func InstrumentBreaker(cb *resilience.CircuitBreaker) {
	UpdateCircuitBreakerState(cb.Name(), cb.GetState())
	logger := Component("resilience")
	cb.OnStateChange(func(name string, from, to resilience.CircuitState) {
		UpdateCircuitBreakerState(name, to)
		if to == resilience.StateOpen {
			IncrementCircuitBreakerFailures(name)
		}
		logger.Warn().
			Str("breaker", name).
			Str("from", from.String()).
			Str("to", to.String()).
			Msg("Circuit breaker state changed")
	})
}
