package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "interview_gateway_active_sessions",
		Help: "Number of active interview sessions",
	})

	totalSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "interview_gateway_sessions_total",
		Help: "Total number of interview sessions started",
	})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "interview_gateway_session_duration_seconds",
		Help:    "Duration of interview sessions in seconds",
		Buckets: []float64{30, 60, 120, 300, 600, 1200, 1800, 3600},
	})

	// Media metrics
	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_gateway_audio_bytes_total",
		Help: "Total audio bytes processed",
	}, []string{"direction"}) // direction: "in" or "out"

	framesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "interview_gateway_video_frames_total",
		Help: "Total video frames forwarded to the model",
	})

	playbackBuffers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "interview_gateway_playback_buffers_total",
		Help: "Total audio buffers scheduled for playback",
	})

	transcriptEntries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_gateway_transcript_entries_total",
		Help: "Total transcript entries recorded",
	}, []string{"role"})

	// One-shot model request metrics
	analysisRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_gateway_analysis_requests_total",
		Help: "Total performance analysis requests",
	}, []string{"status"})

	analysisLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "interview_gateway_analysis_latency_seconds",
		Help:    "Performance analysis latency in seconds",
		Buckets: []float64{0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
	})

	chatRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_gateway_chat_requests_total",
		Help: "Total chat requests",
	}, []string{"status"})

	imageRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_gateway_image_requests_total",
		Help: "Total image generation requests",
	}, []string{"status"})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_gateway_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})
)

// Metrics tracks metrics for a single interview session
type Metrics struct {
	sessionID         string
	startTime         time.Time
	analysisStartTime time.Time
	mu                sync.Mutex
}

// NewSessionMetrics creates a new metrics tracker for a session
func NewSessionMetrics(sessionID string) *Metrics {
	return &Metrics{
		sessionID: sessionID,
		startTime: time.Now(),
	}
}

// RecordSessionStart records the start of a session
func (m *Metrics) RecordSessionStart() {
	activeSessions.Inc()
	totalSessions.Inc()
}

// RecordSessionEnd records the end of a session
func (m *Metrics) RecordSessionEnd() {
	activeSessions.Dec()
	duration := time.Since(m.startTime).Seconds()
	sessionDuration.Observe(duration)
}

// RecordAudioBytes records audio bytes processed
func (m *Metrics) RecordAudioBytes(direction string, bytes int64) {
	audioBytesProcessed.WithLabelValues(direction).Add(float64(bytes))
}

// RecordFrameSent records one video frame forwarded upstream
func (m *Metrics) RecordFrameSent() {
	framesSent.Inc()
}

// RecordPlaybackBuffer records one audio buffer scheduled for playback
func (m *Metrics) RecordPlaybackBuffer() {
	playbackBuffers.Inc()
}

// RecordTranscriptEntry records one transcript entry by speaker role
func (m *Metrics) RecordTranscriptEntry(role string) {
	transcriptEntries.WithLabelValues(role).Inc()
}

// RecordAnalysisStart records the start of a performance analysis request
func (m *Metrics) RecordAnalysisStart() {
	m.mu.Lock()
	m.analysisStartTime = time.Now()
	m.mu.Unlock()
}

// RecordAnalysisEnd records the end of a performance analysis request
func (m *Metrics) RecordAnalysisEnd(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.analysisStartTime.IsZero() {
		latency := time.Since(m.analysisStartTime).Seconds()
		analysisLatency.Observe(latency)
	}

	status := "success"
	if !success {
		status = "error"
	}
	analysisRequests.WithLabelValues(status).Inc()
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordChatRequest records one chat request outcome
func RecordChatRequest(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	chatRequests.WithLabelValues(status).Inc()
}

// RecordImageRequest records one image generation outcome
func RecordImageRequest(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	imageRequests.WithLabelValues(status).Inc()
}
