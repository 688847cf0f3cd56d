package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for voxbrief.
type Metrics struct {
	// Session metrics
	SessionsStarted  prometheus.Counter
	SessionOutcomes  *prometheus.CounterVec
	SessionState     *prometheus.GaugeVec
	RecordingSeconds prometheus.Histogram
	CapturedBytes    prometheus.Counter

	// Pipeline stage metrics
	StageDuration *prometheus.HistogramVec
	StageFailures *prometheus.CounterVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// States lists the session states exported by the state gauge.
var States = []string{"idle", "recording", "transcribing", "analyzing", "done", "error"}

// New creates all collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "voxbrief_sessions_started_total",
			Help: "Total number of recording sessions started",
		}),
		SessionOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voxbrief_session_outcomes_total",
			Help: "Total number of sessions that settled, by outcome and error kind",
		}, []string{"outcome", "error_kind"}),
		SessionState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "voxbrief_session_state",
			Help: "1 for the current session state, 0 otherwise",
		}, []string{"state"}),
		RecordingSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voxbrief_recording_duration_seconds",
			Help:    "Length of captured recordings",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68 minutes
		}),
		CapturedBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "voxbrief_captured_bytes_total",
			Help: "Total encoded audio bytes captured",
		}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voxbrief_stage_duration_seconds",
			Help:    "Duration of pipeline stages",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		}, []string{"stage"}),
		StageFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voxbrief_stage_failures_total",
			Help: "Total number of pipeline stage failures",
		}, []string{"stage", "error_kind"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voxbrief_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voxbrief_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// RecordSessionStarted increments the sessions started counter.
func (m *Metrics) RecordSessionStarted() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
}

// RecordSessionOutcome counts a settled session. kind is empty on success.
func (m *Metrics) RecordSessionOutcome(outcome, kind string) {
	if m == nil {
		return
	}
	m.SessionOutcomes.WithLabelValues(outcome, kind).Inc()
}

// SetState marks state as current.
func (m *Metrics) SetState(state string) {
	if m == nil {
		return
	}
	for _, s := range States {
		value := 0.0
		if s == state {
			value = 1
		}
		m.SessionState.WithLabelValues(s).Set(value)
	}
}

// RecordRecording records a finished capture.
func (m *Metrics) RecordRecording(length time.Duration, bytes int) {
	if m == nil {
		return
	}
	m.RecordingSeconds.Observe(length.Seconds())
	m.CapturedBytes.Add(float64(bytes))
}

// RecordStage records one stage run; kind is empty on success.
func (m *Metrics) RecordStage(stage string, elapsed time.Duration, kind string) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
	if kind != "" {
		m.StageFailures.WithLabelValues(stage, kind).Inc()
	}
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route, statusCode string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
