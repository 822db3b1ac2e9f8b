// Package metrics exposes recording and transcription counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"whisperer/internal/session"
)

// Metrics contains all Prometheus metrics for the recorder.
type Metrics struct {
	Registry *prometheus.Registry

	// Capture metrics
	Chunks       prometheus.Counter
	SpeechChunks prometheus.Counter
	InputLevel   prometheus.Gauge
	PeakLevel    prometheus.Gauge
	Threshold    prometheus.Gauge
	State        prometheus.Gauge
	Transitions  *prometheus.CounterVec
	Calibrations prometheus.Counter

	// Utterance metrics
	Utterances       *prometheus.CounterVec
	Discarded        prometheus.Counter
	UtteranceSeconds prometheus.Histogram
	HandoffDrops     prometheus.Counter

	// Device metrics
	DeviceRetries  prometheus.Counter
	DeviceFailures prometheus.Counter

	// Transcription metrics
	TranscriptionRequests prometheus.Counter
	TranscriptionFailures prometheus.Counter
	TranscriptionDuration prometheus.Histogram
}

// New creates all metrics on a fresh registry, so tests and multiple
// instances never collide on the default one.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,

		Chunks: f.NewCounter(prometheus.CounterOpts{
			Name: "whisperer_chunks_total",
			Help: "Total number of audio chunks processed",
		}),
		SpeechChunks: f.NewCounter(prometheus.CounterOpts{
			Name: "whisperer_speech_chunks_total",
			Help: "Total number of chunks classified as speech",
		}),
		InputLevel: f.NewGauge(prometheus.GaugeOpts{
			Name: "whisperer_input_level",
			Help: "Smoothed input level (mean absolute amplitude)",
		}),
		PeakLevel: f.NewGauge(prometheus.GaugeOpts{
			Name: "whisperer_input_peak",
			Help: "Decaying input peak level",
		}),
		Threshold: f.NewGauge(prometheus.GaugeOpts{
			Name: "whisperer_noise_threshold",
			Help: "Noise threshold handed to the voice activity detector",
		}),
		State: f.NewGauge(prometheus.GaugeOpts{
			Name: "whisperer_state",
			Help: "Current recording state (0 idle, 1 listening, 2 recording, 3 finalizing)",
		}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "whisperer_state_transitions_total",
			Help: "Total number of recording state transitions",
		}, []string{"from", "to"}),
		Calibrations: f.NewCounter(prometheus.CounterOpts{
			Name: "whisperer_calibrations_total",
			Help: "Total number of completed noise calibrations",
		}),

		Utterances: f.NewCounterVec(prometheus.CounterOpts{
			Name: "whisperer_utterances_total",
			Help: "Total number of emitted utterances by finalize reason",
		}, []string{"reason"}),
		Discarded: f.NewCounter(prometheus.CounterOpts{
			Name: "whisperer_utterances_discarded_total",
			Help: "Total number of recordings discarded (canceled or too short)",
		}),
		UtteranceSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "whisperer_utterance_duration_seconds",
			Help:    "Duration of emitted utterances",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}),
		HandoffDrops: f.NewCounter(prometheus.CounterOpts{
			Name: "whisperer_handoff_drops_total",
			Help: "Total number of utterances dropped because the transcription queue was full",
		}),

		DeviceRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "whisperer_device_retries_total",
			Help: "Total number of microphone reopen attempts",
		}),
		DeviceFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "whisperer_device_failures_total",
			Help: "Total number of times the microphone could not be recovered",
		}),

		TranscriptionRequests: f.NewCounter(prometheus.CounterOpts{
			Name: "whisperer_transcription_requests_total",
			Help: "Total number of transcription requests",
		}),
		TranscriptionFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "whisperer_transcription_failures_total",
			Help: "Total number of failed transcription requests",
		}),
		TranscriptionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "whisperer_transcription_duration_seconds",
			Help:    "Time spent in transcription requests including retries",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// OnStep records one session step.
func (m *Metrics) OnStep(step session.Step) {
	if step.Chunk {
		m.Chunks.Inc()
		m.InputLevel.Set(step.Level.Smoothed)
		m.PeakLevel.Set(step.Level.Peak)
		m.Threshold.Set(step.Threshold)
	}
	if step.Speech {
		m.SpeechChunks.Inc()
	}
	if step.Changed() {
		m.Transitions.WithLabelValues(step.From.String(), step.To.String()).Inc()
	}
	m.State.Set(float64(step.To))
	if step.Utterance != nil {
		m.Utterances.WithLabelValues(string(step.Utterance.Reason)).Inc()
		m.UtteranceSeconds.Observe(step.Utterance.Duration.Seconds())
	}
	if step.Discarded {
		m.Discarded.Inc()
	}
	if step.Calibrated {
		m.Calibrations.Inc()
	}
}

// OnDeviceRetry counts a microphone reopen attempt.
func (m *Metrics) OnDeviceRetry(int, error) {
	m.DeviceRetries.Inc()
}

// OnHandoffError counts an utterance the worker queue refused.
func (m *Metrics) OnHandoffError(error) {
	m.HandoffDrops.Inc()
}

// RecordDeviceFailure counts an unrecoverable microphone loss.
func (m *Metrics) RecordDeviceFailure() {
	m.DeviceFailures.Inc()
}

// RecordTranscription records one finished transcription request.
func (m *Metrics) RecordTranscription(ok bool, seconds float64) {
	m.TranscriptionRequests.Inc()
	if !ok {
		m.TranscriptionFailures.Inc()
	}
	m.TranscriptionDuration.Observe(seconds)
}
