package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Transcription metrics
	TranscriptEvents        *prometheus.CounterVec
	TranscriptionReconnects prometheus.Counter
	TranscriptionState      prometheus.Gauge
	FramesSent              prometheus.Counter

	// Generation metrics
	GenerationTurns         *prometheus.CounterVec
	GenerationFirstChunk    prometheus.Histogram
	GenerationDuration      prometheus.Histogram
	GenerationCancellations prometheus.Counter

	// Playback metrics
	SynthesisDuration prometheus.Histogram
	SynthesisFailures prometheus.Counter
	PlaybackUnits     *prometheus.CounterVec

	// Coordinator metrics
	Turns                *prometheus.CounterVec
	StaleEventsDiscarded *prometheus.CounterVec
	PipelineState        *prometheus.GaugeVec
}

// New registers all collectors on reg. Passing nil uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		TranscriptEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ema_transcript_events_total",
			Help: "Transcript events received from the transcription service",
		}, []string{"kind"}),
		TranscriptionReconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "ema_transcription_reconnects_total",
			Help: "Reconnect attempts made by the transcription client",
		}),
		TranscriptionState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ema_transcription_connection_state",
			Help: "Transcription connection state (0 disconnected, 1 connecting, 2 connected, 3 reconnecting, 4 failed)",
		}),
		FramesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "ema_audio_frames_sent_total",
			Help: "Audio frames written to the transcription connection",
		}),

		GenerationTurns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ema_generation_turns_total",
			Help: "Generation requests by outcome",
		}, []string{"outcome"}),
		GenerationFirstChunk: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ema_generation_first_chunk_seconds",
			Help:    "Time from request start to the first generated text",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		GenerationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ema_generation_duration_seconds",
			Help:    "Duration of generation requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		GenerationCancellations: factory.NewCounter(prometheus.CounterOpts{
			Name: "ema_generation_remote_cancellations_total",
			Help: "Cancellation calls sent to the generation service",
		}),

		SynthesisDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ema_synthesis_duration_seconds",
			Help:    "Duration of speech synthesis calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		SynthesisFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "ema_synthesis_failures_total",
			Help: "Failed speech synthesis calls",
		}),
		PlaybackUnits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ema_playback_units_total",
			Help: "Playback units by outcome",
		}, []string{"outcome"}),

		Turns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ema_turns_total",
			Help: "Conversation turns by terminal status",
		}, []string{"status"}),
		StaleEventsDiscarded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ema_stale_events_discarded_total",
			Help: "Events dropped because they belonged to a superseded turn",
		}, []string{"source"}),
		PipelineState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ema_pipeline_state",
			Help: "1 for the coordinator's current state, 0 otherwise",
		}, []string{"state"}),
	}
}

func (m *Metrics) TranscriptEvent(kind string) {
	if m == nil {
		return
	}
	m.TranscriptEvents.WithLabelValues(kind).Inc()
}

func (m *Metrics) TranscriptionReconnect() {
	if m == nil {
		return
	}
	m.TranscriptionReconnects.Inc()
}

func (m *Metrics) SetTranscriptionState(state int) {
	if m == nil {
		return
	}
	m.TranscriptionState.Set(float64(state))
}

func (m *Metrics) FrameSent() {
	if m == nil {
		return
	}
	m.FramesSent.Inc()
}

func (m *Metrics) GenerationFinished(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.GenerationTurns.WithLabelValues(outcome).Inc()
	m.GenerationDuration.Observe(seconds)
}

func (m *Metrics) GenerationFirstChunkAfter(seconds float64) {
	if m == nil {
		return
	}
	m.GenerationFirstChunk.Observe(seconds)
}

func (m *Metrics) GenerationRemoteCancel() {
	if m == nil {
		return
	}
	m.GenerationCancellations.Inc()
}

func (m *Metrics) SynthesisFinished(seconds float64, err error) {
	if m == nil {
		return
	}
	m.SynthesisDuration.Observe(seconds)
	if err != nil {
		m.SynthesisFailures.Inc()
	}
}

func (m *Metrics) PlaybackUnit(outcome string) {
	if m == nil {
		return
	}
	m.PlaybackUnits.WithLabelValues(outcome).Inc()
}

func (m *Metrics) TurnFinished(status string) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(status).Inc()
}

func (m *Metrics) StaleEventDiscarded(source string) {
	if m == nil {
		return
	}
	m.StaleEventsDiscarded.WithLabelValues(source).Inc()
}

// SetPipelineState marks state as current and clears the others.
func (m *Metrics) SetPipelineState(state string, all []string) {
	if m == nil {
		return
	}
	for _, s := range all {
		value := 0.0
		if s == state {
			value = 1
		}
		m.PipelineState.WithLabelValues(s).Set(value)
	}
}
