package orchestration

import (
	"context"

	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/history"
	"github.com/koscakluka/ema-voice/core/llms"
	"github.com/koscakluka/ema-voice/core/metrics"
	"github.com/koscakluka/ema-voice/core/playback"
	"github.com/koscakluka/ema-voice/core/speechtotext"
)

const (
	DefaultContextTurns = 10
	defaultEventBuffer  = 64
)

type OrchestratorOption func(*Orchestrator)

// Transcriber is the long-lived transcription connection.
type Transcriber interface {
	Connect(ctx context.Context) error
	SendFrame(frame audio.Frame) error
	Events() <-chan speechtotext.Event
	Disconnect()
	State() speechtotext.ConnectionState
}

func WithTranscriber(client Transcriber) OrchestratorOption {
	return func(o *Orchestrator) { o.transcriber = client }
}

// ResponseGenerator runs one generation turn at a time.
type ResponseGenerator interface {
	StartTurn(ctx context.Context, turnID int64, prompt string, history []llms.Message) error
	CancelTurn(turnID int64)
	Events() <-chan llms.ChunkEvent
}

func WithGenerator(generator ResponseGenerator) OrchestratorOption {
	return func(o *Orchestrator) { o.generator = generator }
}

// SpeechQueue speaks response text.
type SpeechQueue interface {
	Enqueue(turnID int64, fragment string) bool
	EndTurn(turnID int64)
	DropTurn(turnID int64)
	Stop()
	Pending() bool
	IsPlaying() bool
	Events() <-chan playback.Event
}

func WithSpeechQueue(queue SpeechQueue) OrchestratorOption {
	return func(o *Orchestrator) { o.speech = queue }
}

// CaptureDeviceFactory opens a fresh capture device for every listening
// session, since a framer cannot be restarted.
type CaptureDeviceFactory func() (audio.CaptureDevice, error)

func WithCaptureDevice(factory CaptureDeviceFactory, opts ...audio.FramerOption) OrchestratorOption {
	return func(o *Orchestrator) {
		o.newCaptureDevice = factory
		o.framerOptions = opts
	}
}

func WithHistory(store history.Store) OrchestratorOption {
	return func(o *Orchestrator) { o.history = store }
}

// WithContextTurns sets how many past messages are sent as generation
// context.
func WithContextTurns(n int) OrchestratorOption {
	return func(o *Orchestrator) { o.contextTurns = n }
}

// WithBargeInInterruptsPlayback makes a new utterance also stop speech of a
// turn that has already finished generating.
func WithBargeInInterruptsPlayback(interrupt bool) OrchestratorOption {
	return func(o *Orchestrator) { o.bargeInInterruptsPlayback = interrupt }
}

// WithSpeaking sets whether responses are spoken. Defaults to true when a
// speech queue is configured.
func WithSpeaking(speaking bool) OrchestratorOption {
	return func(o *Orchestrator) {
		o.speakingSet = true
		o.speaking.Store(speaking)
	}
}

func WithMetrics(m *metrics.Metrics) OrchestratorOption {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithEventBuffer(size int) OrchestratorOption {
	return func(o *Orchestrator) { o.eventBufferSize = size }
}

type OrchestrateOptions struct {
	onTranscription        func(transcript string)
	onInterimTranscription func(transcript string)
	onEmptyTranscription   func()
	onResponse             func(response string)
	onResponseEnd          func(response string)
	onAudioStarted         func(text string)
	onAudioEnded           func(transcript string)
	onCancellation         func(turnID int64)
	onFailure              func(kind ErrorKind, diagnostic, partial string)
	onStateChanged         func(from, to State)
}

type OrchestrateOption func(*OrchestrateOptions)

// WithTranscriptionCallback registers a callback for final transcripts that
// start a turn.
func WithTranscriptionCallback(callback func(transcript string)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onTranscription = callback
	}
}

// WithInterimTranscriptionCallback registers a callback for provisional
// transcripts. Each call replaces the previous text.
func WithInterimTranscriptionCallback(callback func(transcript string)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onInterimTranscription = callback
	}
}

func WithEmptyTranscriptionCallback(callback func()) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onEmptyTranscription = callback
	}
}

// WithResponseCallback receives the whole response text generated so far.
func WithResponseCallback(callback func(response string)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onResponse = callback
	}
}

func WithResponseEndCallback(callback func(response string)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onResponseEnd = callback
	}
}

func WithAudioStartedCallback(callback func(text string)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onAudioStarted = callback
	}
}

func WithAudioEndedCallback(callback func(transcript string)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onAudioEnded = callback
	}
}

func WithCancellationCallback(callback func(turnID int64)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onCancellation = callback
	}
}

// WithFailureCallback registers a callback for failed turns. partial is the
// response text generated before the failure.
func WithFailureCallback(callback func(kind ErrorKind, diagnostic, partial string)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onFailure = callback
	}
}

func WithStateChangedCallback(callback func(from, to State)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onStateChanged = callback
	}
}
