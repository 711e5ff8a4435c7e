package orchestration

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/events"
	"github.com/koscakluka/ema-voice/core/history"
	"github.com/koscakluka/ema-voice/core/llms"
	"github.com/koscakluka/ema-voice/core/metrics"
	"github.com/koscakluka/ema-voice/core/speechtotext"
)

// Orchestrator coordinates capture, transcription, generation and playback
// for one conversation. All pipeline state is owned by a single event loop;
// public methods hand work to it and wait for the result.
type Orchestrator struct {
	transcriber      Transcriber
	generator        ResponseGenerator
	speech           SpeechQueue
	history          history.Store
	newCaptureDevice CaptureDeviceFactory
	framerOptions    []audio.FramerOption

	contextTurns              int
	bargeInInterruptsPlayback bool
	speakingSet               bool
	speaking                  atomic.Bool
	metrics                   *metrics.Metrics
	eventBufferSize           int

	sessionID   string
	state       atomic.Value
	currentTurn atomic.Int64

	// Owned by the event loop.
	turn    *turn
	capture *captureSession

	started       atomic.Bool
	commands      chan command
	buffer        *eventBuffer
	events        chan events.Event
	eventsEnabled atomic.Bool
	closing       chan struct{}

	baseContext context.Context
	cancel      context.CancelFunc
	loopDone    chan struct{}
	emitterDone chan struct{}
	closeOnce   sync.Once
}

type command struct {
	run    func(ctx context.Context) error
	result chan error
}

func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		contextTurns:    DefaultContextTurns,
		eventBufferSize: defaultEventBuffer,
		sessionID:       uuid.NewString(),
		commands:        make(chan command),
		buffer:          newEventBuffer(),
		closing:         make(chan struct{}),
		baseContext:     context.Background(),
		loopDone:        make(chan struct{}),
		emitterDone:     make(chan struct{}),
	}
	o.state.Store(StateIdle)

	for _, opt := range opts {
		opt(o)
	}

	if !o.speakingSet {
		o.speaking.Store(o.speech != nil)
	}
	if o.eventBufferSize < 0 {
		o.eventBufferSize = 0
	}
	o.events = make(chan events.Event, o.eventBufferSize)
	o.metrics.SetPipelineState(string(StateIdle), allStates)

	return o
}

// Orchestrate starts the event loop. ctx is the base context for every turn;
// canceling it closes the orchestrator.
//
// Only the first call starts the loop; later calls return ErrAlreadyRunning.
func (o *Orchestrator) Orchestrate(ctx context.Context, opts ...OrchestrateOption) error {
	select {
	case <-o.closing:
		return ErrClosed
	default:
	}
	if !o.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	options := OrchestrateOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	emit := newCallbackEventEmitter(options)

	ctx, cancel := context.WithCancel(ctx)
	o.baseContext = ctx
	o.cancel = cancel

	go func() {
		defer close(o.emitterDone)
		defer close(o.events)
		for event := range o.buffer.Events {
			emit(event)
			if !o.eventsEnabled.Load() {
				continue
			}
			select {
			case o.events <- event:
			case <-o.closing:
			}
		}
	}()

	loop := panicSafeNamedWorker("event loop", o.run)
	go func() {
		defer close(o.loopDone)
		if err := loop(ctx); err != nil {
			span := trace.SpanFromContext(ctx)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Error("orchestrator event loop stopped", "error", err)
		}
	}()

	withContextCancelHook(ctx, o.Close)
	return nil
}

// Events returns every pipeline event in order. The channel is closed by
// Close. Events are only delivered once Events has been called, and an
// unread channel holds back delivery to later events but never the pipeline.
func (o *Orchestrator) Events() <-chan events.Event {
	o.eventsEnabled.Store(true)
	return o.events
}

func (o *Orchestrator) State() State {
	return o.state.Load().(State)
}

// CurrentTurn is the ID of the newest turn, or 0 before the first one.
func (o *Orchestrator) CurrentTurn() int64 {
	return o.currentTurn.Load()
}

func (o *Orchestrator) SessionID() string {
	return o.sessionID
}

func (o *Orchestrator) IsSpeaking() bool {
	return o.speaking.Load()
}

// StartListening connects transcription and starts capturing audio. Calling
// it while already listening only makes sure the connection is up.
func (o *Orchestrator) StartListening(ctx context.Context) error {
	if !o.started.Load() {
		return ErrNotRunning
	}
	if o.transcriber == nil {
		return ErrNoTranscriber
	}
	// Connect may dial, so it stays off the event loop.
	if err := o.transcriber.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect transcription: %w", err)
	}

	return o.do(func(loopCtx context.Context) error {
		if o.capture != nil {
			return nil
		}
		if err := o.startCapture(loopCtx); err != nil {
			return fmt.Errorf("failed to start capture: %w", err)
		}
		if o.State() == StateIdle {
			o.setState(StateListening)
		}
		return nil
	})
}

// StopListening stops capture. The transcription connection stays open.
func (o *Orchestrator) StopListening() error {
	return o.do(func(context.Context) error {
		o.stopCapture()
		if state := o.State(); state == StateListening || state == StateTranscribing {
			o.setState(StateIdle)
		}
		return nil
	})
}

// Stop cancels everything in progress: capture, the active turn and
// playback. The pipeline ends Idle.
func (o *Orchestrator) Stop() error {
	return o.do(func(context.Context) error {
		o.stopCapture()

		active := o.turn.active()
		if o.State() != StateIdle || active {
			o.setState(StateCanceled)
		}
		if active {
			o.cancelTurn(o.turn, "user_stop")
		}
		if o.speech != nil {
			o.speech.Stop()
		}
		o.setState(StateIdle)
		return nil
	})
}

// SubmitPrompt starts a turn from typed text, exactly like a final
// transcript would.
func (o *Orchestrator) SubmitPrompt(prompt string) error {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return llms.ErrEmptyPrompt
	}
	return o.do(func(ctx context.Context) error {
		return o.startTurn(ctx, prompt, true)
	})
}

// SetSpeaking turns spoken responses on or off. Turning it off stops current
// playback; the turn being spoken completes.
func (o *Orchestrator) SetSpeaking(speaking bool) error {
	if !o.started.Load() {
		o.speaking.Store(speaking)
		return nil
	}
	return o.do(func(context.Context) error {
		o.speaking.Store(speaking)
		if speaking {
			return nil
		}
		if o.speech != nil {
			o.speech.Stop()
		}
		if t := o.turn; t != nil && t.status == turnSpeaking {
			o.finishSpeaking(t)
		}
		return nil
	})
}

// TranscriptionStateChanged reports a transcription connection state change
// as a pipeline event. It is meant to be passed to the transcription client
// as its state callback.
func (o *Orchestrator) TranscriptionStateChanged(state speechtotext.ConnectionState) {
	o.buffer.Add(events.NewTranscriptionStateChanged(state.String()))
}

// Close stops the pipeline, closes every component that can be closed and
// closes Events.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		close(o.closing)

		if !o.started.Load() {
			o.stopComponents()
			o.buffer.Close()
			close(o.events)
			return
		}

		o.cancel()
		<-o.loopDone

		o.stopComponents()
		o.buffer.Close()
		<-o.emitterDone
	})
}

func (o *Orchestrator) stopComponents() {
	o.stopCapture()
	if o.speech != nil {
		o.speech.Stop()
	}
	if o.transcriber != nil {
		o.transcriber.Disconnect()
	}

	for _, component := range []any{o.transcriber, o.generator, o.speech, o.history} {
		switch c := component.(type) {
		case interface{ Close() error }:
			if err := c.Close(); err != nil {
				logger.Warn("failed to close pipeline component", "error", err)
			}
		case interface{ Close() }:
			c.Close()
		}
	}
}

// do runs fn on the event loop and returns its error.
func (o *Orchestrator) do(fn func(ctx context.Context) error) error {
	if !o.started.Load() {
		return ErrNotRunning
	}

	cmd := command{run: fn, result: make(chan error, 1)}
	select {
	case o.commands <- cmd:
	case <-o.loopDone:
		return ErrClosed
	}

	select {
	case err := <-cmd.result:
		return err
	case <-o.loopDone:
		select {
		case err := <-cmd.result:
			return err
		default:
			return ErrClosed
		}
	}
}

func (o *Orchestrator) emit(event events.Event) {
	o.buffer.Add(event)
}

func (o *Orchestrator) setState(state State) {
	previous := o.State()
	if previous == state {
		return
	}
	o.state.Store(state)
	o.metrics.SetPipelineState(string(state), allStates)
	logger.Debug("pipeline state changed", "from", previous, "to", state)
	o.emit(events.NewStateChanged(string(previous), string(state)))
}

// idleOrListening is where the pipeline rests between turns.
func (o *Orchestrator) idleOrListening() State {
	if o.capture != nil {
		return StateListening
	}
	return StateIdle
}
