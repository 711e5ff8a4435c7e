package llms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Generator runs one streaming generation at a time against a Backend and
// reports progress as ChunkEvents tagged with the turn that started them.
type Generator struct {
	backend Backend
	options GeneratorOptions

	// startMu serializes StartTurn so a superseded run is fully stopped
	// before the next one begins.
	startMu sync.Mutex
	mu      sync.Mutex
	active  *generationRun
	closed  bool

	queue  *eventQueue
	events chan ChunkEvent
}

type generationRun struct {
	turnID int64
	cancel context.CancelCauseFunc
	done   chan struct{}
}

func NewGenerator(backend Backend, opts ...GeneratorOption) *Generator {
	options := GeneratorOptions{
		Timeout:       DefaultGenerationTimeout,
		CancelTimeout: defaultCancelTimeout,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Timeout <= 0 {
		options.Timeout = DefaultGenerationTimeout
	}

	g := &Generator{
		backend: backend,
		options: options,
		queue:   newEventQueue(),
		events:  make(chan ChunkEvent),
	}
	go g.queue.pump(g.events)
	return g
}

// Events is closed by Close.
func (g *Generator) Events() <-chan ChunkEvent {
	return g.events
}

// StartTurn begins generating a response for turnID. A turn still in flight
// is canceled first, and its terminal event is queued before any event of
// the new turn.
func (g *Generator) StartTurn(ctx context.Context, turnID int64, prompt string, history []Message) error {
	if strings.TrimSpace(prompt) == "" {
		return ErrEmptyPrompt
	}

	g.startMu.Lock()
	defer g.startMu.Unlock()

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return ErrClosed
	}
	previous := g.active
	g.mu.Unlock()

	if previous != nil {
		g.cancelRun(previous)
		<-previous.done
	}

	// The run outlives the caller's context; only cancellation ends it.
	runCtx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
	run := &generationRun{turnID: turnID, cancel: cancel, done: make(chan struct{})}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		cancel(ErrClosed)
		return ErrClosed
	}
	g.active = run
	g.mu.Unlock()

	req := Request{
		TurnID:       turnID,
		Prompt:       prompt,
		Context:      history,
		ModelID:      g.options.ModelID,
		SystemPrompt: g.options.SystemPrompt,
	}
	go g.generate(runCtx, run, req)
	return nil
}

// CancelTurn stops turnID if it is the turn in flight. Its terminal event
// carries ErrGenerationCanceled.
func (g *Generator) CancelTurn(turnID int64) {
	g.mu.Lock()
	run := g.active
	g.mu.Unlock()

	if run == nil || run.turnID != turnID {
		return
	}
	g.cancelRun(run)
}

// Close cancels the turn in flight and closes Events.
func (g *Generator) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	run := g.active
	g.mu.Unlock()

	if run != nil {
		g.cancelRun(run)
		<-run.done
	}
	g.queue.close()
}

func (g *Generator) cancelRun(run *generationRun) {
	select {
	case <-run.done:
		return
	default:
	}

	run.cancel(ErrGenerationCanceled)

	canceller, ok := g.backend.(RemoteCanceller)
	if !ok {
		return
	}
	g.options.Metrics.GenerationRemoteCancel()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), g.options.CancelTimeout)
		defer cancel()
		if err := canceller.CancelTurn(ctx, run.turnID); err != nil {
			logger.Warn("failed to cancel remote generation", "turn_id", run.turnID, "error", err)
		}
	}()
}

func (g *Generator) generate(ctx context.Context, run *generationRun, req Request) {
	ctx, span := tracer.Start(ctx, "generate turn response")
	defer span.End()
	span.SetAttributes(attribute.Int64("turn.id", run.turnID))

	started := time.Now()
	idle := time.AfterFunc(g.options.Timeout, func() {
		run.cancel(ErrGenerationTimeout)
	})

	var accumulated strings.Builder
	var streamErr error
	firstChunk := true

	defer func() {
		idle.Stop()

		terminal := ChunkEvent{TurnID: run.turnID, AccumulatedText: accumulated.String()}
		outcome := "completed"
		switch cause := context.Cause(ctx); {
		case errors.Is(cause, ErrGenerationTimeout):
			terminal.Err = fmt.Errorf("%w after %s without output", ErrGenerationTimeout, g.options.Timeout)
			outcome = "timeout"
		case cause != nil:
			terminal.Err = ErrGenerationCanceled
			outcome = "canceled"
		case streamErr != nil:
			terminal.Err = streamErr
			outcome = "failed"
		default:
			terminal.IsFinal = true
		}

		if terminal.Err != nil && outcome != "canceled" {
			span.RecordError(terminal.Err)
			span.SetStatus(codes.Error, terminal.Err.Error())
		}
		span.SetAttributes(attribute.String("generation.outcome", outcome))
		g.options.Metrics.GenerationFinished(outcome, time.Since(started).Seconds())

		g.queue.push(terminal)
		run.cancel(nil)

		g.mu.Lock()
		if g.active == run {
			g.active = nil
		}
		g.mu.Unlock()
		close(run.done)
	}()

	if g.backend == nil {
		streamErr = fmt.Errorf("%w: no generation backend configured", ErrConnection)
		return
	}

	stream := g.backend.PromptWithStream(ctx, req)
	for chunk, err := range stream.Chunks(ctx) {
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			streamErr = fmt.Errorf("%w: %w", ErrConnection, err)
			return
		}
		idle.Reset(g.options.Timeout)

		if firstChunk {
			firstChunk = false
			span.AddEvent("received first chunk")
			g.options.Metrics.GenerationFirstChunkAfter(time.Since(started).Seconds())
		}

		updated := false
		switch c := chunk.(type) {
		case StreamContentChunk:
			if c.Content() != "" {
				accumulated.WriteString(c.Content())
				updated = true
			}
		case StreamAccumulatedChunk:
			text := c.AccumulatedText()
			current := accumulated.String()
			if len(text) > len(current) && strings.HasPrefix(text, current) {
				accumulated.WriteString(text[len(current):])
				updated = true
			} else if text != current {
				logger.Warn("ignoring accumulated text that rewrites earlier output", "turn_id", run.turnID)
			}
		case StreamUsageChunk:
			usage := c.Usage()
			span.SetAttributes(
				attribute.Int("usage.input", usage.InputTokens),
				attribute.Int("usage.output", usage.OutputTokens),
				attribute.Int("usage.total", usage.TotalTokens),
			)
		}

		if updated && ctx.Err() == nil {
			g.queue.push(ChunkEvent{TurnID: run.turnID, AccumulatedText: accumulated.String()})
		}
	}
}
