package orchestration

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/koscakluka/ema-voice/core/events"
	"github.com/koscakluka/ema-voice/core/history"
	"github.com/koscakluka/ema-voice/core/llms"
	"github.com/koscakluka/ema-voice/core/playback"
	"github.com/koscakluka/ema-voice/core/speechtotext"
)

// run is the event loop. Every transition of pipeline state happens here.
func (o *Orchestrator) run(ctx context.Context) error {
	var transcripts <-chan speechtotext.Event
	if o.transcriber != nil {
		transcripts = o.transcriber.Events()
	}
	var chunks <-chan llms.ChunkEvent
	if o.generator != nil {
		chunks = o.generator.Events()
	}
	var playbackEvents <-chan playback.Event
	if o.speech != nil {
		playbackEvents = o.speech.Events()
	}

	defer func() {
		if o.turn.active() {
			o.cancelTurn(o.turn, "user_stop")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case cmd := <-o.commands:
			cmd.result <- cmd.run(ctx)

		case event, ok := <-transcripts:
			if !ok {
				transcripts = nil
				continue
			}
			o.handleTranscript(ctx, event)

		case event, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			o.handleChunk(ctx, event)

		case event, ok := <-playbackEvents:
			if !ok {
				playbackEvents = nil
				continue
			}
			o.handlePlayback(event)
		}
	}
}

func (o *Orchestrator) handleTranscript(ctx context.Context, event speechtotext.Event) {
	switch event := event.(type) {
	case speechtotext.Partial:
		o.emit(events.NewUserTranscriptPartial(event.Text))
		if o.State() == StateListening {
			o.setState(StateTranscribing)
		}

	case speechtotext.Final:
		text := strings.TrimSpace(event.Text)
		if text == "" {
			logger.Debug("dropped empty transcript")
			o.emit(events.NewUserTranscriptEmpty())
			if o.State() == StateTranscribing && !o.turn.active() {
				o.setState(o.idleOrListening())
			}
			return
		}
		if err := o.startTurn(ctx, text, false); err != nil {
			logger.Warn("failed to start turn from transcript", "error", err)
		}

	case speechtotext.Error:
		switch {
		case event.Terminal:
			logger.Error("transcription failed", "error", event.Err)
			o.emit(events.NewTranscriptionError(event.Err, true))
		case errors.Is(event.Err, speechtotext.ErrConnectionStale):
			o.emit(events.NewTranscriptionError(event.Err, false))
		default:
			logger.Warn("transcription error", "error", event.Err)
			o.emit(events.NewTranscriptionError(event.Err, false))
		}

	case speechtotext.Heartbeat:
	}
}

// startTurn supersedes whatever turn is active and starts generating a
// response to prompt.
func (o *Orchestrator) startTurn(ctx context.Context, prompt string, typed bool) error {
	if o.generator == nil {
		return ErrNoGenerator
	}

	if previous := o.turn; previous.active() {
		switch {
		case previous.status == turnGenerating:
			o.cancelTurn(previous, "barge_in")
		case o.bargeInInterruptsPlayback:
			o.cancelTurn(previous, "barge_in")
		default:
			// Its remaining audio keeps playing; the events it produces
			// are discarded as stale.
			o.emit(events.NewAssistantPlaybackEnded(previous.id, previous.spoken.String()))
			o.emit(events.NewTurnCompleted(previous.id, previous.response))
			o.finishTurn(previous, turnCompleted, nil)
		}
	}

	id := o.currentTurn.Add(1)
	ctx, span := tracer.Start(ctx, "turn")
	span.SetAttributes(
		attribute.Int64("turn.id", id),
		attribute.String("session.id", o.sessionID),
		attribute.Bool("turn.typed", typed),
	)
	t := &turn{
		id:        id,
		prompt:    prompt,
		status:    turnGenerating,
		startedAt: time.Now(),
		span:      span,
	}
	o.turn = t

	if typed {
		o.emit(events.NewUserPromptSubmitted(id, prompt))
	} else {
		o.emit(events.NewUserTranscriptFinal(id, prompt))
	}
	o.setState(StateTranscribing)

	past := o.historyContext(ctx)
	o.appendHistory(ctx, history.NewEntry(id, llms.RoleUser, prompt))
	o.emit(events.NewTurnStarted(id, prompt))

	if err := o.generator.StartTurn(ctx, id, prompt, past); err != nil {
		o.failTurn(t, err)
		return err
	}

	o.emit(events.NewAssistantResponseStarted(id))
	o.setState(StateGenerating)
	return nil
}

func (o *Orchestrator) handleChunk(ctx context.Context, event llms.ChunkEvent) {
	t := o.turn
	if t == nil || event.TurnID != o.currentTurn.Load() || t.id != event.TurnID || t.status != turnGenerating {
		o.metrics.StaleEventDiscarded("generation")
		return
	}

	if event.Err != nil {
		if len(event.AccumulatedText) > len(t.response) {
			t.response = event.AccumulatedText
		}
		if errors.Is(event.Err, llms.ErrGenerationCanceled) {
			o.cancelTurn(t, "user_stop")
			o.setState(o.idleOrListening())
			return
		}
		o.failTurn(t, event.Err)
		return
	}

	if delta, ok := responseDelta(t.response, event.AccumulatedText); ok && delta != "" {
		t.response = event.AccumulatedText
		o.emit(events.NewAssistantResponseUpdated(t.id, t.response))
		if o.speaking.Load() && o.speech != nil {
			o.speech.Enqueue(t.id, delta)
		}
	}

	if !event.IsFinal {
		return
	}

	o.emit(events.NewAssistantResponseFinal(t.id, t.response))
	o.appendHistory(ctx, history.NewEntry(t.id, llms.RoleAssistant, t.response))

	if !o.speaking.Load() || o.speech == nil {
		o.completeTurn(t)
		return
	}

	// The turn completes on the Drained event that follows EndTurn, after
	// every playback event of the turn has been handled.
	o.speech.EndTurn(t.id)
	t.status = turnSpeaking
	if o.speech.Pending() {
		o.setState(StateSpeaking)
	}
}

func (o *Orchestrator) handlePlayback(event playback.Event) {
	var turnID int64
	switch event := event.(type) {
	case playback.UnitStarted:
		turnID = event.Unit.TurnID
	case playback.UnitFinished:
		turnID = event.Unit.TurnID
	case playback.UnitFailed:
		turnID = event.Unit.TurnID
	case playback.Drained:
		turnID = event.LastTurnID
	}

	t := o.turn
	if !t.active() || t.id != turnID || turnID != o.currentTurn.Load() {
		o.metrics.StaleEventDiscarded("playback")
		return
	}

	switch event := event.(type) {
	case playback.UnitStarted:
		o.emit(events.NewAssistantPlaybackStarted(t.id, event.Unit.Text))

	case playback.UnitFinished:
		if !event.Interrupted {
			t.addSpoken(event.Unit.Text)
		}
		o.emit(events.NewAssistantPlaybackUnitPlayed(t.id, event.Unit.Text, event.Interrupted))

	case playback.UnitFailed:
		o.emit(events.NewAssistantPlaybackFailed(t.id, event.Unit.Text, event.Err))
		o.failTurn(t, event.Err)

	case playback.Drained:
		if t.status == turnSpeaking && !o.speech.Pending() {
			o.finishSpeaking(t)
		}
	}
}

func (o *Orchestrator) finishSpeaking(t *turn) {
	o.emit(events.NewAssistantPlaybackEnded(t.id, t.spoken.String()))
	o.completeTurn(t)
}

func (o *Orchestrator) completeTurn(t *turn) {
	o.emit(events.NewTurnCompleted(t.id, t.response))
	o.finishTurn(t, turnCompleted, nil)
	if o.turn == t {
		o.setState(o.idleOrListening())
	}
}

// cancelTurn stops generation and playback of t. Cancellation is a
// successful outcome, not a failure.
func (o *Orchestrator) cancelTurn(t *turn, reason string) {
	if t.status == turnGenerating {
		o.generator.CancelTurn(t.id)
	}
	if o.speech != nil {
		o.speech.DropTurn(t.id)
	}
	o.emit(events.NewTurnCancelled(t.id, reason, t.response))
	o.finishTurn(t, turnCanceled, nil)
}

func (o *Orchestrator) failTurn(t *turn, err error) {
	kind := ClassifyError(err)
	logger.Error("turn failed", "turn_id", t.id, "kind", kind, "error", err)

	if t.status == turnGenerating {
		o.generator.CancelTurn(t.id)
	}
	if o.speech != nil {
		o.speech.DropTurn(t.id)
	}
	o.emit(events.NewTurnFailed(t.id, string(kind), kind.Diagnostic(), t.response, err))
	o.finishTurn(t, turnFailed, err)
	if o.turn == t {
		o.setState(o.idleOrListening())
	}
}

func (o *Orchestrator) finishTurn(t *turn, status turnStatus, err error) {
	t.finish(status, err)
	o.metrics.TurnFinished(string(status))
	logger.Debug("turn finished",
		"turn_id", t.id,
		"status", status,
		"duration", time.Since(t.startedAt),
	)
}

func (o *Orchestrator) historyContext(ctx context.Context) []llms.Message {
	if o.history == nil || o.contextTurns <= 0 {
		return nil
	}
	entries, err := o.history.Recent(ctx, o.contextTurns)
	if err != nil {
		logger.Warn("failed to read conversation history", "error", err)
		return nil
	}
	return history.Messages(entries)
}

func (o *Orchestrator) appendHistory(ctx context.Context, entry history.Entry) {
	if o.history == nil || entry.Content == "" {
		return
	}
	if err := o.history.Append(ctx, entry); err != nil {
		logger.Warn("failed to append conversation history", "role", entry.Role, "error", err)
	}
}
