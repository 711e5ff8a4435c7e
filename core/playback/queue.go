package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/texttospeech"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var (
	ErrPlayback         = errors.New("audio playback failed")
	ErrEncodingMismatch = errors.New("synthesized audio does not match the player encoding")
)

// Player plays PCM audio. Play blocks until the audio has been played or ctx
// is done, and must not output anything once ctx is done.
type Player interface {
	Play(ctx context.Context, pcm []byte) error
	EncodingInfo() audio.EncodingInfo
}

// Queue turns streamed text into speech. Units are synthesized ahead of time
// but played strictly one after another in enqueue order.
type Queue struct {
	synth   texttospeech.Synthesizer
	player  Player
	options QueueOptions

	mu          sync.Mutex
	batcher     *Batcher
	units       []*queuedUnit
	current     *queuedUnit
	seq         uint64
	latestTurn  int64
	droppedUpTo int64
	closed      bool
	// drainFor is a turn that ended and still owes a Drained event.
	drainFor int64

	rootCtx    context.Context
	rootCancel context.CancelFunc

	updateSignal chan struct{}
	events       chan Event
	done         chan struct{}
	workerDone   chan struct{}
	closeOnce    sync.Once
}

type queuedUnit struct {
	Unit

	ctx    context.Context
	cancel context.CancelFunc

	synthesisStarted bool
	result           chan synthesisResult
}

type synthesisResult struct {
	speech texttospeech.Speech
	err    error
}

func NewQueue(synth texttospeech.Synthesizer, player Player, opts ...QueueOption) *Queue {
	options := QueueOptions{
		MinWords:         DefaultMinWords,
		Lookahead:        DefaultLookahead,
		SynthesisTimeout: DefaultSynthesisTimeout,
		PerRuneTimeout:   DefaultPerRuneTimeout,
		EventBuffer:      defaultEventBuffer,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Lookahead < 1 {
		options.Lookahead = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		synth:        synth,
		player:       player,
		options:      options,
		batcher:      NewBatcher(options.MinWords),
		rootCtx:      ctx,
		rootCancel:   cancel,
		updateSignal: make(chan struct{}, 1),
		events:       make(chan Event, max(options.EventBuffer, 0)),
		done:         make(chan struct{}),
		workerDone:   make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *Queue) Events() <-chan Event {
	return q.events
}

// Enqueue adds a text fragment for turnID. Fragments for a turn older than
// the newest accepted one, or for a dropped turn, are rejected and false is
// returned.
func (q *Queue) Enqueue(turnID int64, fragment string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.acceptsLocked(turnID) {
		return false
	}
	if turnID > q.latestTurn {
		q.latestTurn = turnID
		q.batcher.Reset()
	}

	for _, text := range q.batcher.Add(fragment) {
		q.pushLocked(turnID, text)
	}
	return true
}

// EndTurn queues whatever text of turnID is still waiting in the batcher. A
// Drained event for turnID follows once everything queued so far has been
// handled, even when nothing was queued at all.
func (q *Queue) EndTurn(turnID int64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.acceptsLocked(turnID) {
		return
	}
	if turnID > q.latestTurn {
		q.latestTurn = turnID
		q.batcher.Reset()
	}
	if text := q.batcher.Remainder(); text != "" {
		q.pushLocked(turnID, text)
	}
	q.drainFor = turnID
	q.signalUpdate()
}

// DropTurn discards every unit of turnID and older turns, including one
// that is playing, and rejects any later fragments for them.
func (q *Queue) DropTurn(turnID int64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if turnID > q.droppedUpTo {
		q.droppedUpTo = turnID
	}
	if turnID >= q.latestTurn {
		q.batcher.Reset()
	}

	kept := q.units[:0]
	for _, unit := range q.units {
		if unit.TurnID <= turnID {
			q.discardLocked(unit)
			continue
		}
		kept = append(kept, unit)
	}
	clear(q.units[len(kept):])
	q.units = kept

	if q.current != nil && q.current.TurnID <= turnID {
		q.current.cancel()
	}
}

// Flush cancels pending synthesis and discards every unit that has not
// started playing, along with buffered text. The current unit plays out.
func (q *Queue) Flush() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.clearPendingLocked()
}

// Stop is Flush that also cuts the current unit short. Nothing queued before
// Stop plays after it.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.clearPendingLocked()
	if q.current != nil {
		q.current.cancel()
	}
}

func (q *Queue) IsPlaying() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.current != nil
}

// Pending reports whether any audio is playing, queued, or still buffered as
// text.
func (q *Queue) Pending() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.current != nil || len(q.units) > 0 || q.batcher.Buffered()
}

// Close stops playback and waits for the worker to exit. Events is closed
// afterwards.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.clearPendingLocked()
		if q.current != nil {
			q.current.cancel()
		}
		q.mu.Unlock()

		q.rootCancel()
		close(q.done)
		<-q.workerDone
	})
}

func (q *Queue) acceptsLocked(turnID int64) bool {
	return !q.closed && turnID >= q.latestTurn && turnID > q.droppedUpTo
}

func (q *Queue) pushLocked(turnID int64, text string) {
	q.seq++
	ctx, cancel := context.WithCancel(q.rootCtx)
	q.units = append(q.units, &queuedUnit{
		Unit:   Unit{Seq: q.seq, TurnID: turnID, Text: text},
		ctx:    ctx,
		cancel: cancel,
		result: make(chan synthesisResult, 1),
	})
	q.scheduleLocked()
	q.signalUpdate()
}

// scheduleLocked starts synthesis for the first Lookahead queued units.
func (q *Queue) scheduleLocked() {
	for i, unit := range q.units {
		if i >= q.options.Lookahead {
			return
		}
		if unit.synthesisStarted {
			continue
		}
		unit.synthesisStarted = true
		go q.synthesize(unit)
	}
}

func (q *Queue) clearPendingLocked() {
	q.batcher.Reset()
	for _, unit := range q.units {
		q.discardLocked(unit)
	}
	clear(q.units)
	q.units = q.units[:0]
	q.signalUpdate()
}

func (q *Queue) discardLocked(unit *queuedUnit) {
	unit.cancel()
	q.options.Metrics.PlaybackUnit("dropped")
}

func (q *Queue) synthesisTimeout(text string) time.Duration {
	return q.options.SynthesisTimeout + q.options.PerRuneTimeout*time.Duration(utf8.RuneCountInString(text))
}

func (q *Queue) synthesize(unit *queuedUnit) {
	ctx, span := tracer.Start(unit.ctx, "synthesize unit")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("turn.id", unit.TurnID),
		attribute.Int64("unit.seq", int64(unit.Seq)),
	)

	ctx, cancel := context.WithTimeout(ctx, q.synthesisTimeout(unit.Text))
	defer cancel()

	started := time.Now()
	speech, err := q.synth.Synthesize(ctx, unit.Text)
	if err == nil {
		err = q.checkEncoding(speech.Encoding)
	}
	if err != nil && !errors.Is(err, texttospeech.ErrSynthesis) {
		err = fmt.Errorf("%w: %w", texttospeech.ErrSynthesis, err)
	}
	if err != nil && unit.ctx.Err() == nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	q.options.Metrics.SynthesisFinished(time.Since(started).Seconds(), err)

	unit.result <- synthesisResult{speech: speech, err: err}
}

func (q *Queue) checkEncoding(encoding audio.EncodingInfo) error {
	want := q.player.EncodingInfo()
	if want.IsZero() || encoding.IsZero() {
		return nil
	}
	if encoding != want {
		return fmt.Errorf("%w: got %d Hz %s, player wants %d Hz %s", ErrEncodingMismatch,
			encoding.SampleRate, encoding.Format.Name(), want.SampleRate, want.Format.Name())
	}
	return nil
}

// run is the single playback worker.
func (q *Queue) run() {
	defer close(q.workerDone)
	defer close(q.events)

	for {
		unit, ok := q.next()
		if !ok {
			return
		}

		var result synthesisResult
		select {
		case result = <-unit.result:
		case <-unit.ctx.Done():
			// Discarded while waiting for synthesis.
			q.afterUnit(unit)
			continue
		}

		if result.err != nil {
			if unit.ctx.Err() == nil {
				logger.Warn("failed to synthesize unit", "turn_id", unit.TurnID, "error", result.err)
				q.removeIfHead(unit)
				q.options.Metrics.PlaybackUnit("failed")
				q.emit(UnitFailed{Unit: unit.Unit, Err: result.err})
			}
			q.afterUnit(unit)
			continue
		}

		if !q.beginPlayback(unit) {
			q.afterUnit(unit)
			continue
		}
		q.emit(UnitStarted{Unit: unit.Unit})
		err := q.play(unit, result.speech.Audio)
		interrupted := unit.ctx.Err() != nil
		q.endPlayback(unit)

		switch {
		case err != nil && !interrupted:
			q.options.Metrics.PlaybackUnit("failed")
			q.emit(UnitFailed{Unit: unit.Unit, Err: fmt.Errorf("%w: %w", ErrPlayback, err)})
		case interrupted:
			q.options.Metrics.PlaybackUnit("interrupted")
			q.emit(UnitFinished{Unit: unit.Unit, Interrupted: true})
		default:
			q.options.Metrics.PlaybackUnit("played")
			q.emit(UnitFinished{Unit: unit.Unit})
		}
		q.afterUnit(unit)
	}
}

// next blocks until a unit is at the head of the queue or the queue closes.
func (q *Queue) next() (*queuedUnit, bool) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, false
		}
		if len(q.units) > 0 {
			unit := q.units[0]
			q.mu.Unlock()
			return unit, true
		}
		if turnID := q.drainFor; turnID != 0 {
			q.drainFor = 0
			q.mu.Unlock()
			q.emit(Drained{LastTurnID: turnID})
			continue
		}
		q.mu.Unlock()

		select {
		case <-q.updateSignal:
		case <-q.done:
			return nil, false
		}
	}
}

// beginPlayback moves unit from the head of the queue to current. It fails
// when the unit was discarded in the meantime.
func (q *Queue) beginPlayback(unit *queuedUnit) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if unit.ctx.Err() != nil || len(q.units) == 0 || q.units[0] != unit {
		return false
	}
	q.units[0] = nil
	q.units = q.units[1:]
	q.current = unit
	q.scheduleLocked()
	return true
}

func (q *Queue) play(unit *queuedUnit, pcm []byte) error {
	ctx, span := tracer.Start(unit.ctx, "play unit")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("turn.id", unit.TurnID),
		attribute.Int("audio.bytes", len(pcm)),
	)

	if err := q.player.Play(ctx, pcm); err != nil && ctx.Err() == nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (q *Queue) endPlayback(unit *queuedUnit) {
	q.mu.Lock()
	if q.current == unit {
		q.current = nil
	}
	q.mu.Unlock()
}

func (q *Queue) removeIfHead(unit *queuedUnit) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.units) > 0 && q.units[0] == unit {
		q.units[0] = nil
		q.units = q.units[1:]
		q.scheduleLocked()
	}
}

// afterUnit releases unit and reports Drained once nothing is left to play.
func (q *Queue) afterUnit(unit *queuedUnit) {
	unit.cancel()

	q.mu.Lock()
	drained := !q.closed && q.current == nil && len(q.units) == 0
	if drained && q.drainFor <= unit.TurnID {
		q.drainFor = 0
	}
	q.mu.Unlock()

	if drained {
		q.emit(Drained{LastTurnID: unit.TurnID})
	}
}

func (q *Queue) emit(event Event) {
	select {
	case q.events <- event:
	case <-q.done:
	}
}

func (q *Queue) signalUpdate() {
	select {
	case q.updateSignal <- struct{}{}:
	default:
	}
}
