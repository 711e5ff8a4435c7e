package orchestration

import (
	"sync"

	"github.com/koscakluka/ema-voice/core/events"
)

// eventBuffer is an unbounded FIFO between the event loop and the emitter,
// so a slow receiver never stalls the loop.
type eventBuffer struct {
	mu             sync.Mutex
	events         []events.Event
	eventsConsumed int
	closed         bool
	updateSignal   chan struct{}
}

func newEventBuffer() *eventBuffer {
	return &eventBuffer{
		updateSignal: make(chan struct{}, 1),
	}
}

func (b *eventBuffer) Add(event events.Event) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.events = append(b.events, event)
	b.mu.Unlock()
	b.signalUpdate()
}

// Close ends Events once the events already added have been yielded.
func (b *eventBuffer) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.signalUpdate()
}

func (b *eventBuffer) Events(yield func(events.Event) bool) {
	for {
		b.mu.Lock()
		if b.eventsConsumed < len(b.events) {
			event := b.events[b.eventsConsumed]
			b.events[b.eventsConsumed] = nil
			b.eventsConsumed++
			if b.eventsConsumed == len(b.events) {
				b.events = b.events[:0]
				b.eventsConsumed = 0
			}
			b.mu.Unlock()
			if !yield(event) {
				return
			}
			continue
		}

		if b.closed {
			b.mu.Unlock()
			return
		}

		b.mu.Unlock()
		<-b.updateSignal
	}
}

func (b *eventBuffer) signalUpdate() {
	select {
	case b.updateSignal <- struct{}{}:
	default:
	}
}
