package llms

import "sync"

// eventQueue decouples generation runs from the consumer: runs never block
// on a slow reader, so a superseding StartTurn can always wait for the
// previous run to finish.
type eventQueue struct {
	mu           sync.Mutex
	events       []ChunkEvent
	closed       bool
	updateSignal chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{updateSignal: make(chan struct{}, 1)}
}

func (q *eventQueue) push(event ChunkEvent) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.events = append(q.events, event)
	q.mu.Unlock()
	q.signalUpdate()
}

func (q *eventQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signalUpdate()
}

// pump forwards queued events to out in order and closes out once the queue
// is closed. Events still queued at close are dropped.
func (q *eventQueue) pump(out chan<- ChunkEvent) {
	defer close(out)
	for {
		q.mu.Lock()
		if q.closed {
			q.events = nil
			q.mu.Unlock()
			return
		}
		if len(q.events) > 0 {
			event := q.events[0]
			q.events = q.events[1:]
			q.mu.Unlock()

			select {
			case out <- event:
			case <-q.updateSignal:
				// Re-check closed before retrying the send.
				q.mu.Lock()
				q.events = append([]ChunkEvent{event}, q.events...)
				q.mu.Unlock()
			}
			continue
		}
		q.mu.Unlock()
		<-q.updateSignal
	}
}

func (q *eventQueue) signalUpdate() {
	select {
	case q.updateSignal <- struct{}{}:
	default:
	}
}
