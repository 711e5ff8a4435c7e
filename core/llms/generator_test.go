package llms

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestStartTurnStreamsAccumulatedText(t *testing.T) {
	backend := &stubBackend{script: func(ctx context.Context, req Request, yield func(StreamChunk, error) bool) {
		for _, part := range []string{"Two plus two", " is four."} {
			if !yield(contentChunk(part), nil) {
				return
			}
		}
	}}
	generator := NewGenerator(backend)
	defer generator.Close()

	if err := generator.StartTurn(context.Background(), 7, "What is two plus two", nil); err != nil {
		t.Fatalf("expected turn to start, got %v", err)
	}

	events := collectTurn(t, generator, 7)
	expected := []string{"Two plus two", "Two plus two is four.", "Two plus two is four."}
	if len(events) != len(expected) {
		t.Fatalf("expected %d events, got %+v", len(expected), events)
	}
	for i, event := range events {
		if event.TurnID != 7 {
			t.Fatalf("expected every event tagged with turn 7, got %d", event.TurnID)
		}
		if event.AccumulatedText != expected[i] {
			t.Fatalf("expected event %d text %q, got %q", i, expected[i], event.AccumulatedText)
		}
	}
	if !events[2].IsFinal || events[2].Err != nil {
		t.Fatalf("expected clean final event, got %+v", events[2])
	}

	if backend.lastRequest().Prompt != "What is two plus two" {
		t.Fatalf("expected prompt forwarded to backend, got %+v", backend.lastRequest())
	}
}

func TestStartTurnRejectsEmptyPrompt(t *testing.T) {
	generator := NewGenerator(&stubBackend{})
	defer generator.Close()

	if err := generator.StartTurn(context.Background(), 1, "   ", nil); !errors.Is(err, ErrEmptyPrompt) {
		t.Fatalf("expected ErrEmptyPrompt, got %v", err)
	}
}

func TestAccumulatedChunksNeverShrink(t *testing.T) {
	backend := &stubBackend{script: func(ctx context.Context, req Request, yield func(StreamChunk, error) bool) {
		for _, text := range []string{"Hel", "Hello", "Help", "Hello there"} {
			if !yield(accumulatedChunk(text), nil) {
				return
			}
		}
	}}
	generator := NewGenerator(backend)
	defer generator.Close()

	if err := generator.StartTurn(context.Background(), 1, "hi", nil); err != nil {
		t.Fatalf("expected turn to start, got %v", err)
	}

	events := collectTurn(t, generator, 1)
	previous := ""
	for _, event := range events {
		if len(event.AccumulatedText) < len(previous) {
			t.Fatalf("accumulated text shrank from %q to %q", previous, event.AccumulatedText)
		}
		previous = event.AccumulatedText
	}
	if previous != "Hello there" {
		t.Fatalf("expected final text %q, got %q", "Hello there", previous)
	}
}

func TestMidStreamErrorKeepsPartialText(t *testing.T) {
	backend := &stubBackend{script: func(ctx context.Context, req Request, yield func(StreamChunk, error) bool) {
		if !yield(contentChunk("Partial answer"), nil) {
			return
		}
		yield(nil, errors.New("connection reset"))
	}}
	generator := NewGenerator(backend)
	defer generator.Close()

	if err := generator.StartTurn(context.Background(), 3, "hi", nil); err != nil {
		t.Fatalf("expected turn to start, got %v", err)
	}

	events := collectTurn(t, generator, 3)
	terminal := events[len(events)-1]
	if !errors.Is(terminal.Err, ErrConnection) {
		t.Fatalf("expected connection error, got %v", terminal.Err)
	}
	if terminal.AccumulatedText != "Partial answer" {
		t.Fatalf("expected partial text kept, got %q", terminal.AccumulatedText)
	}
	for _, event := range events[:len(events)-1] {
		if event.Terminal() {
			t.Fatalf("expected a single terminal event, got %+v", events)
		}
	}
}

func TestSilentStreamTimesOut(t *testing.T) {
	backend := &stubBackend{script: func(ctx context.Context, req Request, yield func(StreamChunk, error) bool) {
		<-ctx.Done()
		yield(nil, ctx.Err())
	}}
	generator := NewGenerator(backend, WithTimeout(30*time.Millisecond))
	defer generator.Close()

	if err := generator.StartTurn(context.Background(), 4, "hi", nil); err != nil {
		t.Fatalf("expected turn to start, got %v", err)
	}

	events := collectTurn(t, generator, 4)
	if len(events) != 1 || !errors.Is(events[0].Err, ErrGenerationTimeout) {
		t.Fatalf("expected a single timeout event, got %+v", events)
	}
	if errors.Is(events[0].Err, ErrGenerationCanceled) {
		t.Fatalf("expected timeout to be distinct from cancellation")
	}
}

func TestTimeoutResetsOnEveryChunk(t *testing.T) {
	backend := &stubBackend{script: func(ctx context.Context, req Request, yield func(StreamChunk, error) bool) {
		for range 4 {
			time.Sleep(20 * time.Millisecond)
			if !yield(contentChunk("."), nil) {
				return
			}
		}
	}}
	generator := NewGenerator(backend, WithTimeout(50*time.Millisecond))
	defer generator.Close()

	if err := generator.StartTurn(context.Background(), 1, "hi", nil); err != nil {
		t.Fatalf("expected turn to start, got %v", err)
	}

	events := collectTurn(t, generator, 1)
	terminal := events[len(events)-1]
	if !terminal.IsFinal || terminal.AccumulatedText != "...." {
		t.Fatalf("expected slow but steady stream to complete, got %+v", terminal)
	}
}

func TestCancelTurnReportsCancellation(t *testing.T) {
	started := make(chan struct{})
	backend := &stubBackend{script: func(ctx context.Context, req Request, yield func(StreamChunk, error) bool) {
		if !yield(contentChunk("Once upon"), nil) {
			return
		}
		close(started)
		<-ctx.Done()
	}}
	generator := NewGenerator(backend)
	defer generator.Close()

	if err := generator.StartTurn(context.Background(), 5, "tell me a story", nil); err != nil {
		t.Fatalf("expected turn to start, got %v", err)
	}
	<-started
	generator.CancelTurn(5)

	events := collectTurn(t, generator, 5)
	terminal := events[len(events)-1]
	if !errors.Is(terminal.Err, ErrGenerationCanceled) {
		t.Fatalf("expected cancellation, got %v", terminal.Err)
	}
	if terminal.AccumulatedText != "Once upon" {
		t.Fatalf("expected partial text on cancellation, got %q", terminal.AccumulatedText)
	}
}

func TestCancelTurnIgnoresOtherTurns(t *testing.T) {
	release := make(chan struct{})
	backend := &stubBackend{script: func(ctx context.Context, req Request, yield func(StreamChunk, error) bool) {
		<-release
		yield(contentChunk("done"), nil)
	}}
	generator := NewGenerator(backend)
	defer generator.Close()

	if err := generator.StartTurn(context.Background(), 2, "hi", nil); err != nil {
		t.Fatalf("expected turn to start, got %v", err)
	}
	generator.CancelTurn(1)
	close(release)

	events := collectTurn(t, generator, 2)
	if terminal := events[len(events)-1]; !terminal.IsFinal {
		t.Fatalf("expected turn 2 unaffected, got %+v", terminal)
	}
}

func TestStartTurnSupersedesActiveTurn(t *testing.T) {
	backend := &stubBackend{
		remoteCancels: make(chan int64, 1),
		script: func(ctx context.Context, req Request, yield func(StreamChunk, error) bool) {
			if req.TurnID == 5 {
				if !yield(contentChunk("Sure, the weather"), nil) {
					return
				}
				<-ctx.Done()
				return
			}
			yield(contentChunk("Okay, stopping."), nil)
		},
	}
	generator := NewGenerator(backend)
	defer generator.Close()

	if err := generator.StartTurn(context.Background(), 5, "what's the weather", nil); err != nil {
		t.Fatalf("expected turn 5 to start, got %v", err)
	}
	first := <-generator.Events()
	if first.TurnID != 5 {
		t.Fatalf("expected first event from turn 5, got %+v", first)
	}

	if err := generator.StartTurn(context.Background(), 6, "actually never mind", nil); err != nil {
		t.Fatalf("expected turn 6 to start, got %v", err)
	}

	old := collectTurn(t, generator, 5)
	if !errors.Is(old[len(old)-1].Err, ErrGenerationCanceled) {
		t.Fatalf("expected turn 5 canceled, got %+v", old)
	}
	next := collectTurn(t, generator, 6)
	if final := next[len(next)-1]; !final.IsFinal || final.AccumulatedText != "Okay, stopping." {
		t.Fatalf("expected turn 6 to complete, got %+v", final)
	}

	select {
	case turnID := <-backend.remoteCancels:
		if turnID != 5 {
			t.Fatalf("expected remote cancel for turn 5, got %d", turnID)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected remote cancel request")
	}
}

func TestRequestMessagesOrder(t *testing.T) {
	req := Request{
		Prompt:       "and now?",
		SystemPrompt: "be brief",
		Context: []Message{
			{Role: RoleUser, Content: "hi"},
			{Role: RoleAssistant, Content: ""},
			{Role: RoleAssistant, Content: "hello"},
		},
	}

	messages := req.Messages()
	expected := []Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
		{Role: RoleUser, Content: "and now?"},
	}
	if len(messages) != len(expected) {
		t.Fatalf("expected %d messages, got %+v", len(expected), messages)
	}
	for i := range expected {
		if messages[i] != expected[i] {
			t.Fatalf("expected message %d to be %+v, got %+v", i, expected[i], messages[i])
		}
	}
}

type stubBackend struct {
	script        func(ctx context.Context, req Request, yield func(StreamChunk, error) bool)
	remoteCancels chan int64

	mu       sync.Mutex
	requests []Request
}

func (b *stubBackend) PromptWithStream(_ context.Context, req Request) Stream {
	b.mu.Lock()
	b.requests = append(b.requests, req)
	b.mu.Unlock()
	return stubStream{req: req, script: b.script}
}

func (b *stubBackend) CancelTurn(_ context.Context, turnID int64) error {
	if b.remoteCancels != nil {
		b.remoteCancels <- turnID
	}
	return nil
}

func (b *stubBackend) lastRequest() Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.requests) == 0 {
		return Request{}
	}
	return b.requests[len(b.requests)-1]
}

type stubStream struct {
	req    Request
	script func(ctx context.Context, req Request, yield func(StreamChunk, error) bool)
}

func (s stubStream) Chunks(ctx context.Context) func(func(StreamChunk, error) bool) {
	return func(yield func(StreamChunk, error) bool) {
		if s.script != nil {
			s.script(ctx, s.req, yield)
		}
	}
}

type contentChunk string

func (c contentChunk) FinishReason() *string { return nil }
func (c contentChunk) Content() string       { return string(c) }

type accumulatedChunk string

func (c accumulatedChunk) FinishReason() *string   { return nil }
func (c accumulatedChunk) AccumulatedText() string { return string(c) }

// collectTurn reads events until turnID's terminal event and fails if an
// event from another turn shows up in between.
func collectTurn(t *testing.T, generator *Generator, turnID int64) []ChunkEvent {
	t.Helper()

	var events []ChunkEvent
	timeout := time.After(2 * time.Second)
	for {
		select {
		case event, ok := <-generator.Events():
			if !ok {
				t.Fatalf("events closed before turn %d finished", turnID)
			}
			if event.TurnID != turnID {
				t.Fatalf("expected events from turn %d, got %+v", turnID, event)
			}
			events = append(events, event)
			if event.Terminal() {
				return events
			}
		case <-timeout:
			t.Fatalf("timed out waiting for turn %d, got %+v", turnID, events)
			return nil
		}
	}
}
