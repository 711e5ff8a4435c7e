package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/koscakluka/ema-voice/core/llms"
)

func TestGenerateStreamsAccumulatedText(t *testing.T) {
	var received generateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != generatePath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&received)

		for _, line := range []string{
			`{"turnId":3,"accumulatedText":"Two","isFinal":false}`,
			`{"turnId":2,"accumulatedText":"stale","isFinal":false}`,
			`{"turnId":3,"accumulatedText":"Two plus","isFinal":false}`,
			`{"turnId":3,"accumulatedText":"Two plus two is four.","isFinal":true}`,
		} {
			fmt.Fprintln(w, line)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL)
	stream := client.PromptWithStream(context.Background(), llms.Request{
		TurnID:  3,
		Prompt:  "What is two plus two",
		ModelID: "gemma3n",
		Context: []llms.Message{{Role: llms.RoleUser, Content: "hi"}, {Role: llms.RoleAssistant, Content: "hello"}},
	})

	var texts []string
	final := false
	for chunk, err := range stream.Chunks(context.Background()) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		c := chunk.(llms.StreamAccumulatedChunk)
		texts = append(texts, c.AccumulatedText())
		final = c.FinishReason() != nil
	}

	expected := []string{"Two", "Two plus", "Two plus two is four."}
	if len(texts) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, texts)
	}
	for i := range expected {
		if texts[i] != expected[i] {
			t.Fatalf("expected %v, got %v", expected, texts)
		}
	}
	if !final {
		t.Fatalf("expected last chunk marked final")
	}
	if received.TurnID != 3 || received.ModelID != "gemma3n" || len(received.PriorContext) != 2 {
		t.Fatalf("unexpected request %+v", received)
	}
}

func TestGenerateSurfacesServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"turnId":1,"accumulatedText":"Partial","isFinal":false}`)
		fmt.Fprintln(w, `{"turnId":1,"accumulatedText":"Partial","isFinal":false,"error":"model crashed"}`)
	}))
	defer server.Close()

	generator := llms.NewGenerator(NewClient(server.URL))
	defer generator.Close()
	if err := generator.StartTurn(context.Background(), 1, "hi", nil); err != nil {
		t.Fatalf("expected turn to start, got %v", err)
	}

	terminal := waitForTerminal(t, generator, 1)
	if !errors.Is(terminal.Err, llms.ErrConnection) {
		t.Fatalf("expected connection error kind, got %v", terminal.Err)
	}
	if terminal.AccumulatedText != "Partial" {
		t.Fatalf("expected partial text preserved, got %q", terminal.AccumulatedText)
	}
}

func TestSupersededTurnIsCanceledRemotely(t *testing.T) {
	cancels := make(chan int64, 2)
	mux := http.NewServeMux()
	mux.HandleFunc(generatePath, func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		flusher := w.(http.Flusher)
		if req.TurnID == 5 {
			fmt.Fprintln(w, `{"turnId":5,"accumulatedText":"Sure, the","isFinal":false}`)
			flusher.Flush()
			<-r.Context().Done()
			return
		}
		fmt.Fprintf(w, `{"turnId":%d,"accumulatedText":"Okay.","isFinal":true}`+"\n", req.TurnID)
	})
	mux.HandleFunc(cancelPath, func(w http.ResponseWriter, r *http.Request) {
		var req cancelRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		cancels <- req.TurnID
		w.WriteHeader(http.StatusNoContent)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	generator := llms.NewGenerator(NewClient(server.URL))
	defer generator.Close()

	if err := generator.StartTurn(context.Background(), 5, "what's the weather", nil); err != nil {
		t.Fatalf("expected turn 5 to start, got %v", err)
	}
	if first := <-generator.Events(); first.TurnID != 5 || first.AccumulatedText != "Sure, the" {
		t.Fatalf("unexpected first event %+v", first)
	}

	if err := generator.StartTurn(context.Background(), 6, "stop", nil); err != nil {
		t.Fatalf("expected turn 6 to start, got %v", err)
	}
	if old := waitForTerminal(t, generator, 5); !errors.Is(old.Err, llms.ErrGenerationCanceled) {
		t.Fatalf("expected turn 5 canceled, got %+v", old)
	}
	if next := waitForTerminal(t, generator, 6); !next.IsFinal || next.AccumulatedText != "Okay." {
		t.Fatalf("expected turn 6 final, got %+v", next)
	}

	select {
	case turnID := <-cancels:
		if turnID != 5 {
			t.Fatalf("expected cancel for turn 5, got %d", turnID)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected cancel request for turn 5")
	}
}

func waitForTerminal(t *testing.T, generator *llms.Generator, turnID int64) llms.ChunkEvent {
	t.Helper()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case event := <-generator.Events():
			if event.TurnID != turnID {
				t.Fatalf("expected events for turn %d, got %+v", turnID, event)
			}
			if event.Terminal() {
				return event
			}
		case <-timeout:
			t.Fatalf("timed out waiting for turn %d", turnID)
			return llms.ChunkEvent{}
		}
	}
}
