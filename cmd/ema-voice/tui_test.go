package main

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/koscakluka/ema-voice/core/events"
)

type controllerStub struct {
	mu        sync.Mutex
	prompts   []string
	listenErr error
	listens   int
	stops     int
	speaking  bool
}

func (c *controllerStub) SubmitPrompt(prompt string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, prompt)
	return nil
}

func (c *controllerStub) StartListening(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listens++
	return c.listenErr
}

func (c *controllerStub) StopListening() error { return nil }

func (c *controllerStub) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
	return nil
}

func (c *controllerStub) SetSpeaking(speaking bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speaking = speaking
	return nil
}

func (c *controllerStub) IsSpeaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speaking
}

func (c *controllerStub) Prompts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.prompts...)
}

type voiceStub struct {
	voices []string
	set    []string
}

func (v *voiceStub) Voices() []string { return v.voices }

func (v *voiceStub) SetVoice(voice string) error {
	v.set = append(v.set, voice)
	return nil
}

func update(t *testing.T, m model, msg tea.Msg) (model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	updated, ok := next.(model)
	if !ok {
		t.Fatalf("expected model, got %T", next)
	}
	return updated, cmd
}

func TestModelRendersConversation(t *testing.T) {
	m := newModel(context.Background(), &controllerStub{}, nil, make(chan events.Event))

	for _, event := range []events.Event{
		events.NewUserPromptSubmitted(1, "What is two plus two?"),
		events.NewAssistantResponseUpdated(1, "Two plus"),
		events.NewAssistantResponseFinal(1, "Two plus two is four."),
		events.NewStateChanged("generating", "speaking"),
	} {
		m, _ = update(t, m, eventMsg{event: event})
	}

	if len(m.entries) != 2 {
		t.Fatalf("expected a user and an assistant entry, got %+v", m.entries)
	}
	if m.entries[1].text != "Two plus two is four." {
		t.Fatalf("expected final response to replace the partial one, got %q", m.entries[1].text)
	}
	if m.state != "speaking" {
		t.Fatalf("expected state from events, got %q", m.state)
	}
	if view := m.transcript(); !strings.Contains(view, "Two plus two is four.") {
		t.Fatalf("expected response in transcript, got:\n%s", view)
	}
}

func TestModelShowsFailureWithPartialText(t *testing.T) {
	m := newModel(context.Background(), &controllerStub{}, nil, make(chan events.Event))

	m, _ = update(t, m, eventMsg{event: events.NewAssistantResponseUpdated(4, "The answer is")})
	m, _ = update(t, m, eventMsg{event: events.NewTurnFailed(4, "generation_timeout", "The response timed out.", "The answer is", errors.New("timeout"))})

	if len(m.entries) != 1 {
		t.Fatalf("expected the failure to replace the in-progress entry, got %+v", m.entries)
	}
	view := m.transcript()
	for _, want := range []string{"The answer is", "The response timed out.", "generation_timeout"} {
		if !strings.Contains(view, want) {
			t.Fatalf("expected %q in transcript, got:\n%s", want, view)
		}
	}
}

func TestEnterSubmitsPrompt(t *testing.T) {
	control := &controllerStub{}
	m := newModel(context.Background(), control, nil, make(chan events.Event))
	m.input.SetValue("  hello there ")

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatalf("expected a command for the prompt")
	}
	if msg, ok := cmd().(actionMsg); !ok || msg.err != nil {
		t.Fatalf("expected successful action, got %#v", msg)
	}

	if prompts := control.Prompts(); len(prompts) != 1 || prompts[0] != "hello there" {
		t.Fatalf("expected trimmed prompt, got %v", prompts)
	}
	if m.input.Value() != "" {
		t.Fatalf("expected input to be cleared, got %q", m.input.Value())
	}
}

func TestEnterIgnoresBlankInput(t *testing.T) {
	control := &controllerStub{}
	m := newModel(context.Background(), control, nil, make(chan events.Event))
	m.input.SetValue("   ")

	if _, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter}); cmd != nil {
		t.Fatalf("expected no command for blank input")
	}
	if len(control.Prompts()) != 0 {
		t.Fatalf("expected no prompt to be submitted")
	}
}

func TestFailedListeningResetsMicIndicator(t *testing.T) {
	control := &controllerStub{listenErr: errors.New("microphone permission denied")}
	m := newModel(context.Background(), control, nil, make(chan events.Event))

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlR})
	if !m.listening {
		t.Fatalf("expected listening to be requested")
	}
	m, _ = update(t, m, cmd())

	if m.listening {
		t.Fatalf("expected listening to be reset after failure")
	}
	if !m.statusErr || !strings.Contains(m.status, "permission denied") {
		t.Fatalf("expected error status, got %q", m.status)
	}
}

func TestVoiceCycles(t *testing.T) {
	voices := &voiceStub{voices: []string{"asteria", "orion"}}
	m := newModel(context.Background(), &controllerStub{}, voices, make(chan events.Event))

	for range 3 {
		m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlO})
	}

	want := []string{"asteria", "orion", "asteria"}
	if strings.Join(voices.set, ",") != strings.Join(want, ",") {
		t.Fatalf("expected voices %v, got %v", want, voices.set)
	}
}

func TestVoiceCycleWithoutSelector(t *testing.T) {
	m := newModel(context.Background(), &controllerStub{}, nil, make(chan events.Event))

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlO})
	if !m.statusErr {
		t.Fatalf("expected an error status without voice selection")
	}
}

func TestClosedStreamQuits(t *testing.T) {
	m := newModel(context.Background(), &controllerStub{}, nil, make(chan events.Event))

	_, cmd := update(t, m, streamEndMsg{})
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected quit message")
	}
}
