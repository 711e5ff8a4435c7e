package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/koscakluka/ema-voice/core/events"
)

func TestPlainSubmitsPromptsAndCommands(t *testing.T) {
	control := &controllerStub{}
	in := strings.NewReader("What time is it?\n\n/listen\n/mute\n/stop\n/quit\nnever sent\n")
	var out bytes.Buffer

	if err := runPlain(context.Background(), control, make(chan events.Event), in, &out, false); err != nil {
		t.Fatalf("expected clean exit, got %v", err)
	}

	if prompts := control.Prompts(); len(prompts) != 1 || prompts[0] != "What time is it?" {
		t.Fatalf("expected one prompt, got %v", prompts)
	}
	if control.listens != 1 || control.stops != 1 {
		t.Fatalf("expected one listen and one stop, got %d and %d", control.listens, control.stops)
	}
	if !control.IsSpeaking() {
		t.Fatalf("expected /mute to toggle speaking on")
	}
}

func TestPlainReportsErrors(t *testing.T) {
	control := &controllerStub{listenErr: errors.New("no capture device")}
	var out bytes.Buffer

	if err := runPlain(context.Background(), control, make(chan events.Event), strings.NewReader("/listen\n"), &out, false); err != nil {
		t.Fatalf("expected clean exit, got %v", err)
	}
	if !strings.Contains(out.String(), "error: no capture device") {
		t.Fatalf("expected error in output, got:\n%s", out.String())
	}
}

func TestPlainStopsWhenStreamCloses(t *testing.T) {
	stream := make(chan events.Event, 2)
	stream <- events.NewAssistantResponseFinal(2, "Four.")
	close(stream)

	reader, writer := io.Pipe()
	defer writer.Close()

	var out bytes.Buffer
	if err := runPlain(context.Background(), &controllerStub{}, stream, reader, &out, false); err != nil {
		t.Fatalf("expected clean exit, got %v", err)
	}
	if !strings.Contains(out.String(), "ema (2): Four.") {
		t.Fatalf("expected response line, got:\n%s", out.String())
	}
}

func TestDescribeEvent(t *testing.T) {
	tests := []struct {
		event   events.Event
		verbose bool
		want    string
	}{
		{events.NewStateChanged("idle", "listening"), false, "[state] idle -> listening"},
		{events.NewUserTranscriptFinal(3, "hello"), false, "you (3): hello"},
		{events.NewTurnCancelled(3, "barge_in", "Hel"), false, "[turn 3] cancelled (barge_in): Hel"},
		{events.NewAssistantResponseUpdated(3, "partial"), false, ""},
		{events.NewAssistantResponseUpdated(3, "partial"), true, "[response 3] partial"},
	}

	for _, tt := range tests {
		if got := describeEvent(tt.event, tt.verbose); got != tt.want {
			t.Errorf("describeEvent(%T) = %q, want %q", tt.event, got, tt.want)
		}
	}
}
