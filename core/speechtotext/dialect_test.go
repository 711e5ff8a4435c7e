package speechtotext

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestNativeDecoderMapsMessageTypes(t *testing.T) {
	decoder := NativeDialect{}.NewDecoder()

	cases := []struct {
		payload string
		check   func([]Event) bool
	}{
		{`{"type":"partial","text":"what is"}`, func(e []Event) bool { return len(e) == 1 && e[0] == Partial{Text: "what is"} }},
		{`{"type":"final","text":"what is up"}`, func(e []Event) bool { return len(e) == 1 && e[0] == Final{Text: "what is up"} }},
		{`{"type":"heartbeat","timestamp":1}`, func(e []Event) bool { return len(e) == 1 && e[0] == Heartbeat{} }},
		{`{"type":"pong"}`, func(e []Event) bool { return len(e) == 1 && e[0] == Heartbeat{} }},
		{`{"type":"connected","connection_id":"abc"}`, func(e []Event) bool { return len(e) == 0 }},
		{`{"type":"something_new"}`, func(e []Event) bool { return len(e) == 0 }},
	}

	for _, tc := range cases {
		events, err := decoder.Decode([]byte(tc.payload))
		if err != nil {
			t.Fatalf("expected %s to decode, got %v", tc.payload, err)
		}
		if !tc.check(events) {
			t.Fatalf("unexpected events for %s: %#v", tc.payload, events)
		}
	}
}

func TestNativeDecoderServiceError(t *testing.T) {
	events, err := NativeDialect{}.NewDecoder().Decode([]byte(`{"type":"error","message":"model crashed"}`))
	if err != nil {
		t.Fatalf("expected service error to decode, got %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
	errEvent, ok := events[0].(Error)
	if !ok || !errors.Is(errEvent, ErrServiceReported) || errEvent.Terminal {
		t.Fatalf("expected non-terminal service error, got %#v", events[0])
	}
}

func TestNativeDecoderRejectsMalformedMessages(t *testing.T) {
	decoder := NativeDialect{}.NewDecoder()
	for _, payload := range []string{`{"type":`, `{"text":"no type"}`} {
		if _, err := decoder.Decode([]byte(payload)); !errors.Is(err, ErrProtocol) {
			t.Fatalf("expected ErrProtocol for %s, got %v", payload, err)
		}
	}
}

func TestNativeControlMessages(t *testing.T) {
	msg, err := NativeDialect{}.ControlMessage(ActionStop)
	if err != nil {
		t.Fatalf("expected control message, got %v", err)
	}
	var decoded map[string]string
	if err := json.Unmarshal(msg, &decoded); err != nil {
		t.Fatalf("expected JSON control message, got %v", err)
	}
	if decoded["action"] != "stop" {
		t.Fatalf("expected stop action, got %q", decoded["action"])
	}
}
