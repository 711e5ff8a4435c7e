package speechtotext

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/koscakluka/ema-voice/core/audio"
)

type ControlAction string

const (
	ActionPing ControlAction = "ping"
	ActionStop ControlAction = "stop"
)

// Dialect adapts the client to one transcription service's wire format.
type Dialect interface {
	Name() string
	Endpoint(base string, encoding audio.EncodingInfo) (string, http.Header, error)
	ControlMessage(action ControlAction) ([]byte, error)
	// NewDecoder is called once per connection, so decoder state never
	// survives a reconnect.
	NewDecoder() Decoder
	// ServerHeartbeats reports whether silence from the server means the
	// connection is stale.
	ServerHeartbeats() bool
}

// Decoder turns one text message into zero or more events. An error means
// the message was malformed.
type Decoder interface {
	Decode(payload []byte) ([]Event, error)
}

// NativeDialect speaks the JSON protocol of the bundled transcription
// server: binary PCM16 up, {type, text, message} down, {action} for
// control.
type NativeDialect struct{}

func (NativeDialect) Name() string { return "native" }

func (NativeDialect) Endpoint(base string, _ audio.EncodingInfo) (string, http.Header, error) {
	if base == "" {
		return "", nil, fmt.Errorf("transcription url not set")
	}
	return base, nil, nil
}

func (NativeDialect) ControlMessage(action ControlAction) ([]byte, error) {
	return json.Marshal(struct {
		Action ControlAction `json:"action"`
	}{Action: action})
}

func (NativeDialect) NewDecoder() Decoder { return nativeDecoder{} }

func (NativeDialect) ServerHeartbeats() bool { return true }

type nativeMessage struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	Message string `json:"message"`
}

type nativeDecoder struct{}

func (nativeDecoder) Decode(payload []byte) ([]Event, error) {
	var msg nativeMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal message: %w", ErrProtocol, err)
	}

	switch msg.Type {
	case "partial":
		return []Event{Partial{Text: msg.Text}}, nil
	case "final":
		return []Event{Final{Text: msg.Text}}, nil
	case "error":
		message := msg.Message
		if message == "" {
			message = msg.Text
		}
		return []Event{Error{Err: fmt.Errorf("%w: %s", ErrServiceReported, message)}}, nil
	case "heartbeat", "pong":
		return []Event{Heartbeat{}}, nil
	case "connected":
		return nil, nil
	case "":
		return nil, fmt.Errorf("%w: message without type", ErrProtocol)
	default:
		logger.Debug("ignoring unknown transcription message", "type", msg.Type)
		return nil, nil
	}
}
