package deepgram

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/speechtotext"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const (
	scopeName = "github.com/koscakluka/ema-voice/core/speechtotext/deepgram"

	DefaultListenURL = "wss://api.deepgram.com/v1/listen"
	DefaultModel     = "nova-3"
)

var logger = otelslog.NewLogger(scopeName)

// Dialect speaks the Deepgram live transcription protocol. Finals are
// accumulated per utterance and only released when Deepgram marks the end
// of speech, so one Final carries the whole utterance.
type Dialect struct {
	APIKey         string
	Model          string
	Language       string
	UtteranceEndMs int
	EndpointingMs  int
}

type DialectOption func(*Dialect)

func WithAPIKey(key string) DialectOption {
	return func(d *Dialect) {
		d.APIKey = key
	}
}

func WithModel(model string) DialectOption {
	return func(d *Dialect) {
		d.Model = model
	}
}

func WithLanguage(language string) DialectOption {
	return func(d *Dialect) {
		d.Language = language
	}
}

func NewDialect(opts ...DialectOption) *Dialect {
	d := &Dialect{
		Model:          DefaultModel,
		Language:       "en-US",
		UtteranceEndMs: 1000,
		EndpointingMs:  300,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dialect) Name() string { return "deepgram" }

func (d *Dialect) Endpoint(base string, encoding audio.EncodingInfo) (string, http.Header, error) {
	apiKey := d.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("DEEPGRAM_API_KEY")
	}
	if apiKey == "" {
		return "", nil, fmt.Errorf("deepgram api key not found")
	}

	listenEncoding, err := toListenEncoding(encoding)
	if err != nil {
		return "", nil, fmt.Errorf("invalid encoding: %w", err)
	}

	if base == "" {
		base = DefaultListenURL
	}
	listenURL, err := url.Parse(base)
	if err != nil {
		return "", nil, fmt.Errorf("failed to parse listen url: %w", err)
	}

	query := listenURL.Query()
	query.Set("encoding", listenEncoding.Format)
	query.Set("sample_rate", strconv.Itoa(listenEncoding.SampleRate))
	query.Set("channels", "1")
	query.Set("model", d.Model)
	query.Set("language", d.Language)
	query.Set("smart_format", "true")
	query.Set("interim_results", "true")
	query.Set("utterance_end_ms", strconv.Itoa(d.UtteranceEndMs))
	query.Set("endpointing", strconv.Itoa(d.EndpointingMs))
	query.Set("vad_events", "true")
	listenURL.RawQuery = query.Encode()

	return listenURL.String(), http.Header{"Authorization": {"Token " + apiKey}}, nil
}

func (d *Dialect) ControlMessage(action speechtotext.ControlAction) ([]byte, error) {
	var messageType string
	switch action {
	case speechtotext.ActionPing:
		messageType = "KeepAlive"
	case speechtotext.ActionStop:
		messageType = string(api.TypeCloseStreamResponse)
	default:
		return nil, fmt.Errorf("unsupported control action %q", action)
	}

	return json.Marshal(struct {
		Type string `json:"type"`
	}{Type: messageType})
}

func (d *Dialect) NewDecoder() speechtotext.Decoder { return &decoder{} }

// Deepgram stays quiet between utterances, so silence is not a sign of a
// dead connection.
func (d *Dialect) ServerHeartbeats() bool { return false }

type decoder struct {
	accumulated    string
	unendedSegment bool
}

func (d *decoder) Decode(payload []byte) ([]speechtotext.Event, error) {
	var header struct {
		Type        string `json:"type"`
		Description string `json:"description"`
		Message     string `json:"message"`
	}
	if err := json.Unmarshal(payload, &header); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal deepgram message: %w", speechtotext.ErrProtocol, err)
	}

	switch api.TypeResponse(header.Type) {
	case api.TypeMessageResponse:
		var msg api.MessageResponse
		if err := json.Unmarshal(payload, &msg); err != nil {
			return nil, fmt.Errorf("%w: failed to unmarshal deepgram results: %w", speechtotext.ErrProtocol, err)
		}
		return d.onResults(msg), nil

	case api.TypeUtteranceEndResponse:
		if d.unendedSegment {
			return d.endUtterance(), nil
		}
		return nil, nil

	case api.TypeSpeechStartedResponse:
		d.unendedSegment = true
		return nil, nil

	case "Error":
		message := header.Description
		if message == "" {
			message = header.Message
		}
		return []speechtotext.Event{speechtotext.Error{
			Err: fmt.Errorf("%w: %s", speechtotext.ErrServiceReported, message),
		}}, nil

	case "":
		return nil, fmt.Errorf("%w: message without type", speechtotext.ErrProtocol)

	default:
		logger.Debug("ignoring deepgram message", "type", header.Type)
		return nil, nil
	}
}

func (d *decoder) onResults(msg api.MessageResponse) []speechtotext.Event {
	transcript := ""
	if len(msg.Channel.Alternatives) > 0 {
		transcript = strings.TrimSpace(msg.Channel.Alternatives[0].Transcript)
	}

	if !msg.IsFinal {
		if transcript == "" {
			return nil
		}
		return []speechtotext.Event{speechtotext.Partial{Text: joinTranscript(d.accumulated, transcript)}}
	}

	var events []speechtotext.Event
	if transcript != "" {
		d.accumulated = joinTranscript(d.accumulated, transcript)
		d.unendedSegment = true
		events = append(events, speechtotext.Partial{Text: d.accumulated})
	}
	if msg.SpeechFinal && d.unendedSegment {
		events = append(events, d.endUtterance()...)
	}
	return events
}

func (d *decoder) endUtterance() []speechtotext.Event {
	d.unendedSegment = false
	text := strings.TrimSpace(d.accumulated)
	d.accumulated = ""
	return []speechtotext.Event{speechtotext.Final{Text: text}}
}

func joinTranscript(accumulated, next string) string {
	if accumulated == "" {
		return next
	}
	return accumulated + " " + next
}
