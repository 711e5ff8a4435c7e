package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/texttospeech"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	scopeName = "github.com/koscakluka/ema-voice/core/texttospeech/deepgram"

	DefaultSpeakURL = "wss://api.deepgram.com/v1/speak"
)

var (
	tracer = otel.Tracer(scopeName)
	logger = otelslog.NewLogger(scopeName)
)

type Voice string

const (
	VoiceAsteria Voice = "aura-2-asteria-en"
	VoiceLuna    Voice = "aura-2-luna-en"
	VoiceOrion   Voice = "aura-2-orion-en"
	VoiceArcas   Voice = "aura-2-arcas-en"
	VoiceThalia  Voice = "aura-2-thalia-en"
	VoiceApollo  Voice = "aura-2-apollo-en"

	DefaultVoice = VoiceThalia
)

func AvailableVoices() []Voice {
	return []Voice{VoiceAsteria, VoiceLuna, VoiceOrion, VoiceArcas, VoiceThalia, VoiceApollo}
}

// Client synthesizes speech over one Deepgram speak socket. Requests are
// serialized on the socket: each sends Speak and Flush and collects audio
// until Deepgram confirms the flush.
type Client struct {
	apiKey   string
	speakURL string
	encoding audio.EncodingInfo
	dialer   *websocket.Dialer

	voiceMu sync.RWMutex
	voice   Voice

	// mu serializes requests and guards conn.
	mu   sync.Mutex
	conn *websocket.Conn
}

type ClientOption func(*Client)

func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

func WithVoice(voice Voice) ClientOption {
	return func(c *Client) {
		c.voice = voice
	}
}

func WithSpeakURL(speakURL string) ClientOption {
	return func(c *Client) {
		c.speakURL = speakURL
	}
}

func WithEncodingInfo(encoding audio.EncodingInfo) ClientOption {
	return func(c *Client) {
		if encoding.IsZero() {
			return
		}
		c.encoding = encoding
	}
}

func NewClient(opts ...ClientOption) (*Client, error) {
	c := &Client{
		apiKey:   os.Getenv("DEEPGRAM_API_KEY"),
		speakURL: DefaultSpeakURL,
		encoding: audio.EncodingInfo{SampleRate: 24000, Format: audio.EncodingLinear16},
		dialer:   websocket.DefaultDialer,
		voice:    DefaultVoice,
	}
	for _, opt := range opts {
		opt(c)
	}
	if !slices.Contains(AvailableVoices(), c.voice) {
		return nil, fmt.Errorf("invalid voice %q", c.voice)
	}
	return c, nil
}

func (c *Client) Voices() []string {
	var voices []string
	for _, voice := range AvailableVoices() {
		voices = append(voices, string(voice))
	}
	return voices
}

// SetVoice takes effect on the next connection.
func (c *Client) SetVoice(voice string) error {
	if !slices.Contains(AvailableVoices(), Voice(voice)) {
		return fmt.Errorf("invalid voice %q", voice)
	}
	c.voiceMu.Lock()
	changed := c.voice != Voice(voice)
	c.voice = Voice(voice)
	c.voiceMu.Unlock()

	if changed {
		c.mu.Lock()
		c.dropConnection()
		c.mu.Unlock()
	}
	return nil
}

func (c *Client) Synthesize(ctx context.Context, text string) (texttospeech.Speech, error) {
	ctx, span := tracer.Start(ctx, "synthesize speech")
	defer span.End()
	span.SetAttributes(attribute.Int("text.length", len(text)))

	fail := func(err error) (texttospeech.Speech, error) {
		err = fmt.Errorf("%w: %w", texttospeech.ErrSynthesis, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return texttospeech.Speech{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	conn, err := c.connection(ctx)
	if err != nil {
		return fail(err)
	}

	// Unblock the read below when ctx ends mid request.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	if err := conn.WriteJSON(speakMessage{Type: "Speak", Text: text}); err != nil {
		c.dropConnection()
		return fail(fmt.Errorf("failed to send text: %w", err))
	}
	if err := conn.WriteJSON(controlMessage{Type: "Flush"}); err != nil {
		c.dropConnection()
		return fail(fmt.Errorf("failed to flush: %w", err))
	}

	var speech []byte
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			c.dropConnection()
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fail(ctxErr)
			}
			return fail(fmt.Errorf("failed to read speech: %w", err))
		}

		switch msgType {
		case websocket.BinaryMessage:
			speech = append(speech, msg...)
		case websocket.TextMessage:
			var parsed struct {
				Type        string `json:"type"`
				Description string `json:"description"`
			}
			if err := json.Unmarshal(msg, &parsed); err != nil {
				logger.Debug("ignoring malformed speak message", "error", err)
				continue
			}
			switch parsed.Type {
			case "Flushed":
				span.SetAttributes(attribute.Int("speech.bytes", len(speech)))
				return texttospeech.Speech{Audio: speech, Encoding: c.encoding}, nil
			case "Error":
				c.dropConnection()
				return fail(errors.New(parsed.Description))
			case "Warning":
				logger.Warn("deepgram speak warning", "description", parsed.Description)
			}
		}
	}
}

// Close sends Close and drops the socket.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.WriteJSON(controlMessage{Type: "Close"})
	c.dropConnection()
	return err
}

// connection must be called with c.mu held.
func (c *Client) connection(ctx context.Context) (*websocket.Conn, error) {
	if c.conn != nil {
		return c.conn, nil
	}
	if c.apiKey == "" {
		return nil, fmt.Errorf("deepgram api key not found")
	}

	c.voiceMu.RLock()
	voice := c.voice
	c.voiceMu.RUnlock()

	speakURL, err := url.Parse(c.speakURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse speak url: %w", err)
	}
	query := speakURL.Query()
	query.Set("encoding", c.encoding.Format.Name())
	query.Set("sample_rate", strconv.Itoa(c.encoding.SampleRate))
	query.Set("model", string(voice))
	query.Set("container", "none")
	speakURL.RawQuery = query.Encode()

	conn, _, err := c.dialer.DialContext(ctx, speakURL.String(),
		http.Header{"Authorization": {"token " + c.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}
	c.conn = conn
	return conn, nil
}

// dropConnection must be called with c.mu held.
func (c *Client) dropConnection() {
	if c.conn == nil {
		return
	}
	_ = c.conn.Close()
	c.conn = nil
}

type speakMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type controlMessage struct {
	Type string `json:"type"`
}
