package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/texttospeech"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const scopeName = "github.com/koscakluka/ema-voice/core/texttospeech/remote"

var tracer = otel.Tracer(scopeName)

// Client posts text to an HTTP synthesis service. The service may answer
// with a WAV file or with raw PCM16 at the configured sample rate.
type Client struct {
	url        string
	voice      string
	sampleRate int
	httpClient *http.Client
}

type ClientOption func(*Client)

func WithVoice(voice string) ClientOption {
	return func(c *Client) {
		c.voice = voice
	}
}

// WithSampleRate sets the rate assumed for raw PCM responses.
func WithSampleRate(rate int) ClientOption {
	return func(c *Client) {
		c.sampleRate = rate
	}
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

func NewClient(url string, opts ...ClientOption) *Client {
	c := &Client{
		url:        url,
		sampleRate: audio.DefaultSampleRate,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type synthesizeRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
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

	payload, err := json.Marshal(synthesizeRequest{Text: text, Voice: c.voice})
	if err != nil {
		return fail(fmt.Errorf("failed to marshal request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fail(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav, audio/L16")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fail(fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail(fmt.Errorf("failed to read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return fail(fmt.Errorf("service returned %s: %s", resp.Status, strings.TrimSpace(string(body))))
	}

	if audio.IsWAV(body) {
		pcm, encoding, err := audio.DecodeWAV(body)
		if err != nil {
			return fail(err)
		}
		return texttospeech.Speech{Audio: pcm, Encoding: encoding}, nil
	}
	if len(body)%2 != 0 {
		body = body[:len(body)-1]
	}
	return texttospeech.Speech{
		Audio:    body,
		Encoding: audio.EncodingInfo{SampleRate: c.sampleRate, Format: audio.EncodingLinear16},
	}, nil
}
