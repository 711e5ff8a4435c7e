package piper

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/texttospeech"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	scopeName = "github.com/koscakluka/ema-voice/core/texttospeech/piper"

	DefaultBinary     = "piper"
	DefaultSampleRate = 22050
)

var tracer = otel.Tracer(scopeName)

// Client runs a local Piper binary per request, writing text to its stdin
// and reading raw PCM16 from stdout.
type Client struct {
	binary     string
	sampleRate int
	speaker    int
	modelDir   string

	mu    sync.RWMutex
	model string
}

type ClientOption func(*Client)

func WithBinary(path string) ClientOption {
	return func(c *Client) {
		c.binary = path
	}
}

// WithModelDir lets SetVoice pick any .onnx model found in dir.
func WithModelDir(dir string) ClientOption {
	return func(c *Client) {
		c.modelDir = dir
	}
}

func WithSampleRate(rate int) ClientOption {
	return func(c *Client) {
		c.sampleRate = rate
	}
}

func WithSpeaker(id int) ClientOption {
	return func(c *Client) {
		c.speaker = id
	}
}

func NewClient(model string, opts ...ClientOption) *Client {
	c := &Client{
		binary:     DefaultBinary,
		sampleRate: DefaultSampleRate,
		speaker:    -1,
		model:      model,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.modelDir == "" && model != "" {
		c.modelDir = filepath.Dir(model)
	}
	return c
}

func (c *Client) Voices() []string {
	if c.modelDir == "" {
		return nil
	}
	matches, err := filepath.Glob(filepath.Join(c.modelDir, "*.onnx"))
	if err != nil {
		return nil
	}
	voices := make([]string, 0, len(matches))
	for _, match := range matches {
		voices = append(voices, strings.TrimSuffix(filepath.Base(match), ".onnx"))
	}
	return voices
}

// SetVoice accepts a model path or the name of a model in the model
// directory.
func (c *Client) SetVoice(voice string) error {
	path := voice
	if !strings.HasSuffix(path, ".onnx") {
		path = filepath.Join(c.modelDir, voice+".onnx")
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("voice model not found: %w", err)
	}

	c.mu.Lock()
	c.model = path
	c.mu.Unlock()
	return nil
}

func (c *Client) Synthesize(ctx context.Context, text string) (texttospeech.Speech, error) {
	ctx, span := tracer.Start(ctx, "synthesize speech")
	defer span.End()

	c.mu.RLock()
	model := c.model
	c.mu.RUnlock()
	span.SetAttributes(attribute.String("piper.model", filepath.Base(model)))

	fail := func(err error) (texttospeech.Speech, error) {
		err = fmt.Errorf("%w: %w", texttospeech.ErrSynthesis, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return texttospeech.Speech{}, err
	}

	if model == "" {
		return fail(fmt.Errorf("piper model not set"))
	}

	args := []string{"--model", model, "--output-raw", "--quiet"}
	if c.speaker >= 0 {
		args = append(args, "--speaker", strconv.Itoa(c.speaker))
	}

	cmd := exec.CommandContext(ctx, c.binary, args...)
	cmd.Stdin = strings.NewReader(text + "\n")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fail(ctxErr)
		}
		return fail(fmt.Errorf("piper failed: %w: %s", err, strings.TrimSpace(stderr.String())))
	}

	pcm := stdout.Bytes()
	if len(pcm)%2 != 0 {
		pcm = pcm[:len(pcm)-1]
	}
	return texttospeech.Speech{
		Audio:    pcm,
		Encoding: audio.EncodingInfo{SampleRate: c.sampleRate, Format: audio.EncodingLinear16},
	}, nil
}
