package gemini

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/koscakluka/ema-voice/core/llms"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/genai"
)

const (
	scopeName = "github.com/koscakluka/ema-voice/core/llms/gemini"

	DefaultModel = "gemini-2.5-flash"
)

var tracer = otel.Tracer(scopeName)

// Client streams responses through the Google Gen AI SDK. The SDK client is
// created on first use.
type Client struct {
	apiKey string
	model  string

	once    sync.Once
	sdk     *genai.Client
	initErr error
}

type ClientOption func(*Client)

func WithModel(model string) ClientOption {
	return func(c *Client) {
		c.model = model
	}
}

// NewClient falls back to GEMINI_API_KEY when apiKey is empty.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	c := &Client{apiKey: apiKey, model: DefaultModel}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) client(ctx context.Context) (*genai.Client, error) {
	c.once.Do(func() {
		if c.apiKey == "" {
			c.initErr = fmt.Errorf("gemini api key not set")
			return
		}
		c.sdk, c.initErr = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:     c.apiKey,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		})
	})
	return c.sdk, c.initErr
}

func (c *Client) PromptWithStream(_ context.Context, req llms.Request) llms.Stream {
	model := c.model
	if req.ModelID != "" {
		model = req.ModelID
	}
	return &stream{client: c, model: model, req: req}
}

func toContents(req llms.Request) ([]*genai.Content, *genai.GenerateContentConfig) {
	var config *genai.GenerateContentConfig
	if req.SystemPrompt != "" {
		config = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(req.SystemPrompt, genai.RoleUser),
		}
	}

	contents := make([]*genai.Content, 0, len(req.Context)+1)
	for _, msg := range req.Context {
		if msg.Content == "" {
			continue
		}
		role := genai.Role(genai.RoleUser)
		if msg.Role == llms.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}
	contents = append(contents, genai.NewContentFromText(req.Prompt, genai.RoleUser))
	return contents, config
}

type stream struct {
	client *Client
	model  string
	req    llms.Request
}

func (s *stream) Chunks(ctx context.Context) func(func(llms.StreamChunk, error) bool) {
	return func(yield func(llms.StreamChunk, error) bool) {
		ctx, span := tracer.Start(ctx, "prompt gemini stream")
		defer span.End()
		span.SetAttributes(attribute.String("request.model", s.model))

		sdk, err := s.client.client(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			yield(nil, fmt.Errorf("failed to create gemini client: %w", err))
			return
		}

		contents, config := toContents(s.req)
		for resp, err := range sdk.Models.GenerateContentStream(ctx, s.model, contents, config) {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				yield(nil, fmt.Errorf("failed to stream gemini response: %w", err))
				return
			}

			var finishReason *string
			if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != "" {
				reason := string(resp.Candidates[0].FinishReason)
				finishReason = &reason
			}
			if text := resp.Text(); text != "" {
				if !yield(contentChunk{content: text, finishReason: finishReason}, nil) {
					return
				}
			}
			if usage := resp.UsageMetadata; usage != nil && finishReason != nil {
				if !yield(usageChunk{finishReason: finishReason, usage: llms.Usage{
					InputTokens:  int(usage.PromptTokenCount),
					OutputTokens: int(usage.CandidatesTokenCount),
					TotalTokens:  int(usage.TotalTokenCount),
				}}, nil) {
					return
				}
			}
		}
	}
}

type contentChunk struct {
	finishReason *string
	content      string
}

func (c contentChunk) FinishReason() *string { return c.finishReason }
func (c contentChunk) Content() string       { return c.content }

type usageChunk struct {
	finishReason *string
	usage        llms.Usage
}

func (c usageChunk) FinishReason() *string { return c.finishReason }
func (c usageChunk) Usage() llms.Usage     { return c.usage }
