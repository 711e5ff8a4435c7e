package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/koscakluka/ema-voice/core/llms"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	scopeName = "github.com/koscakluka/ema-voice/core/llms/ollama"

	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "gemma3n"
)

var (
	tracer = otel.Tracer(scopeName)
	logger = otelslog.NewLogger(scopeName)
)

// Client streams chat responses from a local Ollama server.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

type ClientOption func(*Client)

func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

func WithModel(model string) ClientOption {
	return func(c *Client) {
		c.model = model
	}
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		model:      DefaultModel,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) PromptWithStream(_ context.Context, req llms.Request) llms.Stream {
	model := c.model
	if req.ModelID != "" {
		model = req.ModelID
	}

	messages := make([]chatMessage, 0, len(req.Context)+2)
	for _, msg := range req.Messages() {
		messages = append(messages, chatMessage{Role: string(msg.Role), Content: msg.Content})
	}

	return &stream{
		url:        c.baseURL + "/api/chat",
		httpClient: c.httpClient,
		body:       chatRequest{Model: model, Messages: messages, Stream: true},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatResponse struct {
	Message         *chatMessage `json:"message,omitempty"`
	Done            bool         `json:"done"`
	DoneReason      string       `json:"done_reason,omitempty"`
	PromptEvalCount int          `json:"prompt_eval_count,omitempty"`
	EvalCount       int          `json:"eval_count,omitempty"`
	TotalDuration   int64        `json:"total_duration,omitempty"`
	Error           string       `json:"error,omitempty"`
}

type stream struct {
	url        string
	httpClient *http.Client
	body       chatRequest
}

func (s *stream) Chunks(ctx context.Context) func(func(llms.StreamChunk, error) bool) {
	return func(yield func(llms.StreamChunk, error) bool) {
		ctx, span := tracer.Start(ctx, "prompt ollama stream")
		defer span.End()
		span.SetAttributes(attribute.String("request.model", s.body.Model))

		fail := func(err error) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			yield(nil, err)
		}

		payload, err := json.Marshal(s.body)
		if err != nil {
			fail(fmt.Errorf("failed to marshal chat request: %w", err))
			return
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
		if err != nil {
			fail(fmt.Errorf("failed to create chat request: %w", err))
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			fail(fmt.Errorf("failed to reach ollama: %w", err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			fail(fmt.Errorf("ollama returned %s: %s", resp.Status, strings.TrimSpace(string(body))))
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}

			var msg chatResponse
			if err := json.Unmarshal(line, &msg); err != nil {
				fail(fmt.Errorf("failed to unmarshal chat chunk: %w", err))
				return
			}
			if msg.Error != "" {
				fail(fmt.Errorf("ollama reported: %s", msg.Error))
				return
			}

			var finishReason *string
			if msg.Done {
				reason := msg.DoneReason
				finishReason = &reason
			}
			if msg.Message != nil && msg.Message.Content != "" {
				if !yield(contentChunk{content: msg.Message.Content, finishReason: finishReason}, nil) {
					return
				}
			}
			if msg.Done {
				span.SetAttributes(attribute.String("response.done_reason", msg.DoneReason))
				yield(usageChunk{finishReason: finishReason, usage: llms.Usage{
					InputTokens:  msg.PromptEvalCount,
					OutputTokens: msg.EvalCount,
					TotalTokens:  msg.PromptEvalCount + msg.EvalCount,
					TotalTime:    float64(msg.TotalDuration) / 1e9,
				}}, nil)
				return
			}
		}

		if err := scanner.Err(); err != nil {
			fail(fmt.Errorf("failed to read chat stream: %w", err))
			return
		}
		logger.Warn("ollama stream ended without done marker")
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
