package remote

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
	scopeName = "github.com/koscakluka/ema-voice/core/llms/remote"

	generatePath = "/llm/generate"
	cancelPath   = "/llm/cancel"
)

var (
	tracer = otel.Tracer(scopeName)
	logger = otelslog.NewLogger(scopeName)
)

// Client talks to a generation service that streams accumulated text as
// newline delimited JSON and accepts explicit per-turn cancellation.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type ClientOption func(*Client)

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type contextMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type generateRequest struct {
	TurnID       int64            `json:"turnId"`
	Prompt       string           `json:"prompt"`
	PriorContext []contextMessage `json:"priorContext"`
	ModelID      string           `json:"modelId,omitempty"`
	SystemPrompt string           `json:"systemPrompt,omitempty"`
}

type chunkMessage struct {
	TurnID          int64  `json:"turnId"`
	AccumulatedText string `json:"accumulatedText"`
	IsFinal         bool   `json:"isFinal"`
	Error           string `json:"error,omitempty"`
}

type cancelRequest struct {
	TurnID int64 `json:"turnId"`
}

func (c *Client) PromptWithStream(_ context.Context, req llms.Request) llms.Stream {
	body := generateRequest{
		TurnID:       req.TurnID,
		Prompt:       req.Prompt,
		PriorContext: []contextMessage{},
		ModelID:      req.ModelID,
		SystemPrompt: req.SystemPrompt,
	}
	for _, msg := range req.Context {
		body.PriorContext = append(body.PriorContext, contextMessage{Role: string(msg.Role), Content: msg.Content})
	}
	return &stream{client: c, body: body}
}

// CancelTurn asks the service to stop producing chunks for turnID.
func (c *Client) CancelTurn(ctx context.Context, turnID int64) error {
	ctx, span := tracer.Start(ctx, "cancel remote generation")
	defer span.End()
	span.SetAttributes(attribute.Int64("turn.id", turnID))

	payload, err := json.Marshal(cancelRequest{TurnID: turnID})
	if err != nil {
		return fmt.Errorf("failed to marshal cancel request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+cancelPath, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create cancel request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to send cancel request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		err := fmt.Errorf("cancel request returned %s", resp.Status)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

type stream struct {
	client *Client
	body   generateRequest
}

func (s *stream) Chunks(ctx context.Context) func(func(llms.StreamChunk, error) bool) {
	return func(yield func(llms.StreamChunk, error) bool) {
		ctx, span := tracer.Start(ctx, "prompt remote generation stream")
		defer span.End()
		span.SetAttributes(attribute.Int64("turn.id", s.body.TurnID))

		fail := func(err error) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			yield(nil, err)
		}

		payload, err := json.Marshal(s.body)
		if err != nil {
			fail(fmt.Errorf("failed to marshal generate request: %w", err))
			return
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.client.baseURL+generatePath, bytes.NewReader(payload))
		if err != nil {
			fail(fmt.Errorf("failed to create generate request: %w", err))
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/x-ndjson")

		resp, err := s.client.httpClient.Do(req)
		if err != nil {
			fail(fmt.Errorf("failed to send generate request: %w", err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			fail(fmt.Errorf("generate request returned %s: %s", resp.Status, strings.TrimSpace(string(body))))
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}

			var msg chunkMessage
			if err := json.Unmarshal(line, &msg); err != nil {
				fail(fmt.Errorf("failed to unmarshal generation chunk: %w", err))
				return
			}
			if msg.TurnID != s.body.TurnID {
				logger.Warn("dropping chunk for another turn", "expected", s.body.TurnID, "got", msg.TurnID)
				continue
			}
			if msg.Error != "" {
				fail(fmt.Errorf("generation service reported: %s", msg.Error))
				return
			}

			var finishReason *string
			if msg.IsFinal {
				reason := "stop"
				finishReason = &reason
			}
			if !yield(accumulatedChunk{text: msg.AccumulatedText, finishReason: finishReason}, nil) {
				return
			}
			if msg.IsFinal {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			fail(fmt.Errorf("failed to read generation stream: %w", err))
			return
		}
		fail(fmt.Errorf("generation stream ended before the final chunk"))
	}
}

type accumulatedChunk struct {
	finishReason *string
	text         string
}

func (c accumulatedChunk) FinishReason() *string   { return c.finishReason }
func (c accumulatedChunk) AccumulatedText() string { return c.text }
