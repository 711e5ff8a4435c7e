package groq

import (
	"context"
	"net/http"
	"os"

	"github.com/koscakluka/ema-voice/core/llms"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DefaultURL   = "https://api.groq.com/openai/v1/chat/completions"
	DefaultModel = "llama-3.1-8b-instant"
)

// Client streams chat completions from Groq's OpenAI compatible endpoint.
type Client struct {
	apiKey     string
	model      string
	url        string
	httpClient *http.Client
}

type ClientOption func(*Client)

func WithModel(model string) ClientOption {
	return func(c *Client) {
		c.model = model
	}
}

func WithURL(url string) ClientOption {
	return func(c *Client) {
		c.url = url
	}
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// NewClient falls back to GROQ_API_KEY when apiKey is empty.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	if apiKey == "" {
		apiKey = os.Getenv("GROQ_API_KEY")
	}
	c := &Client{
		apiKey: apiKey,
		model:  DefaultModel,
		url:    DefaultURL,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)},
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

	return &Stream{
		apiKey:     c.apiKey,
		url:        c.url,
		httpClient: c.httpClient,
		model:      model,
		messages:   toMessages(req.Messages()),
	}
}
