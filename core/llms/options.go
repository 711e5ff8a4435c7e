package llms

import (
	"time"

	"github.com/koscakluka/ema-voice/core/metrics"
)

const (
	DefaultGenerationTimeout = 60 * time.Second
	defaultCancelTimeout     = 2 * time.Second
)

type GeneratorOptions struct {
	// Timeout is how long a turn may go without a chunk before it fails.
	Timeout       time.Duration
	CancelTimeout time.Duration
	ModelID       string
	SystemPrompt  string
	Metrics       *metrics.Metrics
}

type GeneratorOption func(*GeneratorOptions)

func WithTimeout(timeout time.Duration) GeneratorOption {
	return func(o *GeneratorOptions) {
		o.Timeout = timeout
	}
}

// WithRemoteCancelTimeout bounds how long a remote cancel request may take.
func WithRemoteCancelTimeout(timeout time.Duration) GeneratorOption {
	return func(o *GeneratorOptions) {
		o.CancelTimeout = timeout
	}
}

func WithModel(modelID string) GeneratorOption {
	return func(o *GeneratorOptions) {
		o.ModelID = modelID
	}
}

func WithSystemPrompt(prompt string) GeneratorOption {
	return func(o *GeneratorOptions) {
		o.SystemPrompt = prompt
	}
}

func WithMetrics(m *metrics.Metrics) GeneratorOption {
	return func(o *GeneratorOptions) {
		o.Metrics = m
	}
}
