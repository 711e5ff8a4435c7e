package llms

import "context"

// Stream yields the chunks of one generation. Iteration stops early when the
// consumer returns false or ctx is done.
type Stream interface {
	Chunks(context.Context) func(func(StreamChunk, error) bool)
}

type StreamChunk interface {
	FinishReason() *string
}

type StreamReasoningChunk interface {
	StreamChunk
	Reasoning() string
	Channel() string
}

// StreamContentChunk carries newly generated text only.
type StreamContentChunk interface {
	StreamChunk
	Content() string
}

// StreamAccumulatedChunk carries the full text generated so far, for
// services that resend everything on each update.
type StreamAccumulatedChunk interface {
	StreamChunk
	AccumulatedText() string
}

type StreamUsageChunk interface {
	StreamChunk
	Usage() Usage
}

type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int

	// Timings in seconds, as reported by the service. Some services only
	// approximate them.
	QueueTime      float64
	PromptTime     float64
	CompletionTime float64
	TotalTime      float64
}
