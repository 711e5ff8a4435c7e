package playback

import (
	"time"

	"github.com/koscakluka/ema-voice/core/metrics"
)

const (
	DefaultLookahead        = 2
	DefaultSynthesisTimeout = 10 * time.Second
	DefaultPerRuneTimeout   = 50 * time.Millisecond
	defaultEventBuffer      = 32
)

type QueueOptions struct {
	MinWords int
	// Lookahead is how many units may be synthesized ahead of playback.
	Lookahead        int
	SynthesisTimeout time.Duration
	PerRuneTimeout   time.Duration
	EventBuffer      int
	Metrics          *metrics.Metrics
}

type QueueOption func(*QueueOptions)

func WithMinWords(n int) QueueOption {
	return func(o *QueueOptions) {
		o.MinWords = n
	}
}

func WithLookahead(n int) QueueOption {
	return func(o *QueueOptions) {
		o.Lookahead = n
	}
}

// WithSynthesisTimeout sets the synthesis deadline to base plus perRune for
// every rune of the unit's text.
func WithSynthesisTimeout(base, perRune time.Duration) QueueOption {
	return func(o *QueueOptions) {
		o.SynthesisTimeout = base
		o.PerRuneTimeout = perRune
	}
}

func WithEventBuffer(size int) QueueOption {
	return func(o *QueueOptions) {
		o.EventBuffer = size
	}
}

func WithMetrics(m *metrics.Metrics) QueueOption {
	return func(o *QueueOptions) {
		o.Metrics = m
	}
}
