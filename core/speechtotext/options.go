package speechtotext

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/metrics"
)

type ClientOptions struct {
	Dialect      Dialect
	EncodingInfo audio.EncodingInfo
	RetryPolicy  RetryPolicy

	DialTimeout       time.Duration
	WriteTimeout      time.Duration
	HeartbeatInterval time.Duration
	// StaleAfter is how long the server may stay silent before a stale
	// connection error is raised. Zero disables the check.
	StaleAfter time.Duration

	EventBuffer int
	Dialer      *websocket.Dialer
	Metrics     *metrics.Metrics

	// StateChangedCallback must not call back into the client.
	StateChangedCallback func(ConnectionState)

	sleep func(context.Context, time.Duration) error
}

type ClientOption func(*ClientOptions)

func WithDialect(dialect Dialect) ClientOption {
	return func(o *ClientOptions) {
		o.Dialect = dialect
	}
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) ClientOption {
	return func(o *ClientOptions) {
		o.EncodingInfo = encodingInfo
	}
}

func WithRetryPolicy(policy RetryPolicy) ClientOption {
	return func(o *ClientOptions) {
		o.RetryPolicy = policy
	}
}

func WithDialTimeout(timeout time.Duration) ClientOption {
	return func(o *ClientOptions) {
		o.DialTimeout = timeout
	}
}

func WithHeartbeatInterval(interval time.Duration) ClientOption {
	return func(o *ClientOptions) {
		o.HeartbeatInterval = interval
	}
}

func WithStaleAfter(d time.Duration) ClientOption {
	return func(o *ClientOptions) {
		o.StaleAfter = d
	}
}

func WithEventBuffer(size int) ClientOption {
	return func(o *ClientOptions) {
		o.EventBuffer = size
	}
}

func WithDialer(dialer *websocket.Dialer) ClientOption {
	return func(o *ClientOptions) {
		o.Dialer = dialer
	}
}

func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(o *ClientOptions) {
		o.Metrics = m
	}
}

func WithStateChangedCallback(callback func(ConnectionState)) ClientOption {
	return func(o *ClientOptions) {
		o.StateChangedCallback = callback
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
