package speechtotext

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-voice/core/audio"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Client keeps a duplex connection to a transcription service alive across
// turns. Audio goes up through SendFrame and transcript events come back on
// Events.
type Client struct {
	url     string
	options ClientOptions

	events chan Event
	state  atomic.Int32

	// mu guards session, backoff and state transitions.
	mu      sync.Mutex
	session *session
	backoff *Backoff

	// writeMu serializes writes on the socket.
	writeMu sync.Mutex

	partialMu sync.Mutex
	partial   string

	lifeCtx    context.Context
	lifeCancel context.CancelFunc
	closed     chan struct{}
	closeOnce  sync.Once
}

type session struct {
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	lastMessage atomic.Int64
	stale       atomic.Bool
	healthy     atomic.Bool
}

func (s *session) touch() {
	s.lastMessage.Store(time.Now().UnixNano())
	s.stale.Store(false)
}

func NewClient(url string, opts ...ClientOption) *Client {
	options := ClientOptions{
		Dialect:           NativeDialect{},
		EncodingInfo:      audio.GetDefaultEncodingInfo(),
		RetryPolicy:       DefaultRetryPolicy(),
		DialTimeout:       5 * time.Second,
		WriteTimeout:      5 * time.Second,
		HeartbeatInterval: 15 * time.Second,
		StaleAfter:        30 * time.Second,
		EventBuffer:       64,
		Dialer:            websocket.DefaultDialer,
		sleep:             sleepContext,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.EventBuffer <= 0 {
		options.EventBuffer = 1
	}
	if options.HeartbeatInterval <= 0 {
		options.HeartbeatInterval = 15 * time.Second
	}
	if options.Dialect == nil {
		options.Dialect = NativeDialect{}
	}

	lifeCtx, lifeCancel := context.WithCancel(context.Background())
	return &Client{
		url:        url,
		options:    options,
		events:     make(chan Event, options.EventBuffer),
		backoff:    NewBackoff(options.RetryPolicy),
		lifeCtx:    lifeCtx,
		lifeCancel: lifeCancel,
		closed:     make(chan struct{}),
	}
}

// Events stays open for the lifetime of the client, across reconnects and
// Disconnect.
func (c *Client) Events() <-chan Event {
	return c.events
}

func (c *Client) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// CurrentPartial returns the latest Partial text that has not yet been
// superseded by a Final.
func (c *Client) CurrentPartial() string {
	c.partialMu.Lock()
	defer c.partialMu.Unlock()
	return c.partial
}

// Connect dials the service. It is a no-op while connected or while a
// reconnect is in progress, and it is the only way out of StateFailed.
func (c *Client) Connect(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "connect transcription stream")
	defer span.End()
	span.SetAttributes(attribute.String("transcription.dialect", c.options.Dialect.Name()))

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isClosed() {
		return ErrClosed
	}
	switch c.State() {
	case StateConnected, StateConnecting, StateReconnecting:
		return nil
	}

	c.setState(StateConnecting)
	conn, err := c.dial(ctx)
	if err != nil {
		c.setState(StateDisconnected)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	c.backoff.Reset()
	c.startSession(conn)
	c.setState(StateConnected)
	return nil
}

// SendFrame writes one audio frame. Frames are dropped without error while
// the client is not connected.
func (c *Client) SendFrame(frame audio.Frame) error {
	if c.State() != StateConnected || len(frame) == 0 {
		return nil
	}

	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s == nil {
		return nil
	}

	if err := c.write(s, websocket.BinaryMessage, frame); err != nil {
		return fmt.Errorf("%w: failed to send audio frame: %w", ErrConnection, err)
	}
	c.options.Metrics.FrameSent()
	return nil
}

// Disconnect closes the connection cleanly. No reconnect follows.
func (c *Client) Disconnect() {
	c.mu.Lock()
	s := c.session
	c.session = nil
	c.setState(StateDisconnected)
	c.mu.Unlock()

	c.setPartial("")
	if s == nil {
		return
	}

	if msg, err := c.options.Dialect.ControlMessage(ActionStop); err == nil {
		if err := c.write(s, websocket.TextMessage, msg); err != nil {
			logger.Debug("failed to send stop message", "error", err)
		}
	}
	c.writeMu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	s.cancel()
	_ = s.conn.Close()

	select {
	case <-s.done:
	case <-time.After(time.Second):
		logger.Warn("transcription reader did not stop in time")
	}
}

// Close disconnects and stops any reconnect in progress. The client cannot
// be used afterwards.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.Disconnect()
		close(c.closed)
		c.lifeCancel()
	})
}

func (c *Client) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	endpoint, header, err := c.options.Dialect.Endpoint(c.url, c.options.EncodingInfo)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.options.DialTimeout)
	defer cancel()

	conn, _, err := c.options.Dialer.DialContext(dialCtx, endpoint, header)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open socket connection: %w", ErrConnection, err)
	}
	return conn, nil
}

// startSession must be called with c.mu held.
func (c *Client) startSession(conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(c.lifeCtx)
	s := &session{conn: conn, ctx: ctx, cancel: cancel, done: make(chan struct{})}
	s.touch()
	c.session = s

	go c.readLoop(s)
	go c.heartbeatLoop(s)
}

func (c *Client) readLoop(s *session) {
	defer close(s.done)

	decoder := c.options.Dialect.NewDecoder()
	for {
		msgType, payload, err := s.conn.ReadMessage()
		if err != nil {
			c.handleClose(s, err)
			return
		}
		s.touch()

		if msgType != websocket.TextMessage {
			continue
		}

		events, err := decoder.Decode(payload)
		if err != nil {
			logger.Warn("malformed transcription message", "error", err)
			c.deliver(Error{Err: err})
			c.handleClose(s, err)
			return
		}

		if len(events) > 0 && !s.healthy.Swap(true) {
			c.mu.Lock()
			if c.session == s {
				c.backoff.Reset()
			}
			c.mu.Unlock()
		}

		for _, event := range events {
			c.deliver(event)
		}
	}
}

func (c *Client) heartbeatLoop(s *session) {
	ping := time.NewTicker(c.options.HeartbeatInterval)
	defer ping.Stop()

	checkEvery := c.options.HeartbeatInterval
	if c.options.StaleAfter > 0 {
		checkEvery = max(c.options.StaleAfter/4, time.Millisecond)
	}
	staleCheck := time.NewTicker(checkEvery)
	defer staleCheck.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return

		case <-ping.C:
			msg, err := c.options.Dialect.ControlMessage(ActionPing)
			if err != nil {
				logger.Warn("failed to build keep-alive message", "error", err)
				continue
			}
			if err := c.write(s, websocket.TextMessage, msg); err != nil {
				logger.Debug("failed to send keep-alive", "error", err)
			}

		case <-staleCheck.C:
			if c.options.StaleAfter <= 0 || !c.options.Dialect.ServerHeartbeats() {
				continue
			}
			silence := time.Since(time.Unix(0, s.lastMessage.Load()))
			if silence > c.options.StaleAfter && s.stale.CompareAndSwap(false, true) {
				logger.Warn("transcription connection looks stale", "silence", silence)
				c.deliver(Error{Err: fmt.Errorf("%w: no message for %s", ErrConnectionStale, silence.Round(time.Second))})
			}
		}
	}
}

func (c *Client) write(s *session, messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(c.options.WriteTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(messageType, data)
}

// handleClose runs on the reader goroutine after the connection broke. The
// reader has already delivered every event it decoded, so nothing is lost
// by resetting state here.
func (c *Client) handleClose(s *session, cause error) {
	c.mu.Lock()
	if c.session != s {
		c.mu.Unlock()
		return
	}

	c.session = nil
	s.cancel()
	_ = s.conn.Close()

	if websocket.IsCloseError(cause, websocket.CloseNormalClosure) {
		c.setState(StateDisconnected)
		c.mu.Unlock()
		c.setPartial("")
		logger.Info("transcription connection closed by server")
		return
	}

	c.setState(StateReconnecting)
	c.mu.Unlock()
	c.setPartial("")

	logger.Warn("transcription connection lost", "error", cause)
	go c.reconnectLoop(cause)
}

func (c *Client) reconnectLoop(lastErr error) {
	for {
		c.mu.Lock()
		if c.isClosed() || c.State() != StateReconnecting {
			c.mu.Unlock()
			return
		}
		delay, ok := c.backoff.Next()
		attempt := c.backoff.Attempts()
		if !ok {
			c.setState(StateFailed)
			c.mu.Unlock()

			err := fmt.Errorf("%w after %d attempts: %w", ErrReconnectExhausted, attempt, lastErr)
			logger.Error("transcription reconnect failed", "error", err)
			c.deliver(Error{Err: err, Terminal: true})
			return
		}
		c.mu.Unlock()

		logger.Info("reconnecting transcription stream", "attempt", attempt, "delay", delay)
		c.options.Metrics.TranscriptionReconnect()
		if err := c.options.sleep(c.lifeCtx, delay); err != nil {
			return
		}

		conn, err := c.dial(c.lifeCtx)
		if err != nil {
			lastErr = err
			logger.Warn("transcription reconnect attempt failed", "attempt", attempt, "error", err)
			continue
		}

		c.mu.Lock()
		if c.isClosed() || c.State() != StateReconnecting {
			c.mu.Unlock()
			_ = conn.Close()
			return
		}
		c.startSession(conn)
		c.setState(StateConnected)
		c.mu.Unlock()
		return
	}
}

// deliver hands an event to the consumer. Finals and errors block until
// accepted; partials and heartbeats are dropped when the consumer lags
// since a newer one supersedes them.
func (c *Client) deliver(event Event) {
	switch e := event.(type) {
	case Partial:
		c.setPartial(e.Text)
		c.options.Metrics.TranscriptEvent("partial")
	case Final:
		c.setPartial("")
		c.options.Metrics.TranscriptEvent("final")
	case Heartbeat:
		c.options.Metrics.TranscriptEvent("heartbeat")
	case Error:
		c.options.Metrics.TranscriptEvent("error")
	}

	switch event.(type) {
	case Partial, Heartbeat:
		select {
		case c.events <- event:
		default:
		}
	default:
		select {
		case c.events <- event:
		case <-c.closed:
		}
	}
}

func (c *Client) setPartial(text string) {
	c.partialMu.Lock()
	c.partial = text
	c.partialMu.Unlock()
}

func (c *Client) setState(state ConnectionState) {
	if ConnectionState(c.state.Swap(int32(state))) == state {
		return
	}
	c.options.Metrics.SetTranscriptionState(int(state))
	if c.options.StateChangedCallback != nil {
		c.options.StateChangedCallback(state)
	}
}
