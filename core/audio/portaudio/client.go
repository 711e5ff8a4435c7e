package portaudio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/koscakluka/ema-voice/core/audio"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/koscakluka/ema-voice/core/audio/portaudio"

var logger = otelslog.NewLogger(scopeName)

// Client drives the default input and output devices through blocking
// portaudio streams.
type Client struct {
	bufferSize int
	capture    *CaptureDevice
	playback   *PlaybackDevice
}

func NewClient(bufferSize int, playbackSampleRate int) (*Client, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, &audio.DeviceError{Device: "portaudio", Err: err}
	}
	if playbackSampleRate <= 0 {
		playbackSampleRate = audio.DefaultSampleRate
	}

	return &Client{
		bufferSize: bufferSize,
		capture: &CaptureDevice{
			bufferSize: bufferSize,
			encoding:   audio.GetDefaultEncodingInfo(),
		},
		playback: &PlaybackDevice{
			bufferSize: bufferSize,
			encoding:   audio.EncodingInfo{SampleRate: playbackSampleRate, Format: audio.EncodingLinear16},
		},
	}, nil
}

func (c *Client) Capture() *CaptureDevice {
	return c.capture
}

func (c *Client) Playback() *PlaybackDevice {
	return c.playback
}

func (c *Client) Close() {
	_ = c.capture.Close()
	_ = c.playback.Close()
	if err := portaudio.Terminate(); err != nil {
		logger.Warn("failed to terminate portaudio", "error", err)
	}
}

type CaptureDevice struct {
	bufferSize int
	encoding   audio.EncodingInfo

	mu     sync.Mutex
	stream *portaudio.Stream
	in     []int16
	cancel context.CancelFunc
	done   chan struct{}
}

func (c *CaptureDevice) EncodingInfo() audio.EncodingInfo {
	return c.encoding
}

func (c *CaptureDevice) StartCapture(ctx context.Context, onAudio func(audio []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return nil
	}

	c.in = make([]int16, c.bufferSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(c.encoding.SampleRate), c.bufferSize, c.in)
	if err != nil {
		return audio.ClassifyStartError("portaudio capture", fmt.Errorf("failed to open input stream: %w", err))
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return audio.ClassifyStartError("portaudio capture", fmt.Errorf("failed to start input stream: %w", err))
	}

	// The read loop outlives the Start call, so it gets its own context.
	readCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.stream = stream
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.readLoop(readCtx, stream, c.in, onAudio, c.done)
	return nil
}

func (c *CaptureDevice) readLoop(ctx context.Context, stream *portaudio.Stream, in []int16, onAudio func([]byte), done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := stream.Read(); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("failed to read from input stream", "error", err)
			continue
		}

		buf := bytes.Buffer{}
		_ = binary.Write(&buf, binary.LittleEndian, in)
		onAudio(buf.Bytes())
	}
}

func (c *CaptureDevice) StopCapture() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel == nil {
		return nil
	}

	c.cancel()
	stopErr := c.stream.Stop()
	<-c.done
	closeErr := c.stream.Close()
	c.cancel = nil
	c.stream = nil
	if err := errors.Join(stopErr, closeErr); err != nil {
		return fmt.Errorf("failed to stop input stream: %w", err)
	}
	return nil
}

func (c *CaptureDevice) Close() error {
	return c.StopCapture()
}

type PlaybackDevice struct {
	bufferSize int
	encoding   audio.EncodingInfo

	mu     sync.Mutex
	stream *portaudio.Stream
	out    []int16
}

func (c *PlaybackDevice) EncodingInfo() audio.EncodingInfo {
	return c.encoding
}

// Play writes pcm one buffer at a time, checking ctx between writes.
func (c *PlaybackDevice) Play(ctx context.Context, pcm []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream == nil {
		c.out = make([]int16, c.bufferSize)
		stream, err := portaudio.OpenDefaultStream(0, 1, float64(c.encoding.SampleRate), c.bufferSize, c.out)
		if err != nil {
			return &audio.DeviceError{Device: "portaudio playback", Err: err}
		}
		if err := stream.Start(); err != nil {
			_ = stream.Close()
			return &audio.DeviceError{Device: "portaudio playback", Err: err}
		}
		c.stream = stream
	}

	chunkBytes := c.bufferSize * 2
	for start := 0; start < len(pcm); start += chunkBytes {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := min(start+chunkBytes, len(pcm))
		chunk := pcm[start:end]
		clear(c.out)
		if err := binary.Read(bytes.NewReader(chunk[:len(chunk)&^1]), binary.LittleEndian, c.out[:len(chunk)/2]); err != nil {
			return fmt.Errorf("failed to decode pcm chunk: %w", err)
		}
		if err := c.stream.Write(); err != nil {
			return fmt.Errorf("failed to write to output stream: %w", err)
		}
	}
	return ctx.Err()
}

func (c *PlaybackDevice) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		return nil
	}
	_ = c.stream.Stop()
	err := c.stream.Close()
	c.stream = nil
	return err
}
