package audio

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Frame is a fixed-size chunk of mono audio in the framer's encoding.
type Frame []byte

// CaptureDevice is a microphone backend. onAudio may be called from a device
// thread with chunks of any size.
type CaptureDevice interface {
	EncodingInfo() EncodingInfo
	StartCapture(ctx context.Context, onAudio func(audio []byte)) error
	StopCapture() error
}

// CaptureHints are processing requests a backend may honour.
type CaptureHints struct {
	NoiseSuppression bool
	EchoCancellation bool
	AutoGainControl  bool
}

// HintedCaptureDevice is implemented by backends that can apply CaptureHints.
type HintedCaptureDevice interface {
	CaptureDevice
	SetCaptureHints(CaptureHints) error
}

type framerState int32

const (
	framerIdle framerState = iota
	framerRunning
	framerStopped
)

type FramerOptions struct {
	FrameDuration time.Duration
	BufferSize    int
	Hints         CaptureHints
	DeviceName    string
}

type FramerOption func(*FramerOptions)

func WithFrameDuration(d time.Duration) FramerOption {
	return func(o *FramerOptions) {
		o.FrameDuration = d
	}
}

// WithFrameBuffer sets how many frames may wait for the consumer before new
// frames are dropped.
func WithFrameBuffer(size int) FramerOption {
	return func(o *FramerOptions) {
		o.BufferSize = size
	}
}

func WithCaptureHints(hints CaptureHints) FramerOption {
	return func(o *FramerOptions) {
		o.Hints = hints
	}
}

func WithDeviceName(name string) FramerOption {
	return func(o *FramerOptions) {
		o.DeviceName = name
	}
}

// Framer turns device audio into a stream of equally sized frames. A Framer
// runs once: after Stop it cannot be started again.
type Framer struct {
	device    CaptureDevice
	options   FramerOptions
	frameSize int

	state   atomic.Int32
	frames  chan Frame
	pending []byte
	// mu guards pending and the frames channel against a concurrent Stop.
	mu       sync.Mutex
	stopOnce sync.Once

	dropped atomic.Uint64
}

func NewFramer(device CaptureDevice, opts ...FramerOption) *Framer {
	options := FramerOptions{
		FrameDuration: DefaultFrameDuration,
		BufferSize:    50,
		Hints: CaptureHints{
			NoiseSuppression: true,
			EchoCancellation: true,
			AutoGainControl:  true,
		},
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.BufferSize <= 0 {
		options.BufferSize = 1
	}

	encoding := GetDefaultEncodingInfo()
	if device != nil && !device.EncodingInfo().IsZero() {
		encoding = device.EncodingInfo()
	}
	frameSize := encoding.FrameSize(options.FrameDuration)
	if frameSize <= 0 {
		frameSize = GetDefaultEncodingInfo().FrameSize(DefaultFrameDuration)
	}

	return &Framer{
		device:    device,
		options:   options,
		frameSize: frameSize,
		frames:    make(chan Frame, options.BufferSize),
	}
}

// Start opens the capture device. It fails fast with a *PermissionError or a
// *DeviceError and emits no frames unless it succeeds.
func (f *Framer) Start(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "start audio framer")
	defer span.End()
	span.SetAttributes(attribute.Int("frame.size", f.frameSize))

	if f.device == nil {
		err := &DeviceError{Device: f.options.DeviceName, Err: ErrDeviceUnavailable}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if !f.state.CompareAndSwap(int32(framerIdle), int32(framerRunning)) {
		if framerState(f.state.Load()) == framerStopped {
			return ErrFramerStopped
		}
		return nil
	}

	if hinted, ok := f.device.(HintedCaptureDevice); ok {
		if err := hinted.SetCaptureHints(f.options.Hints); err != nil {
			logger.Debug("capture hints not applied", "error", err)
		}
	}

	if err := f.device.StartCapture(ctx, f.onAudio); err != nil {
		err = ClassifyStartError(f.options.DeviceName, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		f.Stop()
		return err
	}

	return nil
}

// Stop releases the device and closes the frame channel. It is safe to call
// from any state and more than once.
func (f *Framer) Stop() {
	f.stopOnce.Do(func() {
		previous := framerState(f.state.Swap(int32(framerStopped)))
		if previous == framerRunning && f.device != nil {
			if err := f.device.StopCapture(); err != nil {
				logger.Warn("failed to stop capture device", "error", err)
			}
		}
		if f.device != nil {
			switch device := f.device.(type) {
			case interface{ Close() error }:
				if err := device.Close(); err != nil {
					logger.Warn("failed to close capture device", "error", err)
				}
			case interface{ Close() }:
				device.Close()
			}
		}

		f.mu.Lock()
		f.pending = nil
		close(f.frames)
		f.mu.Unlock()

		if dropped := f.dropped.Load(); dropped > 0 {
			logger.Info("audio framer stopped", "dropped_frames", dropped)
		}
	})
}

// Frames is closed once the framer stops.
func (f *Framer) Frames() <-chan Frame {
	return f.frames
}

func (f *Framer) FrameSize() int {
	return f.frameSize
}

// Dropped reports how many frames were discarded because the consumer lagged.
func (f *Framer) Dropped() uint64 {
	return f.dropped.Load()
}

func (f *Framer) onAudio(chunk []byte) {
	if framerState(f.state.Load()) != framerRunning || len(chunk) == 0 {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if framerState(f.state.Load()) != framerRunning {
		return
	}

	f.pending = append(f.pending, chunk...)
	for len(f.pending) >= f.frameSize {
		frame := make(Frame, f.frameSize)
		copy(frame, f.pending[:f.frameSize])
		f.pending = f.pending[f.frameSize:]

		select {
		case f.frames <- frame:
		default:
			f.dropped.Add(1)
		}
	}
	if len(f.pending) == 0 {
		f.pending = nil
	}
}
