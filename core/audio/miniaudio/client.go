package miniaudio

import (
	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-voice/core/audio"
)

type ClientOptions struct {
	CaptureSampleRate  int
	PlaybackSampleRate int
}

type ClientOption func(*ClientOptions)

func WithCaptureSampleRate(rate int) ClientOption {
	return func(o *ClientOptions) {
		o.CaptureSampleRate = rate
	}
}

// WithPlaybackSampleRate should match the sample rate of the synthesizer
// feeding the playback device.
func WithPlaybackSampleRate(rate int) ClientOption {
	return func(o *ClientOptions) {
		o.PlaybackSampleRate = rate
	}
}

// Client owns a miniaudio context shared by one capture and one playback
// device.
type Client struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext
	capture      *CaptureDevice
	playback     *PlaybackDevice
}

func NewClient(opts ...ClientOption) (*Client, error) {
	options := ClientOptions{
		CaptureSampleRate:  audio.DefaultSampleRate,
		PlaybackSampleRate: audio.DefaultSampleRate,
	}
	for _, opt := range opts {
		opt(&options)
	}

	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug("malgo", "message", message)
	})
	if err != nil {
		return nil, &audio.DeviceError{Device: "miniaudio", Err: err}
	}

	return &Client{
		audioContext: audioCtx,
		capture: &CaptureDevice{
			audioContext: audioCtx,
			encoding:     audio.EncodingInfo{SampleRate: options.CaptureSampleRate, Format: audio.EncodingLinear16},
		},
		playback: &PlaybackDevice{
			audioContext: audioCtx,
			encoding:     audio.EncodingInfo{SampleRate: options.PlaybackSampleRate, Format: audio.EncodingLinear16},
		},
	}, nil
}

// Capture returns the microphone device. Closing it releases only the
// capture side; it is reopened by the next StartCapture.
func (c *Client) Capture() *CaptureDevice {
	return c.capture
}

func (c *Client) Playback() *PlaybackDevice {
	return c.playback
}

func (c *Client) Close() {
	_ = c.capture.Close()
	_ = c.playback.Close()
	_ = c.audioContext.Uninit()
	c.audioContext.Free()
}
