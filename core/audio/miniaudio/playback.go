package miniaudio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-voice/core/audio"
)

type PlaybackDevice struct {
	audioContext *malgo.AllocatedContext
	device       *malgo.Device
	encoding     audio.EncodingInfo

	mu sync.Mutex

	// bufferMu guards buffer and marks, which the device callback drains.
	bufferMu sync.Mutex
	buffer   []byte
	marks    []playbackMark
}

type playbackMark struct {
	position int
	done     chan struct{}
}

func (c *PlaybackDevice) EncodingInfo() audio.EncodingInfo {
	return c.encoding
}

func (c *PlaybackDevice) ensureStarted() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device == nil {
		channels := 1
		format := malgo.FormatS16
		bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

		config := malgo.DefaultDeviceConfig(malgo.Playback)
		config.SampleRate = uint32(c.encoding.SampleRate)
		config.Playback.Format = format
		config.Playback.Channels = uint32(channels)
		config.Alsa.NoMMap = 1
		config.PeriodSizeInFrames = uint32(c.encoding.SampleRate / 10) // ~100ms of audio
		config.Periods = 4

		device, err := malgo.InitDevice(c.audioContext.Context, config, malgo.DeviceCallbacks{
			Data: c.processAudio(bytesPerFrame),
		})
		if err != nil {
			return &audio.DeviceError{Device: "miniaudio playback", Err: err}
		}
		c.device = device
	}

	if !c.device.IsStarted() {
		if err := c.device.Start(); err != nil {
			return fmt.Errorf("failed to start playback device: %w", err)
		}
	}
	return nil
}

// Play queues pcm on the device and blocks until it has been handed to the
// driver or ctx is done. A canceled play clears whatever is still buffered.
func (c *PlaybackDevice) Play(ctx context.Context, pcm []byte) error {
	if err := c.ensureStarted(); err != nil {
		return err
	}

	done := make(chan struct{})
	c.bufferMu.Lock()
	c.buffer = append(c.buffer, pcm...)
	c.marks = append(c.marks, playbackMark{position: len(c.buffer), done: done})
	c.bufferMu.Unlock()

	select {
	case <-done:
		return ctx.Err()
	case <-ctx.Done():
		c.Clear()
		return ctx.Err()
	}
}

// Clear drops buffered audio and releases every pending Play.
func (c *PlaybackDevice) Clear() {
	c.bufferMu.Lock()
	defer c.bufferMu.Unlock()

	c.buffer = nil
	for _, mark := range c.marks {
		close(mark.done)
	}
	c.marks = nil
}

func (c *PlaybackDevice) Close() error {
	c.Clear()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}
	return nil
}

func (c *PlaybackDevice) processAudio(bytesPerFrame int) malgo.DataProc {
	return func(pOutput, _ []byte, frameCount uint32) {
		need := int(frameCount) * bytesPerFrame
		if need > len(pOutput) {
			need = len(pOutput)
		}

		c.bufferMu.Lock()
		defer c.bufferMu.Unlock()

		n := copy(pOutput[:need], c.buffer)
		c.buffer = c.buffer[n:]
		if len(c.buffer) == 0 {
			c.buffer = nil
		}
		for i := n; i < need; i++ {
			pOutput[i] = 0
		}

		passed := 0
		for _, mark := range c.marks {
			if mark.position > n {
				break
			}
			close(mark.done)
			passed++
		}
		c.marks = c.marks[passed:]
		for i := range c.marks {
			c.marks[i].position -= n
		}
	}
}
