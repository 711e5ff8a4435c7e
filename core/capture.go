package orchestration

import (
	"context"

	"github.com/koscakluka/ema-voice/core/audio"
)

// captureSession forwards one framer's frames to the transcriber until the
// framer stops.
type captureSession struct {
	framer *audio.Framer
	done   chan struct{}
}

func startCaptureSession(ctx context.Context, framer *audio.Framer, transcriber Transcriber) *captureSession {
	s := &captureSession{framer: framer, done: make(chan struct{})}

	forward := panicSafeNamedWorker("audio forwarding", func(ctx context.Context) error {
		stopHook := withContextCancelHook(ctx, framer.Stop)
		defer close(stopHook)

		for frame := range framer.Frames() {
			// Frames sent while the connection is down are dropped by the
			// transcriber.
			if err := transcriber.SendFrame(frame); err != nil {
				logger.Debug("failed to forward audio frame", "error", err)
			}
		}
		return nil
	})

	go func() {
		defer close(s.done)
		if err := forward(ctx); err != nil {
			logger.Error("audio capture stopped", "error", err)
		}
	}()
	return s
}

// stop releases the capture device and waits for forwarding to end.
func (s *captureSession) stop() {
	if s == nil {
		return
	}
	s.framer.Stop()
	<-s.done
}

func (o *Orchestrator) startCapture(ctx context.Context) error {
	if o.capture != nil {
		return nil
	}
	if o.newCaptureDevice == nil {
		return ErrNoCaptureDevice
	}

	device, err := o.newCaptureDevice()
	if err != nil {
		return audio.ClassifyStartError("", err)
	}

	framer := audio.NewFramer(device, o.framerOptions...)
	if err := framer.Start(ctx); err != nil {
		return err
	}
	o.capture = startCaptureSession(ctx, framer, o.transcriber)
	return nil
}

func (o *Orchestrator) stopCapture() {
	o.capture.stop()
	o.capture = nil
}
