package audio

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrPermissionDenied  = errors.New("microphone permission denied")
	ErrDeviceUnavailable = errors.New("audio device unavailable")
	ErrFramerStopped     = errors.New("framer already stopped")
)

// PermissionError is returned when the operating system refuses access to the
// capture device.
type PermissionError struct {
	Device string
	Err    error
}

func (e *PermissionError) Error() string {
	if e.Device == "" {
		return fmt.Sprintf("%v: %v", ErrPermissionDenied, e.Err)
	}
	return fmt.Sprintf("%v (%s): %v", ErrPermissionDenied, e.Device, e.Err)
}

func (e *PermissionError) Unwrap() []error { return []error{ErrPermissionDenied, e.Err} }

// DeviceError is returned when the capture device is missing, busy or fails
// to initialize.
type DeviceError struct {
	Device string
	Err    error
}

func (e *DeviceError) Error() string {
	if e.Device == "" {
		return fmt.Sprintf("%v: %v", ErrDeviceUnavailable, e.Err)
	}
	return fmt.Sprintf("%v (%s): %v", ErrDeviceUnavailable, e.Device, e.Err)
}

func (e *DeviceError) Unwrap() []error { return []error{ErrDeviceUnavailable, e.Err} }

// ClassifyStartError wraps a backend start failure into a PermissionError or
// DeviceError. Errors that are already typed are returned unchanged.
func ClassifyStartError(device string, err error) error {
	if err == nil {
		return nil
	}

	var permErr *PermissionError
	var devErr *DeviceError
	if errors.As(err, &permErr) || errors.As(err, &devErr) {
		return err
	}

	// Backends only expose these as driver messages.
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "permission") || strings.Contains(msg, "access denied") ||
		strings.Contains(msg, "not authorized") {
		return &PermissionError{Device: device, Err: err}
	}
	return &DeviceError{Device: device, Err: err}
}
