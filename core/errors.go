package orchestration

import (
	"errors"

	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/llms"
	"github.com/koscakluka/ema-voice/core/playback"
	"github.com/koscakluka/ema-voice/core/speechtotext"
	"github.com/koscakluka/ema-voice/core/texttospeech"
)

var (
	ErrNotRunning      = errors.New("orchestrator is not running")
	ErrAlreadyRunning  = errors.New("orchestrator is already running")
	ErrClosed          = errors.New("orchestrator closed")
	ErrNoCaptureDevice = errors.New("no capture device configured")
	ErrNoTranscriber   = errors.New("no transcription client configured")
	ErrNoGenerator     = errors.New("no generation client configured")
)

// ErrorKind is the user-facing category of a failure.
type ErrorKind string

const (
	ErrorKindPermissionDenied   ErrorKind = "permission_denied"
	ErrorKindDeviceUnavailable  ErrorKind = "device_unavailable"
	ErrorKindConnection         ErrorKind = "connection_error"
	ErrorKindProtocol           ErrorKind = "protocol_error"
	ErrorKindGenerationTimeout  ErrorKind = "generation_timeout"
	ErrorKindGenerationCanceled ErrorKind = "generation_canceled"
	ErrorKindSynthesisFailure   ErrorKind = "synthesis_failure"
	ErrorKindUnknown            ErrorKind = "unknown"
)

// ClassifyError maps an error from any pipeline component to its kind.
func ClassifyError(err error) ErrorKind {
	switch {
	case err == nil:
		return ErrorKindUnknown
	case errors.Is(err, audio.ErrPermissionDenied):
		return ErrorKindPermissionDenied
	case errors.Is(err, audio.ErrDeviceUnavailable):
		return ErrorKindDeviceUnavailable
	case errors.Is(err, llms.ErrGenerationTimeout):
		return ErrorKindGenerationTimeout
	case errors.Is(err, llms.ErrGenerationCanceled):
		return ErrorKindGenerationCanceled
	case errors.Is(err, texttospeech.ErrSynthesis),
		errors.Is(err, playback.ErrPlayback),
		errors.Is(err, playback.ErrEncodingMismatch):
		return ErrorKindSynthesisFailure
	case errors.Is(err, speechtotext.ErrProtocol):
		return ErrorKindProtocol
	case errors.Is(err, speechtotext.ErrConnection),
		errors.Is(err, speechtotext.ErrReconnectExhausted),
		errors.Is(err, speechtotext.ErrConnectionStale),
		errors.Is(err, llms.ErrConnection):
		return ErrorKindConnection
	}
	return ErrorKindUnknown
}

// Diagnostic is the short explanation shown in place of a failed message.
func (k ErrorKind) Diagnostic() string {
	switch k {
	case ErrorKindPermissionDenied:
		return "Microphone access was denied."
	case ErrorKindDeviceUnavailable:
		return "The audio device is not available."
	case ErrorKindConnection:
		return "Lost connection to the service."
	case ErrorKindProtocol:
		return "The service sent a message that could not be understood."
	case ErrorKindGenerationTimeout:
		return "The response took too long and was stopped."
	case ErrorKindGenerationCanceled:
		return "The response was stopped."
	case ErrorKindSynthesisFailure:
		return "The response could not be spoken."
	}
	return "Something went wrong."
}
