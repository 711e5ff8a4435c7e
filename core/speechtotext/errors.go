package speechtotext

import "errors"

var (
	ErrConnection         = errors.New("transcription connection error")
	ErrProtocol           = errors.New("transcription protocol error")
	ErrConnectionStale    = errors.New("transcription connection looks stale")
	ErrReconnectExhausted = errors.New("transcription reconnect attempts exhausted")
	ErrServiceReported    = errors.New("transcription service error")
	ErrClosed             = errors.New("transcription client closed")
)
