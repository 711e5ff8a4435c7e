package events

const (
	KindStateChanged              Kind = "pipeline.state_changed"
	KindTranscriptionStateChanged Kind = "pipeline.transcription_state_changed"
	KindTranscriptionError        Kind = "pipeline.transcription_error"
)

// StateChanged reports a move of the orchestrator's state machine.
type StateChanged struct {
	Base
	From string
	To   string
}

func NewStateChanged(from, to string) StateChanged {
	return StateChanged{Base: NewBase(KindStateChanged), From: from, To: to}
}

type TranscriptionStateChanged struct {
	Base
	State string
}

func NewTranscriptionStateChanged(state string) TranscriptionStateChanged {
	return TranscriptionStateChanged{Base: NewBase(KindTranscriptionStateChanged), State: state}
}

// TranscriptionError is surfaced for stale connections and for a terminal
// failure after reconnects are exhausted. Transient errors are retried
// without being surfaced.
type TranscriptionError struct {
	Base
	Err      error
	Terminal bool
}

func NewTranscriptionError(err error, terminal bool) TranscriptionError {
	return TranscriptionError{Base: NewBase(KindTranscriptionError), Err: err, Terminal: terminal}
}
