package speechtotext

// Event is one message from the transcription service: Partial, Final,
// Error or Heartbeat.
type Event interface {
	isTranscriptEvent()
}

// Partial is provisional text for the utterance in progress. It replaces any
// earlier Partial.
type Partial struct{ Text string }

// Final is confirmed text for a finished utterance.
type Final struct{ Text string }

// Error reports a service or connection problem. Terminal errors mean the
// client gave up and needs an explicit Connect.
type Error struct {
	Err      error
	Terminal bool
}

type Heartbeat struct{}

func (Partial) isTranscriptEvent()   {}
func (Final) isTranscriptEvent()     {}
func (Error) isTranscriptEvent()     {}
func (Heartbeat) isTranscriptEvent() {}

func (e Error) Error() string {
	if e.Err == nil {
		return "transcription error"
	}
	return e.Err.Error()
}

func (e Error) Unwrap() error { return e.Err }
