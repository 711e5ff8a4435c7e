package orchestration

type State string

const (
	StateIdle         State = "idle"
	StateListening    State = "listening"
	StateTranscribing State = "transcribing"
	StateGenerating   State = "generating"
	StateSpeaking     State = "speaking"
	StateCanceled     State = "canceled"
)

var allStates = []string{
	string(StateIdle),
	string(StateListening),
	string(StateTranscribing),
	string(StateGenerating),
	string(StateSpeaking),
	string(StateCanceled),
}

func (s State) String() string { return string(s) }
