package events

const (
	KindTurnStarted   Kind = "turn_state.started"
	KindTurnCompleted Kind = "turn_state.completed"
	// KindTurnFailed identifies a turn that ended on an error.
	KindTurnFailed Kind = "turn_state.failed"
	// KindTurnCancelled identifies turn cancellation.
	KindTurnCancelled Kind = "turn_state.cancelled"
)

type TurnStarted struct {
	Base
	Prompt string
}

func NewTurnStarted(turnID int64, prompt string) TurnStarted {
	return TurnStarted{Base: NewTurnBase(KindTurnStarted, turnID), Prompt: prompt}
}

type TurnCompleted struct {
	Base
	Response string
}

func NewTurnCompleted(turnID int64, response string) TurnCompleted {
	return TurnCompleted{Base: NewTurnBase(KindTurnCompleted, turnID), Response: response}
}

// TurnFailed replaces the turn's in-progress message. ErrorKind is one of
// the orchestrator's error kinds and Partial keeps whatever text was
// generated before the failure.
type TurnFailed struct {
	Base
	ErrorKind  string
	Diagnostic string
	Partial    string
	Err        error
}

func NewTurnFailed(turnID int64, errorKind, diagnostic, partial string, err error) TurnFailed {
	return TurnFailed{
		Base:       NewTurnBase(KindTurnFailed, turnID),
		ErrorKind:  errorKind,
		Diagnostic: diagnostic,
		Partial:    partial,
		Err:        err,
	}
}

// TurnCancelled marks cancellation of a turn. Reason is "user_stop" or
// "barge_in".
type TurnCancelled struct {
	Base
	Reason  string
	Partial string
}

func NewTurnCancelled(turnID int64, reason, partial string) TurnCancelled {
	return TurnCancelled{Base: NewTurnBase(KindTurnCancelled, turnID), Reason: reason, Partial: partial}
}
