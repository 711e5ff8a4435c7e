package events

const (
	// KindAssistantResponseStarted identifies the start of generation.
	KindAssistantResponseStarted Kind = "assistant_response.started"
	// KindAssistantResponseUpdated identifies streamed assistant response text.
	KindAssistantResponseUpdated Kind = "assistant_response.updated"
	// KindAssistantResponseFinal identifies assistant response stream completion.
	KindAssistantResponseFinal Kind = "assistant_response.final"
)

type AssistantResponseStarted struct{ Base }

func NewAssistantResponseStarted(turnID int64) AssistantResponseStarted {
	return AssistantResponseStarted{Base: NewTurnBase(KindAssistantResponseStarted, turnID)}
}

// AssistantResponseUpdated carries the whole response text generated so far.
// Text never shrinks within a turn.
type AssistantResponseUpdated struct {
	Base
	Text string
}

func NewAssistantResponseUpdated(turnID int64, text string) AssistantResponseUpdated {
	return AssistantResponseUpdated{Base: NewTurnBase(KindAssistantResponseUpdated, turnID), Text: text}
}

type AssistantResponseFinal struct {
	Base
	Text string
}

func NewAssistantResponseFinal(turnID int64, text string) AssistantResponseFinal {
	return AssistantResponseFinal{Base: NewTurnBase(KindAssistantResponseFinal, turnID), Text: text}
}
