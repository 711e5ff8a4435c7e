package events

const (
	// KindAssistantPlaybackStarted identifies the start of a played unit.
	KindAssistantPlaybackStarted Kind = "assistant_playback.started"
	// KindAssistantPlaybackUnitPlayed identifies a unit that finished playing.
	KindAssistantPlaybackUnitPlayed Kind = "assistant_playback.unit_played"
	// KindAssistantPlaybackFailed identifies a unit that could not be played.
	KindAssistantPlaybackFailed Kind = "assistant_playback.failed"
	// KindAssistantPlaybackEnded identifies the playback completion milestone.
	KindAssistantPlaybackEnded Kind = "assistant_playback.ended"
)

type AssistantPlaybackStarted struct {
	Base
	Text string
}

func NewAssistantPlaybackStarted(turnID int64, text string) AssistantPlaybackStarted {
	return AssistantPlaybackStarted{Base: NewTurnBase(KindAssistantPlaybackStarted, turnID), Text: text}
}

// AssistantPlaybackUnitPlayed marks the end of one unit. Interrupted is set
// when playback was cut short.
type AssistantPlaybackUnitPlayed struct {
	Base
	Text        string
	Interrupted bool
}

func NewAssistantPlaybackUnitPlayed(turnID int64, text string, interrupted bool) AssistantPlaybackUnitPlayed {
	return AssistantPlaybackUnitPlayed{
		Base:        NewTurnBase(KindAssistantPlaybackUnitPlayed, turnID),
		Text:        text,
		Interrupted: interrupted,
	}
}

type AssistantPlaybackFailed struct {
	Base
	Text string
	Err  error
}

func NewAssistantPlaybackFailed(turnID int64, text string, err error) AssistantPlaybackFailed {
	return AssistantPlaybackFailed{Base: NewTurnBase(KindAssistantPlaybackFailed, turnID), Text: text, Err: err}
}

// AssistantPlaybackEnded marks that nothing of the response is left to play.
// Transcript holds the text of every unit that played to the end.
type AssistantPlaybackEnded struct {
	Base
	Transcript string
}

func NewAssistantPlaybackEnded(turnID int64, transcript string) AssistantPlaybackEnded {
	return AssistantPlaybackEnded{Base: NewTurnBase(KindAssistantPlaybackEnded, turnID), Transcript: transcript}
}
