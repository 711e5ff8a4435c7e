package events

const (
	// KindUserTranscriptPartial identifies provisional transcript updates.
	KindUserTranscriptPartial Kind = "user_input.transcript_partial"
	// KindUserTranscriptFinal identifies the final transcript for the utterance.
	KindUserTranscriptFinal Kind = "user_input.transcript_final"
	// KindUserTranscriptEmpty identifies a final transcript with no words.
	KindUserTranscriptEmpty Kind = "user_input.transcript_empty"
	// KindUserPromptSubmitted identifies a typed prompt.
	KindUserPromptSubmitted Kind = "user_input.prompt_submitted"
)

// UserTranscriptPartial carries the current provisional transcript.
type UserTranscriptPartial struct {
	Base
	Transcript string
}

func NewUserTranscriptPartial(transcript string) UserTranscriptPartial {
	return UserTranscriptPartial{Base: NewBase(KindUserTranscriptPartial), Transcript: transcript}
}

// UserTranscriptFinal carries the confirmed transcript. TurnID is the turn it
// started.
type UserTranscriptFinal struct {
	Base
	Transcript string
}

func NewUserTranscriptFinal(turnID int64, transcript string) UserTranscriptFinal {
	return UserTranscriptFinal{Base: NewTurnBase(KindUserTranscriptFinal, turnID), Transcript: transcript}
}

// UserTranscriptEmpty reports a final transcript that was dropped because it
// held only whitespace.
type UserTranscriptEmpty struct{ Base }

func NewUserTranscriptEmpty() UserTranscriptEmpty {
	return UserTranscriptEmpty{Base: NewBase(KindUserTranscriptEmpty)}
}

type UserPromptSubmitted struct {
	Base
	Prompt string
}

func NewUserPromptSubmitted(turnID int64, prompt string) UserPromptSubmitted {
	return UserPromptSubmitted{Base: NewTurnBase(KindUserPromptSubmitted, turnID), Prompt: prompt}
}
