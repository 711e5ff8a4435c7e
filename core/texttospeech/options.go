package texttospeech

import (
	"context"
	"errors"

	"github.com/koscakluka/ema-voice/core/audio"
)

var ErrSynthesis = errors.New("speech synthesis failed")

// Speech is the synthesized audio for one piece of text.
type Speech struct {
	Audio    []byte
	Encoding audio.EncodingInfo
}

func (s Speech) Duration() float64 {
	return s.Encoding.Duration(len(s.Audio)).Seconds()
}

// Synthesizer turns text into audio. Synthesize must return promptly once
// ctx is done, and errors should wrap ErrSynthesis.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (Speech, error)
}

// VoiceSelector is implemented by synthesizers that offer more than one
// voice.
type VoiceSelector interface {
	Voices() []string
	SetVoice(voice string) error
}
