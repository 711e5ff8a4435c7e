package llms

import "errors"

var (
	ErrEmptyPrompt        = errors.New("prompt is empty")
	ErrConnection         = errors.New("generation connection error")
	ErrGenerationTimeout  = errors.New("generation timed out")
	ErrGenerationCanceled = errors.New("generation canceled")
	ErrClosed             = errors.New("generator closed")
)
