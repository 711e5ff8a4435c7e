package playback

import (
	"strings"
	"unicode"
)

const DefaultMinWords = 3

// Batcher coalesces streamed text fragments into speakable batches. It is
// not safe for concurrent use; the Queue guards it with its own lock.
type Batcher struct {
	MinWords int

	pending string
}

func NewBatcher(minWords int) *Batcher {
	if minWords <= 0 {
		minWords = DefaultMinWords
	}
	return &Batcher{MinWords: minWords}
}

// Add appends fragment and returns any batches that are ready to be spoken.
//
// Text is cut when it ends with sentence punctuation, otherwise at the last
// sentence terminator followed by whitespace, otherwise at the last
// whitespace once MinWords complete words are buffered.
func (b *Batcher) Add(fragment string) []string {
	b.pending += fragment

	trimmed := strings.TrimRightFunc(b.pending, unicode.IsSpace)
	if trimmed == "" {
		return nil
	}
	if isSentenceEnd(rune(trimmed[len(trimmed)-1])) {
		return b.cut(len(b.pending))
	}

	if i := lastSentenceBoundary(b.pending); i >= 0 {
		return b.cut(i + 1)
	}

	if i := strings.LastIndexFunc(b.pending, unicode.IsSpace); i > 0 {
		if len(strings.Fields(b.pending[:i])) >= b.MinWords {
			return b.cut(i)
		}
	}
	return nil
}

// Remainder returns whatever text is still buffered and empties the batcher.
func (b *Batcher) Remainder() string {
	text := strings.TrimSpace(b.pending)
	b.pending = ""
	return text
}

func (b *Batcher) Reset() {
	b.pending = ""
}

func (b *Batcher) Buffered() bool {
	return strings.TrimSpace(b.pending) != ""
}

func (b *Batcher) cut(at int) []string {
	batch := strings.TrimSpace(b.pending[:at])
	b.pending = strings.TrimLeftFunc(b.pending[at:], unicode.IsSpace)
	if batch == "" {
		return nil
	}
	return []string{batch}
}

// lastSentenceBoundary returns the index of the last sentence terminator that
// is followed by whitespace, or -1.
func lastSentenceBoundary(text string) int {
	for i := len(text) - 2; i >= 0; i-- {
		if isSentenceEnd(rune(text[i])) && unicode.IsSpace(rune(text[i+1])) {
			return i
		}
	}
	return -1
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?':
		return true
	}
	return false
}
