package llms

// ChunkEvent is one update of a turn's response. Every turn ends with exactly
// one terminal event: IsFinal for success, Err otherwise. AccumulatedText
// never shrinks within a turn, and a terminal error keeps whatever text was
// generated before it.
type ChunkEvent struct {
	TurnID          int64
	AccumulatedText string
	IsFinal         bool
	Err             error
}

func (e ChunkEvent) Terminal() bool {
	return e.IsFinal || e.Err != nil
}
