package playback

// Unit is one batch of text spoken as a single piece of audio.
type Unit struct {
	Seq    uint64
	TurnID int64
	Text   string
}

// Event is one of UnitStarted, UnitFinished, UnitFailed or Drained.
type Event interface {
	isPlaybackEvent()
}

type UnitStarted struct {
	Unit Unit
}

// UnitFinished is emitted when a unit's audio ends. Interrupted is set when
// playback was cut short by Stop, Flush or DropTurn.
type UnitFinished struct {
	Unit        Unit
	Interrupted bool
}

type UnitFailed struct {
	Unit Unit
	Err  error
}

// Drained is emitted when the last queued unit has been handled and nothing
// else is waiting to play, and after EndTurn once the queue is idle.
type Drained struct {
	LastTurnID int64
}

func (UnitStarted) isPlaybackEvent()  {}
func (UnitFinished) isPlaybackEvent() {}
func (UnitFailed) isPlaybackEvent()   {}
func (Drained) isPlaybackEvent()      {}
