package events

import "time"

type Kind string

type Event interface {
	Kind() Kind
	Timestamp() time.Time
	// TurnID is the turn the event belongs to, or 0 for events outside any
	// turn.
	TurnID() int64
}

type Base struct {
	kind      Kind
	timestamp time.Time
	turnID    int64
}

func NewBase(kind Kind) Base {
	return Base{kind: kind, timestamp: time.Now()}
}

// NewTurnBase creates a base for an event scoped to turnID.
func NewTurnBase(kind Kind, turnID int64) Base {
	return Base{kind: kind, timestamp: time.Now(), turnID: turnID}
}

func (b Base) Kind() Kind {
	return b.kind
}

func (b Base) Timestamp() time.Time {
	return b.timestamp
}

func (b Base) TurnID() int64 {
	return b.turnID
}
