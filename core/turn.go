package orchestration

import (
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type turnStatus string

const (
	turnGenerating turnStatus = "generating"
	turnSpeaking   turnStatus = "speaking"
	turnCompleted  turnStatus = "completed"
	turnCanceled   turnStatus = "canceled"
	turnFailed     turnStatus = "failed"
)

// turn is owned by the event loop; nothing else reads or writes it.
type turn struct {
	id        int64
	prompt    string
	response  string
	spoken    strings.Builder
	status    turnStatus
	startedAt time.Time
	span      trace.Span
}

func (t *turn) active() bool {
	return t != nil && (t.status == turnGenerating || t.status == turnSpeaking)
}

func (t *turn) addSpoken(text string) {
	if t.spoken.Len() > 0 {
		t.spoken.WriteByte(' ')
	}
	t.spoken.WriteString(text)
}

func (t *turn) finish(status turnStatus, err error) {
	t.status = status
	if t.span == nil {
		return
	}
	t.span.SetAttributes(
		attribute.String("turn.status", string(status)),
		attribute.Int("turn.response_length", len(t.response)),
	)
	if err != nil {
		t.span.RecordError(err)
		t.span.SetStatus(codes.Error, err.Error())
	}
	t.span.End()
}
