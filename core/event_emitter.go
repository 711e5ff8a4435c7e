package orchestration

import events "github.com/koscakluka/ema-voice/core/events"

type eventEmitter func(events.Event)

func noopEventEmitter(events.Event) {}

func newCallbackEventEmitter(opts OrchestrateOptions) eventEmitter {
	return func(event events.Event) {
		switch typedEvent := event.(type) {
		case events.UserTranscriptPartial:
			if opts.onInterimTranscription != nil {
				opts.onInterimTranscription(typedEvent.Transcript)
			}
		case events.UserTranscriptFinal:
			if opts.onTranscription != nil {
				opts.onTranscription(typedEvent.Transcript)
			}
		case events.UserTranscriptEmpty:
			if opts.onEmptyTranscription != nil {
				opts.onEmptyTranscription()
			}
		case events.AssistantResponseUpdated:
			if opts.onResponse != nil {
				opts.onResponse(typedEvent.Text)
			}
		case events.AssistantResponseFinal:
			if opts.onResponseEnd != nil {
				opts.onResponseEnd(typedEvent.Text)
			}
		case events.AssistantPlaybackStarted:
			if opts.onAudioStarted != nil {
				opts.onAudioStarted(typedEvent.Text)
			}
		case events.AssistantPlaybackEnded:
			if opts.onAudioEnded != nil {
				opts.onAudioEnded(typedEvent.Transcript)
			}
		case events.TurnCancelled:
			if opts.onCancellation != nil {
				opts.onCancellation(typedEvent.TurnID())
			}
		case events.TurnFailed:
			if opts.onFailure != nil {
				opts.onFailure(ErrorKind(typedEvent.ErrorKind), typedEvent.Diagnostic, typedEvent.Partial)
			}
		case events.StateChanged:
			if opts.onStateChanged != nil {
				opts.onStateChanged(State(typedEvent.From), State(typedEvent.To))
			}
		}
	}
}
