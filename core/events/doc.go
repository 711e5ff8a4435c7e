// Package events defines the typed events the pipeline surfaces to its UI.
//
// Event kinds are grouped by receiver-facing namespaces:
//
//   - user_input.*
//   - assistant_response.*
//   - assistant_playback.*
//   - turn_state.*
//   - pipeline.*
//
// Every event of a turn carries that turn's ID. The orchestrator only
// surfaces events of the current turn, so a receiver never has to filter.
//
// user_input events
//
//   - UserTranscriptPartial (user_input.transcript_partial): provisional
//     transcript, replaces the previous partial.
//   - UserTranscriptFinal (user_input.transcript_final): confirmed transcript
//     for the utterance.
//   - UserTranscriptEmpty (user_input.transcript_empty): the service
//     confirmed an utterance with no words; no turn is started.
//   - UserPromptSubmitted (user_input.prompt_submitted): typed prompt.
//
// assistant_response events
//
//   - AssistantResponseStarted (assistant_response.started): generation
//     request sent.
//   - AssistantResponseUpdated (assistant_response.updated): full response
//     text so far.
//   - AssistantResponseFinal (assistant_response.final): complete response
//     text.
//
// assistant_playback events
//
//   - AssistantPlaybackStarted (assistant_playback.started): a unit of the
//     response started playing.
//   - AssistantPlaybackUnitPlayed (assistant_playback.unit_played): a unit
//     finished playing.
//   - AssistantPlaybackFailed (assistant_playback.failed): a unit could not
//     be synthesized or played.
//   - AssistantPlaybackEnded (assistant_playback.ended): nothing of the
//     response is left to play.
//
// turn_state events
//
//   - TurnStarted (turn_state.started)
//   - TurnCompleted (turn_state.completed)
//   - TurnFailed (turn_state.failed): carries the error kind, a short
//     diagnostic and the partial response.
//   - TurnCancelled (turn_state.cancelled): a successful terminal state,
//     never an error.
//
// pipeline events
//
//   - StateChanged (pipeline.state_changed)
//   - TranscriptionStateChanged (pipeline.transcription_state_changed)
//   - TranscriptionError (pipeline.transcription_error)
package events
