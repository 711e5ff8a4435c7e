package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/koscakluka/ema-voice/core/events"
)

const plainHelp = "commands: /listen /mute /stop /voice /quit, anything else is a prompt"

// runPlain prints pipeline events line by line and reads prompts from in.
// It returns when ctx is done, the event stream closes or in hits EOF.
// Verbose also prints partial transcripts, response updates and playback
// units.
func runPlain(ctx context.Context, control controller, stream <-chan events.Event, in io.Reader, out io.Writer, verbose bool) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Fprintln(out, plainHelp)
	listening := false
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-stream:
			if !ok {
				return nil
			}
			if line := describeEvent(event, verbose); line != "" {
				fmt.Fprintln(out, line)
			}

		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}

			var err error
			switch line {
			case "/quit":
				return nil
			case "/listen":
				if listening {
					err = control.StopListening()
				} else {
					err = control.StartListening(ctx)
				}
				if err == nil {
					listening = !listening
				}
			case "/mute":
				err = control.SetSpeaking(!control.IsSpeaking())
			case "/stop":
				listening = false
				err = control.Stop()
			case "/voice":
				fmt.Fprintf(out, "voice %s\n", onOff(control.IsSpeaking()))
			default:
				if strings.HasPrefix(line, "/") {
					fmt.Fprintln(out, plainHelp)
					continue
				}
				err = control.SubmitPrompt(line)
			}
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
		}
	}
}

func describeEvent(event events.Event, verbose bool) string {
	if verbose {
		switch event := event.(type) {
		case events.UserTranscriptPartial:
			return fmt.Sprintf("[partial] %s", event.Transcript)
		case events.AssistantResponseUpdated:
			return fmt.Sprintf("[response %d] %s", event.TurnID(), event.Text)
		case events.AssistantPlaybackStarted:
			return fmt.Sprintf("[playback %d] %s", event.TurnID(), event.Text)
		case events.AssistantPlaybackEnded:
			return fmt.Sprintf("[playback %d] ended", event.TurnID())
		}
	}

	switch event := event.(type) {
	case events.StateChanged:
		return fmt.Sprintf("[state] %s -> %s", event.From, event.To)
	case events.TranscriptionStateChanged:
		return fmt.Sprintf("[transcription] %s", event.State)
	case events.TranscriptionError:
		return fmt.Sprintf("[transcription] error: %v", event.Err)
	case events.UserTranscriptFinal:
		return fmt.Sprintf("you (%d): %s", event.TurnID(), event.Transcript)
	case events.UserTranscriptEmpty:
		return "[transcription] heard nothing"
	case events.UserPromptSubmitted:
		return fmt.Sprintf("you (%d): %s", event.TurnID(), event.Prompt)
	case events.AssistantResponseFinal:
		return fmt.Sprintf("ema (%d): %s", event.TurnID(), event.Text)
	case events.AssistantPlaybackFailed:
		return fmt.Sprintf("[playback] failed: %v", event.Err)
	case events.TurnCancelled:
		return fmt.Sprintf("[turn %d] cancelled (%s): %s", event.TurnID(), event.Reason, event.Partial)
	case events.TurnFailed:
		return fmt.Sprintf("[turn %d] %s (%s): %s", event.TurnID(), event.Diagnostic, event.ErrorKind, event.Partial)
	}
	return ""
}
