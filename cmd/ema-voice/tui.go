package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	orchestration "github.com/koscakluka/ema-voice/core"
	"github.com/koscakluka/ema-voice/core/events"
	"github.com/koscakluka/ema-voice/core/texttospeech"
)

// controller is the part of the orchestrator the interfaces drive.
type controller interface {
	SubmitPrompt(prompt string) error
	StartListening(ctx context.Context) error
	StopListening() error
	Stop() error
	SetSpeaking(speaking bool) error
	IsSpeaking() bool
}

var (
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	noteStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("7")).Padding(0, 1)
)

type entry struct {
	user   bool
	turnID int64
	text   string
	note   string
	failed bool
}

type (
	eventMsg     struct{ event events.Event }
	streamEndMsg struct{}
	actionMsg    struct {
		action string
		err    error
	}
)

type model struct {
	ctx     context.Context
	control controller
	voices  texttospeech.VoiceSelector
	stream  <-chan events.Event

	input    textinput.Model
	viewport viewport.Model
	width    int

	entries       []entry
	partial       string
	state         string
	transcription string
	listening     bool
	voice         string
	status        string
	statusErr     bool
}

func newModel(ctx context.Context, control controller, voices texttospeech.VoiceSelector, stream <-chan events.Event) model {
	input := textinput.New()
	input.Placeholder = "Type a prompt and press enter"
	input.Focus()

	return model{
		ctx:           ctx,
		control:       control,
		voices:        voices,
		stream:        stream,
		input:         input,
		viewport:      viewport.New(80, 20),
		width:         80,
		state:         orchestration.StateIdle.String(),
		transcription: "disconnected",
	}
}

func waitForEvent(stream <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-stream
		if !ok {
			return streamEndMsg{}
		}
		return eventMsg{event: event}
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForEvent(m.stream))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = max(msg.Width-4, 10)
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-3, 1)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case eventMsg:
		m.apply(msg.event)
		m.refresh()
		return m, waitForEvent(m.stream)

	case streamEndMsg:
		return m, tea.Quit

	case actionMsg:
		if msg.err != nil && msg.action == "listening" {
			m.listening = false
		}
		if msg.err != nil {
			m.setStatus(fmt.Sprintf("%s: %v", msg.action, msg.err), true)
		} else if msg.action != "" {
			m.setStatus(msg.action, false)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit

	case "enter":
		prompt := strings.TrimSpace(m.input.Value())
		if prompt == "" {
			return m, nil
		}
		m.input.SetValue("")
		return m, m.run("", func() error { return m.control.SubmitPrompt(prompt) })

	case "ctrl+r":
		m.listening = !m.listening
		if m.listening {
			ctx := m.ctx
			return m, m.run("listening", func() error { return m.control.StartListening(ctx) })
		}
		return m, m.run("stopped listening", m.control.StopListening)

	case "ctrl+s":
		m.listening = false
		return m, m.run("stopped", m.control.Stop)

	case "ctrl+t":
		speaking := !m.control.IsSpeaking()
		label := "voice off"
		if speaking {
			label = "voice on"
		}
		return m, m.run(label, func() error { return m.control.SetSpeaking(speaking) })

	case "ctrl+o":
		voice, err := m.nextVoice()
		if err != nil {
			m.setStatus(err.Error(), true)
			return m, nil
		}
		m.setStatus("voice: "+voice, false)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// run calls the orchestrator off the update loop, since some calls dial out.
func (m model) run(action string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return actionMsg{action: action, err: fn()}
	}
}

func (m *model) nextVoice() (string, error) {
	if m.voices == nil {
		return "", errors.New("voice selection is not supported")
	}
	voices := m.voices.Voices()
	if len(voices) == 0 {
		return "", errors.New("no voices available")
	}

	current := -1
	for i, voice := range voices {
		if voice == m.voice {
			current = i
			break
		}
	}
	next := voices[(current+1)%len(voices)]
	if err := m.voices.SetVoice(next); err != nil {
		return "", err
	}
	m.voice = next
	return next, nil
}

func (m *model) setStatus(status string, isErr bool) {
	m.status = status
	m.statusErr = isErr
}

func (m *model) apply(event events.Event) {
	switch event := event.(type) {
	case events.StateChanged:
		m.state = event.To
	case events.TranscriptionStateChanged:
		m.transcription = event.State
	case events.TranscriptionError:
		m.setStatus("transcription: "+event.Err.Error(), true)
		if event.Terminal {
			m.listening = false
		}
	case events.UserTranscriptPartial:
		m.partial = event.Transcript
	case events.UserTranscriptEmpty:
		m.partial = ""
		m.setStatus("heard nothing", false)
	case events.UserTranscriptFinal:
		m.partial = ""
		m.entries = append(m.entries, entry{user: true, turnID: event.TurnID(), text: event.Transcript})
	case events.UserPromptSubmitted:
		m.entries = append(m.entries, entry{user: true, turnID: event.TurnID(), text: event.Prompt})
	case events.AssistantResponseUpdated:
		m.assistant(event.TurnID()).text = event.Text
	case events.AssistantResponseFinal:
		m.assistant(event.TurnID()).text = event.Text
	case events.AssistantPlaybackFailed:
		m.setStatus("playback: "+event.Err.Error(), true)
	case events.TurnCancelled:
		e := m.assistant(event.TurnID())
		e.text = event.Partial
		e.note = "cancelled"
	case events.TurnFailed:
		e := m.assistant(event.TurnID())
		e.text = event.Partial
		e.note = fmt.Sprintf("%s (%s)", event.Diagnostic, event.ErrorKind)
		e.failed = true
	}
}

// assistant returns the response entry of a turn, adding it if needed.
func (m *model) assistant(turnID int64) *entry {
	for i := len(m.entries) - 1; i >= 0; i-- {
		if !m.entries[i].user && m.entries[i].turnID == turnID {
			return &m.entries[i]
		}
	}
	m.entries = append(m.entries, entry{turnID: turnID})
	return &m.entries[len(m.entries)-1]
}

func (m *model) refresh() {
	m.viewport.SetContent(m.transcript())
	m.viewport.GotoBottom()
}

func (m model) transcript() string {
	width := max(m.width-2, 20)

	var b strings.Builder
	for _, e := range m.entries {
		if e.user {
			b.WriteString(userStyle.Render("you"))
		} else {
			b.WriteString(assistantStyle.Render("ema"))
		}
		b.WriteString("\n")
		if e.text != "" {
			b.WriteString(wordwrap.String(e.text, width))
			b.WriteString("\n")
		}
		if e.note != "" {
			style := noteStyle
			if e.failed {
				style = errorStyle
			}
			b.WriteString(style.Render(wordwrap.String(e.note, width)))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	if m.partial != "" {
		b.WriteString(noteStyle.Render(wordwrap.String(m.partial+"...", width)))
		b.WriteString("\n")
	}
	return b.String()
}

func (m model) View() string {
	status := fmt.Sprintf("%s | stt %s | voice %s", m.state, m.transcription, onOff(m.control.IsSpeaking()))
	if m.listening {
		status += " | mic on"
	}
	if m.status != "" {
		status += " | " + m.status
	}
	bar := statusStyle.Render(status)
	if m.statusErr {
		bar = errorStyle.Render(status)
	}

	return lipgloss.JoinVertical(lipgloss.Left, m.viewport.View(), bar, m.input.View())
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func runTUI(ctx context.Context, p *pipeline, stream <-chan events.Event) error {
	program := tea.NewProgram(newModel(ctx, p.orchestrator, p.voices, stream), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("terminal UI failed: %w", err)
	}
	return nil
}
