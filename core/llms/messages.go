package llms

import "context"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one finalized utterance in the conversation history.
type Message struct {
	Role    Role
	Content string
}

// Request is everything a backend needs to generate one turn's response.
type Request struct {
	TurnID       int64
	Prompt       string
	Context      []Message
	ModelID      string
	SystemPrompt string
}

// Messages returns the request as a chat transcript: system prompt, prior
// context, then the prompt itself.
func (r Request) Messages() []Message {
	messages := make([]Message, 0, len(r.Context)+2)
	if r.SystemPrompt != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: r.SystemPrompt})
	}
	for _, msg := range r.Context {
		if msg.Content == "" {
			continue
		}
		messages = append(messages, msg)
	}
	return append(messages, Message{Role: RoleUser, Content: r.Prompt})
}

// Backend starts streaming generations against one service.
type Backend interface {
	PromptWithStream(ctx context.Context, req Request) Stream
}

// RemoteCanceller is implemented by backends whose service holds turn state
// that must be released explicitly.
type RemoteCanceller interface {
	CancelTurn(ctx context.Context, turnID int64) error
}
