package history

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-voice/core/llms"
)

// Entry is one finalized message of a conversation.
type Entry struct {
	ID        string
	SessionID string
	TurnID    int64
	Role      llms.Role
	Content   string
	CreatedAt time.Time
}

// Store keeps the finalized messages of one conversation session.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	// Recent returns up to limit of the newest entries, oldest first. A
	// limit of zero or less returns everything.
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Clear(ctx context.Context) error
}

// NewEntry fills in the ID and creation time of a message.
func NewEntry(turnID int64, role llms.Role, content string) Entry {
	return Entry{
		ID:        uuid.NewString(),
		TurnID:    turnID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// Messages converts entries to generation context.
func Messages(entries []Entry) []llms.Message {
	messages := make([]llms.Message, 0, len(entries))
	for _, entry := range entries {
		messages = append(messages, llms.Message{Role: entry.Role, Content: entry.Content})
	}
	return messages
}

type Memory struct {
	sessionID string

	mu      sync.RWMutex
	entries []Entry
}

func NewMemory() *Memory {
	return &Memory{sessionID: uuid.NewString()}
}

func (m *Memory) Append(_ context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	entry.SessionID = m.sessionID

	m.mu.Lock()
	m.entries = append(m.entries, entry)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Recent(_ context.Context, limit int) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := m.entries
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return append([]Entry(nil), entries...), nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	m.entries = nil
	m.mu.Unlock()
	return nil
}
