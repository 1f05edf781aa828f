// Package session holds the durable conversation state and its storage
// backends. The agent core mutates a Session in place during a run;
// persistence timing is owned by the caller.
package session

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/forgeagent/forge/llm"
)

// Message is one turn in a conversation, with the time it was appended.
type Message struct {
	Role      llm.Role           `json:"role"`
	Content   []llm.ContentBlock `json:"content"`
	Timestamp time.Time          `json:"timestamp"`
}

// NewMessage wraps a transport message with the current time.
func NewMessage(msg llm.Message) Message {
	return Message{
		Role:      msg.Role,
		Content:   msg.Content,
		Timestamp: time.Now(),
	}
}

// LLMMessage converts back to the transport representation.
func (m Message) LLMMessage() llm.Message {
	return llm.Message{Role: m.Role, Content: m.Content}
}

// Text returns the concatenated text content of the message.
func (m Message) Text() string {
	return m.LLMMessage().TextContent()
}

// ToolInvocation records one tool execution for audit and replay.
type ToolInvocation struct {
	ToolUseID string          `json:"tool_use_id"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input,omitempty"`
	Output    string          `json:"output,omitempty"`
	IsError   bool            `json:"is_error"`
	Timestamp time.Time       `json:"timestamp"`
}

// Session is the durable conversation state.
type Session struct {
	ID          string            `json:"id"`
	Messages    []Message         `json:"messages"`
	ToolHistory []ToolInvocation  `json:"tool_history,omitempty"`
	WorkingDir  string            `json:"working_dir,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// New creates an empty session rooted at the given working directory.
func New(workingDir string) *Session {
	now := time.Now()
	return &Session{
		ID:         uuid.New().String(),
		Messages:   make([]Message, 0),
		WorkingDir: workingDir,
		Metadata:   make(map[string]string),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Append adds a transport message as a new turn and bumps UpdatedAt.
func (s *Session) Append(msg llm.Message) {
	s.Messages = append(s.Messages, NewMessage(msg))
	s.UpdatedAt = time.Now()
}

// RecordToolInvocation appends an entry to the tool audit history.
func (s *Session) RecordToolInvocation(inv ToolInvocation) {
	if inv.Timestamp.IsZero() {
		inv.Timestamp = time.Now()
	}
	s.ToolHistory = append(s.ToolHistory, inv)
	s.UpdatedAt = time.Now()
}

// LLMMessages returns the conversation in transport form, in order.
func (s *Session) LLMMessages() []llm.Message {
	msgs := make([]llm.Message, len(s.Messages))
	for i, m := range s.Messages {
		msgs[i] = m.LLMMessage()
	}
	return msgs
}

// Title returns the first user message, trimmed for display.
func (s *Session) Title() string {
	for _, m := range s.Messages {
		if m.Role == llm.RoleUser {
			text := m.Text()
			if len(text) > 80 {
				return text[:77] + "..."
			}
			return text
		}
	}
	return "(empty session)"
}

// Summary is a lightweight view of a stored session for listings.
type Summary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Summarize produces the listing view of this session.
func (s *Session) Summarize() Summary {
	return Summary{
		ID:           s.ID,
		Title:        s.Title(),
		MessageCount: len(s.Messages),
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}
