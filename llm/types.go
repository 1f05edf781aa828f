package llm

import (
	"encoding/json"
	"strings"
)

// Role identifies who produced a message in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockKind is the discriminator tag for ContentBlock.
type BlockKind string

const (
	BlockText       BlockKind = "text"
	BlockToolUse    BlockKind = "tool_use"
	BlockToolResult BlockKind = "tool_result"
)

// ToolUseData is a model-initiated tool invocation request.
type ToolUseData struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResultData is the outcome of a tool invocation, fed back to the model.
type ToolResultData struct {
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error"`
}

// ContentBlock is a tagged union representing one block of a message.
type ContentBlock struct {
	Kind       BlockKind       `json:"kind"`
	Text       string          `json:"text,omitempty"`
	ToolUse    *ToolUseData    `json:"tool_use,omitempty"`
	ToolResult *ToolResultData `json:"tool_result,omitempty"`
}

// TextBlock creates a text ContentBlock.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Kind: BlockText, Text: text}
}

// ToolUseBlock creates a tool use ContentBlock.
func ToolUseBlock(id, name string, input json.RawMessage) ContentBlock {
	return ContentBlock{
		Kind:    BlockToolUse,
		ToolUse: &ToolUseData{ID: id, Name: name, Input: input},
	}
}

// ToolResultBlock creates a tool result ContentBlock.
func ToolResultBlock(toolUseID, content string, isError bool) ContentBlock {
	return ContentBlock{
		Kind:       BlockToolResult,
		ToolResult: &ToolResultData{ToolUseID: toolUseID, Content: content, IsError: isError},
	}
}

// Message is one turn sent to or received from the model.
type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// UserMessage creates a user Message with text content.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: []ContentBlock{TextBlock(text)}}
}

// AssistantMessage creates an assistant Message with text content.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: []ContentBlock{TextBlock(text)}}
}

// TextContent returns the concatenation of all text blocks.
func (m Message) TextContent() string {
	var sb strings.Builder
	for _, block := range m.Content {
		if block.Kind == BlockText {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}

// ToolUses extracts all tool use requests from the message content.
func (m Message) ToolUses() []ToolUseData {
	var uses []ToolUseData
	for _, block := range m.Content {
		if block.Kind == BlockToolUse && block.ToolUse != nil {
			uses = append(uses, *block.ToolUse)
		}
	}
	return uses
}

// ToolDefinition is the serializable tool contract sent to the model.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// StopReason describes why the model stopped generating.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
)

// TokenUsage tracks token consumption for a single model call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add returns a new TokenUsage that is the sum of u and other.
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
		TotalTokens:      u.TotalTokens + other.TotalTokens,
	}
}

// Request is the input to Client.Complete.
type Request struct {
	Model       string           `json:"model"`
	Messages    []Message        `json:"messages"`
	System      string           `json:"system,omitempty"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	Provider    string           `json:"provider,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
}

// Response is the output of Client.Complete. A Response is always complete:
// transport failures surface as errors, never as partial responses.
type Response struct {
	ID         string         `json:"id"`
	Model      string         `json:"model"`
	Provider   string         `json:"provider"`
	Content    []ContentBlock `json:"content"`
	StopReason StopReason     `json:"stop_reason"`
	Usage      TokenUsage     `json:"usage"`
}

// Text returns the concatenated text of the response content.
func (r *Response) Text() string {
	var sb strings.Builder
	for _, block := range r.Content {
		if block.Kind == BlockText {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}

// ToolUses extracts tool use requests from the response content.
func (r *Response) ToolUses() []ToolUseData {
	var uses []ToolUseData
	for _, block := range r.Content {
		if block.Kind == BlockToolUse && block.ToolUse != nil {
			uses = append(uses, *block.ToolUse)
		}
	}
	return uses
}
