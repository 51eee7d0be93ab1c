// Package chat streams assistant replies from the chat endpoint and keeps
// the conversation transcript for one client.
package chat

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one transcript entry. Assistant replies may carry proposed
// diagram edits.
type Message struct {
	ID        string     `json:"id"`
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// WireMessage is the role and content pair sent over the wire.
type WireMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is the chat endpoint body.
type Request struct {
	Model     string        `json:"model"`
	Messages  []WireMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
	Stream    bool          `json:"stream,omitempty"`

	Tools      []ToolDefinition `json:"tools,omitempty"`
	ToolChoice string           `json:"tool_choice,omitempty"`
}

// Reply is a finished assistant turn.
type Reply struct {
	Content   string
	ToolCalls []ToolCall
}

// StreamChunk is one decoded frame of a streamed completion.
type StreamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string          `json:"content"`
			ToolCalls []ToolCallDelta `json:"tool_calls"`
		} `json:"delta"`
	} `json:"choices"`
}

// Content returns choices[0].delta.content, or "".
func (c StreamChunk) Content() string {
	if len(c.Choices) == 0 {
		return ""
	}
	return c.Choices[0].Delta.Content
}

// ToolCalls returns choices[0].delta.tool_calls.
func (c StreamChunk) ToolCalls() []ToolCallDelta {
	if len(c.Choices) == 0 {
		return nil
	}
	return c.Choices[0].Delta.ToolCalls
}

func toWire(msgs []Message) []WireMessage {
	out := make([]WireMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, WireMessage{Role: m.Role, Content: m.Content})
	}
	return out
}
