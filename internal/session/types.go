// Package session manages per-user conversation state. A session is an
// append-only sequence of turns keyed by user ID; turns are never
// mutated, removed, or reordered once appended.
package session

import (
	"time"

	"github.com/sentellent/senti/internal/llm"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// Turn is a single entry in a conversation. User turns may carry images
// (data URLs) alongside text; assistant turns may carry tool calls;
// tool turns carry the result of exactly one tool call.
type Turn struct {
	Role       Role           `json:"role"`
	Content    string         `json:"content"`
	Images     []string       `json:"images,omitempty"`
	ToolCalls  []llm.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Message converts a turn to the LLM wire shape.
func (t Turn) Message() llm.Message {
	return llm.Message{
		Role:       string(t.Role),
		Content:    t.Content,
		Images:     t.Images,
		ToolCalls:  t.ToolCalls,
		ToolCallID: t.ToolCallID,
	}
}

// Messages converts a turn slice for an LLM request.
func Messages(turns []Turn) []llm.Message {
	out := make([]llm.Message, len(turns))
	for i, t := range turns {
		out[i] = t.Message()
	}
	return out
}

// Session is the conversation record for one user.
type Session struct {
	UserID    string    `json:"user_id"`
	Turns     []Turn    `json:"turns"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
