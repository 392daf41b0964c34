package models

import (
	"maps"
	"strings"
)

// Role labels a turn for logging and provider mapping.
type Role string

const (
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleToolCall   Role = "tool_call"
	RoleToolResult Role = "tool_result"
)

// Turn is one entry of a Conversation. The set of implementations is closed:
// UserTurn, AssistantTurn, ToolCallTurn and ToolResultTurn.
type Turn interface {
	Role() Role
	isTurn()
}

// ContentBlock is one typed piece of assistant content.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	MIME string `json:"mime,omitempty"`
	Data []byte `json:"data,omitempty"`
}

// UserTurn is text supplied by the user or a delegating supervisor.
type UserTurn struct {
	Text string
}

// AssistantTurn is model output. Either Text or Blocks is set.
type AssistantTurn struct {
	Text   string
	Blocks []ContentBlock
}

// ToolCallTurn is a structured request to run a tool.
type ToolCallTurn struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ToolResultTurn carries a tool's textual result back to the model.
type ToolResultTurn struct {
	CallID  string
	Name    string
	Result  string
	IsError bool
}

func (UserTurn) Role() Role       { return RoleUser }
func (AssistantTurn) Role() Role  { return RoleAssistant }
func (ToolCallTurn) Role() Role   { return RoleToolCall }
func (ToolResultTurn) Role() Role { return RoleToolResult }

func (UserTurn) isTurn()       {}
func (AssistantTurn) isTurn()  {}
func (ToolCallTurn) isTurn()   {}
func (ToolResultTurn) isTurn() {}

// Content returns the turn text, joining text blocks with newlines.
func (t AssistantTurn) Content() string {
	if len(t.Blocks) == 0 {
		return t.Text
	}
	parts := make([]string, 0, len(t.Blocks))
	for _, b := range t.Blocks {
		if b.Type == "text" || b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Conversation is an ordered, append-only sequence of turns.
type Conversation []Turn

// NewConversation starts a conversation with a single user turn.
func NewConversation(text string) Conversation {
	return Conversation{UserTurn{Text: text}}
}

// Clone returns a copy that can be appended to without affecting c.
func (c Conversation) Clone() Conversation {
	out := make(Conversation, len(c))
	for i, t := range c {
		if call, ok := t.(ToolCallTurn); ok {
			call.Arguments = maps.Clone(call.Arguments)
			t = call
		}
		out[i] = t
	}
	return out
}

// Last returns the final turn, or nil for an empty conversation.
func (c Conversation) Last() Turn {
	if len(c) == 0 {
		return nil
	}
	return c[len(c)-1]
}

// PendingToolCalls returns the tool calls after the last assistant or tool result turn
// that have no matching result yet.
func (c Conversation) PendingToolCalls() []ToolCallTurn {
	answered := make(map[string]bool)
	var calls []ToolCallTurn
	for i := len(c) - 1; i >= 0; i-- {
		switch t := c[i].(type) {
		case ToolResultTurn:
			answered[t.CallID] = true
		case ToolCallTurn:
			if !answered[t.ID] {
				calls = append([]ToolCallTurn{t}, calls...)
			}
		default:
			return calls
		}
	}
	return calls
}
