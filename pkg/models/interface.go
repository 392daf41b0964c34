package models

import (
	"context"
)

// ToolDefinition describes a callable tool to the model.
type ToolDefinition struct {
	Name        string
	Description string
	// Parameters is a JSON schema object: {"type":"object","properties":{...},"required":[...]}.
	Parameters map[string]any
}

// Request is one completion request: instructions, history and the tools on offer.
type Request struct {
	System       string
	Conversation Conversation
	Tools        []ToolDefinition
}

// Response is the next step chosen by the model.
// A response without ToolCalls is a final answer.
type Response struct {
	Text      string
	Blocks    []ContentBlock
	ToolCalls []ToolCallTurn
}

// HasText reports whether the response carries assistant content.
func (r Response) HasText() bool {
	return r.Text != "" || len(r.Blocks) > 0
}

// Turns converts the response into conversation turns: an assistant turn (when the
// model produced content) followed by one turn per tool call.
func (r Response) Turns() []Turn {
	turns := make([]Turn, 0, len(r.ToolCalls)+1)
	if r.HasText() || len(r.ToolCalls) == 0 {
		turns = append(turns, AssistantTurn{Text: r.Text, Blocks: r.Blocks})
	}
	for _, call := range r.ToolCalls {
		turns = append(turns, call)
	}
	return turns
}

// ChatModel completes a conversation given tools: the next message or tool calls.
type ChatModel interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// ChatModelFunc adapts a function to ChatModel.
type ChatModelFunc func(ctx context.Context, req Request) (Response, error)

func (f ChatModelFunc) Complete(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}
