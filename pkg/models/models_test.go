package models

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	genai "github.com/google/generative-ai-go/genai"
	"github.com/sashabaranov/go-openai"

	pcberrors "github.com/Protocol-Lattice/pcb-agent/pkg/errors"
)

func TestNewDummyChatDefaultPrefix(t *testing.T) {
	llm := NewDummyChat("")
	resp, err := llm.Complete(context.Background(), Request{Conversation: NewConversation("line1\nline2")})
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if resp.Text != "Dummy response: line1\nline2" {
		t.Fatalf("unexpected response: %q", resp.Text)
	}
}

func TestDummyChatHandlesEmptyConversation(t *testing.T) {
	llm := NewDummyChat("Prefix")
	resp, err := llm.Complete(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if resp.Text != "Prefix <empty prompt>" {
		t.Fatalf("unexpected response: %q", resp.Text)
	}
}

func TestNewChatModelErrorsOnUnknownProvider(t *testing.T) {
	_, err := NewChatModel(context.Background(), Settings{Provider: "unknown"})
	if err == nil {
		t.Fatalf("expected error for unknown provider")
	}
	if !errors.Is(err, pcberrors.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestNewChatModelMissingKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_KEY", "")
	_, err := NewChatModel(context.Background(), Settings{Provider: "openai"})
	if !errors.Is(err, pcberrors.ErrMissingCredential) {
		t.Fatalf("expected missing credential error, got %v", err)
	}
}

func TestWithTimeoutSetsDeadline(t *testing.T) {
	var sawDeadline bool
	inner := ChatModelFunc(func(ctx context.Context, _ Request) (Response, error) {
		_, sawDeadline = ctx.Deadline()
		return Say("ok"), nil
	})
	if _, err := WithTimeout(inner, time.Second).Complete(context.Background(), Request{}); err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if !sawDeadline {
		t.Fatalf("expected context deadline")
	}
}

type closingModel struct {
	ChatModelFunc
	closed int
}

func (c *closingModel) Close() error {
	c.closed++
	return nil
}

func TestWithTimeoutForwardsClose(t *testing.T) {
	inner := &closingModel{ChatModelFunc: func(context.Context, Request) (Response, error) { return Say("ok"), nil }}
	wrapped := WithTimeout(inner, time.Second)
	c, ok := wrapped.(io.Closer)
	if !ok {
		t.Fatalf("wrapped model does not expose Close")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if inner.closed != 1 {
		t.Fatalf("expected inner Close once, got %d", inner.closed)
	}
	if err := WithTimeout(NewDummyChat(""), time.Second).(io.Closer).Close(); err != nil {
		t.Fatalf("Close without inner closer returned error: %v", err)
	}
}

func TestResponseTurns(t *testing.T) {
	resp := Response{
		Text: "looking",
		ToolCalls: []ToolCallTurn{
			{ID: "a", Name: "one"},
			{ID: "b", Name: "two"},
		},
	}
	turns := resp.Turns()
	if len(turns) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(turns))
	}
	if _, ok := turns[0].(AssistantTurn); !ok {
		t.Fatalf("first turn should be assistant, got %T", turns[0])
	}
	if call, ok := turns[2].(ToolCallTurn); !ok || call.ID != "b" {
		t.Fatalf("unexpected last turn %#v", turns[2])
	}

	final := Say("done").Turns()
	if len(final) != 1 || final[0].Role() != RoleAssistant {
		t.Fatalf("final answer should be a single assistant turn: %#v", final)
	}
}

func TestConversationPendingToolCalls(t *testing.T) {
	conv := Conversation{
		UserTurn{Text: "hi"},
		ToolCallTurn{ID: "1", Name: "x"},
		ToolCallTurn{ID: "2", Name: "y"},
		ToolResultTurn{CallID: "1", Name: "x", Result: "ok"},
	}
	pending := conv.PendingToolCalls()
	if len(pending) != 1 || pending[0].ID != "2" {
		t.Fatalf("unexpected pending calls: %#v", pending)
	}

	conv = append(conv, ToolResultTurn{CallID: "2", Name: "y", Result: "ok"})
	if got := conv.PendingToolCalls(); len(got) != 0 {
		t.Fatalf("expected no pending calls, got %#v", got)
	}
}

func TestConversationCloneCopiesArguments(t *testing.T) {
	conv := Conversation{ToolCallTurn{ID: "1", Name: "x", Arguments: map[string]any{"k": "v"}}}
	clone := conv.Clone()
	clone[0].(ToolCallTurn).Arguments["k"] = "changed"
	if conv[0].(ToolCallTurn).Arguments["k"] != "v" {
		t.Fatalf("clone shares argument map with original")
	}
}

func TestAssistantTurnContentJoinsBlocks(t *testing.T) {
	turn := AssistantTurn{Blocks: []ContentBlock{{Type: "text", Text: "a"}, {Type: "text", Text: "b"}}}
	if got := turn.Content(); got != "a\nb" {
		t.Fatalf("unexpected content %q", got)
	}
}

func TestOpenAIMessagesGroupsToolCalls(t *testing.T) {
	conv := Conversation{
		UserTurn{Text: "q"},
		ToolCallTurn{ID: "1", Name: "x", Arguments: map[string]any{"a": 1}},
		ToolCallTurn{ID: "2", Name: "y"},
		ToolResultTurn{CallID: "1", Name: "x", Result: "r1"},
		ToolResultTurn{CallID: "2", Name: "y", Result: "r2"},
	}
	msgs, err := openAIMessages("sys", conv)
	if err != nil {
		t.Fatalf("openAIMessages: %v", err)
	}
	if len(msgs) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(msgs))
	}
	if msgs[0].Role != openai.ChatMessageRoleSystem {
		t.Fatalf("expected system message first, got %q", msgs[0].Role)
	}
	if len(msgs[2].ToolCalls) != 2 {
		t.Fatalf("expected grouped tool calls, got %d", len(msgs[2].ToolCalls))
	}
	if msgs[3].Role != openai.ChatMessageRoleTool || msgs[3].ToolCallID != "1" {
		t.Fatalf("unexpected tool message %#v", msgs[3])
	}
}

func TestGeminiContentsAlternatesRoles(t *testing.T) {
	conv := Conversation{
		UserTurn{Text: "q"},
		ToolCallTurn{ID: "1", Name: "x"},
		ToolResultTurn{CallID: "1", Name: "x", Result: "r"},
	}
	contents, err := geminiContents(conv)
	if err != nil {
		t.Fatalf("geminiContents: %v", err)
	}
	if len(contents) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(contents))
	}
	if contents[1].Role != "model" || contents[2].Role != "user" {
		t.Fatalf("unexpected roles %q %q", contents[1].Role, contents[2].Role)
	}

	if _, err := geminiContents(Conversation{UserTurn{Text: "q"}, AssistantTurn{Text: "a"}}); err == nil {
		t.Fatalf("expected error when conversation ends with the model")
	}
}

func TestGeminiSchema(t *testing.T) {
	schema := geminiSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": "string", "description": "q"},
			"topic": map[string]any{"type": "string", "enum": []any{"general", "news"}},
			"n":     map[string]any{"type": "integer"},
		},
		"required": []any{"query"},
	})
	if schema.Type != genai.TypeObject {
		t.Fatalf("expected object schema")
	}
	if schema.Properties["n"].Type != genai.TypeInteger {
		t.Fatalf("expected integer property")
	}
	if len(schema.Properties["topic"].Enum) != 2 {
		t.Fatalf("expected enum values to carry over")
	}
	if len(schema.Required) != 1 || schema.Required[0] != "query" {
		t.Fatalf("unexpected required list %v", schema.Required)
	}
}

func TestScriptedChatReplaysAndRecords(t *testing.T) {
	m := NewScriptedChat(Call("c1", "tool", nil), Say("done"))
	ctx := context.Background()

	first, err := m.Complete(ctx, Request{Conversation: NewConversation("go")})
	if err != nil || len(first.ToolCalls) != 1 {
		t.Fatalf("unexpected first response %#v, %v", first, err)
	}
	second, err := m.Complete(ctx, Request{Conversation: NewConversation("go")})
	if err != nil || second.Text != "done" {
		t.Fatalf("unexpected second response %#v, %v", second, err)
	}
	if _, err := m.Complete(ctx, Request{}); !errors.Is(err, ErrScriptExhausted) {
		t.Fatalf("expected exhaustion error, got %v", err)
	}
	if got := len(m.Requests()); got != 3 {
		t.Fatalf("expected 3 recorded requests, got %d", got)
	}
}
