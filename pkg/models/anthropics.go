package models

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicChat implements ChatModel using Anthropic's Messages API.
type AnthropicChat struct {
	Client      *anthropic.Client
	Model       string
	MaxTokens   int
	Temperature float32
}

// NewAnthropicChat falls back to ANTHROPIC_API_KEY when s.APIKey is empty.
func NewAnthropicChat(s Settings) (*AnthropicChat, error) {
	key := s.APIKey
	if key == "" {
		key = os.Getenv("ANTHROPIC_API_KEY")
	}
	if key == "" {
		return nil, missingKey("anthropic", "ANTHROPIC_API_KEY")
	}
	cl := anthropic.NewClient(
		anthropicopt.WithAPIKey(key),
	)
	maxTokens := s.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	model := s.Model
	if model == "" {
		model = "claude-3-5-sonnet-latest"
	}
	return &AnthropicChat{
		Client:      &cl,
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: s.Temperature,
	}, nil
}

func (a *AnthropicChat) Complete(ctx context.Context, req Request) (Response, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(a.Model),
		MaxTokens:   int64(a.MaxTokens),
		Messages:    anthropicMessages(req.Conversation),
		Temperature: anthropic.Float(float64(a.Temperature)),
	}
	if sys := strings.TrimSpace(req.System); sys != "" {
		params.System = []anthropic.TextBlockParam{{Text: sys}}
	}
	for _, t := range req.Tools {
		props, required := schemaProperties(t.Parameters)
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: props,
					Required:   required,
				},
			},
		})
	}

	msg, err := a.Client.Messages.New(ctx, params)
	if err != nil {
		return Response{}, providerError("anthropic", err)
	}

	var (
		out  Response
		text strings.Builder
	)
	for _, cb := range msg.Content {
		switch block := cb.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(block.Text)
		case anthropic.ToolUseBlock:
			args, err := decodeArguments(block.Input)
			if err != nil {
				return Response{}, providerError("anthropic", err)
			}
			out.ToolCalls = append(out.ToolCalls, ToolCallTurn{ID: block.ID, Name: block.Name, Arguments: args})
		}
	}
	out.Text = text.String()
	return out, nil
}

// anthropicMessages folds turns into alternating user/assistant messages;
// tool results travel as user-side tool_result blocks.
func anthropicMessages(conv Conversation) []anthropic.MessageParam {
	type pending struct {
		assistant bool
		blocks    []anthropic.ContentBlockParamUnion
	}
	var groups []pending
	push := func(assistant bool, block anthropic.ContentBlockParamUnion) {
		if n := len(groups); n > 0 && groups[n-1].assistant == assistant {
			groups[n-1].blocks = append(groups[n-1].blocks, block)
			return
		}
		groups = append(groups, pending{assistant: assistant, blocks: []anthropic.ContentBlockParamUnion{block}})
	}

	for _, turn := range conv {
		switch t := turn.(type) {
		case UserTurn:
			push(false, anthropic.NewTextBlock(t.Text))
		case AssistantTurn:
			if text := t.Content(); text != "" {
				push(true, anthropic.NewTextBlock(text))
			}
		case ToolCallTurn:
			input := json.RawMessage("{}")
			if raw, err := json.Marshal(t.Arguments); err == nil && t.Arguments != nil {
				input = raw
			}
			push(true, anthropic.NewToolUseBlock(t.ID, input, t.Name))
		case ToolResultTurn:
			push(false, anthropic.NewToolResultBlock(t.CallID, t.Result, t.IsError))
		}
	}

	messages := make([]anthropic.MessageParam, 0, len(groups))
	for _, g := range groups {
		if g.assistant {
			messages = append(messages, anthropic.NewAssistantMessage(g.blocks...))
		} else {
			messages = append(messages, anthropic.NewUserMessage(g.blocks...))
		}
	}
	return messages
}

var _ ChatModel = (*AnthropicChat)(nil)
