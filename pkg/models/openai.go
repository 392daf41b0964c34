package models

import (
	"context"
	"encoding/json"
	"errors"
	"os"

	"github.com/sashabaranov/go-openai"
)

type OpenAIChat struct {
	Client      *openai.Client
	Model       string
	Temperature float32
	MaxTokens   int
}

func NewOpenAIChat(s Settings) (*OpenAIChat, error) {
	apiKey := s.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_KEY") // fallback
	}
	if apiKey == "" {
		return nil, missingKey("openai", "OPENAI_API_KEY")
	}
	cfg := openai.DefaultConfig(apiKey)
	if s.BaseURL != "" {
		cfg.BaseURL = s.BaseURL
	}
	model := s.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIChat{
		Client:      openai.NewClientWithConfig(cfg),
		Model:       model,
		Temperature: s.Temperature,
		MaxTokens:   s.MaxTokens,
	}, nil
}

func (o *OpenAIChat) Complete(ctx context.Context, req Request) (Response, error) {
	messages, err := openAIMessages(req.System, req.Conversation)
	if err != nil {
		return Response{}, err
	}

	creq := openai.ChatCompletionRequest{
		Model:       o.Model,
		Messages:    messages,
		Temperature: o.Temperature,
		MaxTokens:   o.MaxTokens,
	}
	for _, t := range req.Tools {
		creq.Tools = append(creq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	resp, err := o.Client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return Response{}, providerError("openai", err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, providerError("openai", errors.New("no response from OpenAI"))
	}

	msg := resp.Choices[0].Message
	out := Response{Text: msg.Content}
	for _, call := range msg.ToolCalls {
		args, err := decodeArguments([]byte(call.Function.Arguments))
		if err != nil {
			return Response{}, providerError("openai", err)
		}
		id := call.ID
		if id == "" {
			id = newCallID()
		}
		out.ToolCalls = append(out.ToolCalls, ToolCallTurn{ID: id, Name: call.Function.Name, Arguments: args})
	}
	return out, nil
}

// openAIMessages groups consecutive tool calls into one assistant message,
// as the chat completions API requires.
func openAIMessages(system string, conv Conversation) ([]openai.ChatCompletionMessage, error) {
	var messages []openai.ChatCompletionMessage
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}

	for _, turn := range conv {
		switch t := turn.(type) {
		case UserTurn:
			messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: t.Text})
		case AssistantTurn:
			messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: t.Content()})
		case ToolCallTurn:
			args, err := json.Marshal(t.Arguments)
			if err != nil {
				return nil, err
			}
			call := openai.ToolCall{
				ID:   t.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      t.Name,
					Arguments: string(args),
				},
			}
			if n := len(messages); n > 0 && messages[n-1].Role == openai.ChatMessageRoleAssistant {
				messages[n-1].ToolCalls = append(messages[n-1].ToolCalls, call)
				continue
			}
			messages = append(messages, openai.ChatCompletionMessage{
				Role:      openai.ChatMessageRoleAssistant,
				ToolCalls: []openai.ToolCall{call},
			})
		case ToolResultTurn:
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    t.Result,
				Name:       t.Name,
				ToolCallID: t.CallID,
			})
		}
	}
	return messages, nil
}

var _ ChatModel = (*OpenAIChat)(nil)
