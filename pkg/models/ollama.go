package models

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	ollama "github.com/ollama/ollama/api"
)

// ---------------------------- Ollama -----------------------------------------

type OllamaChat struct {
	Client      *ollama.Client
	Model       string
	Temperature float32
}

func NewOllamaChat(s Settings) (*OllamaChat, error) {
	host := s.BaseURL
	if host == "" {
		host = os.Getenv("OLLAMA_HOST")
	}
	if host == "" {
		host = "http://localhost:11434"
	}

	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid OLLAMA_HOST %q: %w", host, err)
	}

	// Deadlines come from the request context (see WithTimeout).
	c := ollama.NewClient(u, &http.Client{})
	model := s.Model
	if model == "" {
		model = "llama3.1"
	}
	return &OllamaChat{Client: c, Model: model, Temperature: s.Temperature}, nil
}

func (o *OllamaChat) Complete(ctx context.Context, req Request) (Response, error) {
	messages, err := ollamaMessages(req.System, req.Conversation)
	if err != nil {
		return Response{}, err
	}

	var tools ollama.Tools
	for _, t := range req.Tools {
		var tool ollama.Tool
		spec := map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		}
		if err := remarshal(spec, &tool); err != nil {
			return Response{}, fmt.Errorf("ollama: encode tool %s: %w", t.Name, err)
		}
		tools = append(tools, tool)
	}

	stream := false
	creq := &ollama.ChatRequest{
		Model:    o.Model,
		Messages: messages,
		Tools:    tools,
		Stream:   &stream,
		Options:  map[string]any{"temperature": o.Temperature},
	}

	var (
		text  strings.Builder
		calls []ollama.ToolCall
	)
	if err := o.Client.Chat(ctx, creq, func(cr ollama.ChatResponse) error {
		text.WriteString(cr.Message.Content)
		calls = append(calls, cr.Message.ToolCalls...)
		return nil
	}); err != nil {
		return Response{}, providerError("ollama", err)
	}

	out := Response{Text: text.String()}
	for _, call := range calls {
		args := map[string]any{}
		if err := remarshal(call.Function.Arguments, &args); err != nil {
			return Response{}, providerError("ollama", err)
		}
		out.ToolCalls = append(out.ToolCalls, ToolCallTurn{ID: newCallID(), Name: call.Function.Name, Arguments: args})
	}
	return out, nil
}

func ollamaMessages(system string, conv Conversation) ([]ollama.Message, error) {
	var messages []ollama.Message
	if system != "" {
		messages = append(messages, ollama.Message{Role: "system", Content: system})
	}
	for _, turn := range conv {
		switch t := turn.(type) {
		case UserTurn:
			messages = append(messages, ollama.Message{Role: "user", Content: t.Text})
		case AssistantTurn:
			messages = append(messages, ollama.Message{Role: "assistant", Content: t.Content()})
		case ToolCallTurn:
			var call ollama.ToolCall
			if err := remarshal(map[string]any{
				"function": map[string]any{"name": t.Name, "arguments": t.Arguments},
			}, &call); err != nil {
				return nil, fmt.Errorf("ollama: encode tool call %s: %w", t.Name, err)
			}
			if n := len(messages); n > 0 && messages[n-1].Role == "assistant" {
				messages[n-1].ToolCalls = append(messages[n-1].ToolCalls, call)
				continue
			}
			messages = append(messages, ollama.Message{Role: "assistant", ToolCalls: []ollama.ToolCall{call}})
		case ToolResultTurn:
			messages = append(messages, ollama.Message{Role: "tool", Content: t.Result})
		}
	}
	return messages, nil
}

var _ ChatModel = (*OllamaChat)(nil)
