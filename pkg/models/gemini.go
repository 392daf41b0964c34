package models

import (
	"context"
	"errors"
	"os"
	"strings"

	genai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// ---------------------------- Google Gemini ----------------------------------

type GeminiChat struct {
	Client      *genai.Client
	Model       string
	Temperature float32
	MaxTokens   int
}

// NewGeminiChat reads the key from s.APIKey, then GOOGLE_API_KEY, then GEMINI_API_KEY.
func NewGeminiChat(ctx context.Context, s Settings) (*GeminiChat, error) {
	apiKey := s.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
	}
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, missingKey("gemini", "GOOGLE_API_KEY or GEMINI_API_KEY")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, providerError("gemini init", err)
	}
	model := s.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &GeminiChat{Client: client, Model: model, Temperature: s.Temperature, MaxTokens: s.MaxTokens}, nil
}

func (g *GeminiChat) Complete(ctx context.Context, req Request) (Response, error) {
	contents, err := geminiContents(req.Conversation)
	if err != nil {
		return Response{}, err
	}

	// A fresh GenerativeModel per call keeps concurrent requests isolated.
	model := g.Client.GenerativeModel(g.Model)
	model.SetTemperature(g.Temperature)
	if g.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(g.MaxTokens))
	}
	if sys := strings.TrimSpace(req.System); sys != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(sys)}}
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  geminiSchema(t.Parameters),
			})
		}
		model.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	cs := model.StartChat()
	cs.History = contents[:len(contents)-1]
	resp, err := cs.SendMessage(ctx, contents[len(contents)-1].Parts...)
	if err != nil {
		return Response{}, providerError("gemini generate", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return Response{}, providerError("gemini", errors.New("empty response"))
	}

	var (
		out  Response
		text []string
	)
	for _, part := range resp.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			if s := string(p); s != "" {
				text = append(text, s)
			}
		case genai.FunctionCall:
			out.ToolCalls = append(out.ToolCalls, ToolCallTurn{ID: newCallID(), Name: p.Name, Arguments: p.Args})
		}
	}
	out.Text = strings.Join(text, "")
	return out, nil
}

// geminiContents maps the conversation onto alternating user/model contents.
func geminiContents(conv Conversation) ([]*genai.Content, error) {
	var contents []*genai.Content
	push := func(role string, part genai.Part) {
		if n := len(contents); n > 0 && contents[n-1].Role == role {
			contents[n-1].Parts = append(contents[n-1].Parts, part)
			return
		}
		contents = append(contents, &genai.Content{Role: role, Parts: []genai.Part{part}})
	}

	for _, turn := range conv {
		switch t := turn.(type) {
		case UserTurn:
			push("user", genai.Text(t.Text))
		case AssistantTurn:
			if text := t.Content(); text != "" {
				push("model", genai.Text(text))
			}
		case ToolCallTurn:
			push("model", genai.FunctionCall{Name: t.Name, Args: t.Arguments})
		case ToolResultTurn:
			push("user", genai.FunctionResponse{Name: t.Name, Response: map[string]any{"result": t.Result}})
		}
	}
	if len(contents) == 0 {
		return nil, errors.New("gemini: conversation is empty")
	}
	if contents[len(contents)-1].Role != "user" {
		return nil, errors.New("gemini: conversation must end with a user or tool result turn")
	}
	return contents, nil
}

// Close releases the underlying client.
func (g *GeminiChat) Close() error {
	return g.Client.Close()
}

var _ ChatModel = (*GeminiChat)(nil)
