package models

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	pcberrors "github.com/Protocol-Lattice/pcb-agent/pkg/errors"
)

// Settings selects and configures a chat model provider.
type Settings struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// NewChatModel builds the provider adapter named by s.Provider.
func NewChatModel(ctx context.Context, s Settings) (ChatModel, error) {
	var (
		model ChatModel
		err   error
	)
	switch strings.ToLower(strings.TrimSpace(s.Provider)) {
	case "gemini", "google":
		model, err = NewGeminiChat(ctx, s)
	case "openai":
		model, err = NewOpenAIChat(s)
	case "anthropic", "claude":
		model, err = NewAnthropicChat(s)
	case "ollama":
		model, err = NewOllamaChat(s)
	default:
		return nil, pcberrors.Newf("unknown provider: %s", s.Provider).
			Component("models").
			Category(pcberrors.CategoryConfiguration).
			Build()
	}
	if err != nil {
		return nil, err
	}
	if s.Timeout > 0 {
		model = WithTimeout(model, s.Timeout)
	}
	return model, nil
}

// WithTimeout bounds every Complete call of m. The result forwards Close to
// m when m has one.
func WithTimeout(m ChatModel, d time.Duration) ChatModel {
	return &timeoutModel{inner: m, timeout: d}
}

type timeoutModel struct {
	inner   ChatModel
	timeout time.Duration
}

func (t *timeoutModel) Complete(ctx context.Context, req Request) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.Complete(ctx, req)
}

func (t *timeoutModel) Close() error {
	if c, ok := t.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func missingKey(provider, envVars string) error {
	return pcberrors.Newf("%s: missing API key (set %s)", provider, envVars).
		Component("models").
		Category(pcberrors.CategoryMissingCredential).
		Context("provider", provider).
		Build()
}

func providerError(provider string, err error) error {
	return pcberrors.New(fmt.Errorf("%s: %w", provider, err)).
		Component("models").
		Category(pcberrors.CategoryProviderError).
		Context("provider", provider).
		Build()
}
