package tools

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/spf13/cast"

	"github.com/Protocol-Lattice/pcb-agent/pkg/agent"
	pcberrors "github.com/Protocol-Lattice/pcb-agent/pkg/errors"
	"github.com/Protocol-Lattice/pcb-agent/pkg/httpclient"
)

const (
	MarketToolName    = "check_material_market_price"
	DefaultSerpAPIURL = "https://serpapi.com/search"

	maxMarketRegions = 3
)

// MarketConfig configures the Google Finance lookup through SerpAPI.
type MarketConfig struct {
	BaseURL string
	// APIKey is read per request so a missing key surfaces as a tool error.
	APIKey func() string
}

// MarketTool looks up raw material prices. No caching, no retries.
type MarketTool struct {
	client *httpclient.Client
	cfg    MarketConfig
	logger *slog.Logger
}

func NewMarketTool(cfg MarketConfig, client *httpclient.Client, logger *slog.Logger) *MarketTool {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultSerpAPIURL
	}
	if cfg.APIKey == nil {
		cfg.APIKey = func() string { return "" }
	}
	if client == nil {
		client = httpclient.New(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MarketTool{client: client, cfg: cfg, logger: logger.With("component", "tools", "tool", MarketToolName)}
}

func (m *MarketTool) Spec() agent.ToolSpec {
	return agent.ToolSpec{
		Name:        MarketToolName,
		Description: "Checks real-time market prices of PCB raw materials (Copper, Gold, Silver, Tin) using Google Finance.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Material name or ticker symbol, e.g. \"Copper price\", \"Gold price\", \"LME Copper\".",
				},
			},
			"required": []any{"query"},
		},
	}
}

type financeMovement struct {
	Percentage any    `json:"percentage"`
	Value      any    `json:"value"`
	Movement   string `json:"movement"`
}

type financeQuote struct {
	Title         string          `json:"title"`
	Name          string          `json:"name"`
	Stock         string          `json:"stock"`
	Exchange      string          `json:"exchange"`
	Price         any             `json:"price"`
	Currency      string          `json:"currency"`
	PriceMovement financeMovement `json:"price_movement"`
}

type financeResponse struct {
	Error   string                    `json:"error"`
	Summary *financeQuote             `json:"summary"`
	Markets map[string][]financeQuote `json:"markets"`
}

func (m *MarketTool) Invoke(ctx context.Context, req agent.ToolRequest) (agent.ToolResponse, error) {
	query, err := stringArg(req.Arguments, "query")
	if err != nil {
		return agent.ToolResponse{}, err
	}
	key := strings.TrimSpace(m.cfg.APIKey())
	if key == "" {
		return agent.ToolResponse{}, pcberrors.Newf("SERPAPI_API_KEY not found in environment variables.").
			Component("tools").
			Category(pcberrors.CategoryMissingCredential).
			Context("tool", MarketToolName).
			Build()
	}

	params := url.Values{}
	params.Set("engine", "google_finance")
	params.Set("q", query)
	params.Set("api_key", key)

	var resp financeResponse
	if err := m.client.GetJSON(ctx, m.cfg.BaseURL+"?"+params.Encode(), nil, &resp); err != nil {
		m.logger.Warn("market lookup failed", "query", query, "error", err)
		return agent.ToolResponse{}, providerFailure(fmt.Errorf("fetching market data: %w", err))
	}
	if resp.Error != "" {
		return agent.ToolResponse{}, providerFailure(fmt.Errorf("fetching market data: %s", resp.Error))
	}
	return agent.ToolResponse{Content: formatFinance(query, resp)}, nil
}

func providerFailure(err error) error {
	return pcberrors.New(err).
		Component("tools").
		Category(pcberrors.CategoryProviderError).
		Build()
}

// formatFinance renders the summary quote and the first quote of up to three
// market regions.
func formatFinance(query string, resp financeResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n", query)
	if s := resp.Summary; s != nil {
		if s.Title != "" {
			fmt.Fprintf(&b, "title: %s\n", s.Title)
		}
		if s.Stock != "" {
			fmt.Fprintf(&b, "stock: %s\n", s.Stock)
		}
		if s.Exchange != "" {
			fmt.Fprintf(&b, "exchange: %s\n", s.Exchange)
		}
		if price := cast.ToString(s.Price); price != "" {
			fmt.Fprintf(&b, "price: %s %s\n", price, s.Currency)
		}
		if mv := formatMovement(s.PriceMovement); mv != "" {
			fmt.Fprintf(&b, "movement: %s\n", mv)
		}
	} else {
		b.WriteString("No summary quote available.\n")
	}

	shown := 0
	for _, region := range []string{"us", "europe", "asia", "futures", "currencies", "crypto"} {
		if shown == maxMarketRegions {
			break
		}
		quotes := resp.Markets[region]
		if len(quotes) == 0 {
			continue
		}
		q := quotes[0]
		name := q.Name
		if name == "" {
			name = q.Stock
		}
		fmt.Fprintf(&b, "%s: %s price = %s", region, name, cast.ToString(q.Price))
		if mv := formatMovement(q.PriceMovement); mv != "" {
			fmt.Fprintf(&b, ", movement = %s", mv)
		}
		b.WriteByte('\n')
		shown++
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatMovement(m financeMovement) string {
	pct := cast.ToString(m.Percentage)
	if m.Movement == "" && pct == "" {
		return ""
	}
	parts := []string{}
	if m.Movement != "" {
		parts = append(parts, m.Movement)
	}
	if pct != "" {
		parts = append(parts, pct+"%")
	}
	if v := cast.ToString(m.Value); v != "" {
		parts = append(parts, "("+v+")")
	}
	return strings.Join(parts, " ")
}
