package tools

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/k3a/html2text"
	"github.com/patrickmn/go-cache"

	"github.com/Protocol-Lattice/pcb-agent/pkg/agent"
	"github.com/Protocol-Lattice/pcb-agent/pkg/concurrent"
	pcberrors "github.com/Protocol-Lattice/pcb-agent/pkg/errors"
	"github.com/Protocol-Lattice/pcb-agent/pkg/httpclient"
)

const (
	SearchToolName       = "tavily_search"
	DefaultTavilyURL     = "https://api.tavily.com/search"
	DefaultFetchTimeout  = 10 * time.Second
	DefaultPageCacheTTL  = 15 * time.Minute
	DefaultMaxPageChars  = 20000
	DefaultMaxResults    = 5
	defaultFetchParallel = 4
)

var searchTopics = []string{"general", "news", "finance"}

// SearchConfig configures the Tavily search tool.
type SearchConfig struct {
	BaseURL string
	// APIKey is read per request so a missing key surfaces as a tool error.
	APIKey       func() string
	FetchTimeout time.Duration
	CacheTTL     time.Duration
	MaxPageChars int
	// Parallel bounds concurrent page fetches.
	Parallel int
}

// SearchTool discovers URLs with Tavily and returns each page as plain text.
type SearchTool struct {
	client *httpclient.Client
	cfg    SearchConfig
	pages  *cache.Cache
	logger *slog.Logger
}

func NewSearchTool(cfg SearchConfig, client *httpclient.Client, logger *slog.Logger) *SearchTool {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultTavilyURL
	}
	if cfg.APIKey == nil {
		cfg.APIKey = func() string { return "" }
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultPageCacheTTL
	}
	if cfg.MaxPageChars <= 0 {
		cfg.MaxPageChars = DefaultMaxPageChars
	}
	if cfg.Parallel <= 0 {
		cfg.Parallel = defaultFetchParallel
	}
	if client == nil {
		client = httpclient.New(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchTool{
		client: client,
		cfg:    cfg,
		pages:  cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		logger: logger.With("component", "tools", "tool", SearchToolName),
	}
}

func (s *SearchTool) Spec() agent.ToolSpec {
	return agent.ToolSpec{
		Name: SearchToolName,
		Description: "Searches the web for supplementary external context, emerging best practices or " +
			"industry news related to PCB testing and standards compliance. Returns full page content " +
			"for every result. Use it for information not available in internal QA documents.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Search query to execute.",
				},
				"max_results": map[string]any{
					"type":        "integer",
					"description": "Maximum number of results to return (default 5).",
				},
				"topic": map[string]any{
					"type":        "string",
					"enum":        []any{"general", "news", "finance"},
					"description": "Topic filter (default general).",
				},
			},
			"required": []any{"query"},
		},
	}
}

type tavilyRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
	Topic      string `json:"topic"`
}

type tavilyResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

type tavilyResponse struct {
	Results []tavilyResult `json:"results"`
}

func (s *SearchTool) Invoke(ctx context.Context, req agent.ToolRequest) (agent.ToolResponse, error) {
	query, err := stringArg(req.Arguments, "query")
	if err != nil {
		return agent.ToolResponse{}, err
	}
	maxResults, err := optionalInt(req.Arguments, "max_results", DefaultMaxResults)
	if err != nil {
		return agent.ToolResponse{}, err
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	topic := optionalString(req.Arguments, "topic", "general")
	if !validTopic(topic) {
		return agent.ToolResponse{}, fmt.Errorf("invalid 'topic' %q; use one of %s", topic, strings.Join(searchTopics, ", "))
	}

	key := strings.TrimSpace(s.cfg.APIKey())
	if key == "" {
		return agent.ToolResponse{}, pcberrors.Newf("TAVILY_API_KEY not found in environment variables.").
			Component("tools").
			Category(pcberrors.CategoryMissingCredential).
			Context("tool", SearchToolName).
			Build()
	}

	var found tavilyResponse
	header := http.Header{}
	header.Set("Authorization", "Bearer "+key)
	if err := s.client.PostJSON(ctx, s.cfg.BaseURL, tavilyRequest{
		Query:      query,
		MaxResults: maxResults,
		Topic:      topic,
	}, header, &found); err != nil {
		s.logger.Warn("search failed", "query", query, "error", err)
		return agent.ToolResponse{}, providerFailure(fmt.Errorf("connecting to search engine: %w", err))
	}

	var hits []tavilyResult
	for _, r := range found.Results {
		if strings.TrimSpace(r.URL) != "" {
			hits = append(hits, r)
		}
	}
	if len(hits) == 0 {
		return agent.ToolResponse{Content: fmt.Sprintf("No results found for query: '%s'.", query)}, nil
	}

	pages, err := concurrent.ParallelMap(ctx, hits, func(ctx context.Context, r tavilyResult) (string, error) {
		return s.fetchPage(ctx, r.URL), nil
	}, s.cfg.Parallel)
	if err != nil {
		return agent.ToolResponse{}, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🔍 Found %d result(s) for '%s' (External Context):\n\n", len(hits), query)
	for i, r := range hits {
		title := r.Title
		if title == "" {
			title = "No Title"
		}
		fmt.Fprintf(&b, "## %s\n**URL:** %s\n\n%s\n\n---\n", title, r.URL, pages[i])
	}
	return agent.ToolResponse{
		Content:  b.String(),
		Metadata: map[string]string{"results": fmt.Sprint(len(hits))},
	}, nil
}

// fetchPage returns the readable text of url, or an inline error message.
func (s *SearchTool) fetchPage(ctx context.Context, url string) string {
	if cached, ok := s.pages.Get(url); ok {
		return cached.(string)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	header := http.Header{}
	header.Set("User-Agent", httpclient.BrowserUserAgent)
	body, err := s.client.Get(ctx, url, header)
	if err != nil {
		s.logger.Debug("page fetch failed", "url", url, "error", err)
		return fmt.Sprintf("Error fetching content from %s: %v", url, err)
	}

	text := truncateRunes(strings.TrimSpace(html2text.HTML2Text(string(body))), s.cfg.MaxPageChars)
	s.pages.SetDefault(url, text)
	return text
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "\n\n[content truncated]"
}

func validTopic(topic string) bool {
	for _, t := range searchTopics {
		if t == topic {
			return true
		}
	}
	return false
}
