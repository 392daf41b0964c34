package tools

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Protocol-Lattice/pcb-agent/pkg/agent"
	pcberrors "github.com/Protocol-Lattice/pcb-agent/pkg/errors"
	"github.com/Protocol-Lattice/pcb-agent/pkg/logging"
)

func registerTavily(t *testing.T, body string) {
	t.Helper()
	httpmock.RegisterResponder(http.MethodPost, DefaultTavilyURL,
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer tvly-key", req.Header.Get("Authorization"))
			var got tavilyRequest
			require.NoError(t, json.NewDecoder(req.Body).Decode(&got))
			assert.Equal(t, "IPC-A-600 solder inspection", got.Query)
			return httpmock.NewStringResponse(http.StatusOK, body), nil
		})
}

func TestSearchToolFetchesPagesInOrder(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"))

	client := mockedClient(t)
	registerTavily(t, `{"results":[
		{"title":"IPC overview","url":"https://a.example.com/ipc"},
		{"title":"","url":"https://b.example.com/broken"},
		{"title":"No url","url":""}
	]}`)
	httpmock.RegisterResponder(http.MethodGet, "https://a.example.com/ipc",
		func(req *http.Request) (*http.Response, error) {
			assert.Contains(t, req.Header.Get("User-Agent"), "Mozilla/5.0")
			return httpmock.NewStringResponse(http.StatusOK,
				`<html><body><h1>Inspection</h1><p>Class 3 boards need <b>AOI</b>.</p></body></html>`), nil
		})
	httpmock.RegisterResponder(http.MethodGet, "https://b.example.com/broken",
		httpmock.NewStringResponder(http.StatusNotFound, "gone"))

	tool := NewSearchTool(SearchConfig{APIKey: staticKey("tvly-key")}, client, logging.Discard())
	resp, err := tool.Invoke(context.Background(), agent.ToolRequest{Arguments: map[string]any{
		"query":       "IPC-A-600 solder inspection",
		"max_results": 3,
	}})
	require.NoError(t, err)

	out := resp.Content
	assert.Contains(t, out, "Found 2 result(s) for 'IPC-A-600 solder inspection' (External Context):")
	assert.Contains(t, out, "## IPC overview\n**URL:** https://a.example.com/ipc\n\n")
	assert.Contains(t, out, "Class 3 boards need AOI")
	assert.NotContains(t, out, "<p>")
	assert.Contains(t, out, "## No Title\n**URL:** https://b.example.com/broken")
	assert.Contains(t, out, "Error fetching content from https://b.example.com/broken")
	assert.Less(t, strings.Index(out, "a.example.com"), strings.Index(out, "b.example.com"))
	assert.Equal(t, "2", resp.Metadata["results"])
}

func TestSearchToolCachesPages(t *testing.T) {
	client := mockedClient(t)
	registerTavily(t, `{"results":[{"title":"t","url":"https://a.example.com/page"}]}`)
	httpmock.RegisterResponder(http.MethodGet, "https://a.example.com/page",
		httpmock.NewStringResponder(http.StatusOK, "<p>cached body</p>"))

	tool := NewSearchTool(SearchConfig{APIKey: staticKey("tvly-key")}, client, logging.Discard())
	args := agent.ToolRequest{Arguments: map[string]any{"query": "IPC-A-600 solder inspection"}}
	for i := 0; i < 2; i++ {
		resp, err := tool.Invoke(context.Background(), args)
		require.NoError(t, err)
		assert.Contains(t, resp.Content, "cached body")
	}
	assert.Equal(t, 1, httpmock.GetCallCountInfo()["GET https://a.example.com/page"])
}

func TestSearchToolTruncatesLongPages(t *testing.T) {
	client := mockedClient(t)
	registerTavily(t, `{"results":[{"title":"long","url":"https://a.example.com/long"}]}`)
	httpmock.RegisterResponder(http.MethodGet, "https://a.example.com/long",
		httpmock.NewStringResponder(http.StatusOK, strings.Repeat("x", 500)))

	tool := NewSearchTool(SearchConfig{APIKey: staticKey("tvly-key"), MaxPageChars: 100}, client, logging.Discard())
	resp, err := tool.Invoke(context.Background(), agent.ToolRequest{Arguments: map[string]any{"query": "IPC-A-600 solder inspection"}})
	require.NoError(t, err)
	assert.Contains(t, resp.Content, strings.Repeat("x", 100)+"\n\n[content truncated]")
	assert.NotContains(t, resp.Content, strings.Repeat("x", 101))
}

func TestSearchToolNoResults(t *testing.T) {
	client := mockedClient(t)
	registerTavily(t, `{"results":[]}`)

	tool := NewSearchTool(SearchConfig{APIKey: staticKey("tvly-key")}, client, logging.Discard())
	resp, err := tool.Invoke(context.Background(), agent.ToolRequest{Arguments: map[string]any{"query": "IPC-A-600 solder inspection"}})
	require.NoError(t, err)
	assert.Equal(t, "No results found for query: 'IPC-A-600 solder inspection'.", resp.Content)
}

func TestSearchToolEngineFailure(t *testing.T) {
	client := mockedClient(t)
	httpmock.RegisterResponder(http.MethodPost, DefaultTavilyURL,
		httpmock.NewStringResponder(http.StatusUnauthorized, `{"detail":"invalid key"}`))

	tool := NewSearchTool(SearchConfig{APIKey: staticKey("tvly-key")}, client, logging.Discard())
	_, err := tool.Invoke(context.Background(), agent.ToolRequest{Arguments: map[string]any{"query": "x"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, pcberrors.ErrProviderError))
	assert.Contains(t, err.Error(), "connecting to search engine")
}

func TestSearchToolArguments(t *testing.T) {
	tool := NewSearchTool(SearchConfig{}, nil, logging.Discard())

	_, err := tool.Invoke(context.Background(), agent.ToolRequest{Arguments: map[string]any{"query": "x"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, pcberrors.ErrMissingCredential))

	_, err = tool.Invoke(context.Background(), agent.ToolRequest{Arguments: map[string]any{"query": "x", "topic": "sports"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid 'topic'")

	_, err = tool.Invoke(context.Background(), agent.ToolRequest{Arguments: map[string]any{}})
	assert.Error(t, err)
}
