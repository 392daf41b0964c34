// Package httpclient provides the shared outbound HTTP client used by the
// vision, storage, search and market price integrations.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

const (
	// DefaultTimeout applies when the request context carries no deadline.
	DefaultTimeout = 30 * time.Second

	// MaxErrorBody bounds how much of a failed response body ends up in errors.
	MaxErrorBody = 512

	defaultUserAgent = "pcb-agent/1.0"
)

// BrowserUserAgent is sent when fetching arbitrary web pages.
const BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// Config holds client settings.
type Config struct {
	Timeout   time.Duration
	UserAgent string
}

// Client wraps http.Client with a default timeout and user agent.
// Safe for concurrent use.
type Client struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
}

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
	URL        string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.URL, e.StatusCode, e.Body)
}

// New creates a client. A nil cfg uses the defaults.
func New(cfg *Config) *Client {
	c := Config{Timeout: DefaultTimeout, UserAgent: defaultUserAgent}
	if cfg != nil {
		if cfg.Timeout > 0 {
			c.Timeout = cfg.Timeout
		}
		if cfg.UserAgent != "" {
			c.UserAgent = cfg.UserAgent
		}
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}

	return &Client{
		client:    &http.Client{Transport: transport},
		timeout:   c.Timeout,
		userAgent: c.UserAgent,
	}
}

// StandardClient exposes the underlying *http.Client, e.g. for httpmock.ActivateNonDefault.
func (c *Client) StandardClient() *http.Client { return c.client }

// Timeout reports the default per-request timeout.
func (c *Client) Timeout() time.Duration { return c.timeout }

// Do sends req, applying the default timeout when ctx has no deadline.
// The returned cancel func must be called once the body is consumed.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, context.CancelFunc, error) {
	cancel := context.CancelFunc(func() {})
	if _, ok := ctx.Deadline(); !ok && c.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
	}
	req = req.WithContext(ctx)
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		cancel()
		var uerr *url.Error
		if errors.As(err, &uerr) {
			uerr.URL = RedactURL(req.URL)
		}
		return nil, func() {}, err
	}
	return resp, cancel, nil
}

// Get fetches rawURL and returns the body of a 2xx response.
func (c *Client) Get(ctx context.Context, rawURL string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return c.read(ctx, req)
}

// Post sends body with the given content type and returns the body of a 2xx response.
func (c *Client) Post(ctx context.Context, rawURL, contentType string, body []byte, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return c.read(ctx, req)
}

// GetJSON fetches rawURL and decodes the JSON body into out.
func (c *Client) GetJSON(ctx context.Context, rawURL string, header http.Header, out any) error {
	body, err := c.Get(ctx, rawURL, header)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// PostJSON encodes in, posts it and decodes the JSON answer into out (when non-nil).
func (c *Client) PostJSON(ctx context.Context, rawURL string, in any, header http.Header, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	body, err := c.Post(ctx, rawURL, "application/json", payload, header)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// RedactURL renders u with credentials in the query string masked.
func RedactURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	clone := *u
	q := clone.Query()
	for _, key := range []string{"api_key", "apikey", "key", "token"} {
		if q.Has(key) {
			q.Set(key, "REDACTED")
		}
	}
	clone.RawQuery = q.Encode()
	return clone.Redacted()
}

func (c *Client) read(ctx context.Context, req *http.Request) ([]byte, error) {
	resp, cancel, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(body)
		if len(snippet) > MaxErrorBody {
			snippet = snippet[:MaxErrorBody]
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: snippet, URL: RedactURL(req.URL)}
	}
	return body, nil
}
