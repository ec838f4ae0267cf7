package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Client is a client for the mail aggregation REST API
type Client struct {
	baseURL    string
	wsURL      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Config for the API client
type Config struct {
	BaseURL           string // e.g., https://mail.example.com/api/v1
	WSURL             string // optional push endpoint root, e.g., wss://mail.example.com
	Timeout           time.Duration
	RequestsPerSecond float64 // 0 disables pacing
}

// NewClient creates a new API client
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		wsURL:   strings.TrimRight(cfg.WSURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}

	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return c
}

// WebSocketURL returns the push endpoint for a user. Unless configured
// explicitly, it is derived from the API URL: same host, ws(s) scheme,
// path /ws/{userID}.
func (c *Client) WebSocketURL(userID string) (string, error) {
	root := c.wsURL
	if root == "" {
		u, err := url.Parse(c.baseURL)
		if err != nil {
			return "", fmt.Errorf("failed to parse base URL: %w", err)
		}
		scheme := "ws"
		if u.Scheme == "https" {
			scheme = "wss"
		}
		root = scheme + "://" + u.Host
	}
	return root + "/ws/" + url.PathEscape(userID), nil
}

// request describes one call to the service
type request struct {
	method string
	path   string
	token  string
	query  url.Values
	json   any
	form   url.Values
}

// do performs the request and decodes a JSON response into result (if non-nil)
func (c *Client) do(ctx context.Context, r request, result any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("failed to wait for rate limiter: %w", err)
		}
	}

	target := c.baseURL + r.path
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}

	var body io.Reader
	contentType := ""
	switch {
	case r.form != nil:
		body = strings.NewReader(r.form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case r.json != nil:
		data, err := json.Marshal(r.json)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, r.method, target, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if r.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request %s %s: %w", r.method, r.path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{
			StatusCode: resp.StatusCode,
			Method:     r.method,
			Path:       r.path,
			Detail:     parseDetail(respBody),
		}
	}

	if result == nil || resp.StatusCode == http.StatusNoContent || len(respBody) == 0 {
		return nil
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to parse response from %s %s: %w", r.method, r.path, err)
	}

	return nil
}
