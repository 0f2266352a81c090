// Package client talks to the control API an esbox session serves with --serve.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client calls one esbox control server.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger // Optional logger for client operations
}

const defaultBaseURL = "http://127.0.0.1:7070"

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: defaultBaseURL,
		Timeout: 10 * time.Second,
	}
}

// New creates a control API client. A BaseURL without scheme gets http://.
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if !strings.Contains(config.BaseURL, "://") {
		config.BaseURL = "http://" + config.BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// IsReachable checks if the session is serving its control API
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		c.logger.Debug("Failed to create request for reachability check", "error", err)
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("esbox unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Status returns the controller state plus resource samples of the live run.
// samples bounds the sampler history; zero uses the server default.
func (c *Client) Status(ctx context.Context, samples int) (*Status, error) {
	u := c.baseURL + "/status"
	if samples > 0 {
		u += "?samples=" + strconv.Itoa(samples)
	}
	var st Status
	if err := c.doRequest(ctx, http.MethodGet, u, http.StatusOK, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Rerun requests a debounced rerun, as if a script file had been saved.
func (c *Client) Rerun(ctx context.Context) error {
	c.logger.Debug("Requesting rerun", "url", c.baseURL)
	return c.doRequest(ctx, http.MethodPost, c.baseURL+"/rerun", http.StatusAccepted, nil)
}

// History returns up to limit recorded run events, newest first.
func (c *Client) History(ctx context.Context, limit int) ([]HistoryEvent, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	u := c.baseURL + "/history"
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	var events []HistoryEvent
	if err := c.doRequest(ctx, http.MethodGet, u, http.StatusOK, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// doRequest performs HTTP request with common error handling and decodes the
// body into out when out is non-nil.
func (c *Client) doRequest(ctx context.Context, method, u string, want int, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("HTTP request failed", "error", err, "url", u)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != want {
		return c.handleErrorResponse(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// handleErrorResponse turns a non-success response into an error
func (c *Client) handleErrorResponse(resp *http.Response) error {
	var errorResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil || errorResp.Error == "" {
		c.logger.Error("Failed to decode error response", "status", resp.StatusCode)
		return &APIError{StatusCode: resp.StatusCode}
	}
	c.logger.Debug("API request failed", "error", errorResp.Error, "status", resp.StatusCode)
	return &APIError{StatusCode: resp.StatusCode, Message: errorResp.Error}
}
