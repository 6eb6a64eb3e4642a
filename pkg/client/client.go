// Package client is the Go client for the routewarden decision API.
//
// Frameworks that cannot embed the engine directly call POST /v1/decide on
// a routewarden server before rendering a protected route. The client adds
// API key auth, timeouts, and a configurable fail mode for when the server
// is unreachable.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// Decision is the server's answer for one identity/path pair.
type Decision struct {
	Allowed    bool   `json:"allowed"`
	RedirectTo string `json:"redirect_to,omitempty"`
	Reason     string `json:"reason"`
	Pattern    string `json:"pattern,omitempty"`
}

// DecideRequest describes one guard evaluation.
type DecideRequest struct {
	SubjectID     string   `json:"subject_id,omitempty"`
	Roles         []string `json:"roles,omitempty"`
	Authenticated bool     `json:"authenticated"`
	Path          string   `json:"path"`
}

// Policy is one entry of the server's policy table.
type Policy struct {
	Pattern       string   `json:"pattern"`
	RequiredRoles []string `json:"required_roles"`
	RequiresAuth  bool     `json:"requires_auth"`
	Fallback      string   `json:"fallback,omitempty"`
	Condition     string   `json:"condition,omitempty"`
}

// Client talks to a routewarden server.
type Client struct {
	serverAddr string
	apiKey     string
	failMode   string
	timeout    time.Duration
	retries    int
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client. Configuration is read from ROUTEWARDEN_*
// environment variables; options override.
func NewClient(opts ...Option) *Client {
	c := &Client{
		serverAddr: os.Getenv("ROUTEWARDEN_SERVER_ADDR"),
		apiKey:     os.Getenv("ROUTEWARDEN_API_KEY"),
		failMode:   envOrDefault("ROUTEWARDEN_FAIL_MODE", "open"),
		timeout:    parseDurationEnv("ROUTEWARDEN_TIMEOUT", 5*time.Second),
		retries:    2,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	return c
}

// Decide evaluates an identity against a path on the server. When the
// server is unreachable and the fail mode is "open", navigation is allowed
// rather than broken; "closed" returns a *ServerUnreachableError instead.
func (c *Client) Decide(ctx context.Context, req DecideRequest) (*Decision, error) {
	var decision Decision
	err := c.doRequest(ctx, http.MethodPost, "/v1/decide", req, &decision)
	if err != nil {
		if isConnectionError(err) {
			if c.failMode == "closed" {
				return nil, &ServerUnreachableError{Cause: err}
			}
			c.logger.Warn("routewarden server unreachable, failing open",
				"server_addr", c.serverAddr,
				"error", err,
			)
			return &Decision{Allowed: true, Reason: "server unreachable, fail-open"}, nil
		}
		return nil, err
	}
	return &decision, nil
}

// Check evaluates a request and returns just the allow bit.
func (c *Client) Check(ctx context.Context, req DecideRequest) (bool, error) {
	decision, err := c.Decide(ctx, req)
	if err != nil {
		return false, err
	}
	return decision.Allowed, nil
}

// Policies fetches the server's active policy table.
func (c *Client) Policies(ctx context.Context) ([]Policy, error) {
	var resp struct {
		Policies []Policy `json:"policies"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/v1/policies", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Policies, nil
}

// Reload asks the server to rebuild its policy table from the store.
func (c *Client) Reload(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodPost, "/v1/reload", nil, nil)
}

// doRequest performs one API call, retrying on 5xx responses. All endpoints
// are idempotent, so retrying a failed attempt is safe.
func (c *Client) doRequest(ctx context.Context, method, path string, body any, result any) error {
	var jsonBody []byte
	if body != nil {
		var err error
		jsonBody, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	var err error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
			}
		}
		err = c.doAttempt(ctx, method, path, jsonBody, result)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode >= 500 {
			continue
		}
		return err
	}
	return err
}

func (c *Client) doAttempt(ctx context.Context, method, path string, jsonBody []byte, result any) error {
	url := strings.TrimRight(c.serverAddr, "/") + path

	var bodyReader io.Reader
	if jsonBody != nil {
		bodyReader = bytes.NewReader(jsonBody)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if jsonBody != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return &APIError{
			StatusCode: httpResp.StatusCode,
			Err:        fmt.Errorf("server returned %d: %s", httpResp.StatusCode, string(respBody)),
		}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func parseDurationEnv(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return defaultVal
}
