package client

import (
	"log/slog"
	"net/http"
	"time"
)

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithServerAddr sets the routewarden server address.
// If not set, defaults to the ROUTEWARDEN_SERVER_ADDR environment variable.
func WithServerAddr(addr string) Option {
	return func(c *Client) {
		c.serverAddr = addr
	}
}

// WithAPIKey sets the API key for authenticating with the server.
// If not set, defaults to the ROUTEWARDEN_API_KEY environment variable.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithFailMode sets the behavior when the server is unreachable:
// "open" allows navigation, "closed" returns an error. Defaults to the
// ROUTEWARDEN_FAIL_MODE environment variable or "open".
func WithFailMode(mode string) Option {
	return func(c *Client) {
		c.failMode = mode
	}
}

// WithTimeout sets the HTTP request timeout. Defaults to 5 seconds.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithRetries sets how many times a request is retried after a 5xx
// response. Defaults to 2. Zero disables retries.
func WithRetries(n int) Option {
	return func(c *Client) {
		c.retries = n
	}
}

// WithHTTPClient sets a custom http.Client, useful for testing or custom
// transport configurations.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}
