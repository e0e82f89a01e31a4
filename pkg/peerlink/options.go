package peerlink

import (
	"log/slog"
	"net/http"
	"time"
)

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithSessionID sets the session the client attaches to.
// If not set, a random session id is generated.
func WithSessionID(id string) Option {
	return func(c *Client) {
		c.sessionID = id
	}
}

// WithAutoReconnect controls whether the client re-attaches after losing the
// push channel. Defaults to true.
func WithAutoReconnect(enabled bool) Option {
	return func(c *Client) {
		c.autoReconnect = enabled
	}
}

// WithReconnectBaseDelay sets the first reconnect delay; each subsequent
// attempt doubles it. Defaults to 1 second.
func WithReconnectBaseDelay(d time.Duration) Option {
	return func(c *Client) {
		c.baseDelay = d
	}
}

// WithMaxReconnectAttempts sets how many attach attempts are made before the
// client gives up. Defaults to 5.
func WithMaxReconnectAttempts(n int) Option {
	return func(c *Client) {
		c.maxAttempts = n
	}
}

// WithConnectionTimeout bounds how long an attach waits for the relay's
// connected handshake. Defaults to 30 seconds.
func WithConnectionTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.connTimeout = d
	}
}

// WithRequestTimeout bounds how long a request waits for its correlated
// response. Defaults to 30 seconds.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.reqTimeout = d
	}
}

// WithHTTPClient sets a custom http.Client for outbound POSTs.
// The push channel always uses a dedicated client without a global timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}
