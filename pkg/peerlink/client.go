// Package peerlink is the peer-side multiplexer for the toolbridge relay.
// Both providers and callers use it: it opens the push channel, posts
// outbound messages, correlates incoming responses with in-flight requests,
// and dispatches inbound requests through a handler table.
package peerlink

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"

	"github.com/toolbridge/toolbridge/pkg/rpc"
)

// Role identifies which side of a session the client takes.
type Role string

const (
	// RoleProvider exposes a tool catalogue and executes calls.
	RoleProvider Role = "provider"
	// RoleCaller discovers tools and invokes them.
	RoleCaller Role = "caller"
)

// State is the client connection state.
type State int32

const (
	// StateIdle means Attach has not been called yet.
	StateIdle State = iota
	// StateConnecting means an attach attempt is in progress.
	StateConnecting
	// StateConnected means the push channel is open.
	StateConnected
	// StateDisconnected means the push channel dropped after being open.
	StateDisconnected
	// StateReconnecting means an automatic re-attach is in progress.
	StateReconnecting
	// StateTerminal means the client gave up or was explicitly disconnected.
	StateTerminal
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateReconnecting:
		return "reconnecting"
	case StateTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Tool describes one callable the provider offers. It mirrors the relay's
// catalogue descriptor on the wire.
type Tool struct {
	// Name is the unique identifier for this tool (required).
	Name string `json:"name"`

	// Description is a human-readable description.
	Description string `json:"description"`

	// InputSchema is the JSON Schema fragment for the tool's arguments.
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`

	// Capabilities optionally tags the tool with capability names.
	Capabilities []string `json:"capabilities,omitempty"`

	// Metadata carries opaque provider-defined annotations.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Handler processes an inbound request and returns a result value, which is
// normalized into content items before being sent back.
type Handler func(ctx context.Context, params map[string]any) (any, error)

// ToolFunc executes one named tool with its arguments map.
type ToolFunc func(ctx context.Context, args map[string]any) (any, error)

type pendingOutcome struct {
	result json.RawMessage
	err    *rpc.Error
}

type pendingLocal struct {
	ch chan pendingOutcome
}

// Client is a relay peer: it multiplexes requests and responses over one
// push channel down and unary POSTs up.
type Client struct {
	serverURL string
	role      Role
	sessionID string

	autoReconnect bool
	baseDelay     time.Duration
	maxAttempts   int
	connTimeout   time.Duration
	reqTimeout    time.Duration

	httpClient   *http.Client
	streamClient *http.Client
	logger       *slog.Logger
	idGen        *rpc.IDGenerator

	mu           sync.Mutex
	state        State
	peerID       string
	pending      map[string]*pendingLocal
	handlers     map[string]Handler
	tools        []Tool
	executors    map[string]ToolFunc
	streamCancel context.CancelFunc
	connectedCh  chan struct{}

	events eventHub
}

// NewClient creates a peer client for the relay at serverURL.
// The session id is generated when not supplied via WithSessionID.
func NewClient(serverURL string, role Role, opts ...Option) *Client {
	c := &Client{
		serverURL:     strings.TrimRight(serverURL, "/"),
		role:          role,
		sessionID:     uuid.NewString(),
		autoReconnect: true,
		baseDelay:     time.Second,
		maxAttempts:   5,
		connTimeout:   30 * time.Second,
		reqTimeout:    30 * time.Second,
		logger:        slog.Default(),
		idGen:         rpc.NewIDGenerator("peer"),
		pending:       make(map[string]*pendingLocal),
		handlers:      make(map[string]Handler),
		executors:     make(map[string]ToolFunc),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.reqTimeout}
	}
	// The push channel stays open indefinitely; a client-wide timeout would
	// sever it mid-stream.
	c.streamClient = &http.Client{}

	c.registerBuiltins()
	return c
}

// SessionID returns the session this client attaches to.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// PeerID returns the relay-assigned peer id, empty before the first attach
// completes.
func (c *Client) PeerID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerID
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attach opens the push channel and waits for the relay's connected
// handshake. When auto-reconnect is enabled, failed attempts are retried
// with exponential backoff up to the configured maximum.
func (c *Client) Attach(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateTerminal:
		c.mu.Unlock()
		return rpc.NewError(rpc.KindConnection, "client is terminal")
	case StateConnected, StateConnecting, StateReconnecting:
		c.mu.Unlock()
		return rpc.NewError(rpc.KindConnection, "attach already in progress")
	}
	c.state = StateConnecting
	c.mu.Unlock()

	attempts := 1
	if c.autoReconnect {
		attempts = c.maxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := c.backoffDelay(attempt - 1)
			select {
			case <-ctx.Done():
				c.setState(StateTerminal)
				return rpc.Errorf(rpc.KindConnection, "attach canceled: %v", ctx.Err())
			case <-time.After(delay):
			}
		}
		if err := c.connectOnce(ctx); err != nil {
			lastErr = err
			c.logger.Debug("attach attempt failed", "attempt", attempt, "error", err)
			continue
		}
		c.events.emit(Event{Kind: EventConnect, Time: time.Now()})
		return nil
	}

	c.setState(StateTerminal)
	c.events.emit(Event{Kind: EventError, Time: time.Now(), Err: lastErr})
	return rpc.Errorf(rpc.KindConnection, "attach failed after %d attempts: %v", attempts, lastErr)
}

// Disconnect closes the push channel, fails all in-flight requests, and
// inhibits auto-reconnect. The client cannot be reused afterwards.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.state = StateTerminal
	cancel := c.streamCancel
	c.streamCancel = nil
	failed := c.takeAllPendingLocked()
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.failPending(failed, rpc.NewError(rpc.KindConnection, "client disconnected"))
	c.httpClient.CloseIdleConnections()
	c.streamClient.CloseIdleConnections()
}

// Request sends a request and waits for its correlated response. The result
// bytes are returned verbatim; error responses surface as *rpc.Error.
func (c *Client) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return nil, rpc.Errorf(rpc.KindConnection, "not connected (state %s)", c.state)
	}
	id := c.idGen.Next()
	pl := &pendingLocal{ch: make(chan pendingOutcome, 1)}
	c.pending[id] = pl
	c.mu.Unlock()

	req, err := rpc.NewRequest(rpc.StringID(id), method, params)
	if err != nil {
		c.removePending(id)
		return nil, err
	}
	if err := c.post(ctx, req); err != nil {
		c.removePending(id)
		return nil, err
	}

	timer := time.NewTimer(c.reqTimeout)
	defer timer.Stop()

	select {
	case out := <-pl.ch:
		if out.err != nil {
			return nil, out.err
		}
		return out.result, nil
	case <-timer.C:
		c.removePending(id)
		return nil, rpc.Errorf(rpc.KindTimeout, "request %s timed out after %s", method, c.reqTimeout)
	case <-ctx.Done():
		c.removePending(id)
		return nil, ctx.Err()
	}
}

// Notify sends a fire-and-forget notification.
func (c *Client) Notify(ctx context.Context, method string, params any) error {
	note, err := rpc.NewNotification(method, params)
	if err != nil {
		return err
	}
	return c.post(ctx, note)
}

// connectOnce performs a single attach attempt: open the stream, start the
// read loop, and wait for the connected handshake.
func (c *Client) connectOnce(ctx context.Context) error {
	streamCtx, cancel := context.WithCancel(context.Background())

	u := fmt.Sprintf("%s/events?sessionId=%s&role=%s",
		c.serverURL, url.QueryEscape(c.sessionID), url.QueryEscape(string(c.role)))
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, u, nil)
	if err != nil {
		cancel()
		return rpc.Errorf(rpc.KindConnection, "build attach request: %v", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		cancel()
		return rpc.Errorf(rpc.KindConnection, "open push channel: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		cancel()
		return rpc.Errorf(rpc.KindConnection, "attach rejected: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	connected := make(chan struct{})
	c.mu.Lock()
	c.streamCancel = cancel
	c.connectedCh = connected
	c.mu.Unlock()

	go c.readLoop(resp.Body)

	select {
	case <-connected:
		return nil
	case <-time.After(c.connTimeout):
		cancel()
		return rpc.Errorf(rpc.KindConnection, "no handshake within %s", c.connTimeout)
	case <-ctx.Done():
		cancel()
		return rpc.Errorf(rpc.KindConnection, "attach canceled: %v", ctx.Err())
	}
}

// readLoop parses SSE frames off the push channel until it closes.
// Comment lines (keepalives) are skipped.
func (c *Client) readLoop(body io.ReadCloser) {
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var data bytes.Buffer
	for scanner.Scan() {
		line := scanner.Bytes()
		switch {
		case len(line) == 0:
			if data.Len() > 0 {
				frame := make([]byte, data.Len())
				copy(frame, data.Bytes())
				data.Reset()
				c.handleFrame(frame)
			}
		case bytes.HasPrefix(line, []byte("data:")):
			data.Write(bytes.TrimPrefix(bytes.TrimPrefix(line, []byte("data:")), []byte(" ")))
		default:
			// Comment or unknown field.
		}
	}

	c.onStreamClosed()
}

// onStreamClosed runs when the push channel drops: fail in-flight requests,
// then either reconnect or go terminal.
func (c *Client) onStreamClosed() {
	c.mu.Lock()
	// Drops during an attach attempt are handled by the attempt itself.
	if c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	c.state = StateDisconnected
	failed := c.takeAllPendingLocked()
	reconnect := c.autoReconnect
	if reconnect {
		c.state = StateReconnecting
	}
	c.mu.Unlock()

	c.events.emit(Event{Kind: EventDisconnect, Time: time.Now()})
	c.failPending(failed, rpc.NewError(rpc.KindConnection, "push channel closed"))

	if reconnect {
		go c.reconnectLoop()
	} else {
		c.setState(StateTerminal)
	}
}

// reconnectLoop re-attaches with exponential backoff. A provider re-registers
// its catalogue on success, since the relay may have destroyed the session
// while the provider was away.
func (c *Client) reconnectLoop() {
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		time.Sleep(c.backoffDelay(attempt))

		c.mu.Lock()
		if c.state == StateTerminal {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		if err := c.connectOnce(context.Background()); err != nil {
			c.logger.Debug("reconnect attempt failed", "attempt", attempt, "error", err)
			continue
		}

		c.events.emit(Event{Kind: EventConnect, Time: time.Now()})
		if c.role == RoleProvider {
			if err := c.reregisterTools(); err != nil {
				c.logger.Warn("tool re-registration after reconnect failed", "error", err)
			}
		}
		return
	}

	c.setState(StateTerminal)
	c.events.emit(Event{
		Kind: EventError,
		Time: time.Now(),
		Err:  rpc.Errorf(rpc.KindConnection, "reconnect failed after %d attempts", c.maxAttempts),
	})
}

func (c *Client) backoffDelay(attempt int) time.Duration {
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

// post sends one message to the ingest endpoint. The relay acknowledges
// before routing; semantic errors arrive on the push channel.
func (c *Client) post(ctx context.Context, msg jsonrpc.Message) error {
	data, err := rpc.Encode(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	sessionID, peerID := c.sessionID, c.peerID
	c.mu.Unlock()

	u := fmt.Sprintf("%s/message?sessionId=%s", c.serverURL, url.QueryEscape(sessionID))
	if peerID != "" {
		u += "&peerId=" + url.QueryEscape(peerID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		return rpc.Errorf(rpc.KindConnection, "build post: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return rpc.Errorf(rpc.KindConnection, "post message: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return rpc.Errorf(rpc.KindInvalidRequest, "relay rejected message: %s: %s",
			resp.Status, strings.TrimSpace(string(body)))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// resolvePending completes the in-flight request matching the response id.
// Unmatched responses are dropped; observers still see them as messages.
func (c *Client) resolvePending(resp *jsonrpc.Response) {
	id, ok := resp.ID.Raw().(string)
	if !ok {
		return
	}

	c.mu.Lock()
	pl, ok := c.pending[id]
	delete(c.pending, id)
	c.mu.Unlock()
	if !ok {
		return
	}

	if perr := rpc.ResponseError(resp); perr != nil {
		pl.ch <- pendingOutcome{err: perr}
		return
	}
	pl.ch <- pendingOutcome{result: json.RawMessage(resp.Result)}
}

func (c *Client) removePending(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) takeAllPendingLocked() []*pendingLocal {
	failed := make([]*pendingLocal, 0, len(c.pending))
	for id, pl := range c.pending {
		failed = append(failed, pl)
		delete(c.pending, id)
	}
	return failed
}

func (c *Client) failPending(locals []*pendingLocal, perr *rpc.Error) {
	for _, pl := range locals {
		pl.ch <- pendingOutcome{err: perr}
	}
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}
