package peerlink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"

	"github.com/toolbridge/toolbridge/pkg/content"
	"github.com/toolbridge/toolbridge/pkg/rpc"
)

// RawResult marks a handler return value to be sent verbatim as the response
// result, bypassing content normalization.
type RawResult struct {
	Value any
}

// RegisterHandler installs a dispatch entry for inbound requests with the
// given method. Registering an existing method replaces its handler.
func (c *Client) RegisterHandler(method string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[method] = h
}

// RegisterTool adds a tool to the local catalogue with its executor.
// A tool with the same name is replaced. The relay does not learn about the
// tool until RegisterTools is called.
func (c *Client) RegisterTool(t Tool, fn ToolFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.tools {
		if c.tools[i].Name == t.Name {
			c.tools[i] = t
			c.executors[t.Name] = fn
			return
		}
	}
	c.tools = append(c.tools, t)
	c.executors[t.Name] = fn
}

// RegisterTools publishes the tool catalogue to the relay: the explicit
// argument when given, otherwise everything registered locally.
func (c *Client) RegisterTools(ctx context.Context, tools ...Tool) error {
	if len(tools) == 0 {
		tools = c.toolsSnapshot()
	}
	_, err := c.Request(ctx, "tools/register", map[string]any{"tools": tools})
	return err
}

// Tools returns a snapshot of the locally registered catalogue.
func (c *Client) Tools() []Tool {
	return c.toolsSnapshot()
}

func (c *Client) toolsSnapshot() []Tool {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Tool, len(c.tools))
	copy(out, c.tools)
	return out
}

// reregisterTools republishes the catalogue after a reconnect.
func (c *Client) reregisterTools() error {
	tools := c.toolsSnapshot()
	if len(tools) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.reqTimeout)
	defer cancel()
	return c.RegisterTools(ctx, tools...)
}

// registerBuiltins installs the provider-side dispatch entries.
func (c *Client) registerBuiltins() {
	c.handlers["tools/call"] = c.handleToolCall
	c.handlers["tools/list"] = c.handleToolsList
}

// handleFrame classifies one decoded push frame and routes it.
func (c *Client) handleFrame(frame []byte) {
	msg, err := rpc.Decode(frame)
	if err != nil {
		c.logger.Warn("dropping undecodable frame", "error", err)
		c.events.emit(Event{Kind: EventError, Time: time.Now(), Err: err, Raw: frame})
		return
	}

	c.events.emit(Event{Kind: EventMessage, Time: time.Now(), Method: msg.Method(), Raw: frame})

	switch msg.Class() {
	case rpc.ClassResponse:
		c.resolvePending(msg.Response())
	case rpc.ClassRequest:
		go c.dispatchRequest(msg)
	case rpc.ClassNotification:
		c.handleNotification(msg)
	}
}

// handleNotification processes relay notifications. The connected handshake
// completes the in-progress attach; everything else reaches observers only.
func (c *Client) handleNotification(msg *rpc.Message) {
	if msg.Method() != "connected" {
		return
	}

	params := msg.ParseParams()
	peerID, _ := params["peerId"].(string)
	sessionID, _ := params["sessionId"].(string)

	c.mu.Lock()
	c.peerID = peerID
	if sessionID != "" {
		c.sessionID = sessionID
	}
	c.state = StateConnected
	connected := c.connectedCh
	c.connectedCh = nil
	c.mu.Unlock()

	if connected != nil {
		close(connected)
	}
}

// dispatchRequest routes one inbound request through the handler table and
// posts the response. Handler panics never escape the dispatch loop.
func (c *Client) dispatchRequest(msg *rpc.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), c.reqTimeout)
	defer cancel()

	req := msg.Request()

	c.mu.Lock()
	h, ok := c.handlers[req.Method]
	c.mu.Unlock()
	if !ok {
		c.respondError(ctx, req.ID, rpc.Errorf(rpc.KindMethodNotFound, "method not found: %s", req.Method))
		return
	}

	result, err := c.runHandler(ctx, h, msg.ParseParams())
	if err != nil {
		c.respondError(ctx, req.ID, asProtocolError(err))
		return
	}
	c.respondResult(ctx, req.ID, normalizeResult(result))
}

func (c *Client) runHandler(ctx context.Context, h Handler, params map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = rpc.Errorf(rpc.KindExecution, "handler panic: %v", r)
		}
	}()
	return h(ctx, params)
}

// handleToolCall is the built-in provider handler for tools/call. Failures
// are reported in-band as an error-flagged result, never as a response-level
// error, so strict JSON-RPC clients always see a plain result.
func (c *Client) handleToolCall(ctx context.Context, params map[string]any) (any, error) {
	name, _ := params["name"].(string)
	args, _ := params["arguments"].(map[string]any)

	c.events.emit(Event{Kind: EventToolCall, Time: time.Now(), Tool: name})

	c.mu.Lock()
	fn, ok := c.executors[name]
	c.mu.Unlock()
	if !ok {
		return content.ToolResult{
			Content:   []content.Item{content.Text(fmt.Sprintf("unknown tool: %s", name))},
			IsError:   true,
			ErrorCode: rpc.CodeToolNotFound,
		}, nil
	}

	value, err := c.runTool(ctx, fn, args)
	if err != nil {
		perr := asProtocolError(err)
		return content.ToolResult{
			Content:   []content.Item{content.Text(perr.Message)},
			IsError:   true,
			ErrorCode: perr.Kind.Code(),
		}, nil
	}

	return content.ToolResult{
		Content: content.Normalize(value),
		IsError: false,
	}, nil
}

func (c *Client) runTool(ctx context.Context, fn ToolFunc, args map[string]any) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = rpc.Errorf(rpc.KindExecution, "tool panic: %v", r)
		}
	}()
	return fn(ctx, args)
}

// handleToolsList answers relay-forwarded catalogue queries from the local
// tool set.
func (c *Client) handleToolsList(ctx context.Context, params map[string]any) (any, error) {
	return RawResult{Value: map[string]any{"tools": c.toolsSnapshot()}}, nil
}

func (c *Client) respondResult(ctx context.Context, id jsonrpc.ID, result any) {
	resp, err := rpc.NewResultResponse(id, result)
	if err != nil {
		c.respondError(ctx, id, asProtocolError(err))
		return
	}
	if err := c.post(ctx, resp); err != nil {
		c.logger.Warn("failed to post response", "error", err)
	}
}

func (c *Client) respondError(ctx context.Context, id jsonrpc.ID, perr *rpc.Error) {
	if err := c.post(ctx, rpc.NewErrorResponse(id, perr)); err != nil {
		c.logger.Warn("failed to post error response", "error", err)
	}
}

// normalizeResult coerces a handler return value into the wire result:
// tool results and raw results pass through, everything else becomes a
// content-item list.
func normalizeResult(v any) any {
	switch val := v.(type) {
	case content.ToolResult:
		return val
	case *content.ToolResult:
		return val
	case RawResult:
		return val.Value
	default:
		return content.Normalize(val)
	}
}

// asProtocolError coerces any error into a protocol error, defaulting to the
// execution kind for plain errors.
func asProtocolError(err error) *rpc.Error {
	var perr *rpc.Error
	if errors.As(err, &perr) {
		return perr
	}
	return rpc.Errorf(rpc.KindExecution, "%v", err)
}
