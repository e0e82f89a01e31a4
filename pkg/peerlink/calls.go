package peerlink

import (
	"context"
	"encoding/json"

	"github.com/toolbridge/toolbridge/pkg/content"
	"github.com/toolbridge/toolbridge/pkg/rpc"
)

// JoinSession moves this caller into the target session and returns the
// session's tool catalogue. Subsequent posts address the joined session.
func (c *Client) JoinSession(ctx context.Context, sessionID string) ([]Tool, error) {
	raw, err := c.Request(ctx, "session/join", map[string]any{"sessionId": sessionID})
	if err != nil {
		return nil, err
	}

	var result struct {
		Success   bool   `json:"success"`
		SessionID string `json:"sessionId"`
		Tools     []Tool `json:"tools"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, rpc.Errorf(rpc.KindInternal, "invalid session/join result: %v", err)
	}

	c.mu.Lock()
	c.sessionID = result.SessionID
	c.mu.Unlock()
	return result.Tools, nil
}

// ListTools queries the session's tool catalogue through the relay.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	raw, err := c.Request(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Tools []Tool `json:"tools"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, rpc.Errorf(rpc.KindInternal, "invalid tools/list result: %v", err)
	}
	return result.Tools, nil
}

// CallTool invokes a named tool on the session's provider. Execution failures
// arrive in-band: inspect IsError and ErrorCode on the result.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*content.ToolResult, error) {
	raw, err := c.Request(ctx, "tools/call", map[string]any{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return nil, err
	}

	var result content.ToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, rpc.Errorf(rpc.KindInternal, "invalid tools/call result: %v", err)
	}
	return &result, nil
}

// Ping round-trips through the relay; useful as a liveness probe.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Request(ctx, "ping", nil)
	return err
}
