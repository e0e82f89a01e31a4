package browser

import (
	"context"
	"encoding/json"
	"time"

	"github.com/toolbridge/toolbridge/pkg/peerlink"
	"github.com/toolbridge/toolbridge/pkg/rpc"
)

// Binding pairs one tool descriptor with its executor.
type Binding struct {
	Tool peerlink.Tool
	Func peerlink.ToolFunc
}

// Register installs the built-in browser toolset on a provider client.
// The catalogue is published to the relay on the next RegisterTools call.
func Register(c *peerlink.Client, b Browser) {
	for _, binding := range Toolset(b) {
		c.RegisterTool(binding.Tool, binding.Func)
	}
}

// Toolset returns the built-in browser tools bound to b.
func Toolset(b Browser) []Binding {
	return []Binding{
		{
			Tool: tool("browser_snapshot", "Capture a textual snapshot of the current page", `{}`),
			Func: func(ctx context.Context, args map[string]any) (any, error) {
				return wrap1(b.Snapshot(ctx))
			},
		},
		{
			Tool: tool("browser_click", "Click an element", selectorSchema),
			Func: func(ctx context.Context, args map[string]any) (any, error) {
				sel, err := stringArg(args, "selector")
				if err != nil {
					return nil, err
				}
				return done(b.Click(ctx, sel))
			},
		},
		{
			Tool: tool("browser_fill", "Fill an input with a value", `{"type":"object","properties":{"selector":{"type":"string"},"value":{"type":"string"}},"required":["selector","value"]}`),
			Func: func(ctx context.Context, args map[string]any) (any, error) {
				sel, err := stringArg(args, "selector")
				if err != nil {
					return nil, err
				}
				value, err := stringArg(args, "value")
				if err != nil {
					return nil, err
				}
				return done(b.Fill(ctx, sel, value))
			},
		},
		{
			Tool: tool("browser_type", "Type text into the focused element", `{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`),
			Func: func(ctx context.Context, args map[string]any) (any, error) {
				text, err := stringArg(args, "text")
				if err != nil {
					return nil, err
				}
				return done(b.Type(ctx, text))
			},
		},
		{
			Tool: tool("browser_hover", "Hover over an element", selectorSchema),
			Func: func(ctx context.Context, args map[string]any) (any, error) {
				sel, err := stringArg(args, "selector")
				if err != nil {
					return nil, err
				}
				return done(b.Hover(ctx, sel))
			},
		},
		{
			Tool: tool("browser_press", "Press a named key", `{"type":"object","properties":{"key":{"type":"string"}},"required":["key"]}`),
			Func: func(ctx context.Context, args map[string]any) (any, error) {
				key, err := stringArg(args, "key")
				if err != nil {
					return nil, err
				}
				return done(b.Press(ctx, key))
			},
		},
		{
			Tool: tool("browser_scroll", "Scroll the page", `{"type":"object","properties":{"direction":{"type":"string","enum":["up","down","left","right"]},"amount":{"type":"integer"}},"required":["direction"]}`),
			Func: func(ctx context.Context, args map[string]any) (any, error) {
				direction, err := stringArg(args, "direction")
				if err != nil {
					return nil, err
				}
				amount := 0
				if n, ok := args["amount"].(float64); ok {
					amount = int(n)
				}
				return done(b.Scroll(ctx, direction, amount))
			},
		},
		{
			Tool: tool("browser_get_text", "Read the text content of an element", selectorSchema),
			Func: func(ctx context.Context, args map[string]any) (any, error) {
				sel, err := stringArg(args, "selector")
				if err != nil {
					return nil, err
				}
				return wrap1(b.GetText(ctx, sel))
			},
		},
		{
			Tool: tool("browser_get_attribute", "Read an attribute of an element", `{"type":"object","properties":{"selector":{"type":"string"},"attribute":{"type":"string"}},"required":["selector","attribute"]}`),
			Func: func(ctx context.Context, args map[string]any) (any, error) {
				sel, err := stringArg(args, "selector")
				if err != nil {
					return nil, err
				}
				attr, err := stringArg(args, "attribute")
				if err != nil {
					return nil, err
				}
				value, ok, err := b.GetAttribute(ctx, sel, attr)
				if err != nil {
					return nil, execErr(err)
				}
				if !ok {
					return nil, nil
				}
				return value, nil
			},
		},
		{
			Tool: tool("browser_is_visible", "Check whether an element is visible", selectorSchema),
			Func: func(ctx context.Context, args map[string]any) (any, error) {
				sel, err := stringArg(args, "selector")
				if err != nil {
					return nil, err
				}
				visible, err := b.IsVisible(ctx, sel)
				if err != nil {
					return nil, execErr(err)
				}
				return visible, nil
			},
		},
		{
			Tool: tool("browser_get_url", "Read the current page URL", `{}`),
			Func: func(ctx context.Context, args map[string]any) (any, error) {
				return wrap1(b.GetURL(ctx))
			},
		},
		{
			Tool: tool("browser_get_title", "Read the current page title", `{}`),
			Func: func(ctx context.Context, args map[string]any) (any, error) {
				return wrap1(b.GetTitle(ctx))
			},
		},
		{
			Tool: tool("browser_screenshot", "Capture a screenshot of the viewport", `{}`),
			Func: func(ctx context.Context, args map[string]any) (any, error) {
				return wrap1(b.Screenshot(ctx))
			},
		},
		{
			Tool: tool("browser_wait", "Wait for a number of milliseconds", `{"type":"object","properties":{"ms":{"type":"integer"}},"required":["ms"]}`),
			Func: func(ctx context.Context, args map[string]any) (any, error) {
				ms, ok := args["ms"].(float64)
				if !ok {
					return nil, rpc.NewError(rpc.KindValidation, "ms must be a number")
				}
				return done(b.Wait(ctx, time.Duration(ms)*time.Millisecond))
			},
		},
		{
			Tool: tool("browser_evaluate", "Evaluate a JavaScript expression", `{"type":"object","properties":{"script":{"type":"string"}},"required":["script"]}`),
			Func: func(ctx context.Context, args map[string]any) (any, error) {
				script, err := stringArg(args, "script")
				if err != nil {
					return nil, err
				}
				value, err := b.Evaluate(ctx, script)
				if err != nil {
					return nil, execErr(err)
				}
				return value, nil
			},
		},
	}
}

const selectorSchema = `{"type":"object","properties":{"selector":{"type":"string"}},"required":["selector"]}`

func tool(name, description, schema string) peerlink.Tool {
	return peerlink.Tool{
		Name:        name,
		Description: description,
		InputSchema: json.RawMessage(schema),
	}
}

func stringArg(args map[string]any, key string) (string, error) {
	value, ok := args[key].(string)
	if !ok || value == "" {
		return "", rpc.Errorf(rpc.KindValidation, "%s must be a non-empty string", key)
	}
	return value, nil
}

// wrap1 forwards a (value, error) pair, tagging failures as execution errors.
func wrap1(value string, err error) (any, error) {
	if err != nil {
		return nil, execErr(err)
	}
	return value, nil
}

// done maps an action's error to the tool contract: nil becomes "ok".
func done(err error) (any, error) {
	if err != nil {
		return nil, execErr(err)
	}
	return "ok", nil
}

func execErr(err error) error {
	return rpc.Errorf(rpc.KindExecution, "%v", err)
}
