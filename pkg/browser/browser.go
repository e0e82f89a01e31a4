// Package browser defines the browser automation interface a provider
// supplies and the built-in toolset that exposes it through the relay.
// The package contains no automation itself; an external collaborator
// (a browser extension, a CDP client) implements Browser.
package browser

import (
	"context"
	"time"
)

// Browser is the provider-facing automation surface. Every method failure is
// reported to callers as an execution error.
type Browser interface {
	// Snapshot returns a textual accessibility snapshot of the current page.
	Snapshot(ctx context.Context) (string, error)

	// Click clicks the element matching the selector.
	Click(ctx context.Context, selector string) error

	// Fill sets the value of the input matching the selector.
	Fill(ctx context.Context, selector, value string) error

	// Type sends keystrokes to the focused element.
	Type(ctx context.Context, text string) error

	// Hover moves the pointer over the element matching the selector.
	Hover(ctx context.Context, selector string) error

	// Press presses a single named key (e.g. "Enter").
	Press(ctx context.Context, key string) error

	// Scroll scrolls the page in the given direction by amount pixels;
	// zero means one viewport.
	Scroll(ctx context.Context, direction string, amount int) error

	// GetText returns the text content of the element matching the selector.
	GetText(ctx context.Context, selector string) (string, error)

	// GetAttribute returns the attribute value; ok is false when the
	// attribute is absent.
	GetAttribute(ctx context.Context, selector, attr string) (value string, ok bool, err error)

	// IsVisible reports whether the element matching the selector is visible.
	IsVisible(ctx context.Context, selector string) (bool, error)

	// GetURL returns the current page URL.
	GetURL(ctx context.Context) (string, error)

	// GetTitle returns the current page title.
	GetTitle(ctx context.Context) (string, error)

	// Screenshot returns a base64-encoded PNG of the current viewport.
	Screenshot(ctx context.Context) (string, error)

	// Wait pauses for the given duration.
	Wait(ctx context.Context, d time.Duration) error

	// Evaluate runs a JavaScript expression and returns its value.
	Evaluate(ctx context.Context, script string) (any, error)
}
