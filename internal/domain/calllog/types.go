// Package calllog contains the domain model for the relay's call log:
// one record per forwarded tool invocation.
package calllog

import (
	"context"
	"time"
)

// Outcome classifies how a forwarded call concluded.
type Outcome string

const (
	// OutcomeOK means the provider returned a result.
	OutcomeOK Outcome = "ok"
	// OutcomeError means the call failed with a routing or execution error.
	OutcomeError Outcome = "error"
	// OutcomeTimeout means the relay reaped the call before a response arrived.
	OutcomeTimeout Outcome = "timeout"
)

// Record is one completed forwarded call.
type Record struct {
	// Timestamp is when the call completed.
	Timestamp time.Time `json:"timestamp"`

	// SessionID is the session the call was routed through.
	SessionID string `json:"sessionId"`

	// CallerID is the originating caller peer.
	CallerID string `json:"callerId"`

	// Method is the forwarded method, normally tools/call or tools/list.
	Method string `json:"method"`

	// ToolName is the invoked tool, empty for non-call methods.
	ToolName string `json:"toolName,omitempty"`

	// DurationMs is the forward-to-resolution latency.
	DurationMs int64 `json:"durationMs"`

	// Outcome classifies the resolution.
	Outcome Outcome `json:"outcome"`

	// ErrorCode is the relay error code for failed calls, 0 otherwise.
	ErrorCode int64 `json:"errorCode,omitempty"`
}

// Store persists call records.
// Interface owned by domain; implementations handle batching and async writes.
type Store interface {
	// Append stores records. Must be non-blocking from the caller's view.
	Append(ctx context.Context, records ...Record) error

	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]Record, error)

	// Flush forces pending records to storage. Called during shutdown.
	Flush(ctx context.Context) error

	// Close releases resources.
	Close() error
}
