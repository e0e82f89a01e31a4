// Package rpc defines the wire protocol shared by the relay and its peers:
// JSON-RPC 2.0 framing, message classification, id generation, and the
// error taxonomy used across the routing fabric.
package rpc

import (
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// Kind discriminates protocol errors. Errors are compared by kind, never by
// identity; every kind maps to a stable JSON-RPC error code.
type Kind string

const (
	// KindParse indicates the byte stream was not valid JSON.
	KindParse Kind = "parse"

	// KindInvalidRequest indicates valid JSON that is not a JSON-RPC 2.0 message.
	KindInvalidRequest Kind = "invalid-request"

	// KindMethodNotFound indicates no handler is registered for the method.
	KindMethodNotFound Kind = "method-not-found"

	// KindInvalidParams indicates the params do not match the method contract.
	KindInvalidParams Kind = "invalid-params"

	// KindInternal indicates an unexpected internal failure.
	KindInternal Kind = "internal"

	// KindConnection indicates the transport dropped while a request was in flight.
	KindConnection Kind = "connection"

	// KindTimeout indicates a request was not answered within its deadline.
	KindTimeout Kind = "timeout"

	// KindSession indicates a missing session or a session without a provider.
	KindSession Kind = "session"

	// KindExecution indicates a tool handler failed while running.
	KindExecution Kind = "execution"

	// KindToolNotFound indicates the named tool is not in the catalogue.
	KindToolNotFound Kind = "tool-not-found"

	// KindValidation indicates tool arguments failed schema validation.
	KindValidation Kind = "validation"

	// KindPermission indicates the operation is not allowed for the peer.
	KindPermission Kind = "permission"
)

// JSON-RPC 2.0 reserved codes plus the relay's application range.
const (
	CodeParse          int64 = -32700
	CodeInvalidRequest int64 = -32600
	CodeMethodNotFound int64 = -32601
	CodeInvalidParams  int64 = -32602
	CodeInternal       int64 = -32603
	CodeConnection     int64 = -32000
	CodeTimeout        int64 = -32001
	CodeSession        int64 = -32002
	CodeExecution      int64 = -32003
	CodeToolNotFound   int64 = -32004
	CodeValidation     int64 = -32005
	CodePermission     int64 = -32006
)

var kindCodes = map[Kind]int64{
	KindParse:          CodeParse,
	KindInvalidRequest: CodeInvalidRequest,
	KindMethodNotFound: CodeMethodNotFound,
	KindInvalidParams:  CodeInvalidParams,
	KindInternal:       CodeInternal,
	KindConnection:     CodeConnection,
	KindTimeout:        CodeTimeout,
	KindSession:        CodeSession,
	KindExecution:      CodeExecution,
	KindToolNotFound:   CodeToolNotFound,
	KindValidation:     CodeValidation,
	KindPermission:     CodePermission,
}

// Code returns the wire code for the kind. Unknown kinds map to internal.
func (k Kind) Code() int64 {
	if code, ok := kindCodes[k]; ok {
		return code
	}
	return CodeInternal
}

// KindForCode maps a wire code back to its kind. Unknown codes map to internal.
func KindForCode(code int64) Kind {
	for k, c := range kindCodes {
		if c == code {
			return k
		}
	}
	return KindInternal
}

// Error is a protocol error with a kind discriminator.
type Error struct {
	Kind    Kind
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Kind, e.Kind.Code(), e.Message)
}

// Wire converts the error to its JSON-RPC representation.
func (e *Error) Wire() *jsonrpc.Error {
	return &jsonrpc.Error{
		Code:    e.Kind.Code(),
		Message: e.Message,
	}
}

// NewError creates a protocol error of the given kind.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Errorf creates a protocol error with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind from an error chain.
// Non-protocol errors report KindInternal.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}

// FromWire converts a JSON-RPC error back to a protocol error.
func FromWire(werr *jsonrpc.Error) *Error {
	if werr == nil {
		return nil
	}
	return &Error{Kind: KindForCode(werr.Code), Message: werr.Message}
}

// ResponseError extracts the protocol error carried by a response,
// or nil for success responses.
func ResponseError(resp *jsonrpc.Response) *Error {
	if resp == nil || resp.Error == nil {
		return nil
	}
	var werr *jsonrpc.Error
	if errors.As(resp.Error, &werr) {
		return FromWire(werr)
	}
	return &Error{Kind: KindInternal, Message: resp.Error.Error()}
}
