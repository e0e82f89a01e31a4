package rpc

import (
	"encoding/json"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// Class is the routing classification of a decoded message.
type Class int

const (
	// ClassRequest has both an id and a method and expects a response.
	ClassRequest Class = iota
	// ClassResponse has an id but no method.
	ClassResponse
	// ClassNotification has a method but no id; fire-and-forget.
	ClassNotification
)

// String returns the string representation of the Class.
func (c Class) String() string {
	switch c {
	case ClassRequest:
		return "request"
	case ClassResponse:
		return "response"
	case ClassNotification:
		return "notification"
	default:
		return "unknown"
	}
}

// Message wraps a decoded JSON-RPC message with relay metadata. It keeps the
// raw bytes for efficient passthrough and the decoded form for routing.
type Message struct {
	// Raw contains the original bytes of the message.
	Raw []byte

	// Decoded is the parsed JSON-RPC message: either *jsonrpc.Request
	// (a notification when the id is absent) or *jsonrpc.Response.
	Decoded jsonrpc.Message

	// Received records when the message entered the relay.
	Received time.Time

	parsedParams map[string]any
}

// Class classifies the message: id and method together make a request, an id
// alone a response, a method alone a notification.
func (m *Message) Class() Class {
	switch d := m.Decoded.(type) {
	case *jsonrpc.Request:
		if d.IsCall() {
			return ClassRequest
		}
		return ClassNotification
	default:
		return ClassResponse
	}
}

// IsRequest reports whether the message is a request expecting a response.
func (m *Message) IsRequest() bool { return m.Class() == ClassRequest }

// IsResponse reports whether the message is a response.
func (m *Message) IsResponse() bool { return m.Class() == ClassResponse }

// IsNotification reports whether the message is a notification.
func (m *Message) IsNotification() bool { return m.Class() == ClassNotification }

// Method returns the method name for requests and notifications,
// empty string for responses.
func (m *Message) Method() string {
	if req, ok := m.Decoded.(*jsonrpc.Request); ok {
		return req.Method
	}
	return ""
}

// Request returns the underlying request, or nil for responses.
func (m *Message) Request() *jsonrpc.Request {
	req, _ := m.Decoded.(*jsonrpc.Request)
	return req
}

// Response returns the underlying response, or nil otherwise.
func (m *Message) Response() *jsonrpc.Response {
	resp, _ := m.Decoded.(*jsonrpc.Response)
	return resp
}

// ParseParams parses the request params into a map and caches the result.
// Returns nil if the message is not a request or the params are not an object.
func (m *Message) ParseParams() map[string]any {
	if m.parsedParams != nil {
		return m.parsedParams
	}
	req := m.Request()
	if req == nil || req.Params == nil {
		return nil
	}
	var params map[string]any
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil
	}
	m.parsedParams = params
	return params
}

// NewRequest builds a request with the given id, marshalling params.
// A nil params produces a request without a params field.
func NewRequest(id jsonrpc.ID, method string, params any) (*jsonrpc.Request, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &jsonrpc.Request{ID: id, Method: method, Params: raw}, nil
}

// NewNotification builds a notification (a request without an id).
func NewNotification(method string, params any) (*jsonrpc.Request, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &jsonrpc.Request{Method: method, Params: raw}, nil
}

// NewResultResponse builds a success response carrying the marshalled result.
func NewResultResponse(id jsonrpc.ID, result any) (*jsonrpc.Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, Errorf(KindInternal, "marshal result: %v", err)
	}
	return &jsonrpc.Response{ID: id, Result: raw}, nil
}

// NewErrorResponse builds an error response from a protocol error.
func NewErrorResponse(id jsonrpc.ID, perr *Error) *jsonrpc.Response {
	return &jsonrpc.Response{ID: id, Error: perr.Wire()}
}

// StringID builds a JSON-RPC id from a string. The conversion cannot fail
// for strings, so the error from the SDK constructor is discarded.
func StringID(s string) jsonrpc.ID {
	id, _ := jsonrpc.MakeID(s)
	return id
}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, Errorf(KindInternal, "marshal params: %v", err)
	}
	return raw, nil
}
