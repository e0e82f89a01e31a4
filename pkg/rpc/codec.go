package rpc

import (
	"encoding/json"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// Decode parses wire bytes into a Message. Failures carry a kind: bytes that
// are not JSON yield KindParse, JSON that is not a JSON-RPC 2.0 message
// yields KindInvalidRequest. Batch messages are not accepted.
func Decode(data []byte) (*Message, error) {
	if !json.Valid(data) {
		return nil, NewError(KindParse, "invalid JSON")
	}

	var probe struct {
		JSONRPC string `json:"jsonrpc"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		// Valid JSON but not an object (array, string, number).
		return nil, NewError(KindInvalidRequest, "message must be a JSON object")
	}
	if probe.JSONRPC != "2.0" {
		return nil, NewError(KindInvalidRequest, `missing or invalid jsonrpc version (must be "2.0")`)
	}

	decoded, err := jsonrpc.DecodeMessage(data)
	if err != nil {
		return nil, Errorf(KindInvalidRequest, "invalid message: %v", err)
	}

	return &Message{
		Raw:      data,
		Decoded:  decoded,
		Received: time.Now(),
	}, nil
}

// Encode serializes a JSON-RPC message to its wire format.
func Encode(msg jsonrpc.Message) ([]byte, error) {
	data, err := jsonrpc.EncodeMessage(msg)
	if err != nil {
		return nil, Errorf(KindInternal, "encode message: %v", err)
	}
	return data, nil
}
