package rpc

import (
	"bytes"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

func TestDecodeClassifiesRequest(t *testing.T) {
	msg, err := Decode([]byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo"}}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if msg.Class() != ClassRequest {
		t.Errorf("expected ClassRequest, got %v", msg.Class())
	}
	if msg.Method() != "tools/call" {
		t.Errorf("expected method tools/call, got %q", msg.Method())
	}
	params := msg.ParseParams()
	if params["name"] != "echo" {
		t.Errorf("expected params.name=echo, got %v", params["name"])
	}
}

func TestDecodeClassifiesResponse(t *testing.T) {
	msg, err := Decode([]byte(`{"jsonrpc":"2.0","id":"peer-1-7","result":{"ok":true}}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if msg.Class() != ClassResponse {
		t.Errorf("expected ClassResponse, got %v", msg.Class())
	}
	if msg.Response() == nil {
		t.Fatal("expected non-nil response")
	}
	if msg.Method() != "" {
		t.Errorf("expected empty method for response, got %q", msg.Method())
	}
}

func TestDecodeClassifiesNotification(t *testing.T) {
	msg, err := Decode([]byte(`{"jsonrpc":"2.0","method":"tools/updated","params":{"tools":[]}}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if msg.Class() != ClassNotification {
		t.Errorf("expected ClassNotification, got %v", msg.Class())
	}
}

func TestDecodeErrorKinds(t *testing.T) {
	tests := []struct {
		name string
		data string
		kind Kind
	}{
		{"not json", `{"jsonrpc":`, KindParse},
		{"empty", ``, KindParse},
		{"json array", `[1,2,3]`, KindInvalidRequest},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"ping"}`, KindInvalidRequest},
		{"missing version", `{"id":1,"method":"ping"}`, KindInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if got := KindOf(err); got != tt.kind {
				t.Errorf("expected kind %q, got %q", tt.kind, got)
			}
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	req, err := NewRequest(StringID("peer-ab-1"), "tools/list", map[string]any{"cursor": "x"})
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}

	encoded, err := Encode(req)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	msg, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if msg.Class() != ClassRequest {
		t.Fatalf("expected ClassRequest, got %v", msg.Class())
	}
	if msg.Method() != "tools/list" {
		t.Errorf("expected method tools/list, got %q", msg.Method())
	}

	// serialize(parse(x)) must be stable: a second round trip yields the same bytes.
	again, err := Encode(msg.Decoded)
	if err != nil {
		t.Fatalf("re-Encode failed: %v", err)
	}
	second, err := Decode(again)
	if err != nil {
		t.Fatalf("re-Decode failed: %v", err)
	}
	final, err := Encode(second.Decoded)
	if err != nil {
		t.Fatalf("final Encode failed: %v", err)
	}
	if !bytes.Equal(again, final) {
		t.Errorf("round trip not stable:\n%s\n%s", again, final)
	}
}

func TestNewErrorResponse(t *testing.T) {
	resp := NewErrorResponse(StringID("caller-1"), NewError(KindSession, "session Z not found"))
	if resp.Error == nil {
		t.Fatal("expected error set")
	}
	werr, ok := resp.Error.(*jsonrpc.Error)
	if !ok {
		t.Fatalf("expected *jsonrpc.Error, got %T", resp.Error)
	}
	if werr.Code != CodeSession {
		t.Errorf("expected code %d, got %d", CodeSession, werr.Code)
	}
}

func TestNewNotificationHasNoID(t *testing.T) {
	note, err := NewNotification("provider/disconnected", map[string]any{"sessionId": "s"})
	if err != nil {
		t.Fatalf("NewNotification failed: %v", err)
	}
	if note.IsCall() {
		t.Error("notification must not carry an id")
	}

	encoded, err := Encode(note)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	msg, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if msg.Class() != ClassNotification {
		t.Errorf("expected ClassNotification, got %v", msg.Class())
	}
}
