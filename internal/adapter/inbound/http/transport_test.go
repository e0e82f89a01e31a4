package http

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/toolbridge/toolbridge/internal/domain/session"
	"github.com/toolbridge/toolbridge/internal/service"
)

// newRelayServer builds the full endpoint surface over a real router.
func newRelayServer(t *testing.T) *httptest.Server {
	t.Helper()
	router := service.NewRouter(session.NewRegistry(), testLogger())
	rh := &relayHandler{
		relay:     router,
		logger:    testLogger(),
		keepAlive: 50 * time.Millisecond,
	}
	health := NewHealthChecker(router, "test")

	mux := http.NewServeMux()
	mux.HandleFunc("/events", rh.handleEvents)
	mux.HandleFunc("/message", rh.handleMessage)
	mux.HandleFunc("/sessions", rh.handleSessions)
	mux.Handle("/health", health.Handler())

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	t.Cleanup(router.Shutdown)
	return srv
}

// sseStream reads frames from an open push channel.
type sseStream struct {
	resp *http.Response
	br   *bufio.Reader
}

func openStream(t *testing.T, base, sessionID, role string) *sseStream {
	t.Helper()
	resp, err := http.Get(fmt.Sprintf("%s/events?sessionId=%s&role=%s", base, sessionID, role))
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected text/event-stream, got %q (status %d)", ct, resp.StatusCode)
	}
	return &sseStream{resp: resp, br: bufio.NewReader(resp.Body)}
}

// next returns the next data frame, skipping comments and keepalives.
func (s *sseStream) next(t *testing.T) map[string]any {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		line, err := s.br.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var frame map[string]any
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &frame); err != nil {
			t.Fatalf("frame is not JSON: %v", err)
		}
		return frame
	}
	t.Fatal("timed out waiting for frame")
	return nil
}

func postMessage(t *testing.T, base, sessionID, peerID, body string) {
	t.Helper()
	url := fmt.Sprintf("%s/message?sessionId=%s", base, sessionID)
	if peerID != "" {
		url += "&peerId=" + peerID
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatalf("post message: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 ack, got %d", resp.StatusCode)
	}
}

func TestStreamHandshake(t *testing.T) {
	srv := newRelayServer(t)

	stream := openStream(t, srv.URL, "team", "provider")
	frame := stream.next(t)
	if frame["method"] != "connected" {
		t.Fatalf("expected connected notification, got %v", frame)
	}
	params := frame["params"].(map[string]any)
	if params["sessionId"] != "team" || params["role"] != "provider" {
		t.Errorf("unexpected handshake: %v", params)
	}
	if params["peerId"] == "" {
		t.Error("handshake missing peerId")
	}
}

func TestPingOverHTTP(t *testing.T) {
	srv := newRelayServer(t)

	stream := openStream(t, srv.URL, "s", "caller")
	connected := stream.next(t)
	peerID := connected["params"].(map[string]any)["peerId"].(string)
	stream.next(t) // session listing

	postMessage(t, srv.URL, "s", peerID, `{"jsonrpc":"2.0","id":3,"method":"ping"}`)

	frame := stream.next(t)
	if frame["id"].(float64) != 3 {
		t.Errorf("expected response to id 3, got %v", frame)
	}
	if frame["result"].(map[string]any)["pong"] != true {
		t.Errorf("expected pong, got %v", frame["result"])
	}
}

func TestCallRoundTripOverHTTP(t *testing.T) {
	srv := newRelayServer(t)

	provider := openStream(t, srv.URL, "E", "provider")
	pConnected := provider.next(t)
	providerID := pConnected["params"].(map[string]any)["peerId"].(string)

	postMessage(t, srv.URL, "E", providerID,
		`{"jsonrpc":"2.0","id":1,"method":"tools/register","params":{"tools":[{"name":"echo"}]}}`)
	provider.next(t) // register ack

	caller := openStream(t, srv.URL, "scratch", "caller")
	cConnected := caller.next(t)
	callerID := cConnected["params"].(map[string]any)["peerId"].(string)
	caller.next(t) // session listing

	postMessage(t, srv.URL, "scratch", callerID, `{"jsonrpc":"2.0","id":2,"method":"session/join","params":{"sessionId":"E"}}`)
	join := caller.next(t)
	if join["result"].(map[string]any)["success"] != true {
		t.Fatalf("join failed: %v", join)
	}

	// Caller posts into the provider's session id after joining; both
	// ingest shapes route identically.
	postMessage(t, srv.URL, "E", callerID,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"echo","arguments":{"message":"hi"}}}`)

	forwarded := provider.next(t)
	internalID := forwarded["id"].(string)
	if forwarded["method"] != "tools/call" {
		t.Fatalf("provider got %v", forwarded)
	}

	resp := fmt.Sprintf(`{"jsonrpc":"2.0","id":%q,"result":{"content":[{"type":"text","text":"hi"}],"isError":false}}`, internalID)
	postMessage(t, srv.URL, "E", providerID, resp)

	answer := caller.next(t)
	if answer["id"].(float64) != 3 {
		t.Errorf("expected original id restored, got %v", answer["id"])
	}
	content := answer["result"].(map[string]any)["content"].([]any)
	if content[0].(map[string]any)["text"] != "hi" {
		t.Errorf("unexpected round-trip result: %v", answer["result"])
	}
}

func TestKeepAliveComments(t *testing.T) {
	srv := newRelayServer(t)

	stream := openStream(t, srv.URL, "s", "provider")
	stream.next(t) // connected

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		line, err := stream.br.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		if strings.HasPrefix(line, ":keepalive") {
			return
		}
	}
	t.Fatal("no keepalive comment observed")
}

func TestSessionsListingOverHTTP(t *testing.T) {
	srv := newRelayServer(t)

	stream := openStream(t, srv.URL, "visible", "provider")
	stream.next(t)

	resp, err := http.Get(srv.URL + "/sessions")
	if err != nil {
		t.Fatalf("get sessions: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Sessions []session.Info `json:"sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Sessions) != 1 || body.Sessions[0].ID != "visible" || !body.Sessions[0].HasProvider {
		t.Errorf("unexpected listing: %+v", body.Sessions)
	}
}
