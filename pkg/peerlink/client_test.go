package peerlink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/toolbridge/toolbridge/pkg/rpc"
)

// fakeRelay is a minimal relay stand-in: it completes the attach handshake,
// lets tests push arbitrary frames down the channel, and captures every
// POSTed message.
type fakeRelay struct {
	srv    *httptest.Server
	frames chan []byte
	posts  chan []byte
}

func newFakeRelay(t *testing.T) *fakeRelay {
	t.Helper()
	fr := &fakeRelay{
		frames: make(chan []byte, 16),
		posts:  make(chan []byte, 16),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Error("response writer does not support flushing")
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)

		handshake := fmt.Sprintf(
			`{"jsonrpc":"2.0","method":"connected","params":{"peerId":"peer-test-1","sessionId":%q,"role":%q}}`,
			r.URL.Query().Get("sessionId"), r.URL.Query().Get("role"))
		fmt.Fprintf(w, "data: %s\n\n", handshake)
		flusher.Flush()

		for {
			select {
			case frame := <-fr.frames:
				fmt.Fprintf(w, "data: %s\n\n", frame)
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
	mux.HandleFunc("/message", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read post body: %v", err)
		}
		fr.posts <- body
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"success":true}`)
	})

	fr.srv = httptest.NewServer(mux)
	t.Cleanup(fr.srv.Close)
	return fr
}

// push sends one frame down the push channel.
func (fr *fakeRelay) push(t *testing.T, frame string) {
	t.Helper()
	select {
	case fr.frames <- []byte(frame):
	case <-time.After(2 * time.Second):
		t.Fatal("push channel full")
	}
}

// nextPost returns the next message the client POSTed.
func (fr *fakeRelay) nextPost(t *testing.T) *rpc.Message {
	t.Helper()
	select {
	case body := <-fr.posts:
		msg, err := rpc.Decode(body)
		if err != nil {
			t.Fatalf("posted message does not decode: %v", err)
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message posted")
		return nil
	}
}

func attachedClient(t *testing.T, fr *fakeRelay, role Role, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithSessionID("s1"), WithAutoReconnect(false)}, opts...)
	c := NewClient(fr.srv.URL, role, opts...)
	t.Cleanup(c.Disconnect)
	if err := c.Attach(context.Background()); err != nil {
		t.Fatalf("attach: %v", err)
	}
	return c
}

func TestAttachHandshake(t *testing.T) {
	fr := newFakeRelay(t)
	c := attachedClient(t, fr, RoleCaller)

	if c.PeerID() != "peer-test-1" {
		t.Errorf("unexpected peer id: %q", c.PeerID())
	}
	if c.SessionID() != "s1" {
		t.Errorf("unexpected session id: %q", c.SessionID())
	}
	if c.State() != StateConnected {
		t.Errorf("unexpected state: %s", c.State())
	}
}

func TestAttachFailsWhenRelayUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c := NewClient(srv.URL, RoleCaller, WithAutoReconnect(false))
	err := c.Attach(context.Background())
	if err == nil {
		t.Fatal("expected attach to fail")
	}
	if rpc.KindOf(err) != rpc.KindConnection {
		t.Errorf("expected connection kind, got %v", err)
	}
	if c.State() != StateTerminal {
		t.Errorf("expected terminal state, got %s", c.State())
	}
}

func TestRequestResponseCorrelation(t *testing.T) {
	fr := newFakeRelay(t)
	c := attachedClient(t, fr, RoleCaller)

	done := make(chan error, 1)
	go func() {
		raw, err := c.Request(context.Background(), "ping", nil)
		if err != nil {
			done <- err
			return
		}
		var result struct {
			Pong bool `json:"pong"`
		}
		if err := json.Unmarshal(raw, &result); err != nil || !result.Pong {
			done <- fmt.Errorf("unexpected result: %s", raw)
			return
		}
		done <- nil
	}()

	posted := fr.nextPost(t)
	if posted.Method() != "ping" {
		t.Fatalf("unexpected method posted: %s", posted.Method())
	}
	id, _ := posted.Request().ID.Raw().(string)
	fr.push(t, fmt.Sprintf(`{"jsonrpc":"2.0","id":%q,"result":{"pong":true}}`, id))

	if err := <-done; err != nil {
		t.Fatalf("request failed: %v", err)
	}
}

func TestRequestErrorResponse(t *testing.T) {
	fr := newFakeRelay(t)
	c := attachedClient(t, fr, RoleCaller)

	done := make(chan error, 1)
	go func() {
		_, err := c.Request(context.Background(), "session/join", map[string]any{"sessionId": "Z"})
		done <- err
	}()

	posted := fr.nextPost(t)
	id, _ := posted.Request().ID.Raw().(string)
	fr.push(t, fmt.Sprintf(`{"jsonrpc":"2.0","id":%q,"error":{"code":-32002,"message":"session \"Z\" not found"}}`, id))

	err := <-done
	if err == nil {
		t.Fatal("expected an error")
	}
	var perr *rpc.Error
	if !errors.As(err, &perr) || perr.Kind != rpc.KindSession {
		t.Errorf("expected session kind, got %v", err)
	}
}

func TestRequestTimeout(t *testing.T) {
	fr := newFakeRelay(t)
	c := attachedClient(t, fr, RoleCaller, WithRequestTimeout(50*time.Millisecond))

	start := time.Now()
	_, err := c.Request(context.Background(), "tools/call", map[string]any{"name": "slow"})
	if rpc.KindOf(err) != rpc.KindTimeout {
		t.Fatalf("expected timeout kind, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout took too long: %s", elapsed)
	}
}

func TestDisconnectFailsPending(t *testing.T) {
	fr := newFakeRelay(t)
	c := attachedClient(t, fr, RoleCaller)

	done := make(chan error, 1)
	go func() {
		_, err := c.Request(context.Background(), "tools/call", map[string]any{"name": "slow"})
		done <- err
	}()
	fr.nextPost(t)

	c.Disconnect()

	err := <-done
	if rpc.KindOf(err) != rpc.KindConnection {
		t.Errorf("expected connection kind, got %v", err)
	}
	if c.State() != StateTerminal {
		t.Errorf("expected terminal state, got %s", c.State())
	}
}

func TestRequestWhileDisconnected(t *testing.T) {
	fr := newFakeRelay(t)
	c := NewClient(fr.srv.URL, RoleCaller, WithAutoReconnect(false))

	_, err := c.Request(context.Background(), "ping", nil)
	if rpc.KindOf(err) != rpc.KindConnection {
		t.Errorf("expected connection kind, got %v", err)
	}
}

func TestObservations(t *testing.T) {
	fr := newFakeRelay(t)
	c := NewClient(fr.srv.URL, RoleCaller, WithSessionID("s1"), WithAutoReconnect(false))
	t.Cleanup(c.Disconnect)

	connects := make(chan Event, 1)
	c.Subscribe(EventConnect, func(ev Event) { connects <- ev })
	messages := make(chan Event, 16)
	unsubscribe := c.Subscribe(EventMessage, func(ev Event) { messages <- ev })

	if err := c.Attach(context.Background()); err != nil {
		t.Fatalf("attach: %v", err)
	}

	select {
	case <-connects:
	case <-time.After(2 * time.Second):
		t.Fatal("no connect observation")
	}

	// The handshake frame is itself a message observation.
	select {
	case ev := <-messages:
		if ev.Method != "connected" {
			t.Errorf("unexpected method: %s", ev.Method)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message observation")
	}

	unsubscribe()
	fr.push(t, `{"jsonrpc":"2.0","method":"tools/updated","params":{"tools":[]}}`)
	select {
	case ev := <-messages:
		t.Errorf("observation after unsubscribe: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}
