package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/toolbridge/toolbridge/internal/domain/session"
	"github.com/toolbridge/toolbridge/internal/port/inbound"
)

// maxRequestBodySize is the maximum allowed ingest body size (1 MiB).
const maxRequestBodySize = 1 << 20

// relayHandler serves the peer-facing endpoints.
type relayHandler struct {
	relay     inbound.Relay
	logger    *slog.Logger
	keepAlive time.Duration
	metrics   *Metrics
}

// handleEvents opens the server-push stream: it attaches the peer, then
// drains the peer's sink into SSE frames until the client disconnects or
// the relay closes the sink.
func (h *relayHandler) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		handleOptions(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		writeJSONError(w, http.StatusBadRequest, "sessionId is required")
		return
	}
	role := session.Role(r.URL.Query().Get("role"))
	if role == "" {
		role = session.RoleCaller
	}
	if !role.IsValid() {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("unknown role %q", role))
		return
	}

	sink := newChannelSink()
	peer, err := h.relay.Attach(r.Context(), role, sessionID, sink)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer h.relay.Detach(peer.ID)

	logger := LoggerFromContext(r.Context())
	logger.Debug("push channel opened",
		"peer_id", peer.ID,
		"session_id", sessionID,
		"role", string(role),
	)
	if h.metrics != nil {
		h.metrics.PushChannelsOpened.Inc()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	// Initial comment establishes the stream before the first frame.
	_, _ = fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	keepalive := time.NewTicker(h.keepAlive)
	defer keepalive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepalive.C:
			if _, err := fmt.Fprint(w, ":keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case frame, ok := <-sink.ch:
			if !ok {
				// Relay closed the sink (takeover or shutdown).
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", frame); err != nil {
				return
			}
			flusher.Flush()
			if h.metrics != nil {
				h.metrics.FramesPushed.Inc()
			}
		}
	}
}

// handleMessage ingests one uplink message. The POST is acknowledged with a
// generic success body before routing; semantic errors travel down the push
// channel, HTTP status codes only report shape violations.
func (h *relayHandler) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		handleOptions(w, r)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", "*")

	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		writeJSONError(w, http.StatusBadRequest, "sessionId is required")
		return
	}
	peerID := r.URL.Query().Get("peerId")

	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "content type must be application/json")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer func() { _ = r.Body.Close() }()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large (max 1MiB)")
			return
		}
		writeJSONError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(body) == 0 {
		writeJSONError(w, http.StatusBadRequest, "empty request body")
		return
	}
	if !json.Valid(body) {
		writeJSONError(w, http.StatusBadRequest, "request body is not valid JSON")
		return
	}

	if h.metrics != nil {
		h.metrics.MessagesIngested.Inc()
	}

	// Acknowledge before routing; all semantic results flow down the
	// sender's push channel.
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"success":true}`))

	dispatchCtx := context.WithoutCancel(r.Context())
	go h.relay.Dispatch(dispatchCtx, sessionID, peerID, body)
}

// handleSessions lists live sessions for discovery.
func (h *relayHandler) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		handleOptions(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	infos := h.relay.Sessions()
	if infos == nil {
		infos = []session.Info{}
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{"sessions": infos})
}

// handleOptions answers CORS preflight requests.
func handleOptions(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
	w.Header().Set("Access-Control-Max-Age", "86400")
	w.WriteHeader(http.StatusNoContent)
}

// writeJSONError reports a transport-shape violation.
func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
