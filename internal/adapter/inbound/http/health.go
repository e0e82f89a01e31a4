package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/toolbridge/toolbridge/internal/port/inbound"
)

// HealthResponse is the JSON body of the /health endpoint.
type HealthResponse struct {
	Status        string  `json:"status"`
	Sessions      int     `json:"sessions"`
	Peers         int     `json:"peers"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
	Version       string  `json:"version,omitempty"`
}

// HealthChecker reports relay liveness with session and peer counts.
type HealthChecker struct {
	relay     inbound.Relay
	startedAt time.Time
	version   string
}

// NewHealthChecker creates a HealthChecker for the given relay.
func NewHealthChecker(relay inbound.Relay, version string) *HealthChecker {
	return &HealthChecker{
		relay:     relay,
		startedAt: time.Now(),
		version:   version,
	}
}

// Check builds the current health snapshot.
func (h *HealthChecker) Check() HealthResponse {
	sessions, peers := h.relay.Counts()
	return HealthResponse{
		Status:        "ok",
		Sessions:      sessions,
		Peers:         peers,
		UptimeSeconds: time.Since(h.startedAt).Seconds(),
		Version:       h.version,
	}
}

// Handler returns the HTTP handler for /health.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			handleOptions(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(h.Check())
	})
}
