// Package http is the relay's inbound HTTP adapter.
//
// It exposes four surfaces:
//
//   - GET /events    long-lived server-push stream (text/event-stream); the
//     peer's downlink. Query: sessionId (required), role.
//   - POST /message  single-message uplink ingest. The POST is acknowledged
//     before routing; all semantic results arrive on the push stream.
//   - GET /health    liveness probe with session/peer counts and uptime.
//   - GET /sessions  discovery listing of live sessions.
//
// Plus /metrics for Prometheus. Errors travel inside JSON-RPC error fields
// on the push stream; HTTP status codes are used only for shape violations
// (missing sessionId, oversized or malformed bodies).
package http
