// Package session contains the relay's domain model: peers, sessions, and
// the pending-route table that pairs forwarded requests with their callers.
package session

import (
	"errors"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"

	"github.com/toolbridge/toolbridge/internal/domain/tool"
)

// ErrSessionNotFound is returned when the target session does not exist.
var ErrSessionNotFound = errors.New("session not found")

// ErrPeerNotFound is returned when no peer with the given id is attached.
var ErrPeerNotFound = errors.New("peer not found")

// Role distinguishes the two classes of peers.
type Role string

const (
	// RoleProvider publishes a tool catalogue and executes calls.
	RoleProvider Role = "provider"
	// RoleCaller discovers tools and invokes them.
	RoleCaller Role = "caller"
)

// IsValid returns true if the role is a known valid role.
func (r Role) IsValid() bool {
	return r == RoleProvider || r == RoleCaller
}

// Sink is a peer's ordered server-push channel. Frames pushed to one sink
// are delivered in push order; pushes to a closed sink report false.
type Sink interface {
	// Push enqueues one frame for delivery. It must not block; a full or
	// closed sink drops the frame and returns false.
	Push(frame []byte) bool

	// Close terminates the push channel. Close is idempotent.
	Close()
}

// Peer is one push-channel connection. A peer exists for the lifetime of
// its transport connection and belongs to exactly one session at a time.
type Peer struct {
	// ID is the relay-assigned opaque peer id.
	ID string

	// Role is fixed at attach time.
	Role Role

	// SessionID is the peer's current session. Updated when a caller
	// adopts another session via session/join.
	SessionID string

	// Sink is the peer's push channel.
	Sink Sink

	// ConnectedAt records when the push channel opened.
	ConnectedAt time.Time
}

// PendingRoute pairs a forwarded request's relay-internal id with the caller
// that originated it. A route either resolves or times out; never both.
type PendingRoute struct {
	// CallerID is the originating caller's peer id.
	CallerID string

	// OriginalID is the caller-supplied message id, restored on the
	// return leg.
	OriginalID jsonrpc.ID

	// Method is the forwarded method; tools/list routes fall back to the
	// cached catalogue on timeout instead of failing.
	Method string

	// ToolName is the invoked tool for tools/call routes, recorded for the
	// call log.
	ToolName string

	// EnqueuedAt records when the route was created.
	EnqueuedAt time.Time

	timer *time.Timer
}

// SetTimer attaches the route's expiry timer so teardown can stop it.
func (p *PendingRoute) SetTimer(t *time.Timer) { p.timer = t }

// StopTimer cancels the expiry timer if one is attached.
func (p *PendingRoute) StopTimer() {
	if p.timer != nil {
		p.timer.Stop()
	}
}

// Session is a named meeting point between at most one provider and any
// number of callers. A session is live iff it has a provider or a caller.
type Session struct {
	// ID is the session name chosen by the first provider to attach.
	ID string

	// Provider is the current provider peer, nil when disconnected.
	Provider *Peer

	// Callers maps peer id to attached caller peers.
	Callers map[string]*Peer

	// Tools is the catalogue last registered by a provider. It survives
	// provider disconnects so callers can still list cached tools.
	Tools []tool.Descriptor

	// Pending maps relay-internal ids to in-flight forwarded requests.
	Pending map[string]*PendingRoute

	// CreatedAt records session creation (first provider attach).
	CreatedAt time.Time
}

// Live reports whether the session should continue to exist.
func (s *Session) Live() bool {
	return s.Provider != nil || len(s.Callers) > 0
}

// ToolsSnapshot returns a defensive copy of the catalogue.
func (s *Session) ToolsSnapshot() []tool.Descriptor {
	return tool.CloneList(s.Tools)
}

// Info is a read-only session summary for the discovery surfaces.
type Info struct {
	ID          string    `json:"id"`
	HasProvider bool      `json:"hasProvider"`
	CallerCount int       `json:"callerCount"`
	ToolCount   int       `json:"toolCount"`
	CreatedAt   time.Time `json:"createdAt"`
}
