// Package inbound defines the inbound port interfaces for the relay core.
// Inbound adapters (HTTP) call these interfaces.
package inbound

import (
	"context"

	"github.com/toolbridge/toolbridge/internal/domain/session"
)

// Relay is the inbound port for the routing core. The HTTP adapter attaches
// peers when their push channel opens, hands every uplink message to
// Dispatch, and detaches peers when the channel closes.
type Relay interface {
	// Attach registers a new peer with the given role and session, binding
	// it to the sink its frames will be pushed down. The relay sends the
	// connected handshake (and, for callers, the session listing) before
	// Attach returns, so the adapter must have the sink draining already.
	Attach(ctx context.Context, role session.Role, sessionID string, sink session.Sink) (*session.Peer, error)

	// Dispatch routes one uplink message. peerID may be empty, in which
	// case the sender is resolved from the session: responses and catalogue
	// registrations come from the provider, requests from the session's
	// sole caller. Malformed or unroutable messages produce error frames on
	// the appropriate sink; Dispatch itself never fails.
	Dispatch(ctx context.Context, sessionID, peerID string, raw []byte)

	// Detach removes a peer after its push channel closed and fans out the
	// resulting disconnect notifications.
	Detach(peerID string)

	// Sessions lists live sessions for the discovery endpoint.
	Sessions() []session.Info

	// Counts reports live session and peer totals for health reporting.
	Counts() (sessions, peers int)

	// Shutdown closes every push channel so streaming handlers can return
	// during graceful shutdown.
	Shutdown()
}
