// Package service contains the relay's routing core.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/toolbridge/toolbridge/internal/domain/calllog"
	"github.com/toolbridge/toolbridge/internal/domain/session"
	"github.com/toolbridge/toolbridge/internal/domain/tool"
	"github.com/toolbridge/toolbridge/pkg/rpc"
)

const defaultRequestTimeout = 30 * time.Second

// Router owns the session registry and implements the routing matrix:
// caller requests are forwarded to providers under rewritten ids, provider
// responses are matched back through the pending-route table, and
// housekeeping methods (tools/register, session/join, ping) are answered
// directly. It is the single implementation of the inbound relay port.
type Router struct {
	registry       *session.Registry
	ids            *rpc.IDGenerator
	logger         *slog.Logger
	tracer         trace.Tracer
	callLog        *CallLogService
	requestTimeout time.Duration
}

// RouterOption configures the Router.
type RouterOption func(*Router)

// WithRequestTimeout sets the forward timeout for pending routes.
func WithRequestTimeout(d time.Duration) RouterOption {
	return func(r *Router) {
		if d > 0 {
			r.requestTimeout = d
		}
	}
}

// WithCallLog attaches an async call-log service. Nil disables logging.
func WithCallLog(cl *CallLogService) RouterOption {
	return func(r *Router) {
		r.callLog = cl
	}
}

// WithTracer sets the tracer used for dispatch spans.
func WithTracer(t trace.Tracer) RouterOption {
	return func(r *Router) {
		if t != nil {
			r.tracer = t
		}
	}
}

// NewRouter creates a Router with the given registry and options.
func NewRouter(registry *session.Registry, logger *slog.Logger, opts ...RouterOption) *Router {
	r := &Router{
		registry:       registry,
		ids:            rpc.NewIDGenerator("relay"),
		logger:         logger,
		tracer:         noop.NewTracerProvider().Tracer("toolbridge/router"),
		requestTimeout: defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Attach registers a new peer. The connected handshake is pushed down the
// sink before Attach returns; callers additionally receive a session listing.
// When a provider displaces an incumbent, the incumbent gets a terminal
// session error and its sink is closed.
func (r *Router) Attach(ctx context.Context, role session.Role, sessionID string, sink session.Sink) (*session.Peer, error) {
	if !role.IsValid() {
		return nil, rpc.Errorf(rpc.KindInvalidRequest, "unknown role %q", role)
	}
	if sessionID == "" {
		return nil, rpc.NewError(rpc.KindInvalidRequest, "sessionId is required")
	}

	peer := &session.Peer{
		ID:          "peer-" + uuid.NewString(),
		Role:        role,
		Sink:        sink,
		ConnectedAt: time.Now().UTC(),
	}

	if role == session.RoleProvider {
		if displaced := r.registry.AttachProvider(sessionID, peer); displaced != nil {
			r.pushNullIDError(displaced, rpc.KindSession, "another provider connected")
			displaced.Sink.Close()
			r.logger.Info("provider displaced by takeover",
				"session_id", sessionID,
				"old_peer_id", displaced.ID,
				"new_peer_id", peer.ID,
			)
		}
	} else {
		r.registry.AttachCaller(sessionID, peer)
	}

	r.pushNotification(peer, "connected", map[string]any{
		"peerId":    peer.ID,
		"sessionId": sessionID,
		"role":      string(role),
	})

	if role == session.RoleCaller {
		r.pushSessionListing(peer)
	}

	r.logger.Info("peer attached",
		"peer_id", peer.ID,
		"session_id", sessionID,
		"role", string(role),
	)
	return peer, nil
}

// Dispatch routes one uplink message. Semantic errors are delivered down the
// sender's push channel; Dispatch itself never returns an error because the
// ingest endpoint has already acknowledged the POST. An empty peerID is
// resolved from the message shape: responses and catalogue registrations
// are attributed to the session's provider, requests to its sole caller.
// The sender's own session, not the query parameter, decides routing, so
// callers may POST into either their own or the provider's session id.
func (r *Router) Dispatch(ctx context.Context, sessionID, peerID string, raw []byte) {
	ctx, span := r.tracer.Start(ctx, "relay.dispatch")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	msg, err := rpc.Decode(raw)
	if msg != nil {
		span.SetAttributes(
			attribute.String("rpc.class", msg.Class().String()),
			attribute.String("rpc.method", msg.Method()),
		)
	}

	var peer *session.Peer
	if peerID != "" {
		var ferr error
		peer, ferr = r.registry.FindPeer(peerID)
		if ferr != nil {
			r.logger.Warn("message from unknown peer dropped", "peer_id", peerID)
			return
		}
	} else {
		peer = r.resolveSender(sessionID, msg)
		if peer == nil {
			r.logger.Warn("unattributable message dropped", "session_id", sessionID)
			return
		}
	}

	if err != nil {
		r.pushNullIDError(peer, rpc.KindOf(err), err.Error())
		return
	}

	switch msg.Class() {
	case rpc.ClassRequest:
		r.handleRequest(ctx, peer, msg)
	case rpc.ClassResponse:
		r.handleResponse(ctx, peer, msg)
	case rpc.ClassNotification:
		r.logger.Debug("notification dropped",
			"peer_id", peer.ID,
			"method", msg.Method(),
		)
	}
}

// resolveSender attributes an unsigned ingest to a peer. Responses and
// tools/register come from the provider; anything else from the session's
// sole caller. A malformed message (msg nil) falls back the same way so the
// parse error can still reach someone.
func (r *Router) resolveSender(sessionID string, msg *rpc.Message) *session.Peer {
	if msg != nil && (msg.Class() == rpc.ClassResponse || msg.Method() == "tools/register") {
		return r.registry.Provider(sessionID)
	}
	if caller, ok := r.registry.SoleCaller(sessionID); ok {
		return caller
	}
	return r.registry.Provider(sessionID)
}

// Detach removes a peer after its push channel closed. A provider loss
// notifies every caller and fails the session's in-flight forwards with a
// connection error.
func (r *Router) Detach(peerID string) {
	res, err := r.registry.Detach(peerID)
	if err != nil {
		r.logger.Debug("detach for unknown peer", "peer_id", peerID)
		return
	}
	res.Peer.Sink.Close()

	if res.WasProvider {
		for _, c := range res.Callers {
			r.pushNotification(c, "provider/disconnected", map[string]any{
				"sessionId": res.SessionID,
			})
		}
		for _, route := range res.Failed {
			r.failRoute(res.SessionID, route, rpc.KindConnection, "provider disconnected")
		}
	}

	r.logger.Info("peer detached",
		"peer_id", peerID,
		"session_id", res.SessionID,
		"was_provider", res.WasProvider,
		"session_removed", res.SessionRemoved,
	)
}

// Sessions lists live sessions.
func (r *Router) Sessions() []session.Info {
	return r.registry.List()
}

// Counts reports live session and peer totals.
func (r *Router) Counts() (sessions, peers int) {
	return r.registry.Counts()
}

// Shutdown closes every push channel and stops pending timers.
func (r *Router) Shutdown() {
	r.registry.CloseAll()
}

func (r *Router) handleRequest(ctx context.Context, peer *session.Peer, msg *rpc.Message) {
	req := msg.Request()
	switch req.Method {
	case "ping":
		r.pushResult(peer, req.ID, map[string]any{
			"pong":      true,
			"timestamp": time.Now().UnixMilli(),
		})

	case "tools/register":
		r.handleToolsRegister(peer, msg)

	case "tools/list":
		r.handleToolsList(peer, msg)

	case "tools/call":
		r.handleToolsCall(peer, msg)

	case "session/join":
		r.handleSessionJoin(peer, msg)

	default:
		r.pushError(peer, req.ID, rpc.Errorf(rpc.KindMethodNotFound, "method %q not found", req.Method))
	}
}

func (r *Router) handleToolsRegister(peer *session.Peer, msg *rpc.Message) {
	req := msg.Request()
	if peer.Role != session.RoleProvider {
		r.pushError(peer, req.ID, rpc.NewError(rpc.KindPermission, "tools/register requires the provider role"))
		return
	}

	var params struct {
		Tools []tool.Descriptor `json:"tools"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		r.pushError(peer, req.ID, rpc.Errorf(rpc.KindInvalidParams, "invalid tools/register params: %v", err))
		return
	}

	callers, err := r.registry.ReplaceTools(peer.SessionID, params.Tools)
	if err != nil {
		r.pushError(peer, req.ID, rpc.NewError(rpc.KindSession, "session no longer exists"))
		return
	}

	for _, c := range callers {
		r.pushNotification(c, "tools/updated", map[string]any{
			"tools": params.Tools,
		})
	}
	r.pushResult(peer, req.ID, map[string]any{
		"success": true,
		"count":   len(params.Tools),
	})

	r.logger.Info("tools registered",
		"session_id", peer.SessionID,
		"count", len(params.Tools),
		"tools", tool.Names(params.Tools),
	)
}

func (r *Router) handleToolsList(peer *session.Peer, msg *rpc.Message) {
	req := msg.Request()
	if peer.Role != session.RoleCaller {
		r.pushError(peer, req.ID, rpc.NewError(rpc.KindPermission, "tools/list requires the caller role"))
		return
	}

	sessionID, provider, ok := r.registry.PeerSession(peer.ID)
	if !ok {
		r.logger.Debug("tools/list from detached peer dropped", "peer_id", peer.ID)
		return
	}
	if provider == nil {
		tools, err := r.registry.ToolsSnapshot(sessionID)
		if err != nil {
			tools = nil
		}
		r.pushResult(peer, req.ID, map[string]any{"tools": descriptorsOrEmpty(tools)})
		return
	}
	r.forward(peer, provider, sessionID, msg)
}

func (r *Router) handleToolsCall(peer *session.Peer, msg *rpc.Message) {
	req := msg.Request()
	if peer.Role != session.RoleCaller {
		r.pushError(peer, req.ID, rpc.NewError(rpc.KindPermission, "tools/call requires the caller role"))
		return
	}

	sessionID, provider, ok := r.registry.PeerSession(peer.ID)
	if !ok {
		r.logger.Debug("tools/call from detached peer dropped", "peer_id", peer.ID)
		return
	}
	if provider == nil {
		r.pushError(peer, req.ID, rpc.NewError(rpc.KindSession, "no provider connected to session"))
		return
	}
	r.forward(peer, provider, sessionID, msg)
}

func (r *Router) handleSessionJoin(peer *session.Peer, msg *rpc.Message) {
	req := msg.Request()
	if peer.Role != session.RoleCaller {
		r.pushError(peer, req.ID, rpc.NewError(rpc.KindPermission, "session/join requires the caller role"))
		return
	}

	var params struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil || params.SessionID == "" {
		r.pushError(peer, req.ID, rpc.NewError(rpc.KindInvalidParams, "session/join requires a sessionId"))
		return
	}

	tools, err := r.registry.Join(peer.ID, params.SessionID)
	if err != nil {
		r.pushError(peer, req.ID, rpc.Errorf(rpc.KindSession, "session %q not found", params.SessionID))
		return
	}

	r.pushResult(peer, req.ID, map[string]any{
		"success":   true,
		"sessionId": params.SessionID,
		"tools":     descriptorsOrEmpty(tools),
	})
	r.logger.Info("caller joined session",
		"peer_id", peer.ID,
		"session_id", params.SessionID,
	)
}

// forward rewrites the request id to a relay-internal id, records the
// pending route, and pushes the rewritten request to the provider. sessionID
// is the caller's session as resolved under the registry lock; the registry
// arms the expiry timer while recording the route so the timer-stopping
// sweeps can never miss it.
func (r *Router) forward(caller, provider *session.Peer, sessionID string, msg *rpc.Message) {
	req := msg.Request()
	internalID := r.ids.Next()

	route := &session.PendingRoute{
		CallerID:   caller.ID,
		OriginalID: req.ID,
		Method:     req.Method,
		EnqueuedAt: time.Now(),
	}
	if req.Method == "tools/call" {
		if name, ok := msg.ParseParams()["name"].(string); ok {
			route.ToolName = name
		}
	}

	err := r.registry.AddPending(sessionID, internalID, route, r.requestTimeout, func() {
		r.expire(sessionID, internalID)
	})
	if err != nil {
		r.pushError(caller, req.ID, rpc.NewError(rpc.KindSession, "session no longer exists"))
		return
	}

	rewritten, err := rpc.NewRequest(rpc.StringID(internalID), req.Method, json.RawMessage(req.Params))
	if err != nil {
		r.abortForward(sessionID, internalID, caller, rpc.Errorf(rpc.KindInternal, "rewrite request: %v", err))
		return
	}
	frame, err := rpc.Encode(rewritten)
	if err != nil {
		r.abortForward(sessionID, internalID, caller, rpc.Errorf(rpc.KindInternal, "encode request: %v", err))
		return
	}
	if !provider.Sink.Push(frame) {
		r.abortForward(sessionID, internalID, caller, rpc.NewError(rpc.KindConnection, "provider push channel unavailable"))
		return
	}

	r.logger.Debug("request forwarded",
		"session_id", sessionID,
		"caller_id", caller.ID,
		"method", req.Method,
		"internal_id", internalID,
	)
}

// abortForward reclaims a just-created route when the forward leg failed
// before the provider could have seen it.
func (r *Router) abortForward(sessionID, internalID string, caller *session.Peer, perr *rpc.Error) {
	route, ok := r.registry.TakePending(sessionID, internalID)
	if !ok {
		return
	}
	r.pushError(caller, route.OriginalID, perr)
	r.record(sessionID, route, calllog.OutcomeError, perr.Kind.Code())
}

// expire is the timer callback for a pending route. The atomic take
// guarantees a response racing the timeout resolves exactly once.
func (r *Router) expire(sessionID, internalID string) {
	route, ok := r.registry.TakePending(sessionID, internalID)
	if !ok {
		return
	}

	caller, err := r.registry.FindPeer(route.CallerID)
	if err != nil {
		r.record(sessionID, route, calllog.OutcomeTimeout, rpc.CodeTimeout)
		return
	}

	// tools/list degrades to the cached catalogue instead of failing.
	if route.Method == "tools/list" {
		tools, serr := r.registry.ToolsSnapshot(sessionID)
		if serr == nil {
			r.pushResult(caller, route.OriginalID, map[string]any{"tools": descriptorsOrEmpty(tools)})
			r.record(sessionID, route, calllog.OutcomeTimeout, 0)
			return
		}
	}

	r.pushError(caller, route.OriginalID, rpc.Errorf(rpc.KindTimeout, "request timed out after %s", r.requestTimeout))
	r.record(sessionID, route, calllog.OutcomeTimeout, rpc.CodeTimeout)
	r.logger.Warn("pending route timed out",
		"session_id", sessionID,
		"caller_id", route.CallerID,
		"method", route.Method,
	)
}

// handleResponse matches a provider response against the pending-route table
// and relays it to the originating caller under the original id.
func (r *Router) handleResponse(ctx context.Context, peer *session.Peer, msg *rpc.Message) {
	if peer.Role != session.RoleProvider {
		// Only the provider answers forwarded requests; a caller posting a
		// response shape must not be able to claim another caller's route.
		r.logger.Debug("response from non-provider dropped", "peer_id", peer.ID)
		return
	}
	resp := msg.Response()
	internalID, ok := resp.ID.Raw().(string)
	if !ok {
		r.logger.Debug("response with non-string id dropped", "peer_id", peer.ID)
		return
	}

	route, ok := r.registry.TakePending(peer.SessionID, internalID)
	if !ok {
		// Already timed out, or addressed to a route from before a takeover.
		r.logger.Debug("response with no pending route dropped",
			"peer_id", peer.ID,
			"internal_id", internalID,
		)
		return
	}

	caller, err := r.registry.FindPeer(route.CallerID)
	if err != nil {
		r.logger.Debug("response for departed caller dropped",
			"caller_id", route.CallerID,
			"internal_id", internalID,
		)
		r.record(peer.SessionID, route, calllog.OutcomeOK, 0)
		return
	}

	if perr := rpc.ResponseError(resp); perr != nil {
		r.pushError(caller, route.OriginalID, perr)
		r.record(peer.SessionID, route, calllog.OutcomeError, perr.Kind.Code())
		return
	}
	r.pushResult(caller, route.OriginalID, json.RawMessage(resp.Result))
	r.record(peer.SessionID, route, calllog.OutcomeOK, 0)
}

// failRoute delivers a connection-kind error for a route orphaned by a
// provider disconnect.
func (r *Router) failRoute(sessionID string, route *session.PendingRoute, kind rpc.Kind, message string) {
	caller, err := r.registry.FindPeer(route.CallerID)
	if err == nil {
		r.pushError(caller, route.OriginalID, rpc.NewError(kind, message))
	}
	r.record(sessionID, route, calllog.OutcomeError, kind.Code())
}

func (r *Router) pushResult(p *session.Peer, id jsonrpc.ID, result any) {
	resp, err := rpc.NewResultResponse(id, result)
	if err != nil {
		r.logger.Error("encode result response", "error", err)
		return
	}
	r.pushMessage(p, resp)
}

func (r *Router) pushError(p *session.Peer, id jsonrpc.ID, perr *rpc.Error) {
	if !id.IsValid() {
		r.pushNullIDError(p, perr.Kind, perr.Message)
		return
	}
	r.pushMessage(p, rpc.NewErrorResponse(id, perr))
}

func (r *Router) pushNotification(p *session.Peer, method string, params any) {
	note, err := rpc.NewNotification(method, params)
	if err != nil {
		r.logger.Error("encode notification", "error", err, "method", method)
		return
	}
	r.pushMessage(p, note)
}

func (r *Router) pushMessage(p *session.Peer, msg jsonrpc.Message) {
	frame, err := rpc.Encode(msg)
	if err != nil {
		r.logger.Error("encode frame", "error", err)
		return
	}
	if !p.Sink.Push(frame) {
		r.logger.Warn("push channel full or closed, frame dropped", "peer_id", p.ID)
	}
}

// pushNullIDError emits an error frame with a null id, used when no request
// id exists to respond to (malformed ingest, provider takeover).
func (r *Router) pushNullIDError(p *session.Peer, kind rpc.Kind, message string) {
	frame, err := json.Marshal(struct {
		JSONRPC string `json:"jsonrpc"`
		ID      any    `json:"id"`
		Error   struct {
			Code    int64  `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}{
		JSONRPC: "2.0",
		Error: struct {
			Code    int64  `json:"code"`
			Message string `json:"message"`
		}{Code: kind.Code(), Message: message},
	})
	if err != nil {
		return
	}
	if !p.Sink.Push(frame) {
		r.logger.Warn("push channel full or closed, error frame dropped", "peer_id", p.ID)
	}
}

// pushSessionListing sends the unsolicited discovery response new callers
// receive at attach time.
func (r *Router) pushSessionListing(p *session.Peer) {
	infos := r.registry.List()
	type listed struct {
		ID        string    `json:"id"`
		ToolCount int       `json:"toolCount"`
		CreatedAt time.Time `json:"createdAt"`
	}
	out := make([]listed, 0, len(infos))
	for _, info := range infos {
		out = append(out, listed{ID: info.ID, ToolCount: info.ToolCount, CreatedAt: info.CreatedAt})
	}
	r.pushResult(p, rpc.StringID("sessions"), map[string]any{"sessions": out})
}

func (r *Router) record(sessionID string, route *session.PendingRoute, outcome calllog.Outcome, errorCode int64) {
	if r.callLog == nil {
		return
	}
	r.callLog.Record(calllog.Record{
		Timestamp:  time.Now().UTC(),
		SessionID:  sessionID,
		CallerID:   route.CallerID,
		Method:     route.Method,
		ToolName:   route.ToolName,
		DurationMs: time.Since(route.EnqueuedAt).Milliseconds(),
		Outcome:    outcome,
		ErrorCode:  errorCode,
	})
}

func descriptorsOrEmpty(tools []tool.Descriptor) []tool.Descriptor {
	if tools == nil {
		return []tool.Descriptor{}
	}
	return tools
}
