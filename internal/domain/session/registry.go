package session

import (
	"sync"
	"time"

	"github.com/toolbridge/toolbridge/internal/domain/tool"
)

// Registry is the relay's session store. Every mutation of sessions, peers,
// and pending routes happens under one lock, which is the serialization
// point the routing fabric relies on: timer callbacks and message handling
// enter the same critical section, so a response racing its own timeout
// resolves exactly once.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	peers    map[string]*Peer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		peers:    make(map[string]*Peer),
	}
}

// AttachProvider installs the peer as the provider of the session, creating
// the session lazily. When an incumbent provider exists it is displaced:
// removed from the session and from the peer index, and returned so the
// caller can deliver the terminal takeover error before closing its sink.
// Pending routes survive the swap; they still belong to their callers.
func (r *Registry) AttachProvider(sessionID string, p *Peer) (displaced *Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.getOrCreateLocked(sessionID)
	displaced = s.Provider
	if displaced != nil {
		delete(r.peers, displaced.ID)
	}
	s.Provider = p
	p.SessionID = sessionID
	r.peers[p.ID] = p
	return displaced
}

// AttachCaller installs a caller into the session, creating it lazily.
func (r *Registry) AttachCaller(sessionID string, p *Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.getOrCreateLocked(sessionID)
	s.Callers[p.ID] = p
	p.SessionID = sessionID
	r.peers[p.ID] = p
}

// DetachResult describes the consequences of a peer disconnect.
type DetachResult struct {
	// Peer is the detached peer.
	Peer *Peer

	// WasProvider is true when the peer was its session's provider.
	WasProvider bool

	// SessionID is the session the peer belonged to.
	SessionID string

	// Callers are the remaining callers to notify of a provider loss.
	Callers []*Peer

	// Failed are the pending routes orphaned by a provider loss; their
	// callers must receive a connection error. Timers are already stopped.
	Failed []*PendingRoute

	// SessionRemoved is true when the session became idle and was destroyed.
	SessionRemoved bool
}

// Detach removes a peer on transport close and applies the liveness rule:
// a session with no provider and no callers is destroyed.
func (r *Registry) Detach(peerID string) (*DetachResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.peers[peerID]
	if !ok {
		return nil, ErrPeerNotFound
	}
	delete(r.peers, peerID)

	res := &DetachResult{Peer: p, SessionID: p.SessionID}
	s, ok := r.sessions[p.SessionID]
	if !ok {
		return res, nil
	}

	if s.Provider != nil && s.Provider.ID == peerID {
		res.WasProvider = true
		s.Provider = nil
		// In-flight forwards can no longer be answered; fail them now
		// instead of waiting for their timers.
		for id, route := range s.Pending {
			route.StopTimer()
			res.Failed = append(res.Failed, route)
			delete(s.Pending, id)
		}
		for _, c := range s.Callers {
			res.Callers = append(res.Callers, c)
		}
	} else {
		delete(s.Callers, peerID)
		// Routes originated by this caller have nowhere to deliver.
		for id, route := range s.Pending {
			if route.CallerID == peerID {
				route.StopTimer()
				delete(s.Pending, id)
			}
		}
	}

	if !s.Live() {
		r.removeSessionLocked(s)
		res.SessionRemoved = true
	}
	return res, nil
}

// Join adopts a caller into the target session and returns a snapshot of the
// target's tool catalogue. The caller leaves its previous session, which is
// destroyed if it becomes idle. Returns ErrSessionNotFound when the target
// does not exist and ErrPeerNotFound for unknown peers.
func (r *Registry) Join(peerID, targetSessionID string) ([]tool.Descriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.peers[peerID]
	if !ok {
		return nil, ErrPeerNotFound
	}
	target, ok := r.sessions[targetSessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if target.ID == p.SessionID {
		return target.ToolsSnapshot(), nil
	}

	if old, ok := r.sessions[p.SessionID]; ok {
		delete(old.Callers, peerID)
		for id, route := range old.Pending {
			if route.CallerID == peerID {
				route.StopTimer()
				delete(old.Pending, id)
			}
		}
		if !old.Live() {
			r.removeSessionLocked(old)
		}
	}

	target.Callers[peerID] = p
	p.SessionID = targetSessionID
	return target.ToolsSnapshot(), nil
}

// ReplaceTools replaces the session catalogue wholesale and returns the
// callers to notify. Only the current provider may call this.
func (r *Registry) ReplaceTools(sessionID string, tools []tool.Descriptor) ([]*Peer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.Tools = tool.CloneList(tools)
	callers := make([]*Peer, 0, len(s.Callers))
	for _, c := range s.Callers {
		callers = append(callers, c)
	}
	return callers, nil
}

// ToolsSnapshot returns a copy of the session's cached catalogue.
func (r *Registry) ToolsSnapshot(sessionID string) ([]tool.Descriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s.ToolsSnapshot(), nil
}

// Provider returns the session's current provider, or nil.
func (r *Registry) Provider(sessionID string) *Peer {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[sessionID]; ok {
		return s.Provider
	}
	return nil
}

// SoleCaller returns the session's only caller. The second return is false
// when the session has zero or multiple callers, in which case an unsigned
// message cannot be attributed.
func (r *Registry) SoleCaller(sessionID string) (*Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok || len(s.Callers) != 1 {
		return nil, false
	}
	for _, c := range s.Callers {
		return c, true
	}
	return nil, false
}

// PeerSession resolves a peer's current session id and that session's
// provider in one critical section. Peer.SessionID is rewritten by Join
// under the lock, so reading it through this accessor keeps a concurrent
// session/join from interleaving between the two lookups.
func (r *Registry) PeerSession(peerID string) (sessionID string, provider *Peer, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, found := r.peers[peerID]
	if !found {
		return "", nil, false
	}
	if s, live := r.sessions[p.SessionID]; live {
		provider = s.Provider
	}
	return p.SessionID, provider, true
}

// FindPeer looks up an attached peer by id.
func (r *Registry) FindPeer(peerID string) (*Peer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.peers[peerID]
	if !ok {
		return nil, ErrPeerNotFound
	}
	return p, nil
}

// AddPending records an in-flight forwarded request under its internal id
// and arms its expiry timer. The timer is attached inside the critical
// section: the StopTimer sweeps in Join and Detach run under the same lock,
// so they never observe a published route whose timer field is still being
// written.
func (r *Registry) AddPending(sessionID, internalID string, route *PendingRoute, timeout time.Duration, expire func()) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	route.SetTimer(time.AfterFunc(timeout, expire))
	s.Pending[internalID] = route
	return nil
}

// TakePending atomically removes and returns the route for an internal id,
// stopping its timer. The second return is false when the route was already
// resolved or timed out; exactly one taker wins.
func (r *Registry) TakePending(sessionID, internalID string) (*PendingRoute, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, false
	}
	route, ok := s.Pending[internalID]
	if !ok {
		return nil, false
	}
	delete(s.Pending, internalID)
	route.StopTimer()
	return route, true
}

// List returns a summary of all live sessions.
func (r *Registry) List() []Info {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]Info, 0, len(r.sessions))
	for _, s := range r.sessions {
		infos = append(infos, Info{
			ID:          s.ID,
			HasProvider: s.Provider != nil,
			CallerCount: len(s.Callers),
			ToolCount:   len(s.Tools),
			CreatedAt:   s.CreatedAt,
		})
	}
	return infos
}

// Counts returns the number of live sessions and attached peers.
func (r *Registry) Counts() (sessions, peers int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions), len(r.peers)
}

// CloseAll closes every peer sink and stops all pending timers.
// Used during relay shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.sessions {
		for _, route := range s.Pending {
			route.StopTimer()
		}
	}
	for _, p := range r.peers {
		p.Sink.Close()
	}
	r.sessions = make(map[string]*Session)
	r.peers = make(map[string]*Peer)
}

func (r *Registry) getOrCreateLocked(sessionID string) *Session {
	if s, ok := r.sessions[sessionID]; ok {
		return s
	}
	s := &Session{
		ID:        sessionID,
		Callers:   make(map[string]*Peer),
		Pending:   make(map[string]*PendingRoute),
		CreatedAt: time.Now().UTC(),
	}
	r.sessions[sessionID] = s
	return s
}

func (r *Registry) removeSessionLocked(s *Session) {
	for _, route := range s.Pending {
		route.StopTimer()
	}
	delete(r.sessions, s.ID)
}
