package session

import (
	"context"
	"log"
	"sync"
)

// Registry maps room ids to their live sessions. At most one session per
// room exists at a time: creation and eviction both happen under the
// registry lock, and a session deletes its own entry before rejecting
// further commands, so a caller who loses the race gets ErrSessionClosed
// from Join and simply calls GetOrCreate again.
type Registry struct {
	cfg      Config
	resolver RoleResolver
	sink     EventSink

	mu       sync.Mutex
	sessions map[string]*RoomSession
	shutdown bool
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config, resolver RoleResolver, sink EventSink) *Registry {
	return &Registry{
		cfg:      cfg.withDefaults(),
		resolver: resolver,
		sink:     sink,
		sessions: make(map[string]*RoomSession),
	}
}

// GetOrCreate returns the room's live session, starting one if needed.
// maxParticipants is the room's own limit (0 = unlimited); it only
// applies when this call creates the session.
func (r *Registry) GetOrCreate(roomID string, maxParticipants int) (*RoomSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shutdown {
		return nil, ErrSessionClosed
	}
	if s, ok := r.sessions[roomID]; ok {
		return s, nil
	}
	cfg := r.cfg
	cfg.MaxParticipants = maxParticipants
	s := newRoomSession(roomID, cfg, r.resolver, r.sink, r.evict)
	r.sessions[roomID] = s
	go s.run()
	return s, nil
}

// Get returns the live session for the room, or nil.
func (r *Registry) Get(roomID string) *RoomSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[roomID]
}

// evict removes the session's entry if it is still the current one.
// Called by the session itself right before it stops accepting commands.
func (r *Registry) evict(roomID string, s *RoomSession) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[roomID]; ok && cur == s {
		delete(r.sessions, roomID)
		return true
	}
	return false
}

// NotifyRolesChanged forwards a role change notification to the room's
// session, if one is live. A room with no session needs nothing: roles
// are resolved fresh on the next join.
func (r *Registry) NotifyRolesChanged(roomID string) {
	if s := r.Get(roomID); s != nil {
		s.NotifyRolesChanged()
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Shutdown closes every live session and refuses new ones.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	r.shutdown = true
	live := make([]*RoomSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		live = append(live, s)
	}
	r.mu.Unlock()

	for _, s := range live {
		s.Close(ctx)
	}
	log.Printf("[Registry] Shut down %d session(s)", len(live))
}
