package relay

import "sync"

// Registry maps a session ID to the connections currently subscribed to its
// live feed. Empty sessions are removed eagerly.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]map[string]Conn
}

func NewRegistry() *Registry {
	return &Registry{sessions: map[string]map[string]Conn{}}
}

// Add subscribes conn to sessionID. It reports false when conn was already
// a member.
func (r *Registry) Add(sessionID string, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.sessions[sessionID]
	if !ok {
		members = map[string]Conn{}
		r.sessions[sessionID] = members
	}
	if _, exists := members[conn.ID()]; exists {
		return false
	}
	members[conn.ID()] = conn
	return true
}

func (r *Registry) Remove(sessionID string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(sessionID, conn)
}

// RemoveEverywhere drops conn from every session the caller last knew it to
// be in. It does not scan the whole registry.
func (r *Registry) RemoveEverywhere(conn Conn, sessionIDs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sessionID := range sessionIDs {
		r.removeLocked(sessionID, conn)
	}
}

func (r *Registry) removeLocked(sessionID string, conn Conn) {
	members, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	delete(members, conn.ID())
	if len(members) == 0 {
		delete(r.sessions, sessionID)
	}
}

// MembersOf returns a snapshot of the session's members. Unknown sessions
// yield an empty slice.
func (r *Registry) MembersOf(sessionID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.sessions[sessionID]
	out := make([]Conn, 0, len(members))
	for _, conn := range members {
		out = append(out, conn)
	}
	return out
}

// Stats returns the number of live sessions and subscribed connections.
func (r *Registry) Stats() (sessions, connections int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions = len(r.sessions)
	for _, members := range r.sessions {
		connections += len(members)
	}
	return sessions, connections
}
