package httpapi

import (
	"sync"

	"github.com/florianweber/lena/internal/convo"
)

// SessionRegistry holds live conversation state and supports graceful
// draining. When draining is enabled, new sessions are rejected while
// in-flight conversations finish naturally.
//
// The mu mutex makes the draining check and the map insert atomic in Put(),
// so no session can slip in after StartDraining returns.
type SessionRegistry struct {
	mu       sync.RWMutex
	draining bool
	sessions map[string]*convo.Session
}

// NewSessionRegistry creates a new SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*convo.Session)}
}

// Put registers a live session. Returns false if the registry is draining,
// meaning no new sessions should be accepted.
func (sr *SessionRegistry) Put(s *convo.Session) bool {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	if sr.draining {
		return false
	}
	sr.sessions[s.ID] = s
	return true
}

// Get returns the live session with the given ID, or nil.
func (sr *SessionRegistry) Get(id string) *convo.Session {
	sr.mu.RLock()
	defer sr.mu.RUnlock()
	return sr.sessions[id]
}

// Remove drops a session from the registry.
func (sr *SessionRegistry) Remove(id string) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	delete(sr.sessions, id)
}

// All returns a snapshot of the live sessions.
func (sr *SessionRegistry) All() []*convo.Session {
	sr.mu.RLock()
	defer sr.mu.RUnlock()
	out := make([]*convo.Session, 0, len(sr.sessions))
	for _, s := range sr.sessions {
		out = append(out, s)
	}
	return out
}

// StartDraining sets the draining flag so that future Put calls return false.
func (sr *SessionRegistry) StartDraining() {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.draining = true
}

// IsDraining reports whether the registry is in draining mode.
func (sr *SessionRegistry) IsDraining() bool {
	sr.mu.RLock()
	defer sr.mu.RUnlock()
	return sr.draining
}

// ActiveCount returns the number of live sessions.
func (sr *SessionRegistry) ActiveCount() int {
	sr.mu.RLock()
	defer sr.mu.RUnlock()
	return len(sr.sessions)
}
