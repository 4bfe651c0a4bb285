package session

import (
	"sync"
)

// Registry maps logged-in identities to their live session and tracks every
// connected session for shutdown broadcasts.
type Registry struct {
	mu         sync.RWMutex
	byIdentity map[string]*Session
	live       map[*Session]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byIdentity: make(map[string]*Session),
		live:       make(map[*Session]struct{}),
	}
}

// Track records a newly accepted session.
func (r *Registry) Track(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live[s] = struct{}{}
}

// Untrack forgets a session and drops its identity binding if it still owns it.
func (r *Registry) Untrack(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.live, s)
	if identity := s.Identity(); identity != "" && r.byIdentity[identity] == s {
		delete(r.byIdentity, identity)
	}
}

// Bind registers s under identity, replacing any earlier session. The
// displaced session is returned but left open.
func (r *Registry) Bind(identity string, s *Session) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.byIdentity[identity]
	r.byIdentity[identity] = s
	if prev == s {
		return nil
	}
	return prev
}

// Unbind removes identity only when s is still its registered session.
func (r *Registry) Unbind(identity string, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byIdentity[identity] != s {
		return false
	}
	delete(r.byIdentity, identity)
	return true
}

// Lookup returns the session registered for identity.
func (r *Registry) Lookup(identity string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byIdentity[identity]
	return s, ok
}

// Delivery is the outcome of a Push.
type Delivery string

const (
	Queued  Delivery = "queued"
	Offline Delivery = "offline"
	Dropped Delivery = "dropped"
)

// Push enqueues line on the session bound to identity. Absent identities are
// dropped silently; nothing is kept for later delivery.
func (r *Registry) Push(identity string, line []byte) Delivery {
	s, ok := r.Lookup(identity)
	if !ok {
		return Offline
	}
	if !s.Enqueue(line) {
		return Dropped
	}
	return Queued
}

// Bound reports whether identity currently has a session.
func (r *Registry) Bound(identity string) bool {
	_, ok := r.Lookup(identity)
	return ok
}

// Sessions snapshots every live session.
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.live))
	for s := range r.live {
		out = append(out, s)
	}
	return out
}

// Online reports how many identities currently have a bound session.
func (r *Registry) Online() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byIdentity)
}
