package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrMissingSessionID is returned when a turn arrives without a session id.
// Front ends must mint one; sessions are never shared between callers.
var ErrMissingSessionID = errors.New("conversation: session id is required")

// TurnProcessor is the boundary front ends call with one inbound message.
type TurnProcessor interface {
	Process(ctx context.Context, sessionID, message string) (*Result, error)
}

type sessionEntry struct {
	mu      sync.Mutex
	session *Session
}

// Registry owns in-memory sessions. Turns for one session run strictly one
// after another; different sessions proceed concurrently.
type Registry struct {
	agent *Agent

	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

func NewRegistry(agent *Agent) *Registry {
	if agent == nil {
		panic("conversation: agent cannot be nil")
	}
	return &Registry{agent: agent, sessions: make(map[string]*sessionEntry)}
}

func (r *Registry) entry(sessionID string) *sessionEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sessionID]
	if !ok {
		e = &sessionEntry{session: NewSession(sessionID)}
		r.sessions[sessionID] = e
	}
	return e
}

func normalizeSessionID(id string) string {
	return strings.TrimSpace(id)
}

// Process runs one turn for the session, creating it on first use.
func (r *Registry) Process(ctx context.Context, sessionID, message string) (*Result, error) {
	id := normalizeSessionID(sessionID)
	if id == "" {
		return nil, ErrMissingSessionID
	}
	e := r.entry(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	return r.agent.Process(ctx, e.session, message)
}

// Reset discards a session; the next message starts fresh.
func (r *Registry) Reset(sessionID string) bool {
	id := normalizeSessionID(sessionID)
	if id == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	return ok
}

// Snapshot returns the current state and lead fields of a session.
func (r *Registry) Snapshot(sessionID string) (*Result, bool) {
	id := normalizeSessionID(sessionID)
	if id == "" {
		return nil, false
	}
	r.mu.Lock()
	e, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.result(""), true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
