package previews

import (
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// OrchestratorFactory builds the orchestrator of a new session.
type OrchestratorFactory func(identity Identity) (*Orchestrator, error)

// SessionRegistry holds one orchestrator per browser session. Sessions idle
// for longer than the TTL, or pushed out by newer sessions, are closed.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions *expirable.LRU[string, *Orchestrator]
	factory  OrchestratorFactory
}

// NewSessionRegistry creates a registry of at most maxSessions sessions.
func NewSessionRegistry(maxSessions int, ttl time.Duration, factory OrchestratorFactory) *SessionRegistry {
	onEvict := func(sessionID string, o *Orchestrator) {
		slog.Debug("[PREVIEW] session evicted", "session_id", sessionID)
		// Close waits for background runs; never block the cache lock on it
		go o.Close()
	}
	return &SessionRegistry{
		sessions: expirable.NewLRU[string, *Orchestrator](maxSessions, onEvict, ttl),
		factory:  factory,
	}
}

// Get returns the orchestrator of sessionID, creating it when needed.
// Each access extends the session's lifetime. A changed identity hard-resets
// the session.
func (r *SessionRegistry) Get(sessionID string, identity Identity) (*Orchestrator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if o, ok := r.sessions.Get(sessionID); ok {
		o.SetIdentity(identity)
		r.sessions.Add(sessionID, o)
		return o, nil
	}

	o, err := r.factory(identity)
	if err != nil {
		return nil, err
	}
	r.sessions.Add(sessionID, o)
	return o, nil
}

// Peek returns the orchestrator of sessionID without creating or refreshing it.
func (r *SessionRegistry) Peek(sessionID string) (*Orchestrator, bool) {
	return r.sessions.Peek(sessionID)
}

// Remove closes and forgets sessionID.
func (r *SessionRegistry) Remove(sessionID string) {
	r.sessions.Remove(sessionID)
}

// Len returns the number of live sessions.
func (r *SessionRegistry) Len() int {
	return r.sessions.Len()
}

// Close closes every session and waits for their background runs.
func (r *SessionRegistry) Close() {
	open := r.sessions.Values()
	r.sessions.Purge()
	for _, o := range open {
		o.Close()
	}
}
