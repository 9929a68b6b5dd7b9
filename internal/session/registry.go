package session

import "sync"

// Registry is the single authoritative guild-to-session mapping. Creation
// happens under the registry lock so concurrent first access for the same
// guild never fabricates duplicates.
type Registry struct {
	deps Deps

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(deps Deps) *Registry {
	return &Registry{deps: deps, sessions: make(map[string]*Session)}
}

func (r *Registry) GetOrCreate(guildID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[guildID]; ok {
		return s
	}
	s := newSession(guildID, r.deps)
	r.sessions[guildID] = s
	return s
}

func (r *Registry) Peek(guildID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[guildID]
}

// Remove discards the session without persisting it. Used when the bot leaves
// a guild.
func (r *Registry) Remove(guildID string) {
	r.mu.Lock()
	s := r.sessions[guildID]
	delete(r.sessions, guildID)
	r.mu.Unlock()

	if s == nil {
		return
	}
	s.mu.Lock()
	s.cancelIdleLocked()
	s.mu.Unlock()
	_ = r.deps.Node.Destroy(guildID)
}
