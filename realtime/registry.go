package realtime

import (
	"sync"

	"github.com/google/uuid"
)

// Registry maps each identity to its live connections. One user may hold
// several at once (phone + browser). All mutation goes through Register
// and Unregister so the inverse index never drifts.
type Registry struct {
	mu     sync.RWMutex
	byUser map[uuid.UUID]map[*Client]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[uuid.UUID]map[*Client]struct{}),
	}
}

// Register records the connection under its identity channel. Idempotent
// per connection.
func (r *Registry) Register(c *Client) (first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.byUser[c.userID]
	if !ok {
		conns = make(map[*Client]struct{})
		r.byUser[c.userID] = conns
	}
	first = len(conns) == 0
	conns[c] = struct{}{}
	return first
}

// Unregister drops the connection; reports whether it was the identity's
// last live one.
func (r *Registry) Unregister(c *Client) (last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.byUser[c.userID]
	if !ok {
		return false
	}
	if _, ok := conns[c]; !ok {
		return false
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(r.byUser, c.userID)
		return true
	}
	return false
}

// ConnectionsFor returns a snapshot of the identity's live connections,
// possibly empty.
func (r *Registry) ConnectionsFor(userID uuid.UUID) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.byUser[userID]
	out := make([]*Client, 0, len(conns))
	for c := range conns {
		out = append(out, c)
	}
	return out
}
