package realtime

import (
	"sync"

	"github.com/google/uuid"
)

// Registry counts open push connections per user.
type Registry struct {
	mu    sync.Mutex
	conns map[uint]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[uint]map[string]struct{})}
}

// Add registers a new connection and returns its id.
func (r *Registry) Add(userID uint) string {
	id := uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conns[userID] == nil {
		r.conns[userID] = make(map[string]struct{})
	}
	r.conns[userID][id] = struct{}{}
	return id
}

// Remove drops a connection and returns how many the user still has.
func (r *Registry) Remove(userID uint, connID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.conns[userID]
	if !ok {
		return 0
	}
	delete(conns, connID)
	if len(conns) == 0 {
		delete(r.conns, userID)
		return 0
	}
	return len(conns)
}

func (r *Registry) Count(userID uint) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns[userID])
}
