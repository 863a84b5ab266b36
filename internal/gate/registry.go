package gate

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds registered session gates, organized by hook type.
// Registration order is preserved per hook so check output is stable.
type Registry struct {
	mu    sync.RWMutex
	order map[HookType][]string
	byID  map[string]*Gate
}

// NewRegistry creates an empty gate registry.
func NewRegistry() *Registry {
	return &Registry{
		order: make(map[HookType][]string),
		byID:  make(map[string]*Gate),
	}
}

// Register adds a gate to the registry. Returns an error if a gate
// with the same ID is already registered.
func (r *Registry) Register(g *Gate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[g.ID]; exists {
		return fmt.Errorf("gate %q already registered", g.ID)
	}
	r.order[g.Hook] = append(r.order[g.Hook], g.ID)
	r.byID[g.ID] = g
	return nil
}

// Unregister removes a gate from the registry by ID.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, exists := r.byID[id]
	if !exists {
		return
	}
	delete(r.byID, id)

	ids := r.order[g.Hook]
	for i, gid := range ids {
		if gid == id {
			r.order[g.Hook] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
}

// Get returns a gate by ID, or nil if not found.
func (r *Registry) Get(id string) *Gate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id]
}

// GatesForHook returns all gates registered for the given hook type,
// in registration order.
func (r *Registry) GatesForHook(hookType HookType) []*Gate {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.order[hookType]
	result := make([]*Gate, 0, len(ids))
	for _, id := range ids {
		result = append(result, r.byID[id])
	}
	return result
}

// AllGates returns all registered gates, sorted by ID.
func (r *Registry) AllGates() []*Gate {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Gate, 0, len(r.byID))
	for _, g := range r.byID {
		result = append(result, g)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Count returns the total number of registered gates.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
