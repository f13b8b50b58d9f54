package platform

import (
	"github.com/stream-sync/recsync/internal/models"
)

// Registry holds the adapters enabled for this deployment, in configuration order.
type Registry struct {
	order    []models.Platform
	adapters map[models.Platform]Adapter
}

// NewRegistry builds a registry. A later adapter for the same platform replaces an earlier one.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[models.Platform]Adapter)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds or replaces an adapter.
func (r *Registry) Register(a Adapter) {
	p := a.Platform()
	if _, ok := r.adapters[p]; !ok {
		r.order = append(r.order, p)
	}
	r.adapters[p] = a
}

// Get returns the adapter for p.
func (r *Registry) Get(p models.Platform) (Adapter, bool) {
	a, ok := r.adapters[p]
	return a, ok
}

// All returns the adapters in registration order.
func (r *Registry) All() []Adapter {
	out := make([]Adapter, 0, len(r.order))
	for _, p := range r.order {
		out = append(out, r.adapters[p])
	}
	return out
}
