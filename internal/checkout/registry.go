package checkout

import "sync"

// Registry hands out one Orchestrator per cart, so two attempts for the same
// cart always meet the same in-progress check.
type Registry struct {
	deps Deps

	mu    sync.Mutex
	carts map[string]*Orchestrator
}

func NewRegistry(deps Deps) *Registry {
	return &Registry{deps: deps, carts: make(map[string]*Orchestrator)}
}

func (r *Registry) For(cartID string) *Orchestrator {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.carts[cartID]
	if !ok {
		o = New(cartID, r.deps)
		r.carts[cartID] = o
	}
	return o
}
