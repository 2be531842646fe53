package broker

import (
	"fmt"
	"sync"
)

// Registry resolves the adapter for a trading mode. Registration happens at
// startup; lookups happen per signal.
type Registry struct {
	mu       sync.RWMutex
	adapters map[Mode]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[Mode]Adapter)}
}

func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Mode()] = a
}

func (r *Registry) ForMode(mode Mode) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[mode]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for mode %q", mode)
	}
	return a, nil
}
