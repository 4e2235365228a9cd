package provider

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the registered provider adapters keyed by provider ID.
// New providers register here without touching orchestrator or tracker code.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty adapter registry
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]Adapter),
	}
}

// Register adds an adapter under its provider ID
func (r *Registry) Register(adapter Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := adapter.ID()
	if id == "" {
		return fmt.Errorf("adapter has empty provider ID")
	}
	if _, exists := r.adapters[id]; exists {
		return fmt.Errorf("provider already registered: %s", id)
	}

	r.adapters[id] = adapter
	return nil
}

// Get returns the adapter for a provider ID
func (r *Registry) Get(providerID string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, ok := r.adapters[providerID]
	return adapter, ok
}

// IDs returns the registered provider IDs in sorted order
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
