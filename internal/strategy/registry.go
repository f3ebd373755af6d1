package strategy

import (
	"fmt"
	"sync"
)

// Registry manages available strategies. Grounded on
// libs/strategies/registry.go, generalized to derive Metadata from a
// WithMetadata strategy instead of requiring it as a separate Register
// argument, since not every strategy needs to describe itself.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]Strategy)}
}

// Register adds a strategy. Returns an error for a nil strategy, an empty
// ID, or a duplicate ID.
func (r *Registry) Register(s Strategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s == nil {
		return fmt.Errorf("strategy: cannot register nil strategy")
	}
	id := s.ID()
	if id == "" {
		return fmt.Errorf("strategy: ID cannot be empty")
	}
	if _, exists := r.strategies[id]; exists {
		return fmt.Errorf("strategy: %s already registered", id)
	}
	r.strategies[id] = s
	return nil
}

// Get retrieves a strategy by ID.
func (r *Registry) Get(id string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, exists := r.strategies[id]
	if !exists {
		return nil, fmt.Errorf("strategy: %s not found", id)
	}
	return s, nil
}

// List returns all registered strategy IDs.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.strategies))
	for id := range r.strategies {
		ids = append(ids, id)
	}
	return ids
}

// Metadata returns the Metadata for a registered strategy, if it
// implements WithMetadata.
func (r *Registry) Metadata(id string) (Metadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, exists := r.strategies[id]
	if !exists {
		return Metadata{}, fmt.Errorf("strategy: %s not found", id)
	}
	if wm, ok := s.(WithMetadata); ok {
		return wm.Metadata(), nil
	}
	return Metadata{ID: s.ID(), Name: s.Name()}, nil
}

// ListAll returns every registered strategy's Metadata, keyed by ID.
func (r *Registry) ListAll() map[string]Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make(map[string]Metadata, len(r.strategies))
	for id, s := range r.strategies {
		if wm, ok := s.(WithMetadata); ok {
			result[id] = wm.Metadata()
		} else {
			result[id] = Metadata{ID: s.ID(), Name: s.Name()}
		}
	}
	return result
}
