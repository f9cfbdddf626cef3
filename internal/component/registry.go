package component

import "sync"

// FactoryRegistry is an injective mapping from a component type name to
// the Factory that builds instances of it. Immutable after Controller
// startup; registration before basic_init is the only intended use.
type FactoryRegistry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewFactoryRegistry returns an empty registry.
func NewFactoryRegistry() *FactoryRegistry {
	return &FactoryRegistry{factories: make(map[string]Factory)}
}

// Add registers factory under componentType. A duplicate registration is
// not an error: it overwrites the previous factory and returns it to the
// caller, ok=true, so a caller that cares can detect and log the
// overwrite.
func (r *FactoryRegistry) Add(componentType string, factory Factory) (previous Factory, hadPrevious bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	previous, hadPrevious = r.factories[componentType]
	r.factories[componentType] = factory
	return previous, hadPrevious
}

// Lookup returns the factory registered for componentType, if any.
func (r *FactoryRegistry) Lookup(componentType string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[componentType]
	return f, ok
}
