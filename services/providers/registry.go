package providers

import (
	"errors"
	"sync"

	"github.com/upb/llm-router/models"
)

var (
	// ErrInvokerNotFound is returned when no invoker is registered for a provider
	ErrInvokerNotFound = errors.New("invoker not found")

	// ErrInvokerAlreadyRegistered is returned on duplicate registration
	ErrInvokerAlreadyRegistered = errors.New("invoker already registered")
)

// Registry maps providers to their Invoker implementations. The router
// selects invokers by the descriptor's provider tag; no provider branching
// happens inside the router itself.
type Registry struct {
	mu       sync.RWMutex
	invokers map[models.Provider]Invoker
}

// NewRegistry creates an empty invoker registry
func NewRegistry() *Registry {
	return &Registry{
		invokers: make(map[models.Provider]Invoker),
	}
}

// Register adds an invoker for its provider
func (r *Registry) Register(invoker Invoker) error {
	if invoker == nil {
		return errors.New("invoker cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := invoker.Name()
	if name == "" {
		return errors.New("invoker provider name cannot be empty")
	}
	if _, exists := r.invokers[name]; exists {
		return ErrInvokerAlreadyRegistered
	}

	r.invokers[name] = invoker
	return nil
}

// Get retrieves the invoker for a provider
func (r *Registry) Get(provider models.Provider) (Invoker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	invoker, exists := r.invokers[provider]
	if !exists {
		return nil, ErrInvokerNotFound
	}
	return invoker, nil
}

// Providers returns all registered provider names
func (r *Registry) Providers() []models.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]models.Provider, 0, len(r.invokers))
	for name := range r.invokers {
		names = append(names, name)
	}
	return names
}
