package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/tmassist/pkg/provider/llm"
)

// ErrProviderNotRegistered is returned when no factory is known for a
// provider entry's name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// LLMFactory builds a completion provider for one model slot.
type LLMFactory func(ProviderEntry) (llm.Provider, error)

// ListerFactory builds a model lister for the `models` command.
type ListerFactory func(ProviderEntry) (llm.Lister, error)

// Registry maps provider names such as "gemini" or "openai" to factories.
// Registering a name twice replaces the earlier factory. Safe for
// concurrent use.
type Registry struct {
	mu      sync.RWMutex
	llms    map[string]LLMFactory
	listers map[string]ListerFactory
}

func NewRegistry() *Registry {
	return &Registry{
		llms:    map[string]LLMFactory{},
		listers: map[string]ListerFactory{},
	}
}

func (r *Registry) RegisterLLM(name string, f LLMFactory) {
	r.mu.Lock()
	r.llms[name] = f
	r.mu.Unlock()
}

func (r *Registry) RegisterLister(name string, f ListerFactory) {
	r.mu.Lock()
	r.listers[name] = f
	r.mu.Unlock()
}

// CreateLLM builds the provider for entry, or returns an error wrapping
// [ErrProviderNotRegistered].
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	f, ok := r.llms[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm %q", ErrProviderNotRegistered, entry.Name)
	}
	return f(entry)
}

// CreateLister is the [Registry.CreateLLM] counterpart for model listers.
func (r *Registry) CreateLister(entry ProviderEntry) (llm.Lister, error) {
	r.mu.RLock()
	f, ok := r.listers[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: lister %q", ErrProviderNotRegistered, entry.Name)
	}
	return f(entry)
}

// LLMNames lists the registered completion providers in sorted order.
func (r *Registry) LLMNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.llms))
}
