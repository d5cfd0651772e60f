package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/hotmic/pkg/provider/stt"
)

// ErrProviderNotRegistered is returned by [Registry.Create] when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds the adapter pair for one configured provider. streaming may
// be nil for batch-only vendors.
type Factory func(entry ProviderEntry) (batch stt.BatchTranscriber, streaming stt.StreamingTranscriber, err error)

// Registry maps provider names to their constructor functions. It is safe for
// concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register registers a provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Create instantiates the adapters for entry using the factory registered
// under entry.Name. Returns [ErrProviderNotRegistered] if no factory has been
// registered for that name.
func (r *Registry) Create(entry ProviderEntry) (stt.BatchTranscriber, stt.StreamingTranscriber, error) {
	r.mu.RLock()
	factory, ok := r.factories[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// Names returns the registered factory names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
