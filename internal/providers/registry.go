// Package providers implements the provider registry: a name-keyed table of
// batch and streaming adapters plus accessors for the credential and model
// each adapter should run with.
//
// Lookups never fail. An unknown name falls back to the first registered
// provider with a warning, so a stale setting cannot block dictation.
package providers

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/hotmic/internal/config"
	"github.com/MrWong99/hotmic/pkg/provider/stt"
)

// ErrUnknownProvider is returned by [Registry.Validate] for names that were
// never registered.
var ErrUnknownProvider = errors.New("providers: unknown provider")

// Accessor extracts one setting for a provider from the current config.
type Accessor func(cfg *config.Config) string

// Entry is one registered provider.
type Entry struct {
	Name      string
	Batch     stt.BatchTranscriber
	Streaming stt.StreamingTranscriber

	// Credential and Model read this provider's settings. A nil Credential
	// marks a provider that needs no API key (e.g. a local model).
	Credential Accessor
	Model      Accessor
}

// Registry is safe for concurrent use. Entries are immutable after
// registration.
type Registry struct {
	mu      sync.RWMutex
	entries []*Entry
	byName  map[string]*Entry
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{byName: make(map[string]*Entry)}
}

// Register adds a provider. A nil streaming adapter is replaced by
// [stt.Unsupported]. Registering a name twice replaces the adapters but keeps
// the original position in fallback order.
func (r *Registry) Register(name string, batch stt.BatchTranscriber, streaming stt.StreamingTranscriber, credential, model Accessor) {
	if streaming == nil {
		streaming = stt.Unsupported{Provider: name}
	}
	e := &Entry{
		Name:       name,
		Batch:      batch,
		Streaming:  streaming,
		Credential: credential,
		Model:      model,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[name]; ok {
		for i, old := range r.entries {
			if old.Name == name {
				r.entries[i] = e
			}
		}
	} else {
		r.entries = append(r.entries, e)
	}
	r.byName[name] = e
}

// Lookup returns the entry for name, or the first registered entry when name
// is unknown. It returns nil only when the registry is empty.
func (r *Registry) Lookup(name string) *Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.byName[name]; ok {
		return e
	}
	if len(r.entries) == 0 {
		return nil
	}
	first := r.entries[0]
	slog.Warn("providers: unknown provider, falling back", "requested", name, "fallback", first.Name)
	return first
}

// Batch returns the batch adapter for name, falling back to the first
// registered provider.
func (r *Registry) Batch(name string) stt.BatchTranscriber {
	if e := r.Lookup(name); e != nil {
		return e.Batch
	}
	return nil
}

// Streaming returns the streaming adapter for name, falling back to the first
// registered provider.
func (r *Registry) Streaming(name string) stt.StreamingTranscriber {
	if e := r.Lookup(name); e != nil {
		return e.Streaming
	}
	return nil
}

// Entries returns all entries in registration order.
func (r *Registry) Entries() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Entry(nil), r.entries...)
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.Name
	}
	return names
}

// Validate reports why a session with provider name cannot start under cfg:
// an unknown name or an empty credential. It returns nil when the provider is
// usable.
func (r *Registry) Validate(name string, cfg *config.Config) error {
	r.mu.RLock()
	e, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	if e.Credential == nil {
		return nil
	}
	if e.Credential(cfg) == "" {
		return fmt.Errorf("%s: %w: API key is not set", name, stt.ErrConfiguration)
	}
	return nil
}

// UpdateAll pushes the current credential and model of every provider into
// its adapters. Call only while no session is active.
func (r *Registry) UpdateAll(cfg *config.Config) {
	for _, e := range r.Entries() {
		var key, model string
		if e.Credential != nil {
			key = e.Credential(cfg)
		}
		if e.Model != nil {
			model = e.Model(cfg)
		}
		e.Batch.UpdateSettings(key, model)
		e.Streaming.UpdateSettings(key, model)
	}
}

// FromConfig returns accessors reading name's api_key and model from the
// providers list of a config.
func FromConfig(name string) (credential, model Accessor) {
	credential = func(cfg *config.Config) string {
		p, _ := cfg.Provider(name)
		return p.APIKey
	}
	model = func(cfg *config.Config) string {
		p, _ := cfg.Provider(name)
		return p.Model
	}
	return credential, model
}

// Build creates adapters for every provider in cfg through factories and
// registers them in config order. Providers whose factory fails are skipped
// and reported in the joined error; the registry still holds the rest.
func Build(cfg *config.Config, factories *config.Registry, needsKey func(name string) bool) (*Registry, error) {
	r := New()
	var errs []error
	for _, p := range cfg.Providers {
		batch, streaming, err := factories.Create(p)
		if err != nil {
			errs = append(errs, fmt.Errorf("providers: build %q: %w", p.Name, err))
			continue
		}
		cred, model := FromConfig(p.Name)
		if needsKey != nil && !needsKey(p.Name) {
			cred = nil
		}
		r.Register(p.Name, batch, streaming, cred, model)
	}
	return r, errors.Join(errs...)
}
