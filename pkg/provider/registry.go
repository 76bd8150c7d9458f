// Package provider holds the provider Registry, Capability Detector and
// Fallback Orchestrator: everything that decides which adapter serves a
// given request. Adapters themselves live under pkg/provider/adapters.
package provider

import (
	"fmt"
	"sort"
	"sync"

	"llmrelay/pkg/llm"
	"llmrelay/pkg/provider/descriptor"
)

// Entry pairs a provider's static descriptor with its live client.
type Entry struct {
	Descriptor descriptor.ProviderDescriptor
	Client     llm.Client
}

// Registry is the explicit, non-singleton home for every configured
// provider adapter. It replaces the teacher's global registry
// (pkg/tools.globalRegistry) with ordinary dependency injection, per the
// spec's explicit-wiring design note.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register adds or replaces the adapter for desc.Name.
func (r *Registry) Register(desc descriptor.ProviderDescriptor, client llm.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[desc.Name] = Entry{Descriptor: desc, Client: client}
}

func (r *Registry) Get(name string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return Entry{}, fmt.Errorf("provider %q not registered", name)
	}
	return e, nil
}

// All returns a snapshot of every registered entry, sorted by descending
// priority so callers that want a simple "pick the first enabled one"
// policy get a sane default ordering.
func (r *Registry) All() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Descriptor.Priority > out[j-1].Descriptor.Priority; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// Names returns the registered provider names in alphabetical order,
// independent of registration order; used by config reload diagnostics.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for name := range r.entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
