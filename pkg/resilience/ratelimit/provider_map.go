package ratelimit

import (
	"fmt"
	"sync"
)

// ProviderMap holds one Limiter per configured provider, replacing the
// teacher's package-level registry with an explicitly constructed,
// explicitly injected collaborator (SPEC_FULL.md §9: no module-level
// mutable state).
type ProviderMap struct {
	mu       sync.RWMutex
	limiters map[string]*Limiter
}

func NewProviderMap() *ProviderMap {
	return &ProviderMap{limiters: make(map[string]*Limiter)}
}

// Register installs (or replaces) the Limiter for a provider.
func (m *ProviderMap) Register(provider string, cfg Config) *Limiter {
	l := New(provider, cfg)
	m.mu.Lock()
	m.limiters[provider] = l
	m.mu.Unlock()
	return l
}

func (m *ProviderMap) Get(provider string) (*Limiter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.limiters[provider]
	if !ok {
		return nil, fmt.Errorf("ratelimit: no limiter registered for provider %q", provider)
	}
	return l, nil
}

func (m *ProviderMap) AllStats() []Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := make([]Stats, 0, len(m.limiters))
	for _, l := range m.limiters {
		stats = append(stats, l.Stats())
	}
	return stats
}
