package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	registry := NewRegistry()
	desc := testDescriptor("anthropic", 10)
	registry.Register(desc, newFakeClient(desc))

	entry, err := registry.Get("anthropic")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", entry.Descriptor.Name)
}

func TestRegistryGetUnknownProvider(t *testing.T) {
	registry := NewRegistry()
	_, err := registry.Get("missing")
	assert.Error(t, err)
}

func TestRegistryAllSortedByDescendingPriority(t *testing.T) {
	registry := NewRegistry()
	low := testDescriptor("low", 1)
	high := testDescriptor("high", 100)
	mid := testDescriptor("mid", 50)
	registry.Register(low, newFakeClient(low))
	registry.Register(high, newFakeClient(high))
	registry.Register(mid, newFakeClient(mid))

	all := registry.All()
	require.Len(t, all, 3)
	assert.Equal(t, "high", all[0].Descriptor.Name)
	assert.Equal(t, "mid", all[1].Descriptor.Name)
	assert.Equal(t, "low", all[2].Descriptor.Name)
}

func TestRegistryRegisterReplacesExistingEntry(t *testing.T) {
	registry := NewRegistry()
	desc := testDescriptor("anthropic", 10)
	registry.Register(desc, newFakeClient(desc))

	replaced := testDescriptor("anthropic", 99)
	registry.Register(replaced, newFakeClient(replaced))

	entry, err := registry.Get("anthropic")
	require.NoError(t, err)
	assert.Equal(t, 99, entry.Descriptor.Priority)
	assert.Len(t, registry.Names(), 1)
}
