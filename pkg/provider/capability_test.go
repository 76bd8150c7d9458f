package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmrelay/pkg/provider/descriptor"
)

func TestRecommendSkipsUnhealthyAdapter(t *testing.T) {
	registry := NewRegistry()
	desc := testDescriptor("anthropic", 10)
	client := newFakeClient(desc)
	client.healthy = false
	registry.Register(desc, client)

	detector := NewCapabilityDetector(registry)
	recs := detector.Recommend(context.Background(), TaskRequirements{})
	assert.Empty(t, recs)
}

func TestRecommendSkipsDisabledAdapter(t *testing.T) {
	registry := NewRegistry()
	desc := testDescriptor("anthropic", 10)
	desc.Enabled = false
	registry.Register(desc, newFakeClient(desc))

	detector := NewCapabilityDetector(registry)
	recs := detector.Recommend(context.Background(), TaskRequirements{})
	assert.Empty(t, recs)
}

func TestRecommendExcludesHardCapabilityMiss(t *testing.T) {
	registry := NewRegistry()
	desc := testDescriptor("text-only", 10)
	desc.Capabilities.SupportsVision = false
	registry.Register(desc, newFakeClient(desc))

	detector := NewCapabilityDetector(registry)
	recs := detector.Recommend(context.Background(), TaskRequirements{RequiresVision: true})
	assert.Empty(t, recs, "a provider without vision support must never be recommended for a vision-requiring task")
}

func TestRecommendRanksByConfidenceDescending(t *testing.T) {
	registry := NewRegistry()
	fast := testDescriptor("fast", 10)
	fast.Performance = descriptor.Performance{AvgResponseMs: 50, SuccessRate: 0.99, QualityScore: 0.9}
	slow := testDescriptor("slow", 10)
	slow.Performance = descriptor.Performance{AvgResponseMs: 5000, SuccessRate: 0.99, QualityScore: 0.9}
	registry.Register(fast, newFakeClient(fast))
	registry.Register(slow, newFakeClient(slow))

	detector := NewCapabilityDetector(registry)
	recs := detector.Recommend(context.Background(), TaskRequirements{QualityPriority: PrioritySpeed})
	require.Len(t, recs, 2)
	assert.Equal(t, "fast", recs[0].Provider, "the speed-optimized priority must rank the faster adapter first")
	assert.GreaterOrEqual(t, recs[0].Confidence, recs[1].Confidence)
}
