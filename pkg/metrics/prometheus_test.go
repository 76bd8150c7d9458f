package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	m := &dto.Metric{}
	require.NoError(t, (<-ch).Write(m))
	return m.GetCounter().GetValue()
}

func TestPrometheusRecorderObserveRequestSuccessIncrementsTokensAndCost(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewPrometheusRecorder(reg)

	r.ObserveRequest("claude-3-opus", "agent-1", "closed", 100, 50, 0.25, true, "", 200*time.Millisecond)

	assert.Equal(t, 1.0, counterValue(t, r.requestsTotal.WithLabelValues("claude-3-opus", "agent-1", "closed", "success", "")))
	assert.Equal(t, 100.0, counterValue(t, r.tokensTotal.WithLabelValues("claude-3-opus", "prompt")))
	assert.Equal(t, 50.0, counterValue(t, r.tokensTotal.WithLabelValues("claude-3-opus", "completion")))
	assert.Equal(t, 0.25, counterValue(t, r.costsTotal.WithLabelValues("claude-3-opus")))
}

func TestPrometheusRecorderObserveRequestFailureSkipsTokensAndCost(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewPrometheusRecorder(reg)

	r.ObserveRequest("claude-3-opus", "agent-1", "open", 0, 0, 0, false, "provider_auth", 10*time.Millisecond)

	assert.Equal(t, 1.0, counterValue(t, r.requestsTotal.WithLabelValues("claude-3-opus", "agent-1", "open", "error", "provider_auth")))
	assert.Equal(t, 0.0, counterValue(t, r.tokensTotal.WithLabelValues("claude-3-opus", "prompt")), "a failed request must not contribute token usage")
	assert.Equal(t, 0.0, counterValue(t, r.costsTotal.WithLabelValues("claude-3-opus")))
}

func TestPrometheusRecorderIncThrottle(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewPrometheusRecorder(reg)

	r.IncThrottle("claude-3-opus", "rate_limit")
	r.IncThrottle("claude-3-opus", "rate_limit")

	assert.Equal(t, 2.0, counterValue(t, r.throttleTotal.WithLabelValues("claude-3-opus", "rate_limit")))
}

func TestPrometheusRecorderObserveToolCall(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewPrometheusRecorder(reg)

	r.ObserveToolCall("filesystem", "read_file", 5*time.Millisecond, true)
	r.ObserveToolCall("filesystem", "read_file", 5*time.Millisecond, false)

	assert.Equal(t, 1.0, counterValue(t, r.toolCallsTotal.WithLabelValues("filesystem", "read_file", "success")))
	assert.Equal(t, 1.0, counterValue(t, r.toolCallsTotal.WithLabelValues("filesystem", "read_file", "error")))
}

func TestPrometheusRecorderObserveEnforcement(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewPrometheusRecorder(reg)

	r.ObserveEnforcement("anthropic", "claude-3-opus", "deny")

	assert.Equal(t, 1.0, counterValue(t, r.enforcementTotal.WithLabelValues("anthropic", "claude-3-opus", "deny")))
}

func TestNewNoopSatisfiesRecorderWithoutPanicking(t *testing.T) {
	r := NewNoop()
	r.ObserveRequest("m", "a", "closed", 1, 1, 1, true, "", time.Second)
	r.IncThrottle("m", "reason")
	r.ObserveQueueWait("m", time.Second)
	r.ObserveToolCall("s", "t", time.Second, true)
	r.ObserveEnforcement("p", "m", "allow")
}
