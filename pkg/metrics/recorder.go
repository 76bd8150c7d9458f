// Package metrics provides the Prometheus-backed observability layer for
// the chat pipeline and the MCP layer. Adapted from
// pkg/agent/middleware/metrics/{middleware.go,prometheus.go}; the two
// teacher files disagreed on whether ObserveRequest carries a cost
// parameter (middleware.go's call site omitted it, prometheus.go's
// interface declared it) — this package standardizes on the cost-carrying
// signature since billing cost is central here.
package metrics

import "time"

// Recorder is the observability sink every resilience middleware reports
// to. A no-op Recorder is supplied by NewNoop for tests that don't care
// about metrics.
type Recorder interface {
	ObserveRequest(model, agentID, circuitState string, promptTokens, completionTokens int, cost float64, success bool, errorType string, duration time.Duration)
	IncThrottle(model, reason string)
	ObserveQueueWait(model string, duration time.Duration)
	ObserveToolCall(server, tool string, duration time.Duration, success bool)
	ObserveEnforcement(provider, model, action string)
}

type noopRecorder struct{}

func NewNoop() Recorder { return noopRecorder{} }

func (noopRecorder) ObserveRequest(string, string, string, int, int, float64, bool, string, time.Duration) {
}
func (noopRecorder) IncThrottle(string, string)                      {}
func (noopRecorder) ObserveQueueWait(string, time.Duration)          {}
func (noopRecorder) ObserveToolCall(string, string, time.Duration, bool) {}
func (noopRecorder) ObserveEnforcement(string, string, string)       {}
