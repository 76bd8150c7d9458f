package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder is the production Recorder, grounded on
// pkg/agent/middleware/metrics/prometheus.go's promauto-registered
// CounterVec/HistogramVec shape.
type PrometheusRecorder struct {
	requestsTotal   *prometheus.CounterVec
	tokensTotal     *prometheus.CounterVec
	costsTotal      *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	queueWaitTime   *prometheus.HistogramVec
	throttleTotal   *prometheus.CounterVec
	toolCallsTotal  *prometheus.CounterVec
	toolDuration    *prometheus.HistogramVec
	enforcementTotal *prometheus.CounterVec
}

// NewPrometheusRecorder registers every metric against reg, so callers can
// use prometheus.NewRegistry() in tests instead of the global registry.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "llmrelay_requests_total",
			Help: "Total chat completion requests by model, agent, circuit state and outcome.",
		}, []string{"model", "agent_id", "state", "status", "error_type"}),
		tokensTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "llmrelay_tokens_total",
			Help: "Total tokens consumed by model and token type.",
		}, []string{"model", "type"}),
		costsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "llmrelay_cost_usd_total",
			Help: "Total estimated cost in USD by model.",
		}, []string{"model"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "llmrelay_request_duration_seconds",
			Help:    "Chat completion request duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"model", "status"}),
		queueWaitTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "llmrelay_queue_wait_seconds",
			Help:    "Time spent waiting for a rate-limit permit.",
			Buckets: prometheus.DefBuckets,
		}, []string{"model"}),
		throttleTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "llmrelay_throttle_total",
			Help: "Requests throttled before reaching the provider.",
		}, []string{"model", "reason"}),
		toolCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "llmrelay_mcp_tool_calls_total",
			Help: "MCP tool calls by server, tool and outcome.",
		}, []string{"server", "tool", "status"}),
		toolDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "llmrelay_mcp_tool_duration_seconds",
			Help:    "MCP tool call duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"server", "tool"}),
		enforcementTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "llmrelay_enforcement_decisions_total",
			Help: "Enforcement gate decisions by provider, model and action.",
		}, []string{"provider", "model", "action"}),
	}
}

func (r *PrometheusRecorder) ObserveRequest(model, agentID, circuitState string, promptTokens, completionTokens int, cost float64, success bool, errorType string, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	r.requestsTotal.WithLabelValues(model, agentID, circuitState, status, errorType).Inc()
	r.requestDuration.WithLabelValues(model, status).Observe(duration.Seconds())
	if success {
		r.tokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
		r.tokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
		r.costsTotal.WithLabelValues(model).Add(cost)
	}
}

func (r *PrometheusRecorder) IncThrottle(model, reason string) {
	r.throttleTotal.WithLabelValues(model, reason).Inc()
}

func (r *PrometheusRecorder) ObserveQueueWait(model string, duration time.Duration) {
	r.queueWaitTime.WithLabelValues(model).Observe(duration.Seconds())
}

func (r *PrometheusRecorder) ObserveToolCall(server, tool string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	r.toolCallsTotal.WithLabelValues(server, tool, status).Inc()
	r.toolDuration.WithLabelValues(server, tool).Observe(duration.Seconds())
}

func (r *PrometheusRecorder) ObserveEnforcement(provider, model, action string) {
	r.enforcementTotal.WithLabelValues(provider, model, action).Inc()
}
