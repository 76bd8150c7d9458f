// Package config loads and validates the declarative TOML document
// SPEC_FULL.md §6 describes: provider/model descriptors, MCP server
// descriptors, billing limits, fallback policy, and rate-limiting
// defaults. Grounded on the teacher's pkg/config/loader.go
// validate-then-freeze idiom (load once, return an immutable value, no
// package-level mutable singleton), re-pointed at a TOML wire format via
// github.com/pelletier/go-toml/v2 in place of the teacher's encoding/json
// loader, per SPEC_FULL §9's directive against global mutable state.
package config

import (
	"github.com/shopspring/decimal"
)

// ModelConfig is one `[models.<name>]` table.
type ModelConfig struct {
	Provider        string           `toml:"provider"`
	DefaultModel    string           `toml:"default_model"`
	Enabled         bool             `toml:"enabled"`
	APIEndpoint     string           `toml:"api_endpoint"`
	TimeoutSeconds  int              `toml:"timeout_seconds"`
	MaxRetries      int              `toml:"max_retries"`
	Priority        int              `toml:"priority"`
	RateLimits      RateLimitsConfig `toml:"rate_limits"`
	CostLimits      CostLimitsConfig `toml:"cost_limits"`
}

// RateLimitsConfig is a `[models.<name>.rate_limits]` table.
type RateLimitsConfig struct {
	RequestsPerMinute int `toml:"requests_per_minute"`
	TokensPerMinute   int `toml:"tokens_per_minute"`
	RequestsPerDay    int `toml:"requests_per_day"`
	ConcurrentRequests int `toml:"concurrent_requests"`
}

// CostLimitsConfig is a `[models.<name>.cost_limits]` table.
type CostLimitsConfig struct {
	MaxCostPerRequest string `toml:"max_cost_per_request"`
	DailyCostLimit    string `toml:"daily_cost_limit"`
	MonthlyCostLimit  string `toml:"monthly_cost_limit"`
}

// MCPServerConfig is one `[mcp_servers.<name>]` table.
type MCPServerConfig struct {
	Command        string            `toml:"command"`
	Args           []string          `toml:"args"`
	TransportType  string            `toml:"transport_type"` // "Stdio" or "WebSocket"
	WebSocketURL   string            `toml:"websocket_url"`
	EnvVars        map[string]string `toml:"env_vars"`
	Enabled        bool              `toml:"enabled"`
	AutoStart      bool              `toml:"auto_start"`
	TimeoutSeconds int               `toml:"timeout_seconds"`
}

// BillingConfig is the `[billing]` table.
type BillingConfig struct {
	DailyLimitUSD         string            `toml:"daily_limit_usd"`
	MonthlyLimitUSD       string            `toml:"monthly_limit_usd"`
	PerModelLimits        map[string]string `toml:"per_model_limits"`
	AlertThresholdPercent float64           `toml:"alert_threshold_percent"`
	TrackUsage            bool              `toml:"track_usage"`
}

// FallbackConfig is the `[fallback]` table.
type FallbackConfig struct {
	Enabled                   bool `toml:"enabled"`
	MaxRetries                int  `toml:"max_retries"`
	RetryDelayMs              int  `toml:"retry_delay_ms"`
	TimeoutMs                 int  `toml:"timeout_ms"`
	FallbackOnRateLimit       bool `toml:"fallback_on_rate_limit"`
	FallbackOnError           bool `toml:"fallback_on_error"`
	FallbackOnTimeout         bool `toml:"fallback_on_timeout"`
	QualityDegradationAllowed bool `toml:"quality_degradation_allowed"`
}

// RateLimitingConfig is the `[rate_limiting]` table.
type RateLimitingConfig struct {
	Enabled                  bool    `toml:"enabled"`
	TokenBucketRefillRate    float64 `toml:"token_bucket_refill_rate"`
	BurstAllowanceMultiplier float64 `toml:"burst_allowance_multiplier"`
	BackoffBaseDelayMs       int     `toml:"backoff_base_delay_ms"`
	BackoffMaxDelayMs        int     `toml:"backoff_max_delay_ms"`
	BackoffMultiplier        float64 `toml:"backoff_multiplier"`
}

// Config is the fully validated, immutable document loaded from a single
// TOML file. Callers thread it explicitly into constructors; nothing in
// this package holds one at package scope.
type Config struct {
	Models       map[string]ModelConfig     `toml:"models"`
	MCPServers   map[string]MCPServerConfig `toml:"mcp_servers"`
	Billing      BillingConfig              `toml:"billing"`
	Fallback     FallbackConfig             `toml:"fallback"`
	RateLimiting RateLimitingConfig         `toml:"rate_limiting"`
}

// DecimalOrZero parses a config string field, returning decimal.Zero for
// an empty string (an unset limit) rather than erroring.
func DecimalOrZero(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
