package config

import (
	"fmt"
	"os"
	"regexp"

	"github.com/pelletier/go-toml/v2"
)

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads, validates, and freezes the TOML document at path, following
// the teacher's read → substitute env vars → parse → apply defaults →
// validate pipeline (pkg/config/loader.go's LoadConfig), re-pointed at
// TOML instead of JSON.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	substituted := envVarRegex.ReplaceAllStringFunc(string(data), func(match string) string {
		name := match[2 : len(match)-1]
		if value := os.Getenv(name); value != "" {
			return value
		}
		return match
	})

	var cfg Config
	if err := toml.Unmarshal([]byte(substituted), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults fills in the defaults SPEC_FULL §6 implies for fields a
// document may omit.
func applyDefaults(cfg *Config) {
	if cfg.Fallback.MaxRetries == 0 {
		cfg.Fallback.MaxRetries = 3
	}
	if cfg.Fallback.RetryDelayMs == 0 {
		cfg.Fallback.RetryDelayMs = 1000
	}
	if cfg.Fallback.TimeoutMs == 0 {
		cfg.Fallback.TimeoutMs = 30000
	}
	if cfg.RateLimiting.TokenBucketRefillRate == 0 {
		cfg.RateLimiting.TokenBucketRefillRate = 1.0
	}
	if cfg.RateLimiting.BurstAllowanceMultiplier == 0 {
		cfg.RateLimiting.BurstAllowanceMultiplier = 2.0
	}
	if cfg.RateLimiting.BackoffBaseDelayMs == 0 {
		cfg.RateLimiting.BackoffBaseDelayMs = 100
	}
	if cfg.RateLimiting.BackoffMaxDelayMs == 0 {
		cfg.RateLimiting.BackoffMaxDelayMs = 2000
	}
	if cfg.RateLimiting.BackoffMultiplier == 0 {
		cfg.RateLimiting.BackoffMultiplier = 2.0
	}
	for name, server := range cfg.MCPServers {
		if server.TimeoutSeconds == 0 {
			server.TimeoutSeconds = 30
			cfg.MCPServers[name] = server
		}
	}
	for name, model := range cfg.Models {
		if model.TimeoutSeconds == 0 {
			model.TimeoutSeconds = 60
			cfg.Models[name] = model
		}
		if model.MaxRetries == 0 {
			model.MaxRetries = 3
			cfg.Models[name] = model
		}
	}
}

// validate applies the rules SPEC_FULL §6 names: alert_threshold ∈
// [0,100]; every model needs non-empty provider and default_model; every
// MCP server needs non-empty command.
func validate(cfg *Config) error {
	if cfg.Billing.AlertThresholdPercent < 0 || cfg.Billing.AlertThresholdPercent > 100 {
		return fmt.Errorf("billing.alert_threshold_percent must be in [0,100], got %f", cfg.Billing.AlertThresholdPercent)
	}
	for name, model := range cfg.Models {
		if model.Provider == "" {
			return fmt.Errorf("models.%s: provider must not be empty", name)
		}
		if model.DefaultModel == "" {
			return fmt.Errorf("models.%s: default_model must not be empty", name)
		}
	}
	for name, server := range cfg.MCPServers {
		if server.Command == "" {
			return fmt.Errorf("mcp_servers.%s: command must not be empty", name)
		}
		if server.TransportType == "WebSocket" && server.WebSocketURL == "" {
			return fmt.Errorf("mcp_servers.%s: websocket_url is required for transport_type = \"WebSocket\"", name)
		}
	}
	return nil
}
