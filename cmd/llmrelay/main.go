// llmrelay is the process entrypoint: it loads a TOML configuration file,
// wires the provider registry, resilience middleware chain, MCP
// supervisors, and billing enforcement gate together, then serves a
// Prometheus /metrics endpoint until terminated.
//
// Usage: llmrelay -config config.toml
//
// Grounded on cmd/maestro-mcp-server/main.go's small-main, signal-handled
// startup/shutdown shape.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"golang.org/x/term"

	"llmrelay/pkg/billing"
	"llmrelay/pkg/config"
	"llmrelay/pkg/llm"
	"llmrelay/pkg/logx"
	"llmrelay/pkg/mcp"
	"llmrelay/pkg/metrics"
	"llmrelay/pkg/provider"
	"llmrelay/pkg/provider/adapters/anthropic"
	"llmrelay/pkg/provider/adapters/google"
	"llmrelay/pkg/provider/adapters/ollama"
	"llmrelay/pkg/provider/adapters/openai"
	"llmrelay/pkg/provider/descriptor"
	"llmrelay/pkg/resilience/circuit"
	"llmrelay/pkg/resilience/ratelimit"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to the TOML configuration file")
	dbPath := flag.String("billing-db", "billing.db", "path to the billing SQLite database")
	metricsAddr := flag.String("metrics-addr", ":9090", "address to serve Prometheus /metrics on")
	flag.Parse()

	logger := logx.NewLogger("llmrelay")

	if err := run(*configPath, *dbPath, *metricsAddr, logger); err != nil {
		fmt.Fprintln(os.Stderr, "llmrelay:", err)
		os.Exit(1)
	}
}

// app bundles the wired dependencies an inbound request handler needs;
// nothing here is package-level mutable state (SPEC_FULL §9).
type app struct {
	registry *provider.Registry
	detector *provider.CapabilityDetector
	fallback *provider.Orchestrator
	mcp      *mcp.Client
	mcpMgr   *mcp.Manager
	billing  *billing.Gate
	recorder *billing.Recorder
	verifier *billing.Verifier
}

func run(configPath, dbPath, metricsAddr string, logger *logx.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	promReg := prometheus.NewRegistry()
	metricsRecorder := metrics.NewPrometheusRecorder(promReg)
	limiters := ratelimit.NewProviderMap()
	var estimator ratelimit.TokenEstimator
	if tiktoken, err := ratelimit.NewTiktokenEstimator(); err != nil {
		logger.Warn("falling back to char-count token estimator: %v", err)
		estimator = ratelimit.NewDefaultEstimator()
	} else {
		estimator = tiktoken
	}

	registry, err := buildRegistry(cfg, limiters, metricsRecorder, estimator, logger)
	if err != nil {
		return err
	}
	detector := provider.NewCapabilityDetector(registry)
	fallback := provider.NewOrchestrator(registry, detector, toFallbackConfig(cfg.Fallback))

	store, err := billing.Open(dbPath)
	if err != nil {
		return fmt.Errorf("billing: %w", err)
	}
	defer store.Close()

	recorder := billing.NewRecorder(store)
	checker := billing.NewChecker(store, billingLimits(cfg))
	gate := billing.NewGate(checker, billing.DefaultEnforcementConfig())
	verifier := billing.NewVerifier(store)

	manager := mcp.NewManager()
	for name, srv := range cfg.MCPServers {
		if !srv.Enabled {
			continue
		}
		manager.Add(name, toServerConfig(name, srv))
	}

	mcpClient := mcp.NewClient(manager, mcp.DefaultClientConfig())
	defer mcpClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, startErr := range manager.StartAll(ctx) {
		logger.Warn("MCP server failed to start: %v", startErr)
	}
	for _, sup := range manager.All() {
		if st, _ := sup.State(); st == mcp.StateReady {
			mcpClient.WatchServer(sup)
		}
	}
	defer manager.StopAll()

	application := &app{
		registry: registry,
		detector: detector,
		fallback: fallback,
		mcp:      mcpClient,
		mcpMgr:   manager,
		billing:  gate,
		recorder: recorder,
		verifier: verifier,
	}
	_ = application // wired for a future request-handling surface; this binary currently exposes only /metrics

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              metricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info("serving metrics on %s", metricsAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
			return
		}
		serverErrCh <- nil
	}()

	select {
	case <-sigCh:
		logger.Info("shutting down")
	case err := <-serverErrCh:
		if err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

// buildRegistry instantiates one adapter per enabled [models.<name>]
// entry, wraps it in the circuit breaker / rate limiter / metrics
// middleware chain, and prompts for a missing API key on an interactive
// terminal rather than failing outright.
func buildRegistry(cfg *config.Config, limiters *ratelimit.ProviderMap, recorder metrics.Recorder, estimator ratelimit.TokenEstimator, logger *logx.Logger) (*provider.Registry, error) {
	registry := provider.NewRegistry()
	for name, model := range cfg.Models {
		if !model.Enabled {
			continue
		}
		desc, err := toDescriptor(name, model)
		if err != nil {
			return nil, fmt.Errorf("models.%s: %w", name, err)
		}

		apiKey := os.Getenv(envKeyFor(model.Provider))
		if apiKey == "" && model.Provider != "ollama" {
			apiKey, err = promptForAPIKey(model.Provider)
			if err != nil {
				return nil, err
			}
		}

		base, err := buildAdapter(model.Provider, apiKey, model.APIEndpoint, desc)
		if err != nil {
			return nil, fmt.Errorf("models.%s: %w", name, err)
		}

		limiters.Register(model.Provider, toRateLimitConfig(model.RateLimits))
		breaker := circuit.New(circuit.DefaultConfig)
		client := llm.Chain(base,
			circuit.Middleware(breaker),
			ratelimit.Middleware(limiters, estimator, recorder),
			metrics.Middleware(recorder, name),
		)

		registry.Register(desc, client)
		logger.Info("registered provider %s (%s/%s)", name, model.Provider, model.DefaultModel)
	}
	return registry, nil
}

func buildAdapter(providerName, apiKey, endpoint string, desc descriptor.ProviderDescriptor) (llm.Client, error) {
	switch providerName {
	case "anthropic":
		return anthropic.New(apiKey, desc), nil
	case "openai":
		return openai.New(apiKey, desc), nil
	case "google":
		return google.New(apiKey, desc), nil
	case "ollama":
		host := endpoint
		if host == "" {
			host = "http://localhost:11434"
		}
		return ollama.New(host, desc), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", providerName)
	}
}

func envKeyFor(providerName string) string {
	switch providerName {
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	case "google":
		return "GOOGLE_API_KEY"
	default:
		return ""
	}
}

// promptForAPIKey asks for a secret on the controlling terminal without
// echoing it, matching cmd/maestro/interactive_bootstrap.go's
// term.ReadPassword idiom.
func promptForAPIKey(providerName string) (string, error) {
	fmt.Fprintf(os.Stderr, "Enter API key for %s: ", providerName)
	keyBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read API key for %s: %w", providerName, err)
	}
	return string(keyBytes), nil
}

func toDescriptor(name string, m config.ModelConfig) (descriptor.ProviderDescriptor, error) {
	maxCost, err := config.DecimalOrZero(m.CostLimits.MaxCostPerRequest)
	if err != nil {
		return descriptor.ProviderDescriptor{}, fmt.Errorf("max_cost_per_request: %w", err)
	}
	dailyCost, err := config.DecimalOrZero(m.CostLimits.DailyCostLimit)
	if err != nil {
		return descriptor.ProviderDescriptor{}, fmt.Errorf("daily_cost_limit: %w", err)
	}
	monthlyCost, err := config.DecimalOrZero(m.CostLimits.MonthlyCostLimit)
	if err != nil {
		return descriptor.ProviderDescriptor{}, fmt.Errorf("monthly_cost_limit: %w", err)
	}

	return descriptor.ProviderDescriptor{
		Name:         name,
		Provider:     m.Provider,
		DefaultModel: m.DefaultModel,
		Enabled:      m.Enabled,
		Priority:     m.Priority,
		RateLimits: descriptor.RateLimits{
			RequestsPerMinute: m.RateLimits.RequestsPerMinute,
			TokensPerMinute:   m.RateLimits.TokensPerMinute,
			RequestsPerDay:    m.RateLimits.RequestsPerDay,
			MaxConcurrent:     m.RateLimits.ConcurrentRequests,
		},
		CostLimits: descriptor.CostLimits{
			MaxCostPerRequest: maxCost,
			DailyCostLimit:    dailyCost,
			MonthlyCostLimit:  monthlyCost,
		},
	}, nil
}

func toRateLimitConfig(r config.RateLimitsConfig) ratelimit.Config {
	cfg := ratelimit.DefaultConfig
	if r.RequestsPerMinute > 0 {
		cfg.RequestsPerMinute = r.RequestsPerMinute
	}
	if r.TokensPerMinute > 0 {
		cfg.TokensPerMinute = r.TokensPerMinute
	}
	if r.ConcurrentRequests > 0 {
		cfg.MaxConcurrent = r.ConcurrentRequests
	}
	return cfg
}

func toFallbackConfig(f config.FallbackConfig) provider.FallbackConfig {
	return provider.FallbackConfig{
		Enabled:                   f.Enabled,
		MaxRetries:                f.MaxRetries,
		RetryDelay:                time.Duration(f.RetryDelayMs) * time.Millisecond,
		Timeout:                   time.Duration(f.TimeoutMs) * time.Millisecond,
		FallbackOnRateLimit:       f.FallbackOnRateLimit,
		FallbackOnError:           f.FallbackOnError,
		FallbackOnTimeout:         f.FallbackOnTimeout,
		QualityDegradationAllowed: f.QualityDegradationAllowed,
	}
}

func toServerConfig(name string, s config.MCPServerConfig) mcp.ServerConfig {
	transport := mcp.TransportStdio
	if s.TransportType == "WebSocket" {
		transport = mcp.TransportWebSocket
	}
	return mcp.ServerConfig{
		Name:           name,
		Command:        s.Command,
		Args:           s.Args,
		EnvVars:        s.EnvVars,
		Transport:      transport,
		WebSocketURL:   s.WebSocketURL,
		Enabled:        s.Enabled,
		AutoStart:      s.AutoStart,
		TimeoutSeconds: s.TimeoutSeconds,
	}
}

func billingLimits(cfg *config.Config) billing.Limits {
	limits := billing.Limits{
		PerProviderLimit: make(map[string]decimal.Decimal),
		PerModelLimit:    make(map[string]decimal.Decimal),
	}
	if monthly, err := config.DecimalOrZero(cfg.Billing.MonthlyLimitUSD); err == nil && !monthly.IsZero() {
		limits.GlobalMonthlyLimit = &monthly
	}
	for model, limitStr := range cfg.Billing.PerModelLimits {
		if d, err := config.DecimalOrZero(limitStr); err == nil && !d.IsZero() {
			limits.PerModelLimit[model] = d
		}
	}
	return limits
}
