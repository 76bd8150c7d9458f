package provider

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"llmrelay/pkg/llm"
	"llmrelay/pkg/llmerrors"
)

// FallbackConfig tunes the Fallback Orchestrator, mirroring SPEC_FULL.md
// §6's `fallback` section. Grounded on
// original_source/src/models/fallback.rs's FallbackConfig.
type FallbackConfig struct {
	Enabled                  bool
	MaxRetries               int
	RetryDelay               time.Duration
	Timeout                  time.Duration
	FallbackOnRateLimit      bool
	FallbackOnError          bool
	FallbackOnTimeout        bool
	QualityDegradationAllowed bool
}

func DefaultFallbackConfig() FallbackConfig {
	return FallbackConfig{
		Enabled:             true,
		MaxRetries:          3,
		RetryDelay:          time.Second,
		Timeout:             30 * time.Second,
		FallbackOnRateLimit: true,
		FallbackOnError:     true,
		FallbackOnTimeout:   true,
	}
}

// shouldFallbackOn reports whether cfg permits moving to the next
// candidate after err, per the three independent toggles §6 names. A nil
// err (success) never reaches this check.
func (cfg FallbackConfig) shouldFallbackOn(err error) bool {
	var classified *llmerrors.Error
	if !errors.As(err, &classified) {
		return cfg.FallbackOnError
	}
	switch classified.Kind {
	case llmerrors.KindRateLimit:
		return cfg.FallbackOnRateLimit
	case llmerrors.KindTimeout:
		return cfg.FallbackOnTimeout
	default:
		return cfg.FallbackOnError
	}
}

// Attempt records the outcome of one adapter try within a fallback run.
type Attempt struct {
	Provider      string
	Model         string
	AttemptNumber int
	Err           error
	ResponseTime  time.Duration
	Success       bool
}

const (
	maxCooldownFailures = 5
	cooldownDuration    = 5 * time.Minute
)

// Orchestrator drives ordered attempts across ranked adapters, tracking
// transient outages per (provider, model) key so a consistently failing
// backend is skipped until it cools down. Grounded on
// original_source/src/models/fallback.rs's ModelFallbackManager; per the
// spec's resolved Open Question 2, no adapter cloning is needed because
// the Registry already hands out shared llm.Client references rather than
// per-use private copies.
type Orchestrator struct {
	registry  *Registry
	detector  *CapabilityDetector
	cfg       FallbackConfig

	mu          sync.Mutex
	failures    map[string]int
	lastSuccess map[string]time.Time
}

func NewOrchestrator(registry *Registry, detector *CapabilityDetector, cfg FallbackConfig) *Orchestrator {
	return &Orchestrator{
		registry:    registry,
		detector:    detector,
		cfg:         cfg,
		failures:    make(map[string]int),
		lastSuccess: make(map[string]time.Time),
	}
}

// SendWithFallback infers task requirements from req, ranks candidate
// adapters, and tries each in order until one succeeds or the list (or
// MaxRetries) is exhausted.
func (o *Orchestrator) SendWithFallback(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, []Attempt, error) {
	requirements := inferTaskRequirements(req)
	recommendations := o.detector.Recommend(ctx, requirements)
	if len(recommendations) == 0 {
		return llm.CompletionResponse{}, nil, llmerrors.New(llmerrors.KindNotFound, "no suitable providers available")
	}
	if !o.cfg.Enabled {
		recommendations = recommendations[:1]
	}

	var attempts []Attempt
	var lastErr error

	for i, rec := range recommendations {
		key := rec.Provider + ":" + rec.Model
		if o.shouldSkip(key) {
			continue
		}

		start := time.Now()
		resp, err := o.tryProvider(ctx, rec.Provider, req)
		elapsed := time.Since(start)

		attempt := Attempt{
			Provider:      rec.Provider,
			Model:         rec.Model,
			AttemptNumber: i + 1,
			ResponseTime:  elapsed,
			Success:       err == nil,
			Err:           err,
		}
		attempts = append(attempts, attempt)

		if err == nil {
			o.recordSuccess(key)
			return resp, attempts, nil
		}

		o.recordFailure(key)
		lastErr = err

		if !o.cfg.shouldFallbackOn(err) {
			break
		}
		if i+1 >= o.cfg.MaxRetries {
			break
		}
		if i < len(recommendations)-1 && o.cfg.RetryDelay > 0 {
			select {
			case <-time.After(o.cfg.RetryDelay):
			case <-ctx.Done():
				return llm.CompletionResponse{}, attempts, ctx.Err()
			}
		}
	}

	if lastErr == nil {
		lastErr = llmerrors.New(llmerrors.KindInternal, "all providers failed")
	}
	return llm.CompletionResponse{}, attempts, lastErr
}

func (o *Orchestrator) tryProvider(ctx context.Context, providerName string, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	entry, err := o.registry.Get(providerName)
	if err != nil {
		return llm.CompletionResponse{}, err
	}
	if o.cfg.Timeout <= 0 {
		return entry.Client.Complete(ctx, req)
	}
	callCtx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()
	return entry.Client.Complete(callCtx, req)
}

func (o *Orchestrator) shouldSkip(key string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failures[key] < maxCooldownFailures {
		return false
	}
	last, ok := o.lastSuccess[key]
	if !ok {
		return true
	}
	return time.Since(last) < cooldownDuration
}

func (o *Orchestrator) recordSuccess(key string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures[key] = 0
	o.lastSuccess[key] = time.Now()
}

func (o *Orchestrator) recordFailure(key string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures[key]++
}

// inferTaskRequirements classifies the request by simple keyword heuristics,
// matching original_source/src/models/fallback.rs's infer_task_requirements.
func inferTaskRequirements(req llm.CompletionRequest) TaskRequirements {
	var sb strings.Builder
	for _, m := range req.Messages {
		sb.WriteString(m.Content)
		sb.WriteString(" ")
	}
	content := strings.ToLower(sb.String())

	taskType := TaskConversational
	switch {
	case containsAny(content, "code", "function", "programming"):
		taskType = TaskCodeGeneration
	case containsAny(content, "analyze", "reasoning", "logic"):
		taskType = TaskReasoning
	case containsAny(content, "summarize", "summary"):
		taskType = TaskSummarization
	case containsAny(content, "translate", "translation"):
		taskType = TaskTranslation
	case containsAny(content, "creative", "story", "poem"):
		taskType = TaskCreativeWriting
	case containsAny(content, "document"):
		taskType = TaskDocumentAnalysis
	case containsAny(content, "question", "what", "how", "why"):
		taskType = TaskQuestionAnswering
	}

	var maxResponseMs int64
	if req.Timeout > 0 {
		maxResponseMs = req.Timeout.Milliseconds()
	}

	return TaskRequirements{
		TaskType:          taskType,
		MaxTokensNeeded:   req.MaxTokens,
		RequiresStreaming: req.Stream,
		MaxResponseTimeMs: maxResponseMs,
		QualityPriority:   PriorityBalanced,
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
