package billing

import (
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type cachedCheck struct {
	result    SpendingCheckResult
	expiresAt time.Time
}

type rateCounter struct {
	count       int
	windowStart time.Time
}

// Gate implements the Enforcement Gate (component K, §4.K): the public
// entry point consulted before every pipeline call, layering a rate
// counter and a TTL cache in front of the Checker. Grounded on
// original_source/src/storage/enforcement.rs's SpendingEnforcement.
type Gate struct {
	checker *Checker
	cfg     EnforcementConfig

	mu             sync.RWMutex
	emergencyStop  bool
	enabled        bool
	cache          map[string]cachedCheck
	rateCounters   map[string]*rateCounter
}

// NewGate builds a Gate over checker with cfg.
func NewGate(checker *Checker, cfg EnforcementConfig) *Gate {
	return &Gate{
		checker:      checker,
		cfg:          cfg,
		enabled:      true,
		cache:        make(map[string]cachedCheck),
		rateCounters: make(map[string]*rateCounter),
	}
}

// CheckRequest is the public entry point, run before every provider call.
func (g *Gate) CheckRequest(provider, model string, estimatedCost decimal.Decimal) EnforcementResult {
	g.mu.RLock()
	enabled := g.enabled && g.cfg.Enabled
	emergencyStop := g.emergencyStop
	g.mu.RUnlock()

	if !enabled {
		return EnforcementResult{Allowed: true, Reason: "enforcement disabled", Action: ActionAllow}
	}
	if emergencyStop {
		retryAfter := int64(3600)
		return EnforcementResult{
			Allowed:           false,
			Reason:            "emergency stop activated",
			Action:            ActionEmergencyStop,
			RetryAfterSeconds: &retryAfter,
		}
	}

	if result, limited := g.checkRateLimit(provider, model); limited {
		return result
	}

	cacheKey := provider + ":" + model + ":" + estimatedCost.String()
	if cached, ok := g.cachedResult(cacheKey); ok {
		return g.resultFromCheck(cached, true)
	}

	spendingCheck, err := g.checker.Check(provider, model, estimatedCost)
	if err != nil {
		return EnforcementResult{Allowed: true, Reason: "spending check failed: " + err.Error(), Action: ActionAllow}
	}

	g.cacheResult(cacheKey, spendingCheck)
	return g.resultFromCheck(spendingCheck, false)
}

func (g *Gate) resultFromCheck(check SpendingCheckResult, fromCache bool) EnforcementResult {
	action := ActionAllow
	if !check.Allowed {
		action = ActionBlock
	} else if check.PercentageUsed != nil {
		switch {
		case *check.PercentageUsed >= g.cfg.EmergencyStopThreshold*100:
			g.mu.Lock()
			g.emergencyStop = true
			g.mu.Unlock()
			action = ActionEmergencyStop
		case *check.PercentageUsed >= g.cfg.WarningThreshold*100:
			action = ActionWarning
		}
	}

	var limitInfo *LimitInfo
	if check.Limit != nil {
		pct := 0.0
		if check.PercentageUsed != nil {
			pct = *check.PercentageUsed
		}
		limitInfo = &LimitInfo{
			LimitType:      check.LimitScope.String(),
			Current:        check.CurrentSpending,
			Maximum:        *check.Limit,
			PercentageUsed: pct,
		}
	}

	return EnforcementResult{
		Allowed:         check.Allowed && action != ActionEmergencyStop,
		Reason:          check.Reason,
		Action:          action,
		CurrentSpending: &check.CurrentSpending,
		LimitInfo:       limitInfo,
	}
}

func (g *Gate) checkRateLimit(provider, model string) (EnforcementResult, bool) {
	key := provider + ":" + model
	now := time.Now()
	window := time.Duration(g.cfg.RateLimitWindowSeconds) * time.Second

	g.mu.Lock()
	defer g.mu.Unlock()

	counter, ok := g.rateCounters[key]
	if !ok || now.Sub(counter.windowStart) >= window {
		counter = &rateCounter{count: 0, windowStart: now}
		g.rateCounters[key] = counter
	}

	if counter.count >= g.cfg.MaxRequestsPerWindow {
		retryAfter := int64(window.Seconds()) - int64(now.Sub(counter.windowStart).Seconds())
		if retryAfter < 0 {
			retryAfter = 0
		}
		return EnforcementResult{
			Allowed:           false,
			Reason:            "rate limit exceeded",
			Action:            ActionRateLimit,
			RetryAfterSeconds: &retryAfter,
		}, true
	}

	counter.count++
	return EnforcementResult{}, false
}

func (g *Gate) cachedResult(key string) (SpendingCheckResult, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	entry, ok := g.cache[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return SpendingCheckResult{}, false
	}
	return entry.result, true
}

func (g *Gate) cacheResult(key string, result SpendingCheckResult) {
	ttl := time.Duration(g.cfg.CheckCacheTTLSeconds) * time.Second
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cache[key] = cachedCheck{result: result, expiresAt: time.Now().Add(ttl)}

	now := time.Now()
	for k, v := range g.cache {
		if now.After(v.expiresAt) {
			delete(g.cache, k)
		}
	}
}

// RecordSuccessfulRequest invalidates cache entries for (provider, model)
// so the next check observes fresh rollup totals, per §4.K step 6.
func (g *Gate) RecordSuccessfulRequest(provider, model string) {
	prefix := provider + ":" + model + ":"
	g.mu.Lock()
	defer g.mu.Unlock()
	for k := range g.cache {
		if strings.HasPrefix(k, prefix) {
			delete(g.cache, k)
		}
	}
}

// SetEmergencyStop manually sets or clears the emergency-stop flag.
func (g *Gate) SetEmergencyStop(enabled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.emergencyStop = enabled
}

// SetEnforcementEnabled toggles enforcement globally.
func (g *Gate) SetEnforcementEnabled(enabled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.enabled = enabled
}

// ClearCache empties the spending-check cache.
func (g *Gate) ClearCache() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cache = make(map[string]cachedCheck)
}

// ResetRateLimits empties all rate counters.
func (g *Gate) ResetRateLimits() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rateCounters = make(map[string]*rateCounter)
}

// Status is a snapshot of the Gate's manual-control state.
type Status struct {
	Enabled       bool
	EmergencyStop bool
	CacheEntries  int
	RateCounters  int
}

// GetStatus returns a snapshot of the gate's current state.
func (g *Gate) GetStatus() Status {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return Status{
		Enabled:       g.enabled,
		EmergencyStop: g.emergencyStop,
		CacheEntries:  len(g.cache),
		RateCounters:  len(g.rateCounters),
	}
}
