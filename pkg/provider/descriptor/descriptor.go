// Package descriptor holds the read-only value types describing a provider:
// its identity, capabilities, rate-limit defaults and pricing. These types
// are deliberately separate from the adapter implementation so that every
// consumer (fallback orchestrator, capability detector, enforcement gate)
// can copy and compare them freely without touching the live adapter
// instance — see SPEC_FULL.md §9, Resolved Open Question 2.
package descriptor

import (
	"time"

	"github.com/shopspring/decimal"
)

// RateLimits mirrors the per-period limits a ProviderDescriptor carries.
type RateLimits struct {
	RequestsPerMinute int
	TokensPerMinute   int
	RequestsPerDay    int
	MaxConcurrent     int
}

// CostLimits are the optional per-request/day/month ceilings a provider may
// declare; SpendingLimit (pkg/billing) enforces the aggregate side of this.
type CostLimits struct {
	MaxCostPerRequest decimal.Decimal
	DailyCostLimit    decimal.Decimal
	MonthlyCostLimit  decimal.Decimal
}

// ModelPrice is the per-1000-token input/output price for one model.
type ModelPrice struct {
	InputPer1K  decimal.Decimal
	OutputPer1K decimal.Decimal
	EffectiveAt time.Time
}

// PricingTable maps model name to its ModelPrice for one provider.
type PricingTable map[string]ModelPrice

// EstimateCost computes decimal cost for a token count, rounding to 1e-6
// half-to-even as SPEC_FULL.md §9 requires.
func (t PricingTable) EstimateCost(model string, inputTokens, outputTokens int) decimal.Decimal {
	price, ok := t[model]
	if !ok {
		return decimal.Zero
	}
	input := price.InputPer1K.Mul(decimal.NewFromInt(int64(inputTokens))).Div(decimal.NewFromInt(1000))
	output := price.OutputPer1K.Mul(decimal.NewFromInt(int64(outputTokens))).Div(decimal.NewFromInt(1000))
	return input.Add(output).RoundBank(6)
}

// Capabilities records what an adapter's backend can do, used by the
// Capability Detector to eliminate hard misses.
type Capabilities struct {
	SupportsStreaming       bool
	SupportsFunctionCalling bool
	SupportsVision          bool
	MaxContextTokens        int
}

// Performance is the adapter's observed running performance, updated by
// the fallback orchestrator as attempts complete.
type Performance struct {
	AvgResponseMs float64
	SuccessRate   float64
	QualityScore  float64
}

// ProviderDescriptor is the stable, copyable identity of one provider/model
// pairing a pipeline routes to. Created at config load; the registry holds
// one per configured model and never mutates it in place — a config reload
// replaces the whole value.
type ProviderDescriptor struct {
	Name         string
	Provider     string
	DefaultModel string
	Enabled      bool
	Priority     int
	RateLimits   RateLimits
	CostLimits   CostLimits
	Pricing      PricingTable
	Capabilities Capabilities
	Performance  Performance
}
