// Package billing implements usage recording, spending limits, and
// enforcement over a SQLite-backed ledger (SPEC_FULL §4.I-§4.L).
package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// UsageRecord is one recorded API call, persisted in usage_records. Grounded
// on original_source/src/storage/usage.rs's UsageRecord and SPEC_FULL §6's
// usage_records table.
type UsageRecord struct {
	ID                    int64
	Timestamp             time.Time
	Provider              string
	Model                 string
	InputTokens           int
	OutputTokens          int
	Cost                  decimal.Decimal
	ConversationID        string
	MessageID             string
	RequestID             string
	BillingPeriod         string
	Verified              bool
	VerificationTimestamp *time.Time
}

// Rollup is the additive per-(period, provider, model) aggregate,
// persisted in billing_rollups. Grounded on
// original_source/src/storage/usage.rs's BillingSummary.
type Rollup struct {
	BillingPeriod      string
	Provider           string
	Model              string
	TotalInputTokens   int64
	TotalOutputTokens  int64
	TotalCost          decimal.Decimal
	RequestCount       int64
	LastUpdated        time.Time
}

// LimitScope distinguishes which spending limit a SpendingLimit applies to,
// per §4.J's Global → PerProvider → PerModel lookup order. Grounded on
// original_source/src/storage/billing.rs's SpendingLimitType.
type LimitScope int

const (
	ScopeGlobal LimitScope = iota
	ScopePerProvider
	ScopePerModel
)

func (s LimitScope) String() string {
	switch s {
	case ScopeGlobal:
		return "global"
	case ScopePerProvider:
		return "provider"
	case ScopePerModel:
		return "model"
	default:
		return "unknown"
	}
}

// Limits holds the configured monthly spending ceilings consulted by the
// Spending Checker, per SPEC_FULL §6's billing config table.
type Limits struct {
	GlobalMonthlyLimit   *decimal.Decimal
	PerProviderLimit     map[string]decimal.Decimal
	PerModelLimit        map[string]decimal.Decimal
}

// SpendingCheckResult is the outcome of Checker.Check, per §4.J.
type SpendingCheckResult struct {
	Allowed          bool
	Reason           string
	CurrentSpending  decimal.Decimal
	Limit            *decimal.Decimal
	PercentageUsed   *float64
	LimitScope       LimitScope
}

// EnforcementAction is the action an Enforcement Gate decision resolves to,
// per §4.K.
type EnforcementAction int

const (
	ActionAllow EnforcementAction = iota
	ActionBlock
	ActionWarning
	ActionEmergencyStop
	ActionRateLimit
)

func (a EnforcementAction) String() string {
	switch a {
	case ActionAllow:
		return "allow"
	case ActionBlock:
		return "block"
	case ActionWarning:
		return "warning"
	case ActionEmergencyStop:
		return "emergency_stop"
	case ActionRateLimit:
		return "rate_limit"
	default:
		return "unknown"
	}
}

// LimitInfo describes the limit an EnforcementResult's decision was made
// against.
type LimitInfo struct {
	LimitType      string
	Current        decimal.Decimal
	Maximum        decimal.Decimal
	PercentageUsed float64
}

// EnforcementResult is the outcome of Gate.CheckRequest, per §4.K.
type EnforcementResult struct {
	Allowed           bool
	Reason            string
	Action            EnforcementAction
	CurrentSpending   *decimal.Decimal
	LimitInfo         *LimitInfo
	RetryAfterSeconds *int64
}

// EnforcementConfig configures a Gate's behavior. Grounded on
// original_source/src/storage/enforcement.rs's EnforcementConfig.
type EnforcementConfig struct {
	Enabled                  bool
	CheckCacheTTLSeconds     int64
	RateLimitWindowSeconds   int64
	MaxRequestsPerWindow     int
	EmergencyStopThreshold   float64
	WarningThreshold         float64
}

// DefaultEnforcementConfig matches original_source's Default impl.
func DefaultEnforcementConfig() EnforcementConfig {
	return EnforcementConfig{
		Enabled:                true,
		CheckCacheTTLSeconds:   30,
		RateLimitWindowSeconds: 60,
		MaxRequestsPerWindow:   100,
		EmergencyStopThreshold: 0.95,
		WarningThreshold:       0.80,
	}
}

// VerificationResult is one outcome of Verifier.VerifyCosts, per §4.L.
type VerificationResult struct {
	RequestID      string
	OriginalCost   decimal.Decimal
	VerifiedCost   decimal.Decimal
	Discrepancy    decimal.Decimal
	VerifiedAt     time.Time
	Source         string
}

// BillingPeriodNow formats t as the YYYY-MM billing period SPEC_FULL §4.I
// requires.
func BillingPeriodNow(t time.Time) string {
	return t.UTC().Format("2006-01")
}
