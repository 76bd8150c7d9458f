package billing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckerAllowsWithinLimits(t *testing.T) {
	store := openTestStore(t)
	recorder := NewRecorder(store)
	_, err := recorder.RecordUsage("anthropic", "claude-3-opus", 10, 10, decimal.NewFromFloat(5.00), "", "")
	require.NoError(t, err)

	limit := decimal.NewFromInt(100)
	checker := NewChecker(store, Limits{GlobalMonthlyLimit: &limit})

	result, err := checker.Check("anthropic", "claude-3-opus", decimal.NewFromFloat(1.00))
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestCheckerDeniesOverGlobalLimit(t *testing.T) {
	store := openTestStore(t)
	recorder := NewRecorder(store)
	_, err := recorder.RecordUsage("anthropic", "claude-3-opus", 10, 10, decimal.NewFromFloat(95.00), "", "")
	require.NoError(t, err)

	limit := decimal.NewFromInt(100)
	checker := NewChecker(store, Limits{GlobalMonthlyLimit: &limit})

	result, err := checker.Check("anthropic", "claude-3-opus", decimal.NewFromFloat(10.00))
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, ScopeGlobal, result.LimitScope)
}

func TestCheckerDeniesOverPerModelLimit(t *testing.T) {
	store := openTestStore(t)
	recorder := NewRecorder(store)
	_, err := recorder.RecordUsage("openai", "gpt-4", 10, 10, decimal.NewFromFloat(9.00), "", "")
	require.NoError(t, err)

	checker := NewChecker(store, Limits{
		PerModelLimit: map[string]decimal.Decimal{"gpt-4": decimal.NewFromInt(10)},
	})

	result, err := checker.Check("openai", "gpt-4", decimal.NewFromFloat(5.00))
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, ScopePerModel, result.LimitScope)
}

func TestCheckerAllowsWhenNoLimitsConfigured(t *testing.T) {
	store := openTestStore(t)
	checker := NewChecker(store, Limits{})

	result, err := checker.Check("anthropic", "claude-3-opus", decimal.NewFromFloat(1000.00))
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestCheckerGlobalLimitChecksBeforePerModel(t *testing.T) {
	store := openTestStore(t)
	recorder := NewRecorder(store)
	_, err := recorder.RecordUsage("anthropic", "claude-3-opus", 10, 10, decimal.NewFromFloat(99.00), "", "")
	require.NoError(t, err)

	globalLimit := decimal.NewFromInt(100)
	checker := NewChecker(store, Limits{
		GlobalMonthlyLimit: &globalLimit,
		PerModelLimit:      map[string]decimal.Decimal{"claude-3-opus": decimal.NewFromInt(1000)},
	})

	result, err := checker.Check("anthropic", "claude-3-opus", decimal.NewFromFloat(5.00))
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, ScopeGlobal, result.LimitScope, "global limit must be evaluated before the per-model limit")
}
