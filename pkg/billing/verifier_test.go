package billing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmrelay/pkg/llmerrors"
)

func TestVerifyCostsAdjustsRecordAndRollup(t *testing.T) {
	store := openTestStore(t)
	recorder := NewRecorder(store)
	requestID, err := recorder.RecordUsage("anthropic", "claude-3-opus", 100, 50, decimal.NewFromFloat(1.00), "", "")
	require.NoError(t, err)

	verifier := NewVerifier(store)
	results, err := verifier.VerifyCosts([]CostVerification{
		{RequestID: requestID, AuthoritativeCost: decimal.NewFromFloat(1.20)},
	}, "provider-invoice")
	require.NoError(t, err)
	require.Len(t, results, 1)

	result := results[0]
	assert.True(t, decimal.NewFromFloat(1.00).Equal(result.OriginalCost))
	assert.True(t, decimal.NewFromFloat(1.20).Equal(result.VerifiedCost))
	assert.True(t, decimal.NewFromFloat(0.20).Equal(result.Discrepancy))
	assert.Equal(t, "provider-invoice", result.Source)

	var rollupCost string
	err = store.DB().QueryRow(`SELECT total_cost FROM billing_rollups WHERE provider = ? AND model = ?`,
		"anthropic", "claude-3-opus").Scan(&rollupCost)
	require.NoError(t, err)
	assert.Equal(t, "1.2", rollupCost, "rollup total must absorb the discrepancy, not just the new absolute cost")
}

func TestVerifyCostsSkipsAlreadyVerifiedRecord(t *testing.T) {
	store := openTestStore(t)
	recorder := NewRecorder(store)
	requestID, err := recorder.RecordUsage("anthropic", "claude-3-opus", 10, 10, decimal.NewFromFloat(1.00), "", "")
	require.NoError(t, err)

	verifier := NewVerifier(store)
	cv := CostVerification{RequestID: requestID, AuthoritativeCost: decimal.NewFromFloat(1.50)}

	results, err := verifier.VerifyCosts([]CostVerification{cv}, "source-a")
	require.NoError(t, err)
	require.Len(t, results, 1)

	results, err = verifier.VerifyCosts([]CostVerification{cv}, "source-b")
	require.NoError(t, err)
	assert.Empty(t, results, "a second verification of an already-verified record must be skipped, not re-applied")
}

func TestVerifyCostsUnknownRequestIDReturnsNotFound(t *testing.T) {
	store := openTestStore(t)
	verifier := NewVerifier(store)

	_, err := verifier.VerifyCosts([]CostVerification{
		{RequestID: "does-not-exist", AuthoritativeCost: decimal.NewFromFloat(1.00)},
	}, "source")
	require.Error(t, err)
	assert.Equal(t, llmerrors.KindNotFound, llmerrors.KindOf(err))
}
