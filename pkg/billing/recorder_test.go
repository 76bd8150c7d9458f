package billing

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "billing.db")
	store, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordUsageInsertsRecordAndRollup(t *testing.T) {
	store := openTestStore(t)
	recorder := NewRecorder(store)

	requestID, err := recorder.RecordUsage("anthropic", "claude-3-opus", 100, 50, decimal.NewFromFloat(0.25), "conv-1", "msg-1")
	require.NoError(t, err)
	assert.NotEmpty(t, requestID)

	var cost string
	err = store.DB().QueryRow(`SELECT cost FROM usage_records WHERE request_id = ?`, requestID).Scan(&cost)
	require.NoError(t, err)
	assert.Equal(t, "0.25", cost)

	var totalCost string
	var requestCount int64
	err = store.DB().QueryRow(`SELECT total_cost, request_count FROM billing_rollups WHERE provider = ? AND model = ?`,
		"anthropic", "claude-3-opus").Scan(&totalCost, &requestCount)
	require.NoError(t, err)
	assert.Equal(t, "0.25", totalCost)
	assert.Equal(t, int64(1), requestCount)
}

func TestRecordUsageAccumulatesRollup(t *testing.T) {
	store := openTestStore(t)
	recorder := NewRecorder(store)

	_, err := recorder.RecordUsage("openai", "gpt-4", 10, 10, decimal.NewFromFloat(1.00), "", "")
	require.NoError(t, err)
	_, err = recorder.RecordUsage("openai", "gpt-4", 20, 20, decimal.NewFromFloat(2.50), "", "")
	require.NoError(t, err)

	var totalCost string
	var inTok, outTok, count int64
	err = store.DB().QueryRow(`SELECT total_input_tokens, total_output_tokens, total_cost, request_count
		FROM billing_rollups WHERE provider = ? AND model = ?`, "openai", "gpt-4").
		Scan(&inTok, &outTok, &totalCost, &count)
	require.NoError(t, err)
	assert.Equal(t, int64(30), inTok)
	assert.Equal(t, int64(30), outTok)
	assert.Equal(t, "3.5", totalCost)
	assert.Equal(t, int64(2), count)
}
