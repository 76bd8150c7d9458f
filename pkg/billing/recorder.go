package billing

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"llmrelay/pkg/llmerrors"
)

// Recorder implements the Usage Recorder (component I, §4.I): every
// recorded usage event commits its UsageRecord insert and its
// BillingRollup upsert in a single transaction, never one without the
// other (invariant I2). Grounded on
// original_source/src/storage/usage.rs's record_usage/update_billing_summary_tx,
// re-expressed as Go decimal arithmetic in the app layer instead of SQLite
// REAL-cast arithmetic, to keep the rollup's running total exactly decimal
// rather than float-rounded.
type Recorder struct {
	store *Store
}

// NewRecorder builds a Recorder over store.
func NewRecorder(store *Store) *Recorder {
	return &Recorder{store: store}
}

// RecordUsage inserts a new UsageRecord and additively upserts its rollup,
// returning the freshly generated request_id.
func (r *Recorder) RecordUsage(provider, model string, inputTokens, outputTokens int, cost decimal.Decimal, conversationID, messageID string) (string, error) {
	requestID := uuid.NewString()
	now := time.Now().UTC()
	period := BillingPeriodNow(now)

	tx, err := r.store.db.Begin()
	if err != nil {
		return "", llmerrors.NewWithCause(llmerrors.KindInternal, err, "failed to begin usage transaction")
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO usage_records (
			timestamp, provider, model, input_tokens, output_tokens, cost,
			conversation_id, message_id, request_id, billing_period, verified
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		now.Unix(), provider, model, inputTokens, outputTokens, cost.String(),
		nullableString(conversationID), nullableString(messageID), requestID, period)
	if err != nil {
		return "", llmerrors.NewWithCause(llmerrors.KindInternal, err, "failed to insert usage record")
	}

	if err := upsertRollup(tx, period, provider, model, int64(inputTokens), int64(outputTokens), cost, now); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", llmerrors.NewWithCause(llmerrors.KindInternal, err, "failed to commit usage transaction")
	}
	return requestID, nil
}

// upsertRollup additively increments the (period, provider, model) rollup,
// creating it if absent. Runs inside tx so it commits atomically with
// whatever else the caller is doing in the same transaction.
func upsertRollup(tx *sql.Tx, period, provider, model string, inputTokens, outputTokens int64, cost decimal.Decimal, now time.Time) error {
	var existingCost string
	var existingIn, existingOut, existingCount int64
	err := tx.QueryRow(`SELECT total_input_tokens, total_output_tokens, total_cost, request_count
		FROM billing_rollups WHERE billing_period = ? AND provider = ? AND model = ?`,
		period, provider, model).Scan(&existingIn, &existingOut, &existingCost, &existingCount)

	switch err {
	case sql.ErrNoRows:
		_, err = tx.Exec(`INSERT INTO billing_rollups (
				billing_period, provider, model, total_input_tokens, total_output_tokens,
				total_cost, request_count, last_updated
			) VALUES (?, ?, ?, ?, ?, ?, 1, ?)`,
			period, provider, model, inputTokens, outputTokens, cost.String(), now.Unix())
		if err != nil {
			return llmerrors.NewWithCause(llmerrors.KindInternal, err, "failed to insert billing rollup")
		}
		return nil
	case nil:
		prior, decErr := decimal.NewFromString(existingCost)
		if decErr != nil {
			return llmerrors.NewWithCause(llmerrors.KindInternal, decErr, "corrupt rollup cost value")
		}
		newCost := prior.Add(cost)
		_, err = tx.Exec(`UPDATE billing_rollups SET
				total_input_tokens = ?, total_output_tokens = ?, total_cost = ?,
				request_count = ?, last_updated = ?
			WHERE billing_period = ? AND provider = ? AND model = ?`,
			existingIn+inputTokens, existingOut+outputTokens, newCost.String(),
			existingCount+1, now.Unix(), period, provider, model)
		if err != nil {
			return llmerrors.NewWithCause(llmerrors.KindInternal, err, "failed to update billing rollup")
		}
		return nil
	default:
		return llmerrors.NewWithCause(llmerrors.KindInternal, err, "failed to read billing rollup")
	}
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
