package billing

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"llmrelay/pkg/llmerrors"
)

// CostVerification is one (request_id, authoritative_cost) pair submitted
// to Verifier.VerifyCosts.
type CostVerification struct {
	RequestID         string
	AuthoritativeCost decimal.Decimal
}

// Verifier implements the Cost Verifier (component L, §4.L): batch
// reconciliation of originally-estimated costs against an authoritative
// source, adjusting both the record and its rollup atomically. Grounded
// on original_source/src/storage/billing.rs's verify_costs_batch and
// cost_alerts.rs's discrepancy-as-warning idiom.
type Verifier struct {
	store *Store
}

// NewVerifier builds a Verifier over store.
func NewVerifier(store *Store) *Verifier {
	return &Verifier{store: store}
}

// VerifyCosts reconciles each (request_id, authoritative_cost) pair in
// order, skipping requests already verified. The first request_id with no
// usage record stops the batch: the results gathered so far are returned
// together with a NotFound error, and later pairs are not processed.
func (v *Verifier) VerifyCosts(verifications []CostVerification, source string) ([]VerificationResult, error) {
	results := make([]VerificationResult, 0, len(verifications))
	for _, cv := range verifications {
		result, err := v.verifyOne(cv, source)
		if err != nil {
			return results, err
		}
		if result != nil {
			results = append(results, *result)
		}
	}
	return results, nil
}

func (v *Verifier) verifyOne(cv CostVerification, source string) (*VerificationResult, error) {
	tx, err := v.store.db.Begin()
	if err != nil {
		return nil, llmerrors.NewWithCause(llmerrors.KindInternal, err, "failed to begin verification transaction")
	}
	defer tx.Rollback()

	var (
		id            int64
		originalCost  string
		provider      string
		model         string
		period        string
		verified      bool
	)
	err = tx.QueryRow(`SELECT id, cost, provider, model, billing_period, verified
		FROM usage_records WHERE request_id = ?`, cv.RequestID).
		Scan(&id, &originalCost, &provider, &model, &period, &verified)
	if err == sql.ErrNoRows {
		return nil, llmerrors.New(llmerrors.KindNotFound, "usage record not found for request_id "+cv.RequestID)
	}
	if err != nil {
		return nil, llmerrors.NewWithCause(llmerrors.KindInternal, err, "failed to load usage record")
	}
	if verified {
		return nil, nil
	}

	original, err := decimal.NewFromString(originalCost)
	if err != nil {
		return nil, llmerrors.NewWithCause(llmerrors.KindInternal, err, "corrupt usage record cost value")
	}
	discrepancy := cv.AuthoritativeCost.Sub(original)
	now := time.Now().UTC()

	_, err = tx.Exec(`UPDATE usage_records SET verified = 1, verification_timestamp = ?, cost = ?
		WHERE id = ?`, now.Unix(), cv.AuthoritativeCost.String(), id)
	if err != nil {
		return nil, llmerrors.NewWithCause(llmerrors.KindInternal, err, "failed to update usage record")
	}

	var rollupCost string
	err = tx.QueryRow(`SELECT total_cost FROM billing_rollups WHERE billing_period = ? AND provider = ? AND model = ?`,
		period, provider, model).Scan(&rollupCost)
	if err != nil {
		return nil, llmerrors.NewWithCause(llmerrors.KindInternal, err, "failed to load billing rollup for verification")
	}
	rollupTotal, err := decimal.NewFromString(rollupCost)
	if err != nil {
		return nil, llmerrors.NewWithCause(llmerrors.KindInternal, err, "corrupt rollup cost value")
	}
	adjusted := rollupTotal.Add(discrepancy)

	_, err = tx.Exec(`UPDATE billing_rollups SET total_cost = ?, last_updated = ?
		WHERE billing_period = ? AND provider = ? AND model = ?`,
		adjusted.String(), now.Unix(), period, provider, model)
	if err != nil {
		return nil, llmerrors.NewWithCause(llmerrors.KindInternal, err, "failed to adjust billing rollup")
	}

	if err := tx.Commit(); err != nil {
		return nil, llmerrors.NewWithCause(llmerrors.KindInternal, err, "failed to commit verification transaction")
	}

	return &VerificationResult{
		RequestID:    cv.RequestID,
		OriginalCost: original,
		VerifiedCost: cv.AuthoritativeCost,
		Discrepancy:  discrepancy,
		VerifiedAt:   now,
		Source:       source,
	}, nil
}
