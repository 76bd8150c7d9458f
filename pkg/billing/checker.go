package billing

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"llmrelay/pkg/llmerrors"
)

// Checker implements the Spending Checker (component J, §4.J): Global →
// PerProvider → PerModel limit lookup, reading only rollup totals (never
// scanning usage_records). Grounded on
// original_source/src/storage/billing.rs's check_spending_limits.
type Checker struct {
	store  *Store
	limits Limits
}

// NewChecker builds a Checker over store with the given configured limits.
func NewChecker(store *Store, limits Limits) *Checker {
	return &Checker{store: store, limits: limits}
}

// SetLimits replaces the configured limits wholesale.
func (c *Checker) SetLimits(limits Limits) {
	c.limits = limits
}

// Check runs the three-tier limit lookup for a proposed charge. When the
// charge fits every configured limit, the allowed result carries the limit
// with the highest projected percentage used.
func (c *Checker) Check(provider, model string, proposedCost decimal.Decimal) (SpendingCheckResult, error) {
	period := BillingPeriodNow(time.Now())
	result := SpendingCheckResult{Allowed: true, CurrentSpending: decimal.Zero}

	if c.limits.GlobalMonthlyLimit != nil {
		current, err := c.periodSpending(period, "", "")
		if err != nil {
			return SpendingCheckResult{}, err
		}
		res, exceeded := evaluateLimit(current, proposedCost, *c.limits.GlobalMonthlyLimit, ScopeGlobal, "global")
		if exceeded {
			return res, nil
		}
		result = mostUsed(result, res)
	}

	if limit, ok := c.limits.PerProviderLimit[provider]; ok {
		current, err := c.periodSpending(period, provider, "")
		if err != nil {
			return SpendingCheckResult{}, err
		}
		res, exceeded := evaluateLimit(current, proposedCost, limit, ScopePerProvider, provider)
		if exceeded {
			return res, nil
		}
		result = mostUsed(result, res)
	}

	if limit, ok := c.limits.PerModelLimit[model]; ok {
		current, err := c.periodSpending(period, "", model)
		if err != nil {
			return SpendingCheckResult{}, err
		}
		res, exceeded := evaluateLimit(current, proposedCost, limit, ScopePerModel, model)
		if exceeded {
			return res, nil
		}
		result = mostUsed(result, res)
	}

	return result, nil
}

// mostUsed returns whichever allowed result has the higher percentage used.
func mostUsed(a, b SpendingCheckResult) SpendingCheckResult {
	if a.PercentageUsed == nil || (b.PercentageUsed != nil && *b.PercentageUsed > *a.PercentageUsed) {
		return b
	}
	return a
}

// evaluateLimit projects current+proposed against limit. The result always
// carries the limit and the projected percentage used; the bool reports
// whether the limit would be exceeded, in which case the result is a denial.
func evaluateLimit(current, proposed, limit decimal.Decimal, scope LimitScope, name string) (SpendingCheckResult, bool) {
	projected := current.Add(proposed)
	pct := 100.0
	if !limit.IsZero() {
		pct, _ = projected.Div(limit, 6).Mul(decimal.NewFromInt(100)).Float64()
	}
	result := SpendingCheckResult{
		Allowed:         true,
		CurrentSpending: current,
		Limit:           &limit,
		PercentageUsed:  &pct,
		LimitScope:      scope,
	}
	if projected.LessThanOrEqual(limit) {
		return result, false
	}
	result.Allowed = false
	result.Reason = "would exceed " + name + " monthly limit of " + limit.String()
	return result, true
}

// periodSpending sums total_cost from billing_rollups for period, optionally
// narrowed to one provider or one model (empty string means "any").
func (c *Checker) periodSpending(period, provider, model string) (decimal.Decimal, error) {
	query := `SELECT total_cost FROM billing_rollups WHERE billing_period = ?`
	args := []any{period}
	if provider != "" {
		query += ` AND provider = ?`
		args = append(args, provider)
	}
	if model != "" {
		query += ` AND model = ?`
		args = append(args, model)
	}

	rows, err := c.store.db.Query(query, args...)
	if err != nil {
		return decimal.Zero, llmerrors.NewWithCause(llmerrors.KindInternal, err, "failed to query billing rollups")
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return decimal.Zero, llmerrors.NewWithCause(llmerrors.KindInternal, err, "failed to scan rollup cost")
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, llmerrors.NewWithCause(llmerrors.KindInternal, err, "corrupt rollup cost value")
		}
		total = total.Add(d)
	}
	if err := rows.Err(); err != nil && err != sql.ErrNoRows {
		return decimal.Zero, llmerrors.NewWithCause(llmerrors.KindInternal, err, "failed to iterate billing rollups")
	}
	return total, nil
}
