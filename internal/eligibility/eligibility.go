// Package eligibility decides whether an opportunity auto-unlocks for a user.
//
// The three gating checks run in fixed order and short-circuit on the first
// failure: fee affordability, per-trade risk limit, auto-execution flag. The
// ordering is user-facing: the most actionable reason (funding) is reported
// before stricter policy reasons.
package eligibility

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/arboretum/alert-engine/internal/model"
)

// BalanceSource is the injected read-only balance capability. The second
// return value reports whether the lookup succeeded; a failed lookup is
// treated as a zero balance (fail closed, never fail open).
type BalanceSource interface {
	Balance(ctx context.Context, wallet string) (decimal.Decimal, bool)
}

// Evaluator computes fresh eligibility verdicts. It holds no per-user state;
// verdicts are never cached because balances and limits can change between
// opportunities.
type Evaluator struct {
	balances     BalanceSource
	executionFee decimal.Decimal
}

// New creates an evaluator with the fixed per-trade execution fee.
func New(balances BalanceSource, executionFee decimal.Decimal) *Evaluator {
	return &Evaluator{balances: balances, executionFee: executionFee}
}

// ExecutionFee returns the fixed execution fee the fee check gates on.
func (e *Evaluator) ExecutionFee() decimal.Decimal { return e.executionFee }

// Evaluate applies the gating checks for one (user, trade amount) pair.
// The fee check compares the available balance against the fixed execution
// fee, not against the trade amount itself.
func (e *Evaluator) Evaluate(ctx context.Context, user *model.RiskProfile, tradeAmount decimal.Decimal) model.EligibilityVerdict {
	balance, ok := e.balances.Balance(ctx, user.WalletAddress)
	if !ok {
		balance = decimal.Zero
	}

	verdict := model.EligibilityVerdict{
		Balance:      balance,
		ExecutionFee: e.executionFee,
		TradeAmount:  tradeAmount,
		MaxAllowed:   user.MaxRiskPerTrade,
	}

	if balance.LessThan(e.executionFee) {
		verdict.Reason = model.ReasonInsufficientBalanceForFee
		return verdict
	}
	if tradeAmount.GreaterThan(user.MaxRiskPerTrade) {
		verdict.Reason = model.ReasonExceedsRiskLimit
		return verdict
	}
	if !user.AutoExecutionEnabled {
		verdict.Reason = model.ReasonAutoExecutionDisabled
		return verdict
	}

	verdict.Eligible = true
	return verdict
}
