// Package model defines the core domain types shared across the alert engine.
// All monetary values use shopspring/decimal, never float64.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Opportunity is a cross-venue arbitrage candidate. Immutable once created,
// except for the expiry refresh applied when a demo opportunity is replayed.
type Opportunity struct {
	ID               string          `json:"id"`
	Sport            string          `json:"sport"`
	PolymarketMarket string          `json:"polymarket_market"`
	KalshiMarket     string          `json:"kalshi_market"`
	PolymarketPrice  decimal.Decimal `json:"polymarket_price"` // in [0,1]
	KalshiPrice      decimal.Decimal `json:"kalshi_price"`     // in [0,1]
	EstimatedProfit  decimal.Decimal `json:"estimated_profit"` // may be negative
	RequiredCapital  decimal.Decimal `json:"required_capital"`
	Confidence       float64         `json:"confidence"` // (0,1]
	CreatedAt        time.Time       `json:"created_at"`
	ExpiresAt        time.Time       `json:"expires_at"`
}

// TimeRemaining returns whole seconds until expiry. Negative means expired;
// callers decide whether an expired opportunity is still actionable.
func (o *Opportunity) TimeRemaining(now time.Time) int64 {
	return int64(o.ExpiresAt.Sub(now).Seconds())
}

// Expired reports whether the opportunity's window has passed.
func (o *Opportunity) Expired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}

// RiskProfile holds a user's identity and risk-management settings, the
// inputs to the auto-unlock eligibility checks.
type RiskProfile struct {
	UserID               string          `json:"user_id"`
	Email                string          `json:"email"`
	WalletAddress        string          `json:"wallet_address"`
	MaxRiskPerTrade      decimal.Decimal `json:"max_risk_per_trade"`
	DailyRiskLimit       decimal.Decimal `json:"daily_risk_limit"`
	MinAccountBalance    decimal.Decimal `json:"min_account_balance"`
	ProfitThreshold      decimal.Decimal `json:"profit_threshold"` // minimum profit %
	AutoExecutionEnabled bool            `json:"auto_execution_enabled"`
	IsActive             bool            `json:"is_active"`
	CreatedAt            time.Time       `json:"created_at"`
}

// Reason is an enumerated eligibility failure code. The check order is fixed
// so the most actionable reason (funding) surfaces before policy reasons.
type Reason string

const (
	ReasonInsufficientBalanceForFee Reason = "insufficient_balance_for_fee"
	ReasonExceedsRiskLimit          Reason = "exceeds_risk_limit"
	ReasonAutoExecutionDisabled     Reason = "auto_execution_disabled"
	ReasonUserNotFound              Reason = "user_not_found"
)

// EligibilityVerdict is the result of one auto-unlock evaluation. Never
// persisted; balances and limits can change between opportunities, so every
// check computes a fresh verdict.
type EligibilityVerdict struct {
	Eligible     bool            `json:"eligible"`
	Reason       Reason          `json:"reason,omitempty"`
	Balance      decimal.Decimal `json:"balance"`
	ExecutionFee decimal.Decimal `json:"execution_fee"`
	TradeAmount  decimal.Decimal `json:"trade_amount"`
	MaxAllowed   decimal.Decimal `json:"max_allowed"`
}

// FillStatus reports the outcome of one venue leg.
type FillStatus struct {
	Status string          `json:"status"`
	Price  decimal.Decimal `json:"price"`
}

// ExecutionResult is the outcome of one execution attempt. Ephemeral: pushed
// to the client and optionally handed to the payout capability, never stored.
type ExecutionResult struct {
	Success        bool            `json:"success"`
	GrossProfit    decimal.Decimal `json:"gross_profit"`
	ExecutionFee   decimal.Decimal `json:"execution_fee"`
	PlatformFee    decimal.Decimal `json:"platform_fee"` // 5% of gross
	NetProfit      decimal.Decimal `json:"net_profit"`   // >= 0 when Success
	PolymarketFill *FillStatus     `json:"polymarket_fill,omitempty"`
	KalshiFill     *FillStatus     `json:"kalshi_fill,omitempty"`
	Error          string          `json:"error,omitempty"`
	RollbackCost   decimal.Decimal `json:"rollback_cost"`
}

// UnlockRecord links an opportunity to the wallet that unlocked it.
// At most one record exists per (opportunity, wallet) pair.
type UnlockRecord struct {
	OpportunityID string          `json:"opportunity_id"`
	UserWallet    string          `json:"user_wallet"`
	PaymentHash   string          `json:"payment_hash"`
	UnlockedAt    time.Time       `json:"unlock_timestamp"`
	PaymentAmount decimal.Decimal `json:"payment_amount"`
}
