// Package event defines the JSON messages pushed to WebSocket clients.
// Every message carries a "type" tag; failures are delivered as typed events
// over the same channel as successes, never as a protocol-level abort.
package event

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/arboretum/alert-engine/internal/model"
)

// Message types.
const (
	TypeConnected             = "connected"
	TypeEligibilityStatus     = "eligibility_status"
	TypeOpportunity           = "arbitrage_opportunity"
	TypeTradeExecution        = "trade_execution"
	TypeProfitDistribution    = "profit_distribution"
	TypePing                  = "ping"
	TypeSubscriptionConfirmed = "subscription_confirmed"
	TypeError                 = "error"
)

// Opportunity alert statuses.
const (
	StatusAutoUnlocked = "auto_unlocked"
	StatusPreviewOnly  = "preview_only"
)

// Trade execution statuses.
const (
	StatusStarted   = "started"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusError     = "error"
)

// Connected is the welcome message sent synchronously on accept.
type Connected struct {
	Type      string    `json:"type"`
	UserID    string    `json:"user_id,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// EligibilityStatus reports a user's auto-unlock standing after connect.
type EligibilityStatus struct {
	Type      string                   `json:"type"`
	Eligible  bool                     `json:"eligible"`
	Details   model.EligibilityVerdict `json:"details"`
	Timestamp time.Time                `json:"timestamp"`
}

// OpportunityPayload is an Opportunity plus its derived time_remaining,
// clamped to >= 0 for display.
type OpportunityPayload struct {
	model.Opportunity
	TimeRemaining int64 `json:"time_remaining"`
}

// NewOpportunityPayload builds the wire form of an opportunity.
func NewOpportunityPayload(o *model.Opportunity, now time.Time) OpportunityPayload {
	remaining := o.TimeRemaining(now)
	if remaining < 0 {
		remaining = 0
	}
	return OpportunityPayload{Opportunity: *o, TimeRemaining: remaining}
}

// OpportunityAlert is the fan-out message for one opportunity. Identified
// users get either auto_unlocked or preview_only with their verdict;
// anonymous users get a generic preview with a sign-up call to action.
type OpportunityAlert struct {
	Type           string                    `json:"type"`
	Opportunity    OpportunityPayload        `json:"opportunity"`
	Status         string                    `json:"status"`
	Eligibility    *model.EligibilityVerdict `json:"eligibility,omitempty"`
	ActionRequired string                    `json:"action_required,omitempty"`
	CallToAction   string                    `json:"call_to_action,omitempty"`
	Message        string                    `json:"message"`
	Timestamp      time.Time                 `json:"timestamp"`
}

// TradeExecution reports execution state-machine transitions.
type TradeExecution struct {
	Type          string                 `json:"type"`
	Status        string                 `json:"status"`
	OpportunityID string                 `json:"opportunity_id"`
	Result        *model.ExecutionResult `json:"result,omitempty"`
	Error         string                 `json:"error,omitempty"`
	Message       string                 `json:"message"`
	Timestamp     time.Time              `json:"timestamp"`
}

// ProfitDistribution confirms a payout to the user's wallet.
type ProfitDistribution struct {
	Type            string          `json:"type"`
	Status          string          `json:"status"`
	Amount          decimal.Decimal `json:"amount"`
	TransactionHash string          `json:"transaction_hash"`
	Message         string          `json:"message"`
	Timestamp       time.Time       `json:"timestamp"`
}

// Ping is the keepalive probe; clients answer with a "pong" client message.
type Ping struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// SubscriptionConfirmed acknowledges a subscribe_alerts request.
type SubscriptionConfirmed struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Error is echoed back for malformed or unrecognized client input.
type Error struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
