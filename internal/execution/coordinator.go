// Package execution drives the per-(user, opportunity) trade execution state
// machine: STARTED → {FILLED, FAILED} → [PROFIT_DISTRIBUTED].
//
// Each invocation is an independent task. Nothing in here propagates to the
// caller: capability failures become failure events pushed to the user, and
// panics are contained at the task boundary.
package execution

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arboretum/alert-engine/internal/event"
	"github.com/arboretum/alert-engine/internal/metrics"
	"github.com/arboretum/alert-engine/internal/model"
	"github.com/arboretum/alert-engine/internal/registry"
)

// Executor is the injected trade execution capability. It may be slow and
// must be safe to let run to completion even after the caller loses interest.
type Executor interface {
	Execute(ctx context.Context, opp *model.Opportunity) (*model.ExecutionResult, error)
}

// Payer is the injected payout capability.
type Payer interface {
	Send(ctx context.Context, recipient string, amount decimal.Decimal, memo string) (txRef string, err error)
}

// Coordinator runs execution flows and pushes progress events to the user's
// live connection. A missing connection is not an error: the flow still runs
// to completion so payout accounting stays consistent, and pushes are dropped.
type Coordinator struct {
	registry *registry.Registry
	executor Executor
	payer    Payer
}

// NewCoordinator wires the coordinator to its capabilities.
func NewCoordinator(reg *registry.Registry, executor Executor, payer Payer) *Coordinator {
	return &Coordinator{registry: reg, executor: executor, payer: payer}
}

// Execute runs one full execution flow synchronously. Callers that must not
// block (the broadcaster) invoke it in its own goroutine.
func (c *Coordinator) Execute(ctx context.Context, user *model.RiskProfile, opp *model.Opportunity) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("execution task panicked", "user", user.UserID, "opportunity", opp.ID, "panic", rec)
			metrics.ExecutionsTotal.WithLabelValues("error").Inc()
			c.push(user.UserID, event.TradeExecution{
				Type:          event.TypeTradeExecution,
				Status:        event.StatusError,
				OpportunityID: opp.ID,
				Error:         fmt.Sprint(rec),
				Message:       fmt.Sprintf("Execution error: %v", rec),
				Timestamp:     time.Now().UTC(),
			})
		}
	}()

	c.push(user.UserID, event.TradeExecution{
		Type:          event.TypeTradeExecution,
		Status:        event.StatusStarted,
		OpportunityID: opp.ID,
		Message:       fmt.Sprintf("Executing %s arbitrage...", opp.Sport),
		Timestamp:     time.Now().UTC(),
	})

	result, err := c.executor.Execute(ctx, opp)
	if err != nil {
		// Capability errors are a failed outcome, not a crash.
		result = &model.ExecutionResult{Success: false, Error: err.Error()}
	}

	if !result.Success {
		metrics.ExecutionsTotal.WithLabelValues("failed").Inc()
		slog.Warn("execution failed", "user", user.UserID, "opportunity", opp.ID, "err", result.Error)
		c.push(user.UserID, event.TradeExecution{
			Type:          event.TypeTradeExecution,
			Status:        event.StatusFailed,
			OpportunityID: opp.ID,
			Result:        result,
			Error:         result.Error,
			Message:       fmt.Sprintf("Trade failed: %s", result.Error),
			Timestamp:     time.Now().UTC(),
		})
		return
	}

	metrics.ExecutionsTotal.WithLabelValues("filled").Inc()
	slog.Info("execution completed",
		"user", user.UserID,
		"opportunity", opp.ID,
		"gross", result.GrossProfit.String(),
		"net", result.NetProfit.String(),
	)
	c.push(user.UserID, event.TradeExecution{
		Type:          event.TypeTradeExecution,
		Status:        event.StatusCompleted,
		OpportunityID: opp.ID,
		Result:        result,
		Message:       fmt.Sprintf("Trade completed! Profit: $%s", result.NetProfit.StringFixed(2)),
		Timestamp:     time.Now().UTC(),
	})

	if result.NetProfit.IsPositive() {
		c.distributeProfit(ctx, user, result.NetProfit, opp.ID)
	}
}

// distributeProfit pays out the net profit. Payout failures are logged and
// terminal; there is no automatic retry.
func (c *Coordinator) distributeProfit(ctx context.Context, user *model.RiskProfile, amount decimal.Decimal, opportunityID string) {
	memo := fmt.Sprintf("Arbitrage profit from %s", opportunityID)
	txRef, err := c.payer.Send(ctx, user.WalletAddress, amount, memo)
	if err != nil {
		metrics.PayoutsTotal.WithLabelValues("failed").Inc()
		slog.Error("profit distribution failed", "user", user.UserID, "opportunity", opportunityID, "err", err)
		return
	}

	metrics.PayoutsTotal.WithLabelValues("completed").Inc()
	slog.Info("profit distributed", "user", user.UserID, "amount", amount.String(), "tx", txRef)
	c.push(user.UserID, event.ProfitDistribution{
		Type:            event.TypeProfitDistribution,
		Status:          event.StatusCompleted,
		Amount:          amount,
		TransactionHash: txRef,
		Message:         fmt.Sprintf("$%s sent to your wallet!", amount.StringFixed(2)),
		Timestamp:       time.Now().UTC(),
	})
}

// push delivers an event to the user's current connection, if any. The
// connection is looked up per push so a mid-flight reconnect receives the
// remaining events and a disconnect silently drops them.
func (c *Coordinator) push(userID string, v any) {
	conn, ok := c.registry.Lookup(userID)
	if !ok {
		return
	}
	if err := conn.Send(v); err != nil {
		slog.Error("push failed", "user", userID, "err", err)
		c.registry.Disconnect(conn)
	}
}
