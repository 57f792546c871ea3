// Package simulate provides stand-in trading, payout, and balance
// capabilities. The engine is wired against them until real venue and
// wallet integrations land; behavior is deterministic enough to test
// against (fill rates, fee math, wallet-derived balances).
package simulate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arboretum/alert-engine/internal/model"
)

// Executor simulates cross-venue order placement.
type Executor struct {
	latency       time.Duration
	fillRate      float64
	executionFee  decimal.Decimal
	platformShare decimal.Decimal // fraction of gross, e.g. 0.05

	mu  sync.Mutex
	rng *rand.Rand
}

// NewExecutor builds a simulated executor with a 90% fill rate. The flat
// executionFee is charged on every attempt, win or lose; platformShare is
// the platform's cut of gross profit.
func NewExecutor(latency time.Duration, executionFee, platformShare decimal.Decimal) *Executor {
	return &Executor{
		latency:       latency,
		fillRate:      0.9,
		executionFee:  executionFee,
		platformShare: platformShare,
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (e *Executor) roll() (fill bool, grossFactor, rollback float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fill = e.rng.Float64() < e.fillRate
	grossFactor = 0.8 + e.rng.Float64()*0.3
	rollback = 1 + e.rng.Float64()*3
	return
}

// Execute places both legs of the arbitrage. A failed fill on the second
// leg rolls the first back; the execution fee is lost either way.
func (e *Executor) Execute(ctx context.Context, opp *model.Opportunity) (*model.ExecutionResult, error) {
	if e.latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(e.latency):
		}
	}

	filled, grossFactor, rollback := e.roll()
	if !filled {
		return &model.ExecutionResult{
			Success:      false,
			Error:        "Kalshi order failed - position rolled back",
			RollbackCost: decimal.NewFromFloat(rollback).Round(2),
			ExecutionFee: e.executionFee,
			NetProfit:    e.executionFee.Neg(),
			PolymarketFill: &model.FillStatus{
				Status: "rolled_back",
				Price:  opp.PolymarketPrice,
			},
			KalshiFill: &model.FillStatus{
				Status: "rejected",
				Price:  opp.KalshiPrice,
			},
		}, nil
	}

	gross := opp.EstimatedProfit.Mul(decimal.NewFromFloat(grossFactor)).Round(2)
	platformFee := gross.Mul(e.platformShare).Round(2)
	net := gross.Sub(platformFee).Sub(e.executionFee)
	if net.IsNegative() {
		net = decimal.Zero
	}

	return &model.ExecutionResult{
		Success:      true,
		GrossProfit:  gross,
		PlatformFee:  platformFee,
		ExecutionFee: e.executionFee,
		NetProfit:    net,
		PolymarketFill: &model.FillStatus{
			Status: "filled",
			Price:  opp.PolymarketPrice,
		},
		KalshiFill: &model.FillStatus{
			Status: "filled",
			Price:  opp.KalshiPrice,
		},
	}, nil
}

// Payer simulates on-chain profit payouts.
type Payer struct{}

func NewPayer() *Payer { return &Payer{} }

// Send pretends to transfer amount to recipient and returns a synthetic
// transaction hash derived from the transfer details.
func (p *Payer) Send(_ context.Context, recipient string, amount decimal.Decimal, memo string) (string, error) {
	raw := fmt.Sprintf("%s|%s|%s|%d", recipient, amount.StringFixed(6), memo, time.Now().UnixNano())
	sum := sha256.Sum256([]byte(raw))
	tx := "0x" + hex.EncodeToString(sum[:])
	slog.Info("simulated payout sent", "recipient", recipient, "amount", amount.StringFixed(2), "tx", tx[:10])
	return tx, nil
}

// Balances derives a stable USDC balance from the wallet address so demo
// users see consistent numbers across sessions. Explicit overrides win.
type Balances struct {
	mu        sync.RWMutex
	overrides map[string]decimal.Decimal
}

func NewBalances() *Balances {
	return &Balances{overrides: make(map[string]decimal.Decimal)}
}

// SetBalance pins a wallet to a fixed balance, bypassing derivation.
func (b *Balances) SetBalance(wallet string, amount decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.overrides[strings.ToLower(wallet)] = amount
}

// Balance reports the wallet's simulated balance. The derived value is
// (last 4 hex chars mod 1000) + 100, so every wallet holds $100-$1099.
func (b *Balances) Balance(_ context.Context, wallet string) (decimal.Decimal, bool) {
	if wallet == "" {
		return decimal.Zero, false
	}
	key := strings.ToLower(wallet)

	b.mu.RLock()
	pinned, ok := b.overrides[key]
	b.mu.RUnlock()
	if ok {
		return pinned, true
	}

	tail := key
	if len(tail) > 4 {
		tail = tail[len(tail)-4:]
	}
	n, err := strconv.ParseInt(tail, 16, 64)
	if err != nil {
		return decimal.Zero, false
	}
	return decimal.NewFromInt(n%1000 + 100), true
}
