package simulate_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arboretum/alert-engine/internal/model"
	"github.com/arboretum/alert-engine/internal/simulate"
)

func sampleOpportunity() *model.Opportunity {
	now := time.Now().UTC()
	return &model.Opportunity{
		ID:              "NBA_HEAT_LAKERS_001",
		Sport:           "NBA",
		PolymarketPrice: decimal.NewFromFloat(0.45),
		KalshiPrice:     decimal.NewFromFloat(0.58),
		EstimatedProfit: decimal.NewFromFloat(28.50),
		RequiredCapital: decimal.NewFromInt(200),
		CreatedAt:       now,
		ExpiresAt:       now.Add(30 * time.Minute),
	}
}

func newExecutor(latency time.Duration) *simulate.Executor {
	return simulate.NewExecutor(latency, decimal.NewFromInt(2), decimal.NewFromFloat(0.05))
}

func TestExecutor_FeeMathInvariants(t *testing.T) {
	ex := newExecutor(0)
	opp := sampleOpportunity()

	successes, failures := 0, 0
	for i := 0; i < 200; i++ {
		res, err := ex.Execute(context.Background(), opp)
		if err != nil {
			t.Fatalf("execute: %v", err)
		}
		if res.Success {
			successes++
			if res.NetProfit.IsNegative() {
				t.Errorf("successful trade with negative net %s", res.NetProfit)
			}
			wantPlatform := res.GrossProfit.Mul(decimal.NewFromFloat(0.05)).Round(2)
			if !res.PlatformFee.Equal(wantPlatform) {
				t.Errorf("platform fee %s, want 5%% of gross = %s", res.PlatformFee, wantPlatform)
			}
			net := res.GrossProfit.Sub(res.PlatformFee).Sub(res.ExecutionFee)
			if net.IsNegative() {
				net = decimal.Zero
			}
			if !res.NetProfit.Equal(net) {
				t.Errorf("net %s, want %s", res.NetProfit, net)
			}
			if res.PolymarketFill == nil || res.PolymarketFill.Status != "filled" {
				t.Error("successful trade should fill both legs")
			}
		} else {
			failures++
			if !res.NetProfit.Equal(decimal.NewFromInt(-2)) {
				t.Errorf("failed trade net %s, want -2 (lost execution fee)", res.NetProfit)
			}
			if res.Error == "" {
				t.Error("failed trade should carry an error message")
			}
			if res.RollbackCost.LessThan(decimal.NewFromInt(1)) || res.RollbackCost.GreaterThan(decimal.NewFromInt(4)) {
				t.Errorf("rollback cost %s out of range", res.RollbackCost)
			}
		}
		if !res.ExecutionFee.Equal(decimal.NewFromInt(2)) {
			t.Errorf("execution fee %s, want 2", res.ExecutionFee)
		}
	}

	// 90% fill rate: over 200 attempts both outcomes should appear.
	if successes == 0 || failures == 0 {
		t.Errorf("expected a mix of outcomes, got %d successes / %d failures", successes, failures)
	}
}

func TestExecutor_CancelledContext(t *testing.T) {
	ex := newExecutor(time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := ex.Execute(ctx, sampleOpportunity()); err == nil {
		t.Error("cancelled context should abort execution")
	}
}

func TestPayer_TransactionHashShape(t *testing.T) {
	p := simulate.NewPayer()
	tx, err := p.Send(context.Background(), "0xabc123", decimal.NewFromFloat(26.5), "test payout")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.HasPrefix(tx, "0x") || len(tx) != 66 {
		t.Errorf("unexpected tx hash %q", tx)
	}
}

func TestBalances_DerivedFromWalletSuffix(t *testing.T) {
	b := simulate.NewBalances()

	// 0x...04d2 -> 0x4d2 = 1234; 1234 % 1000 + 100 = 334.
	got, ok := b.Balance(context.Background(), "0x00000000000000000000000000000000000004d2")
	if !ok {
		t.Fatal("derived balance lookup failed")
	}
	if !got.Equal(decimal.NewFromInt(334)) {
		t.Errorf("balance = %s, want 334", got)
	}
}

func TestBalances_StableAcrossLookups(t *testing.T) {
	b := simulate.NewBalances()
	wallet := "0xAbCdEf1234567890aBcDeF1234567890abcdefFF"

	first, ok := b.Balance(context.Background(), wallet)
	if !ok {
		t.Fatal("lookup failed")
	}
	second, _ := b.Balance(context.Background(), strings.ToLower(wallet))
	if !first.Equal(second) {
		t.Errorf("balance unstable: %s then %s", first, second)
	}
	if first.LessThan(decimal.NewFromInt(100)) || first.GreaterThan(decimal.NewFromInt(1099)) {
		t.Errorf("derived balance %s outside [100, 1099]", first)
	}
}

func TestBalances_OverrideWins(t *testing.T) {
	b := simulate.NewBalances()
	b.SetBalance("0xWHALE000000000000000000000000000000ffff", decimal.NewFromInt(5))

	got, ok := b.Balance(context.Background(), "0xwhale000000000000000000000000000000FFFF")
	if !ok {
		t.Fatal("override lookup failed")
	}
	if !got.Equal(decimal.NewFromInt(5)) {
		t.Errorf("override balance = %s, want 5", got)
	}
}

func TestBalances_UnparseableWalletFailsLookup(t *testing.T) {
	b := simulate.NewBalances()
	if _, ok := b.Balance(context.Background(), "not-a-wallet"); ok {
		t.Error("non-hex wallet suffix should fail the lookup")
	}
	if _, ok := b.Balance(context.Background(), ""); ok {
		t.Error("empty wallet should fail the lookup")
	}
}
