package execution_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/arboretum/alert-engine/internal/event"
	"github.com/arboretum/alert-engine/internal/execution"
	"github.com/arboretum/alert-engine/internal/model"
	"github.com/arboretum/alert-engine/internal/registry"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// captureTransport records everything sent to it.
type captureTransport struct {
	mu     sync.Mutex
	sent   []any
	closed bool
}

func (t *captureTransport) Send(v any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, v)
	return nil
}

func (t *captureTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// events returns sent messages minus the registry welcome event.
func (t *captureTransport) events() []any {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []any
	for _, v := range t.sent {
		if _, ok := v.(event.Connected); ok {
			continue
		}
		out = append(out, v)
	}
	return out
}

type fakeExecutor struct {
	result *model.ExecutionResult
	err    error
	panics bool
}

func (f *fakeExecutor) Execute(_ context.Context, _ *model.Opportunity) (*model.ExecutionResult, error) {
	if f.panics {
		panic("executor blew up")
	}
	return f.result, f.err
}

type fakePayer struct {
	mu        sync.Mutex
	calls     int
	recipient string
	amount    decimal.Decimal
	memo      string
	err       error
}

func (f *fakePayer) Send(_ context.Context, recipient string, amount decimal.Decimal, memo string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.recipient = recipient
	f.amount = amount
	f.memo = memo
	if f.err != nil {
		return "", f.err
	}
	return "0xdeadbeef", nil
}

func testOpportunity() *model.Opportunity {
	return &model.Opportunity{
		ID:              "NBA_HEAT_LAKERS_001",
		Sport:           "NBA",
		EstimatedProfit: d(28.50),
		RequiredCapital: d(200),
	}
}

func testUser() *model.RiskProfile {
	return &model.RiskProfile{UserID: "user1", WalletAddress: "0xwallet"}
}

func successResult() *model.ExecutionResult {
	return &model.ExecutionResult{
		Success:      true,
		GrossProfit:  d(30),
		PlatformFee:  d(1.5),
		ExecutionFee: d(2),
		NetProfit:    d(26.5),
	}
}

func TestExecute_SuccessWithPayout(t *testing.T) {
	reg := registry.New()
	tr := &captureTransport{}
	reg.Connect(tr, "user1")

	payer := &fakePayer{}
	coord := execution.NewCoordinator(reg, &fakeExecutor{result: successResult()}, payer)

	coord.Execute(context.Background(), testUser(), testOpportunity())

	evs := tr.events()
	if len(evs) != 3 {
		t.Fatalf("expected started+completed+payout events, got %d: %#v", len(evs), evs)
	}

	started, ok := evs[0].(event.TradeExecution)
	if !ok || started.Status != event.StatusStarted {
		t.Fatalf("first event should be started, got %#v", evs[0])
	}
	completed, ok := evs[1].(event.TradeExecution)
	if !ok || completed.Status != event.StatusCompleted {
		t.Fatalf("second event should be completed, got %#v", evs[1])
	}
	if completed.Result == nil || !completed.Result.NetProfit.Equal(d(26.5)) {
		t.Errorf("completed event should carry net_profit=26.5")
	}
	dist, ok := evs[2].(event.ProfitDistribution)
	if !ok || dist.Status != event.StatusCompleted {
		t.Fatalf("third event should be profit_distribution, got %#v", evs[2])
	}
	if !dist.Amount.Equal(d(26.5)) {
		t.Errorf("expected payout amount 26.5, got %s", dist.Amount)
	}
	if dist.TransactionHash != "0xdeadbeef" {
		t.Errorf("expected tx hash from payer, got %s", dist.TransactionHash)
	}

	if payer.calls != 1 {
		t.Fatalf("expected exactly one payout, got %d", payer.calls)
	}
	if payer.recipient != "0xwallet" {
		t.Errorf("payout recipient should be the user wallet, got %s", payer.recipient)
	}
	if payer.memo != "Arbitrage profit from NBA_HEAT_LAKERS_001" {
		t.Errorf("unexpected memo: %s", payer.memo)
	}
}

func TestExecute_Failed(t *testing.T) {
	reg := registry.New()
	tr := &captureTransport{}
	reg.Connect(tr, "user1")

	payer := &fakePayer{}
	coord := execution.NewCoordinator(reg, &fakeExecutor{result: &model.ExecutionResult{
		Success:      false,
		Error:        "Kalshi order failed - position rolled back",
		RollbackCost: d(2.5),
		NetProfit:    d(-2),
	}}, payer)

	coord.Execute(context.Background(), testUser(), testOpportunity())

	evs := tr.events()
	if len(evs) != 2 {
		t.Fatalf("expected started+failed, got %d", len(evs))
	}
	failed, ok := evs[1].(event.TradeExecution)
	if !ok || failed.Status != event.StatusFailed {
		t.Fatalf("expected failed event, got %#v", evs[1])
	}
	if failed.Error == "" {
		t.Error("failed event should carry the error")
	}
	if failed.Result == nil || !failed.Result.RollbackCost.Equal(d(2.5)) {
		t.Error("failed event should carry the rollback cost")
	}
	if payer.calls != 0 {
		t.Errorf("failed execution must not pay out, got %d calls", payer.calls)
	}
}

func TestExecute_CapabilityErrorBecomesFailure(t *testing.T) {
	reg := registry.New()
	tr := &captureTransport{}
	reg.Connect(tr, "user1")

	coord := execution.NewCoordinator(reg, &fakeExecutor{err: errors.New("venue timeout")}, &fakePayer{})
	coord.Execute(context.Background(), testUser(), testOpportunity())

	evs := tr.events()
	if len(evs) != 2 {
		t.Fatalf("expected started+failed, got %d", len(evs))
	}
	failed := evs[1].(event.TradeExecution)
	if failed.Status != event.StatusFailed {
		t.Fatalf("expected failed, got %s", failed.Status)
	}
	if failed.Error != "venue timeout" {
		t.Errorf("expected capability error surfaced, got %q", failed.Error)
	}
}

func TestExecute_ZeroProfitSkipsPayout(t *testing.T) {
	reg := registry.New()
	tr := &captureTransport{}
	reg.Connect(tr, "user1")

	res := successResult()
	res.NetProfit = decimal.Zero
	payer := &fakePayer{}
	coord := execution.NewCoordinator(reg, &fakeExecutor{result: res}, payer)

	coord.Execute(context.Background(), testUser(), testOpportunity())

	if payer.calls != 0 {
		t.Errorf("zero profit must not pay out, got %d calls", payer.calls)
	}
	if len(tr.events()) != 2 {
		t.Errorf("expected started+completed only, got %d", len(tr.events()))
	}
}

func TestExecute_PayoutFailureIsTerminal(t *testing.T) {
	reg := registry.New()
	tr := &captureTransport{}
	reg.Connect(tr, "user1")

	payer := &fakePayer{err: errors.New("transfer rejected")}
	coord := execution.NewCoordinator(reg, &fakeExecutor{result: successResult()}, payer)

	coord.Execute(context.Background(), testUser(), testOpportunity())

	evs := tr.events()
	// No profit_distribution event and no retry.
	if len(evs) != 2 {
		t.Fatalf("expected started+completed only, got %d", len(evs))
	}
	if payer.calls != 1 {
		t.Errorf("payout failures are not retried, got %d calls", payer.calls)
	}
}

func TestExecute_NoConnectionStillRunsToCompletion(t *testing.T) {
	reg := registry.New() // user never connected

	payer := &fakePayer{}
	coord := execution.NewCoordinator(reg, &fakeExecutor{result: successResult()}, payer)

	coord.Execute(context.Background(), testUser(), testOpportunity())

	// Events are dropped but the payout still happens.
	if payer.calls != 1 {
		t.Errorf("execution must run to completion without a connection, payout calls=%d", payer.calls)
	}
}

func TestExecute_PanicContainedAtTaskBoundary(t *testing.T) {
	reg := registry.New()
	tr := &captureTransport{}
	reg.Connect(tr, "user1")

	coord := execution.NewCoordinator(reg, &fakeExecutor{panics: true}, &fakePayer{})

	// Must not propagate.
	coord.Execute(context.Background(), testUser(), testOpportunity())

	evs := tr.events()
	last, ok := evs[len(evs)-1].(event.TradeExecution)
	if !ok || last.Status != event.StatusError {
		t.Fatalf("expected trailing error event, got %#v", evs[len(evs)-1])
	}
	if last.Error == "" {
		t.Error("error event should carry the panic value")
	}
}
