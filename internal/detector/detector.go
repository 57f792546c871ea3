// Package detector produces arbitrage opportunities: a fixed demo catalog
// for on-demand triggers, plus a background scan loop that synthesizes
// cross-venue price discrepancies at a random cadence.
package detector

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/arboretum/alert-engine/internal/model"
)

// Sink receives detected opportunities.
type Sink interface {
	Broadcast(ctx context.Context, opp *model.Opportunity)
}

const (
	minScanDelay = 30 * time.Second
	maxScanDelay = 60 * time.Second
	errorBackoff = 5 * time.Second

	// A candidate is only worth alerting on when the venues disagree by
	// at least this much and the fee-adjusted profit clears $10.
	minSpread = 0.05
	minProfit = 10.0
)

var executionFee = decimal.NewFromInt(2)

// Detector owns the demo catalog and the scan loop.
type Detector struct {
	sink Sink
	ttl  time.Duration

	mu   sync.Mutex
	rng  *rand.Rand
	demo []model.Opportunity
}

// New builds a detector whose opportunities expire ttl after (re)issue.
func New(sink Sink, ttl time.Duration) *Detector {
	return newWithRand(sink, ttl, rand.New(rand.NewSource(time.Now().UnixNano())))
}

func newWithRand(sink Sink, ttl time.Duration, rng *rand.Rand) *Detector {
	now := time.Now().UTC()
	return &Detector{
		sink: sink,
		ttl:  ttl,
		rng:  rng,
		demo: demoCatalog(now, ttl),
	}
}

func demoCatalog(now time.Time, ttl time.Duration) []model.Opportunity {
	return []model.Opportunity{
		{
			ID:               "NBA_HEAT_LAKERS_001",
			Sport:            "NBA",
			PolymarketMarket: "Miami Heat to beat Lakers",
			KalshiMarket:     "BBALL-25JAN19-HEAT",
			PolymarketPrice:  decimal.NewFromFloat(0.45),
			KalshiPrice:      decimal.NewFromFloat(0.58),
			EstimatedProfit:  decimal.NewFromFloat(28.50),
			RequiredCapital:  decimal.NewFromInt(200),
			Confidence:       0.92,
			CreatedAt:        now,
			ExpiresAt:        now.Add(ttl),
		},
		{
			ID:               "NFL_BILLS_CHIEFS_002",
			Sport:            "NFL",
			PolymarketMarket: "Buffalo Bills to beat Chiefs",
			KalshiMarket:     "NFL-25JAN26-BILLS",
			PolymarketPrice:  decimal.NewFromFloat(0.38),
			KalshiPrice:      decimal.NewFromFloat(0.49),
			EstimatedProfit:  decimal.NewFromFloat(22.10),
			RequiredCapital:  decimal.NewFromInt(150),
			Confidence:       0.87,
			CreatedAt:        now,
			ExpiresAt:        now.Add(ttl),
		},
		{
			ID:               "MLB_YANKEES_DODGERS_003",
			Sport:            "MLB",
			PolymarketMarket: "Yankees beat Dodgers Game 1",
			KalshiMarket:     "MLB-25OCT15-NYY",
			PolymarketPrice:  decimal.NewFromFloat(0.52),
			KalshiPrice:      decimal.NewFromFloat(0.63),
			EstimatedProfit:  decimal.NewFromFloat(18.75),
			RequiredCapital:  decimal.NewFromInt(125),
			Confidence:       0.81,
			CreatedAt:        now,
			ExpiresAt:        now.Add(ttl),
		},
	}
}

// DemoCount reports how many demo opportunities are available.
func (d *Detector) DemoCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.demo)
}

// BroadcastDemo picks one demo opportunity at random, refreshes its expiry
// window, and pushes it through the sink.
func (d *Detector) BroadcastDemo(ctx context.Context) {
	d.mu.Lock()
	i := d.rng.Intn(len(d.demo))
	now := time.Now().UTC()
	d.demo[i].ExpiresAt = now.Add(d.ttl)
	opp := d.demo[i]
	d.mu.Unlock()

	slog.Info("broadcasting demo opportunity", "id", opp.ID, "sport", opp.Sport)
	d.sink.Broadcast(ctx, &opp)
}

// Run scans at a random 30-60s cadence until ctx is cancelled. Each scan
// either emits a fresh opportunity or passes quietly when the synthesized
// spread is not worth alerting on.
func (d *Detector) Run(ctx context.Context) {
	slog.Info("arbitrage detection loop started")
	for {
		delay := minScanDelay + time.Duration(d.randFloat()*float64(maxScanDelay-minScanDelay))
		select {
		case <-ctx.Done():
			slog.Info("arbitrage detection loop stopped")
			return
		case <-time.After(delay):
		}

		opp, err := d.scan()
		if err != nil {
			slog.Error("opportunity scan failed", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(errorBackoff):
			}
			continue
		}
		if opp == nil {
			continue
		}
		slog.Info("opportunity detected",
			"id", opp.ID,
			"spread", opp.KalshiPrice.Sub(opp.PolymarketPrice).StringFixed(2),
			"profit", opp.EstimatedProfit.StringFixed(2))
		d.sink.Broadcast(ctx, opp)
	}
}

// scan synthesizes one candidate and filters it against the alert
// thresholds. Returns (nil, nil) when the candidate is not worth sending.
func (d *Detector) scan() (_ *model.Opportunity, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scan panic: %v", r)
		}
	}()

	d.mu.Lock()
	template := d.demo[d.rng.Intn(len(d.demo))]
	polyPrice := 0.30 + d.rng.Float64()*0.40
	spread := d.rng.Float64() * 0.15
	capital := float64(100 + d.rng.Intn(200))
	confidence := 0.75 + d.rng.Float64()*0.20
	suffix := uuid.NewString()[:8]
	d.mu.Unlock()

	poly := decimal.NewFromFloat(polyPrice).Round(2)
	kalshi := decimal.NewFromFloat(polyPrice + spread).Round(2)
	// Threshold on the quoted (rounded) prices so the emitted spread is
	// what was actually checked.
	if kalshi.Sub(poly).LessThan(decimal.NewFromFloat(minSpread)) {
		return nil, nil
	}

	stake := decimal.NewFromFloat(capital)
	profit := stake.Mul(kalshi.Sub(poly)).Sub(executionFee).Round(2)
	if profit.LessThanOrEqual(decimal.NewFromFloat(minProfit)) {
		return nil, nil
	}

	now := time.Now().UTC()
	return &model.Opportunity{
		ID:               fmt.Sprintf("%s_LIVE_%s", template.Sport, suffix),
		Sport:            template.Sport,
		PolymarketMarket: template.PolymarketMarket,
		KalshiMarket:     template.KalshiMarket,
		PolymarketPrice:  poly,
		KalshiPrice:      kalshi,
		EstimatedProfit:  profit,
		RequiredCapital:  stake,
		Confidence:       confidence,
		CreatedAt:        now,
		ExpiresAt:        now.Add(d.ttl),
	}, nil
}

func (d *Detector) randFloat() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rng.Float64()
}
