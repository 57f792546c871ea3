// Package broadcast fans live opportunities out to every connected client.
//
// For each identified connection the user's eligibility is evaluated fresh;
// eligible users get an auto_unlocked alert and an asynchronous execution
// handoff, everyone else gets a preview. The broadcast is fire-and-forget:
// one user's failure is logged and never blocks delivery to the others.
package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/arboretum/alert-engine/internal/eligibility"
	"github.com/arboretum/alert-engine/internal/event"
	"github.com/arboretum/alert-engine/internal/execution"
	"github.com/arboretum/alert-engine/internal/metrics"
	"github.com/arboretum/alert-engine/internal/model"
	"github.com/arboretum/alert-engine/internal/registry"
	"github.com/arboretum/alert-engine/internal/unlock"
	"github.com/arboretum/alert-engine/internal/users"
)

// Broadcaster distributes opportunities to connected clients.
type Broadcaster struct {
	registry  *registry.Registry
	directory users.Directory
	evaluator *eligibility.Evaluator
	coord     *execution.Coordinator
	unlocks   unlock.Store // optional; nil-safe

	wg sync.WaitGroup // in-flight execution handoffs
}

// New wires a broadcaster. unlocks may be nil when no record store is
// configured.
func New(reg *registry.Registry, directory users.Directory, evaluator *eligibility.Evaluator, coord *execution.Coordinator, unlocks unlock.Store) *Broadcaster {
	return &Broadcaster{
		registry:  reg,
		directory: directory,
		evaluator: evaluator,
		coord:     coord,
		unlocks:   unlocks,
	}
}

// Broadcast fans one opportunity out to every live connection. Returns
// nothing: errors are logged, not propagated.
func (b *Broadcaster) Broadcast(ctx context.Context, opp *model.Opportunity) {
	if opp == nil || opp.ID == "" {
		slog.Warn("broadcast called without opportunity data")
		return
	}

	now := time.Now().UTC()
	payload := event.NewOpportunityPayload(opp, now)
	metrics.OpportunitiesBroadcast.Inc()

	for _, conn := range b.registry.Identified() {
		b.dispatchIdentified(ctx, conn, opp, payload, now)
	}

	// Anonymous connections get a generic preview with no eligibility
	// details, and nothing tied to any user identity.
	anonAlert := event.OpportunityAlert{
		Type:         event.TypeOpportunity,
		Opportunity:  payload,
		Status:       event.StatusPreviewOnly,
		CallToAction: "register",
		Message:      "Sign up and connect wallet to unlock arbitrage opportunities!",
		Timestamp:    now,
	}
	for _, conn := range b.registry.Anonymous() {
		if err := conn.Send(anonAlert); err != nil {
			b.registry.Disconnect(conn)
			continue
		}
		metrics.AlertsSent.WithLabelValues("anonymous_preview").Inc()
	}
}

func (b *Broadcaster) dispatchIdentified(ctx context.Context, conn *registry.Conn, opp *model.Opportunity, payload event.OpportunityPayload, now time.Time) {
	userID := conn.UserID()

	user, err := b.directory.User(ctx, userID)
	if err != nil {
		slog.Error("user lookup failed during broadcast", "user", userID, "err", err)
		verdict := model.EligibilityVerdict{Reason: model.ReasonUserNotFound}
		b.sendPreview(conn, payload, verdict, now)
		return
	}

	verdict := b.evaluator.Evaluate(ctx, user, opp.RequiredCapital)
	if !verdict.Eligible {
		b.sendPreview(conn, payload, verdict, now)
		return
	}

	alert := event.OpportunityAlert{
		Type:           event.TypeOpportunity,
		Opportunity:    payload,
		Status:         event.StatusAutoUnlocked,
		Eligibility:    &verdict,
		ActionRequired: "none",
		Message:        fmt.Sprintf("Auto-unlocked! Executing $%s arbitrage...", opp.EstimatedProfit.StringFixed(2)),
		Timestamp:      now,
	}
	if err := conn.Send(alert); err != nil {
		slog.Error("alert send failed", "user", userID, "err", err)
		b.registry.Disconnect(conn)
		return
	}
	metrics.AlertsSent.WithLabelValues(event.StatusAutoUnlocked).Inc()

	b.recordUnlock(ctx, user, opp, now)

	// Hand off per eligible user so one slow execution cannot delay
	// delivery to others. The task outlives any request-scoped ctx:
	// disconnecting a user never cancels an in-flight execution.
	b.wg.Add(1)
	go func(u *model.RiskProfile) {
		defer b.wg.Done()
		b.coord.Execute(context.WithoutCancel(ctx), u, opp)
	}(user)
}

func (b *Broadcaster) sendPreview(conn *registry.Conn, payload event.OpportunityPayload, verdict model.EligibilityVerdict, now time.Time) {
	alert := event.OpportunityAlert{
		Type:           event.TypeOpportunity,
		Opportunity:    payload,
		Status:         event.StatusPreviewOnly,
		Eligibility:    &verdict,
		ActionRequired: "payment_or_funding",
		Message:        fmt.Sprintf("$%s arbitrage found! Fund account to auto-unlock.", payload.EstimatedProfit.StringFixed(2)),
		Timestamp:      now,
	}
	if err := conn.Send(alert); err != nil {
		slog.Error("preview send failed", "user", conn.UserID(), "err", err)
		b.registry.Disconnect(conn)
		return
	}
	metrics.AlertsSent.WithLabelValues(event.StatusPreviewOnly).Inc()
}

// recordUnlock notes the auto-unlock in the record store. Idempotent per
// (opportunity, wallet); failures are logged and do not block execution.
func (b *Broadcaster) recordUnlock(ctx context.Context, user *model.RiskProfile, opp *model.Opportunity, now time.Time) {
	if b.unlocks == nil || user.WalletAddress == "" {
		return
	}
	_, err := b.unlocks.Record(ctx, model.UnlockRecord{
		OpportunityID: opp.ID,
		UserWallet:    user.WalletAddress,
		PaymentHash:   "auto-unlock",
		UnlockedAt:    now,
		PaymentAmount: b.evaluator.ExecutionFee(),
	})
	if err != nil {
		slog.Error("unlock record failed", "user", user.UserID, "opportunity", opp.ID, "err", err)
	}
}

// Wait blocks until all in-flight execution handoffs finish. Used during
// graceful shutdown so spawned tasks are drained, not leaked.
func (b *Broadcaster) Wait() {
	b.wg.Wait()
}
