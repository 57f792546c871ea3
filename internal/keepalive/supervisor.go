// Package keepalive pings every live connection on a fixed interval and
// prunes the ones that can no longer be written to.
package keepalive

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/arboretum/alert-engine/internal/event"
	"github.com/arboretum/alert-engine/internal/metrics"
	"github.com/arboretum/alert-engine/internal/registry"
)

const (
	// DefaultInterval is how often clients are pinged.
	DefaultInterval = 30 * time.Second

	errorBackoff = 5 * time.Second
)

// Supervisor owns the ping loop.
type Supervisor struct {
	registry *registry.Registry
	interval time.Duration
}

func New(reg *registry.Registry, interval time.Duration) *Supervisor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Supervisor{registry: reg, interval: interval}
}

// Run pings all connections every interval until ctx is cancelled. A failed
// cycle is logged and retried after a short backoff; the loop only exits on
// ctx cancellation.
func (s *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.cycle(); err != nil {
				slog.Error("keepalive cycle failed", "err", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(errorBackoff):
				}
			}
		}
	}
}

// Cycle runs one ping sweep. Exposed for callers that drive the cadence
// themselves.
func (s *Supervisor) Cycle() error {
	return s.cycle()
}

func (s *Supervisor) cycle() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("keepalive panic: %v", r)
		}
	}()

	now := time.Now().UTC()
	ping := event.Ping{Type: event.TypePing, Timestamp: now}

	conns := s.registry.Identified()
	conns = append(conns, s.registry.Anonymous()...)

	pruned := 0
	for _, conn := range conns {
		if sendErr := conn.Send(ping); sendErr != nil {
			s.registry.Disconnect(conn)
			metrics.KeepalivePrunes.Inc()
			pruned++
			continue
		}
		conn.Touch(now)
	}
	if pruned > 0 {
		slog.Info("keepalive pruned dead connections", "count", pruned)
	}
	return nil
}
