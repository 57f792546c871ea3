// Package registry tracks live client connections, keyed by optional user
// identity. It is the single source of truth for liveness: all membership
// mutation happens under one mutex so concurrent connect/disconnect from
// different transports stay linearizable.
package registry

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arboretum/alert-engine/internal/event"
	"github.com/arboretum/alert-engine/internal/metrics"
)

// Registry holds identified connections (at most one per user) and the
// anonymous set.
type Registry struct {
	mu         sync.RWMutex
	identified map[string]*Conn
	anonymous  map[*Conn]struct{}
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		identified: make(map[string]*Conn),
		anonymous:  make(map[*Conn]struct{}),
	}
}

// Connect registers a transport. An identified connection supersedes any
// prior connection for the same user: the old one is closed before the new
// one is registered. The welcome event is sent synchronously before return.
func (r *Registry) Connect(transport Transport, userID string) *Conn {
	now := time.Now().UTC()
	c := &Conn{
		id:          uuid.New().String(),
		userID:      userID,
		transport:   transport,
		connectedAt: now,
		lastSeen:    now,
	}

	r.mu.Lock()
	if userID != "" {
		if prev, ok := r.identified[userID]; ok {
			prev.transport.Close()
			slog.Info("superseded prior connection", "user", userID, "conn", prev.id)
		}
		r.identified[userID] = c
	} else {
		r.anonymous[c] = struct{}{}
	}
	r.mu.Unlock()
	r.publishGauges()

	var welcome event.Connected
	if userID != "" {
		welcome = event.Connected{
			Type:      event.TypeConnected,
			UserID:    userID,
			Message:   "Connected to Arboretum real-time alerts",
			Timestamp: now,
		}
		slog.Info("user connected", "user", userID, "conn", c.id)
	} else {
		welcome = event.Connected{
			Type:      event.TypeConnected,
			Message:   "Connected to Arboretum. Sign up for personalized alerts!",
			Timestamp: now,
		}
		slog.Info("anonymous user connected", "conn", c.id)
	}
	if err := c.Send(welcome); err != nil {
		slog.Error("welcome send failed", "conn", c.id, "err", err)
		r.Disconnect(c)
	}
	return c
}

// Disconnect removes a connection and closes its transport. Idempotent and
// safe to call after the peer already vanished. A connection that has been
// superseded is not removed again (the map entry belongs to its successor).
func (r *Registry) Disconnect(c *Conn) {
	if c == nil {
		return
	}
	r.mu.Lock()
	removed := false
	if c.userID != "" {
		if cur, ok := r.identified[c.userID]; ok && cur == c {
			delete(r.identified, c.userID)
			removed = true
		}
	} else if _, ok := r.anonymous[c]; ok {
		delete(r.anonymous, c)
		removed = true
	}
	r.mu.Unlock()

	c.transport.Close()
	if removed {
		r.publishGauges()
		slog.Info("disconnected", "user", c.userID, "conn", c.id)
	}
}

// Lookup returns the live connection for a user, if any.
func (r *Registry) Lookup(userID string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.identified[userID]
	return c, ok
}

// Identified returns a snapshot of all identified connections. The snapshot
// is taken under the lock so callers never iterate a mutating map.
func (r *Registry) Identified() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]*Conn, 0, len(r.identified))
	for _, c := range r.identified {
		conns = append(conns, c)
	}
	return conns
}

// Anonymous returns a snapshot of all anonymous connections.
func (r *Registry) Anonymous() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]*Conn, 0, len(r.anonymous))
	for c := range r.anonymous {
		conns = append(conns, c)
	}
	return conns
}

// Snapshot returns the identified and anonymous connection counts.
func (r *Registry) Snapshot() (identified, anonymous int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.identified), len(r.anonymous)
}

func (r *Registry) publishGauges() {
	identified, anonymous := r.Snapshot()
	metrics.ConnectedClients.WithLabelValues("identified").Set(float64(identified))
	metrics.ConnectedClients.WithLabelValues("anonymous").Set(float64(anonymous))
}
