package registry

import (
	"sync"
	"time"
)

// Transport is the opaque send/close capability of one client session.
// Implementations must be safe for concurrent Send calls.
type Transport interface {
	Send(v any) error
	Close() error
}

// Conn is one live client session. The registry owns membership; the fields
// mutated after registration (liveness stamp, subscription flag) are guarded
// by the connection's own mutex because the inbound handler and the keepalive
// loop touch them from different goroutines.
type Conn struct {
	id          string
	userID      string // empty for anonymous connections
	transport   Transport
	connectedAt time.Time

	mu         sync.Mutex
	lastSeen   time.Time
	subscribed bool
}

// ID returns the registry-assigned connection identifier.
func (c *Conn) ID() string { return c.id }

// UserID returns the user identity, or "" for anonymous connections.
func (c *Conn) UserID() string { return c.userID }

// Anonymous reports whether the connection carries no user identity.
func (c *Conn) Anonymous() bool { return c.userID == "" }

// ConnectedAt returns the accept timestamp.
func (c *Conn) ConnectedAt() time.Time { return c.connectedAt }

// Send pushes a JSON-serializable message to the peer.
func (c *Conn) Send(v any) error { return c.transport.Send(v) }

// Touch records peer liveness (inbound message or successful probe).
func (c *Conn) Touch(now time.Time) {
	c.mu.Lock()
	c.lastSeen = now
	c.mu.Unlock()
}

// LastSeen returns the last recorded liveness timestamp.
func (c *Conn) LastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

// SetSubscribed sets the alert-subscription flag.
func (c *Conn) SetSubscribed(v bool) {
	c.mu.Lock()
	c.subscribed = v
	c.mu.Unlock()
}

// Subscribed reports the alert-subscription flag.
func (c *Conn) Subscribed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribed
}
