package keepalive_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/arboretum/alert-engine/internal/event"
	"github.com/arboretum/alert-engine/internal/keepalive"
	"github.com/arboretum/alert-engine/internal/registry"
)

type pingTransport struct {
	mu    sync.Mutex
	pings int
	fail  bool
}

func (t *pingTransport) Send(v any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fail {
		return errors.New("write: broken pipe")
	}
	if _, ok := v.(event.Ping); ok {
		t.pings++
	}
	return nil
}

func (t *pingTransport) Close() error { return nil }

func (t *pingTransport) pingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pings
}

func TestCycle_PingsEveryConnection(t *testing.T) {
	reg := registry.New()
	identified := &pingTransport{}
	anon := &pingTransport{}
	reg.Connect(identified, "u1")
	reg.Connect(anon, "")

	s := keepalive.New(reg, time.Minute)
	if err := s.Cycle(); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	if identified.pingCount() != 1 {
		t.Errorf("identified connection got %d pings, want 1", identified.pingCount())
	}
	if anon.pingCount() != 1 {
		t.Errorf("anonymous connection got %d pings, want 1", anon.pingCount())
	}
}

func TestCycle_PrunesDeadConnections(t *testing.T) {
	reg := registry.New()
	alive := &pingTransport{}
	dead := &pingTransport{}
	reg.Connect(alive, "u1")
	reg.Connect(dead, "u2")
	dead.fail = true

	s := keepalive.New(reg, time.Minute)
	if err := s.Cycle(); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	ident, _ := reg.Snapshot()
	if ident != 1 {
		t.Errorf("dead connection should be pruned, identified=%d", ident)
	}
	if _, ok := reg.Lookup("u2"); ok {
		t.Error("u2 should no longer resolve after prune")
	}
	if _, ok := reg.Lookup("u1"); !ok {
		t.Error("u1 should survive the sweep")
	}
}

func TestCycle_RefreshesLastSeen(t *testing.T) {
	reg := registry.New()
	tr := &pingTransport{}
	c := reg.Connect(tr, "u1")
	before := c.LastSeen()

	time.Sleep(5 * time.Millisecond)

	s := keepalive.New(reg, time.Minute)
	if err := s.Cycle(); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	if !c.LastSeen().After(before) {
		t.Error("successful ping should refresh last-seen")
	}
}
