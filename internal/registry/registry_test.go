package registry_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/arboretum/alert-engine/internal/event"
	"github.com/arboretum/alert-engine/internal/registry"
)

type fakeTransport struct {
	mu       sync.Mutex
	sent     []any
	closed   bool
	sendErr  error
	closeErr error
}

func (t *fakeTransport) Send(v any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return t.sendErr
	}
	t.sent = append(t.sent, v)
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return t.closeErr
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *fakeTransport) welcome() (event.Connected, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.sent) == 0 {
		return event.Connected{}, false
	}
	w, ok := t.sent[0].(event.Connected)
	return w, ok
}

func TestConnect_SendsWelcome(t *testing.T) {
	r := registry.New()

	identified := &fakeTransport{}
	c := r.Connect(identified, "u1")
	if c.UserID() != "u1" || c.Anonymous() {
		t.Errorf("connection identity wrong: %s anonymous=%v", c.UserID(), c.Anonymous())
	}
	w, ok := identified.welcome()
	if !ok || w.Type != event.TypeConnected || w.UserID != "u1" {
		t.Errorf("identified welcome missing or wrong: %#v", w)
	}

	anon := &fakeTransport{}
	a := r.Connect(anon, "")
	if !a.Anonymous() {
		t.Error("connection without user id should be anonymous")
	}
	w, ok = anon.welcome()
	if !ok || w.UserID != "" {
		t.Errorf("anonymous welcome should carry no user id: %#v", w)
	}
}

func TestConnect_AssignsUniqueIDs(t *testing.T) {
	r := registry.New()
	a := r.Connect(&fakeTransport{}, "")
	b := r.Connect(&fakeTransport{}, "")
	if a.ID() == b.ID() {
		t.Errorf("connection ids must be unique, both %s", a.ID())
	}
}

func TestConnect_SupersedesPriorConnection(t *testing.T) {
	r := registry.New()

	old := &fakeTransport{}
	oldConn := r.Connect(old, "u1")
	fresh := &fakeTransport{}
	freshConn := r.Connect(fresh, "u1")

	if !old.isClosed() {
		t.Error("superseded transport should be closed")
	}
	got, ok := r.Lookup("u1")
	if !ok || got != freshConn {
		t.Error("lookup should resolve to the successor")
	}

	// Tearing down the stale connection must not evict the successor.
	r.Disconnect(oldConn)
	if _, ok := r.Lookup("u1"); !ok {
		t.Error("stale disconnect evicted the live successor")
	}

	identified, _ := r.Snapshot()
	if identified != 1 {
		t.Errorf("identified = %d, want 1", identified)
	}
}

func TestConnect_WelcomeFailureDropsConnection(t *testing.T) {
	r := registry.New()
	dead := &fakeTransport{sendErr: errors.New("broken pipe")}

	r.Connect(dead, "u1")

	if _, ok := r.Lookup("u1"); ok {
		t.Error("connection whose welcome failed should not be registered")
	}
	if !dead.isClosed() {
		t.Error("failed connection's transport should be closed")
	}
}

func TestDisconnect_Idempotent(t *testing.T) {
	r := registry.New()
	tr := &fakeTransport{}
	c := r.Connect(tr, "u1")

	r.Disconnect(c)
	r.Disconnect(c)
	r.Disconnect(nil)

	identified, anonymous := r.Snapshot()
	if identified != 0 || anonymous != 0 {
		t.Errorf("registry not empty: %d/%d", identified, anonymous)
	}
}

func TestSnapshotsAreIsolated(t *testing.T) {
	r := registry.New()
	r.Connect(&fakeTransport{}, "u1")
	r.Connect(&fakeTransport{}, "u2")
	r.Connect(&fakeTransport{}, "")

	identified := r.Identified()
	anonymous := r.Anonymous()
	if len(identified) != 2 || len(anonymous) != 1 {
		t.Fatalf("snapshot sizes %d/%d, want 2/1", len(identified), len(anonymous))
	}

	// Mutating the registry after the snapshot must not affect the slices.
	for _, c := range identified {
		r.Disconnect(c)
	}
	if len(identified) != 2 {
		t.Error("snapshot changed under mutation")
	}
	ident, _ := r.Snapshot()
	if ident != 0 {
		t.Errorf("identified = %d after disconnects, want 0", ident)
	}
}

func TestConcurrentConnectDisconnect(t *testing.T) {
	r := registry.New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := r.Connect(&fakeTransport{}, "")
			r.Disconnect(c)
		}()
	}
	wg.Wait()

	_, anonymous := r.Snapshot()
	if anonymous != 0 {
		t.Errorf("anonymous = %d after churn, want 0", anonymous)
	}
}
