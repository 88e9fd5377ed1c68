package whatsapp

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// startInstalled starts m and waits until the first handle is in the slot.
func startInstalled(t *testing.T, m *Manager, d *fakeDialer) {
	t.Helper()
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "first handle", func() bool {
		sess, _ := m.Slot().Current()
		return sess != nil
	})
	t.Cleanup(func() { _ = m.Close(context.Background()) })
}

func TestManagerReconnectsOnceOnRecoverableClose(t *testing.T) {
	d := newFakeDialer()
	m := NewManager(d, NewSlot())
	startInstalled(t, m, d)

	obs := d.observer(0)
	obs.OnUpdate(Update{State: StateOpen})
	if got := m.Slot().State(); got != StateOpen {
		t.Fatalf("state = %s, want open", got)
	}

	obs.OnUpdate(Update{State: StateClosed, Reason: ReasonConnectionLost})
	waitFor(t, "second dial", func() bool { return d.dials() == 2 })

	// a repeated close from the superseded handle must not dial again
	obs.OnUpdate(Update{State: StateClosed, Reason: ReasonConnectionLost})
	time.Sleep(50 * time.Millisecond)
	if got := d.dials(); got != 2 {
		t.Fatalf("dials = %d, want 2", got)
	}
	if !d.session(0).disconnected.Load() {
		t.Fatal("superseded handle was not disconnected")
	}
}

func TestManagerRecoverableCloseGoesStraightToConnecting(t *testing.T) {
	d := newFakeDialer()
	var mu sync.Mutex
	var seen []State
	m := NewManager(d, NewSlot(),
		WithBackOff(backoff.NewConstantBackOff(time.Hour)),
		WithHooks(Hooks{
			OnStateChange: func(prev, next State, reason Reason) {
				mu.Lock()
				seen = append(seen, next)
				mu.Unlock()
			},
		}))
	startInstalled(t, m, d)

	obs := d.observer(0)
	obs.OnUpdate(Update{State: StateOpen})
	mu.Lock()
	seen = nil
	mu.Unlock()

	obs.OnUpdate(Update{State: StateClosed, Reason: ReasonConnectionLost})
	st := m.Slot().Status()
	if st.State != StateConnecting || st.Reason != ReasonConnectionLost {
		t.Fatalf("status = %+v, want connecting after connection_lost", st)
	}
	mu.Lock()
	defer mu.Unlock()
	for _, s := range seen {
		if s == StateDisconnected {
			t.Fatalf("passed through disconnected: %v", seen)
		}
	}
}

func TestManagerDoesNotReconnectAfterLogout(t *testing.T) {
	d := newFakeDialer()
	m := NewManager(d, NewSlot())
	startInstalled(t, m, d)

	obs := d.observer(0)
	obs.OnUpdate(Update{State: StateConnecting, PairingCode: "2@abc"})
	obs.OnUpdate(Update{State: StateClosed, Reason: ReasonLoggedOut})

	time.Sleep(50 * time.Millisecond)
	if got := d.dials(); got != 1 {
		t.Fatalf("dials = %d, want 1", got)
	}
	st := m.Slot().Status()
	if st.State != StateLoggedOut || st.Reason != ReasonLoggedOut {
		t.Fatalf("status = %+v, want logged_out", st)
	}
	if st.PairingCode != "" {
		t.Fatalf("pairing code kept after logout: %q", st.PairingCode)
	}
}

func TestManagerPairingCodeLifecycle(t *testing.T) {
	d := newFakeDialer()
	var announced atomic.Int32
	m := NewManager(d, NewSlot(), WithHooks(Hooks{
		OnPairingCode: func(string) { announced.Add(1) },
	}))
	startInstalled(t, m, d)
	obs := d.observer(0)

	if code := m.Slot().PairingCode(); code != "" {
		t.Fatalf("pairing code before any QR event = %q", code)
	}
	obs.OnUpdate(Update{State: StateConnecting, PairingCode: "first"})
	obs.OnUpdate(Update{State: StateConnecting, PairingCode: "second"})
	if code := m.Slot().PairingCode(); code != "second" {
		t.Fatalf("pairing code = %q, want second", code)
	}

	obs.OnUpdate(Update{State: StateOpen})
	if code := m.Slot().PairingCode(); code != "" {
		t.Fatalf("pairing code after open = %q", code)
	}

	obs.OnUpdate(Update{PairingCode: "late"})
	if code := m.Slot().PairingCode(); code != "" {
		t.Fatalf("pairing code stored while open: %q", code)
	}
	if got := announced.Load(); got != 2 {
		t.Fatalf("pairing hook fired %d times, want 2", got)
	}
}

func TestManagerIgnoresStaleGeneration(t *testing.T) {
	d := newFakeDialer()
	m := NewManager(d, NewSlot())
	startInstalled(t, m, d)

	stale := d.observer(0)
	if err := m.Reconnect(context.Background()); err != nil {
		t.Fatalf("Reconnect: %v", err)
	}
	if got := d.dials(); got != 2 {
		t.Fatalf("dials = %d, want 2", got)
	}
	d.observer(1).OnUpdate(Update{State: StateOpen})

	stale.OnUpdate(Update{State: StateConnecting, PairingCode: "stale"})
	stale.OnUpdate(Update{State: StateClosed, Reason: ReasonLoggedOut})
	time.Sleep(50 * time.Millisecond)

	st := m.Slot().Status()
	if st.State != StateOpen {
		t.Fatalf("state = %s, want open", st.State)
	}
	if st.PairingCode != "" {
		t.Fatalf("stale pairing code stored: %q", st.PairingCode)
	}
	if st.JID != "8801712345678@s.whatsapp.net" {
		t.Fatalf("jid = %q", st.JID)
	}
	if got := d.dials(); got != 2 {
		t.Fatalf("dials = %d, want 2", got)
	}
}

func TestManagerReconnectLeavesLoggedOut(t *testing.T) {
	d := newFakeDialer()
	m := NewManager(d, NewSlot())
	startInstalled(t, m, d)

	d.observer(0).OnUpdate(Update{State: StateClosed, Reason: ReasonLoggedOut})
	if got := m.Slot().State(); got != StateLoggedOut {
		t.Fatalf("state = %s, want logged_out", got)
	}
	if err := m.Reconnect(context.Background()); err != nil {
		t.Fatalf("Reconnect: %v", err)
	}
	if got := m.Slot().State(); got != StateConnecting {
		t.Fatalf("state = %s, want connecting", got)
	}
}

func TestManagerStopBackOffGivesUp(t *testing.T) {
	d := newFakeDialer()
	m := NewManager(d, NewSlot(), WithBackOff(&backoff.StopBackOff{}))
	startInstalled(t, m, d)

	d.observer(0).OnUpdate(Update{State: StateClosed, Reason: ReasonConnectionLost})
	time.Sleep(50 * time.Millisecond)
	if got := d.dials(); got != 1 {
		t.Fatalf("dials = %d, want 1", got)
	}
	if got := m.Slot().State(); got != StateDisconnected {
		t.Fatalf("state = %s, want disconnected", got)
	}
}

func TestManagerRetriesFailedDial(t *testing.T) {
	d := newFakeDialer()
	d.failures = 1
	var scheduled atomic.Int32
	m := NewManager(d, NewSlot(), WithHooks(Hooks{
		OnReconnectScheduled: func(attempt int, delay time.Duration) {
			if delay < dialFailureFloor {
				t.Errorf("delay %s below floor", delay)
			}
			scheduled.Add(1)
		},
	}))
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Close(context.Background())

	waitFor(t, "retry after failed dial", func() bool {
		sess, _ := m.Slot().Current()
		return sess != nil
	})
	if got := d.dials(); got != 2 {
		t.Fatalf("dials = %d, want 2", got)
	}
	if got := scheduled.Load(); got != 1 {
		t.Fatalf("reconnect scheduled %d times, want 1", got)
	}
}

func TestManagerCloseWaitsForCredentialSave(t *testing.T) {
	d := newFakeDialer()
	d.saveDelay = 100 * time.Millisecond
	m := NewManager(d, NewSlot())
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "first handle", func() bool {
		sess, _ := m.Slot().Current()
		return sess != nil
	})
	sess := d.session(0)

	go d.observer(0).OnCredentials(sess)
	<-sess.saveStarted

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := sess.saves.Load(); got != 1 {
		t.Fatalf("saves = %d, want 1 before Close returned", got)
	}
	if !sess.disconnected.Load() {
		t.Fatal("live handle was not disconnected on Close")
	}
	st := m.Slot().Status()
	if st.State != StateDisconnected || st.Reason != ReasonShutdown {
		t.Fatalf("status after close = %+v", st)
	}
	if err := m.Reconnect(context.Background()); err != ErrClosed {
		t.Fatalf("Reconnect after close = %v, want ErrClosed", err)
	}
}
