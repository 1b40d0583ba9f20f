package connectivity

import (
	"context"
	"sync"
	"testing"
	"time"

	apperrors "github.com/tableside/pos/internal/errors"
)

// flakyProbe is a probe whose result can be flipped from the test.
type flakyProbe struct {
	mu      sync.Mutex
	healthy bool
}

func (f *flakyProbe) set(healthy bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healthy = healthy
}

func (f *flakyProbe) probe(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.healthy {
		return apperrors.New(apperrors.ErrRemoteUnavailable, "probe failed")
	}
	return nil
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestMonitorStartsOffline(t *testing.T) {
	m := NewMonitor(func(context.Context) error { return nil }, nil)
	if m.IsOnline() {
		t.Error("monitor online before any probe ran")
	}
}

// TestSetOnlineEdgeTriggered verifies callbacks fire once per actual
// transition, not once per observation.
func TestSetOnlineEdgeTriggered(t *testing.T) {
	m := NewMonitor(func(context.Context) error { return nil }, nil)

	var onlineCount, offlineCount int
	m.OnOnline(func() { onlineCount++ })
	m.OnOffline(func() { offlineCount++ })

	m.SetOnline(true)
	m.SetOnline(true) // same state, no edge
	m.SetOnline(false)
	m.SetOnline(false)
	m.SetOnline(true)

	if onlineCount != 2 {
		t.Errorf("online callbacks = %d, want 2", onlineCount)
	}
	if offlineCount != 1 {
		t.Errorf("offline callbacks = %d, want 1", offlineCount)
	}
}

func TestCheckNow(t *testing.T) {
	probe := &flakyProbe{healthy: true}
	m := NewMonitor(probe.probe, nil)

	if !m.CheckNow(context.Background()) {
		t.Error("CheckNow = false with a healthy probe")
	}
	if !m.IsOnline() {
		t.Error("IsOnline = false after a successful probe")
	}

	probe.set(false)
	if m.CheckNow(context.Background()) {
		t.Error("CheckNow = true with a failing probe")
	}
	if m.IsOnline() {
		t.Error("IsOnline = true after a failed probe")
	}
}

func TestOnOnlineUnsubscribe(t *testing.T) {
	m := NewMonitor(func(context.Context) error { return nil }, nil)

	var count int
	unsubscribe := m.OnOnline(func() { count++ })

	m.SetOnline(true)
	if count != 1 {
		t.Fatalf("online callbacks = %d, want 1", count)
	}

	unsubscribe()
	m.SetOnline(false)
	m.SetOnline(true)
	if count != 1 {
		t.Errorf("unsubscribed callback fired again, count = %d", count)
	}
}

// TestProbeLoopDetectsTransitions verifies the background loop observes
// both recovery and loss of connectivity.
func TestProbeLoopDetectsTransitions(t *testing.T) {
	probe := &flakyProbe{healthy: true}
	m := NewMonitor(probe.probe, &Config{
		ProbeInterval: 10 * time.Millisecond,
		ProbeTimeout:  time.Second,
	})

	var mu sync.Mutex
	var onlineEdges, offlineEdges int
	m.OnOnline(func() { mu.Lock(); onlineEdges++; mu.Unlock() })
	m.OnOffline(func() { mu.Lock(); offlineEdges++; mu.Unlock() })

	m.Start(context.Background())
	defer m.Stop()

	waitFor(t, "initial online state", m.IsOnline)

	probe.set(false)
	waitFor(t, "offline detection", func() bool { return !m.IsOnline() })

	probe.set(true)
	waitFor(t, "recovery detection", m.IsOnline)

	mu.Lock()
	defer mu.Unlock()
	if onlineEdges != 2 {
		t.Errorf("online edges = %d, want 2", onlineEdges)
	}
	if offlineEdges != 1 {
		t.Errorf("offline edges = %d, want 1", offlineEdges)
	}
}

// TestPendingLoopAnnouncesFlips verifies the outstanding-changes
// indicator fires only when it actually changes.
func TestPendingLoopAnnouncesFlips(t *testing.T) {
	var mu sync.Mutex
	outstanding := false

	m := NewMonitor(func(context.Context) error { return nil }, &Config{
		ProbeInterval:   time.Hour, // keep the probe loop quiet
		ProbeTimeout:    time.Second,
		PendingInterval: 10 * time.Millisecond,
		Outstanding: func(context.Context) (bool, error) {
			mu.Lock()
			defer mu.Unlock()
			return outstanding, nil
		},
	})

	var flips []bool
	m.OnPendingChange(func(pending bool) {
		mu.Lock()
		flips = append(flips, pending)
		mu.Unlock()
	})

	m.Start(context.Background())
	defer m.Stop()

	mu.Lock()
	outstanding = true
	mu.Unlock()
	waitFor(t, "pending flip to true", m.HasPending)

	mu.Lock()
	outstanding = false
	mu.Unlock()
	waitFor(t, "pending flip to false", func() bool { return !m.HasPending() })

	// Let a few more ticks pass; no further flips should be recorded.
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(flips) != 2 || flips[0] != true || flips[1] != false {
		t.Errorf("pending flips = %v, want [true false]", flips)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	m := NewMonitor(func(context.Context) error { return nil }, &Config{
		ProbeInterval: time.Hour,
		ProbeTimeout:  time.Second,
	})

	m.Start(context.Background())
	m.Start(context.Background()) // second start is a no-op
	if !m.IsRunning() {
		t.Fatal("monitor not running after Start")
	}

	m.Stop()
	m.Stop() // second stop is a no-op
	if m.IsRunning() {
		t.Error("monitor still running after Stop")
	}
}

// TestRestartAfterStop verifies a stopped monitor can be started again
// and its loops keep observing transitions.
func TestRestartAfterStop(t *testing.T) {
	fp := &flakyProbe{healthy: true}
	m := NewMonitor(fp.probe, &Config{
		ProbeInterval: 10 * time.Millisecond,
		ProbeTimeout:  time.Second,
	})

	m.Start(context.Background())
	waitFor(t, "online after first start", m.IsOnline)
	m.Stop()

	fp.set(false)
	m.Start(context.Background())
	defer m.Stop()
	waitFor(t, "offline detected after restart", func() bool { return !m.IsOnline() })

	fp.set(true)
	waitFor(t, "online detected after restart", m.IsOnline)
}
