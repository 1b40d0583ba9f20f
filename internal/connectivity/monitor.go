// Package connectivity tracks whether the remote backend is reachable
// and announces transitions between online and offline.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/tableside/pos/internal/logging"
)

// Probe checks reachability of the remote backend. A nil error means
// online.
type Probe func(ctx context.Context) error

// Config holds monitor configuration.
type Config struct {
	ProbeInterval   time.Duration // How often to probe the remote (default: 10 seconds)
	ProbeTimeout    time.Duration // Per-probe deadline (default: 3 seconds)
	PendingInterval time.Duration // How often to re-check outstanding changes (default: 10 seconds)

	// Outstanding reports whether queued changes are waiting to sync.
	// Optional; when nil the pending re-check loop is not started.
	Outstanding func(ctx context.Context) (bool, error)
}

// DefaultConfig returns default monitor configuration.
func DefaultConfig() *Config {
	return &Config{
		ProbeInterval:   10 * time.Second,
		ProbeTimeout:    3 * time.Second,
		PendingInterval: 10 * time.Second,
	}
}

// Monitor polls a reachability probe and fires edge-triggered callbacks:
// at most one notification per actual transition, never one per probe.
type Monitor struct {
	probe           Probe
	outstanding     func(ctx context.Context) (bool, error)
	probeInterval   time.Duration
	probeTimeout    time.Duration
	pendingInterval time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup

	mu         sync.RWMutex
	isRunning  bool
	isOnline   bool
	hasPending bool
	onOnline   map[int]func()
	onOffline  map[int]func()
	onPending  map[int]func(bool)
	nextSubID  int
}

// NewMonitor creates a monitor over the given probe. The monitor starts
// offline; the first successful probe flips it online.
func NewMonitor(probe Probe, config *Config) *Monitor {
	if config == nil {
		config = DefaultConfig()
	}
	if config.ProbeInterval <= 0 {
		config.ProbeInterval = 10 * time.Second
	}
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = 3 * time.Second
	}
	if config.PendingInterval <= 0 {
		config.PendingInterval = 10 * time.Second
	}

	return &Monitor{
		probe:           probe,
		outstanding:     config.Outstanding,
		probeInterval:   config.ProbeInterval,
		probeTimeout:    config.ProbeTimeout,
		pendingInterval: config.PendingInterval,
		onOnline:        make(map[int]func()),
		onOffline:       make(map[int]func()),
		onPending:       make(map[int]func(bool)),
	}
}

// Start begins the probe loop and, when an outstanding check is
// configured, the pending re-check loop. A stopped monitor can be
// started again.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.isRunning {
		m.mu.Unlock()
		return
	}
	m.isRunning = true
	// A fresh channel per run: the previous Stop closed the old one.
	m.stopCh = make(chan struct{})
	stopCh := m.stopCh
	m.mu.Unlock()

	m.wg.Add(1)
	go m.probeLoop(ctx, stopCh)

	if m.outstanding != nil {
		m.wg.Add(1)
		go m.pendingLoop(ctx, stopCh)
	}

	logging.Info("Connectivity monitor started",
		map[string]interface{}{"probe_interval": m.probeInterval.String()})
}

// Stop stops the monitor gracefully.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.isRunning {
		m.mu.Unlock()
		return
	}
	m.isRunning = false
	stopCh := m.stopCh
	m.mu.Unlock()

	close(stopCh)
	m.wg.Wait()

	logging.Info("Connectivity monitor stopped", nil)
}

// IsOnline returns the last observed reachability state.
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isOnline
}

// IsRunning returns whether the monitor loops are active.
func (m *Monitor) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isRunning
}

// OnOnline registers a callback fired once per offline→online
// transition. Returns its unsubscribe function.
func (m *Monitor) OnOnline(fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSubID
	m.nextSubID++
	m.onOnline[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.onOnline, id)
	}
}

// OnOffline registers a callback fired once per online→offline
// transition. Returns its unsubscribe function.
func (m *Monitor) OnOffline(fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSubID
	m.nextSubID++
	m.onOffline[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.onOffline, id)
	}
}

// OnPendingChange registers a callback fired when the outstanding-changes
// indicator flips. Returns its unsubscribe function.
func (m *Monitor) OnPendingChange(fn func(bool)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSubID
	m.nextSubID++
	m.onPending[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.onPending, id)
	}
}

// SetOnline records an observed reachability state and fires transition
// callbacks when the state actually changed.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	wasOnline := m.isOnline
	m.isOnline = online

	var fns []func()
	if !wasOnline && online {
		fns = make([]func(), 0, len(m.onOnline))
		for _, fn := range m.onOnline {
			fns = append(fns, fn)
		}
	} else if wasOnline && !online {
		fns = make([]func(), 0, len(m.onOffline))
		for _, fn := range m.onOffline {
			fns = append(fns, fn)
		}
	}
	m.mu.Unlock()

	if wasOnline != online {
		logging.Info("Online status changed",
			map[string]interface{}{
				"was_online": wasOnline,
				"is_online":  online,
			})
	}
	for _, fn := range fns {
		fn()
	}
}

// CheckNow runs one probe immediately and returns the resulting state.
func (m *Monitor) CheckNow(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	online := m.probe(probeCtx) == nil
	m.SetOnline(online)
	return online
}

// probeLoop probes the remote on a fixed interval.
func (m *Monitor) probeLoop(ctx context.Context, stopCh chan struct{}) {
	defer m.wg.Done()

	// Probe once at startup so the initial state is observed, not assumed.
	m.CheckNow(ctx)

	ticker := time.NewTicker(m.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			m.CheckNow(ctx)
		}
	}
}

// pendingLoop re-checks the outstanding-changes indicator on a fixed
// interval and announces flips.
func (m *Monitor) pendingLoop(ctx context.Context, stopCh chan struct{}) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.pendingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			m.checkPending(ctx)
		}
	}
}

// checkPending reads the outstanding indicator and fires pending-change
// callbacks when it flipped.
func (m *Monitor) checkPending(ctx context.Context) {
	pending, err := m.outstanding(ctx)
	if err != nil {
		logging.Warn("Failed to check outstanding changes",
			map[string]interface{}{"error": err.Error()})
		return
	}

	m.mu.Lock()
	changed := pending != m.hasPending
	m.hasPending = pending
	var fns []func(bool)
	if changed {
		fns = make([]func(bool), 0, len(m.onPending))
		for _, fn := range m.onPending {
			fns = append(fns, fn)
		}
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(pending)
	}
}

// HasPending returns the last observed outstanding-changes indicator.
func (m *Monitor) HasPending() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hasPending
}
