// Package netmon tracks network reachability and publishes transitions on
// the bus.
package netmon

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"chatsyncd/internal/bus"
)

const (
	probeInterval = 15 * time.Second
	probeTimeout  = 5 * time.Second
)

// Monitor publishes net.up / net.down events, only on change. Reachability
// comes from an external push signal (SetReachable) when the platform
// provides one, with an HTTP probe of the API as fallback.
type Monitor struct {
	bus      *bus.Bus
	logger   *zap.Logger
	probeURL string
	client   *http.Client
	cancel   context.CancelFunc

	mu        sync.Mutex
	known     bool
	reachable bool
}

// New creates a monitor. probeURL may be empty to disable probing, in which
// case only SetReachable drives the state.
func New(probeURL string, b *bus.Bus, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		bus:      b,
		logger:   logger,
		probeURL: probeURL,
		client:   &http.Client{Timeout: probeTimeout},
	}
}

// Start launches the probe loop when a probe URL is configured. The first
// probe runs immediately so the orchestrator gets an initial net event.
func (m *Monitor) Start(ctx context.Context) {
	if m.probeURL == "" {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	go m.loop(ctx)
}

// Stop stops the probe loop.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
}

// SetReachable feeds an external reachability signal.
func (m *Monitor) SetReachable(reachable bool) {
	m.setState(reachable)
}

// Reachable returns the last known reachability.
func (m *Monitor) Reachable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reachable
}

func (m *Monitor) loop(ctx context.Context) {
	m.setState(m.probe(ctx))

	ticker := time.NewTicker(probeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.setState(m.probe(ctx))
		case <-ctx.Done():
			return
		}
	}
}

func (m *Monitor) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.probeURL, nil)
	if err != nil {
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode < 500
}

func (m *Monitor) setState(reachable bool) {
	m.mu.Lock()
	if m.known && m.reachable == reachable {
		m.mu.Unlock()
		return
	}
	m.known = true
	m.reachable = reachable
	m.mu.Unlock()

	if reachable {
		m.logger.Info("network reachable")
		m.bus.PublishKind("net.up", nil)
	} else {
		m.logger.Warn("network unreachable")
		m.bus.PublishKind("net.down", nil)
	}
}
