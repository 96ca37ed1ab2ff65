package retry

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Monitor pings a dependency on an interval and records whether it answered.
// It starts healthy; the first failed ping flips it.
type Monitor struct {
	name     string
	interval time.Duration
	check    func(ctx context.Context) error
	logger   *slog.Logger

	mu      sync.RWMutex
	lastErr error
	checked time.Time
}

// NewMonitor creates a monitor. Call Run to start pinging.
func NewMonitor(name string, interval time.Duration, check func(ctx context.Context) error, logger *slog.Logger) *Monitor {
	return &Monitor{
		name:     name,
		interval: interval,
		check:    check,
		logger:   logger.With("component", "monitor", "dependency", name),
	}
}

// Run pings until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckNow(ctx)
		}
	}
}

// CheckNow pings once and records the outcome.
func (m *Monitor) CheckNow(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, m.interval)
	defer cancel()
	err := m.check(pingCtx)

	m.mu.Lock()
	wasHealthy := m.lastErr == nil
	m.lastErr = err
	m.checked = time.Now()
	m.mu.Unlock()

	switch {
	case err != nil && wasHealthy:
		m.logger.Warn("dependency unhealthy", "error", err)
	case err == nil && !wasHealthy:
		m.logger.Info("dependency recovered")
	}
	return err
}

// Healthy reports whether the last ping succeeded.
func (m *Monitor) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr == nil
}

// LastError returns the error from the last ping, or nil.
func (m *Monitor) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// Name returns the dependency name.
func (m *Monitor) Name() string { return m.name }
