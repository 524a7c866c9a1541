// Package shutdown provides idle monitoring for scale-to-zero deployments.
package shutdown

import (
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// IdleMonitor signals shutdown after a period with no action traffic. Health
// probes do not count as activity, so a scaled-to-zero deployment with only
// its health checks firing will still wind down.
type IdleMonitor struct {
	timeout     time.Duration
	lastRequest atomic.Value // time.Time
	active      atomic.Int64
	logger      *slog.Logger
	stopCh      chan struct{}
	shutdownCh  chan struct{}
	wg          sync.WaitGroup
}

// NewIdleMonitor creates an idle monitor. A timeout <= 0 disables it.
func NewIdleMonitor(timeout time.Duration, logger *slog.Logger) *IdleMonitor {
	m := &IdleMonitor{
		timeout:    timeout,
		logger:     logger,
		stopCh:     make(chan struct{}),
		shutdownCh: make(chan struct{}),
	}
	m.lastRequest.Store(time.Now())
	return m
}

// Start begins monitoring. When the timeout elapses with no active or recent
// requests, ShutdownChan is closed.
func (m *IdleMonitor) Start() {
	if m.timeout <= 0 {
		m.logger.Info("idle monitoring disabled (set IDLE_TIMEOUT to enable)")
		return
	}

	m.logger.Info("idle monitoring started", "timeout", m.timeout)
	m.wg.Add(1)
	go m.run()
}

// Stop stops the monitor.
func (m *IdleMonitor) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

func (m *IdleMonitor) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			idle := time.Since(m.lastRequest.Load().(time.Time))
			if idle > m.timeout && m.active.Load() == 0 {
				m.logger.Info("idle timeout reached, signaling shutdown",
					"idle_time", idle.Round(time.Second))
				close(m.shutdownCh)
				return
			}
		}
	}
}

// Middleware tracks request activity. An in-flight action holds the monitor
// open however long its navigation and pacing take.
func (m *IdleMonitor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isHealthCheck(r) {
			next.ServeHTTP(w, r)
			return
		}

		m.active.Add(1)
		m.lastRequest.Store(time.Now())
		defer func() {
			m.active.Add(-1)
			m.lastRequest.Store(time.Now())
		}()
		next.ServeHTTP(w, r)
	})
}

// ShutdownChan is closed when idle shutdown triggers. Select on it alongside
// SIGTERM.
func (m *IdleMonitor) ShutdownChan() <-chan struct{} {
	return m.shutdownCh
}

func isHealthCheck(r *http.Request) bool {
	switch r.URL.Path {
	case "/health", "/healthz", "/livez", "/readyz":
		return true
	}
	return false
}
