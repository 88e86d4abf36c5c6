// Package health derives the service status reported on /health from
// request outcomes, the upstream breaker and the cache backend.
package health

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Status values, in decreasing priority.
const (
	StatusShuttingDown = "shutting-down"
	StatusOverloaded   = "overloaded"
	StatusDegraded     = "degraded"
	StatusIdle         = "idle"
	StatusHealthy      = "healthy"
)

// Config holds the lifecycle thresholds. Zero windows disable their check.
type Config struct {
	OverloadWindow         time.Duration
	OverloadThresholdPct   int
	RateLimitRPS           int // 0 when the rate limiter is disabled
	DegradedWindow         time.Duration
	DegradedErrorPct       int
	IdleWindow             time.Duration
	IdleThresholdReqPerMin int
	MinimumLifespan        time.Duration
}

// Report is one health evaluation.
type Report struct {
	Status     string
	HTTPStatus int
	Reason     string
	Checks     map[string]string
}

// Monitor evaluates health. Create one per process and share it between the
// middleware that records outcomes and the /health handler.
type Monitor struct {
	cfg          Config
	clock        clockwork.Clock
	startTime    time.Time
	tracker      *Tracker
	logger       *zap.Logger
	shuttingDown atomic.Bool
	breakerState func() string
	cachePing    func() error

	mu         sync.Mutex
	prevStatus string
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock sets the clock used for uptime and windows.
func WithClock(c clockwork.Clock) Option {
	return func(m *Monitor) { m.clock = c }
}

// WithBreakerState reports the upstream circuit breaker; "open" marks the service degraded.
func WithBreakerState(fn func() string) Option {
	return func(m *Monitor) { m.breakerState = fn }
}

// WithCachePing adds a cache reachability check (memcached backend).
func WithCachePing(fn func() error) Option {
	return func(m *Monitor) { m.cachePing = fn }
}

// NewMonitor returns a Monitor whose uptime starts now.
func NewMonitor(cfg Config, logger *zap.Logger, opts ...Option) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Monitor{cfg: cfg, logger: logger, clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(m)
	}
	m.tracker = NewTracker(m.clock)
	m.startTime = m.clock.Now()
	return m
}

// Tracker exposes the outcome windows for recording.
func (m *Monitor) Tracker() *Tracker {
	return m.tracker
}

// SetShuttingDown flips the drain flag. Call on SIGTERM/SIGINT.
func (m *Monitor) SetShuttingDown(v bool) {
	m.shuttingDown.Store(v)
}

// IsShuttingDown reports whether the process is draining.
func (m *Monitor) IsShuttingDown() bool {
	return m.shuttingDown.Load()
}

// Check evaluates status in priority order: shutting-down, breaker open,
// overloaded, idle, error-rate degraded, healthy. Transitions are logged.
func (m *Monitor) Check() Report {
	r := m.evaluate()
	r.Checks = m.checks(r)

	m.mu.Lock()
	if m.prevStatus != "" && m.prevStatus != r.Status {
		m.logger.Info("health status transition",
			zap.String("previous_status", m.prevStatus),
			zap.String("current_status", r.Status),
			zap.String("reason", r.Reason))
	}
	m.prevStatus = r.Status
	m.mu.Unlock()
	return r
}

func (m *Monitor) evaluate() Report {
	if m.IsShuttingDown() {
		return Report{Status: StatusShuttingDown, HTTPStatus: http.StatusServiceUnavailable, Reason: "signal"}
	}
	if m.breakerState != nil && m.breakerState() == "open" {
		return Report{Status: StatusDegraded, HTTPStatus: http.StatusServiceUnavailable, Reason: "circuit_open"}
	}
	if m.cfg.OverloadWindow > 0 && m.cfg.RateLimitRPS > 0 {
		threshold := float64(m.cfg.RateLimitRPS) * m.cfg.OverloadWindow.Seconds() * float64(m.cfg.OverloadThresholdPct) / 100
		if float64(m.tracker.RequestCount(m.cfg.OverloadWindow)) > threshold {
			return Report{Status: StatusOverloaded, HTTPStatus: http.StatusServiceUnavailable, Reason: "overload_threshold"}
		}
	}
	if m.cfg.IdleWindow > 0 && m.cfg.MinimumLifespan > 0 && m.clock.Since(m.startTime) >= m.cfg.MinimumLifespan {
		if m.tracker.RequestCount(m.cfg.IdleWindow) < m.cfg.IdleThresholdReqPerMin {
			return Report{Status: StatusIdle, HTTPStatus: http.StatusOK, Reason: "low_traffic"}
		}
	}
	if m.cfg.DegradedWindow > 0 && m.cfg.DegradedErrorPct > 0 {
		errs, total := m.tracker.ErrorRate(m.cfg.DegradedWindow)
		if total > 0 && float64(errs)*100/float64(total) >= float64(m.cfg.DegradedErrorPct) {
			return Report{Status: StatusDegraded, HTTPStatus: http.StatusServiceUnavailable, Reason: "error_rate_breach"}
		}
	}
	return Report{Status: StatusHealthy, HTTPStatus: http.StatusOK}
}

func (m *Monitor) checks(r Report) map[string]string {
	checks := map[string]string{"forecastApi": "healthy"}
	if r.Status == StatusDegraded {
		checks["forecastApi"] = "unhealthy"
	}
	if m.breakerState != nil {
		checks["circuitBreaker"] = m.breakerState()
	}
	if m.cachePing != nil {
		checks["cache"] = "healthy"
		if m.cachePing() != nil {
			checks["cache"] = "unhealthy"
		}
	}
	return checks
}

// WindowCounts returns requests and denials in the overload window, for metrics gauges.
func (m *Monitor) WindowCounts() (requests, denials func() int) {
	window := m.cfg.OverloadWindow
	if window <= 0 {
		window = time.Minute
	}
	return func() int { return m.tracker.RequestCount(window) },
		func() int { return m.tracker.DenialCount(window) }
}
