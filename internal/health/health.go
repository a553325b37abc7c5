package health

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/pastcast-service/internal/traffic"
)

// Status values reported by /health.
const (
	StatusHealthy      = "healthy"
	StatusIdle         = "idle"
	StatusDegraded     = "degraded"
	StatusOverloaded   = "overloaded"
	StatusShuttingDown = "shutting-down"
)

// Config holds lifecycle thresholds. Zero windows disable the matching check.
type Config struct {
	OverloadWindow         time.Duration
	OverloadThresholdPct   int
	RateLimitRPS           int
	DegradedWindow         time.Duration
	DegradedErrorPct       int
	IdleWindow             time.Duration
	IdleThresholdReqPerMin int
	MinimumLifespan        time.Duration
}

// Result is one health evaluation.
type Result struct {
	Status     string
	StatusCode int
	Reason     string
}

// Monitor derives service health from the traffic tracker and the shutdown flag.
type Monitor struct {
	cfg     Config
	tracker *traffic.Tracker
	start   time.Time
	logger  *zap.Logger

	shuttingDown atomic.Bool

	mu   sync.Mutex
	prev string
}

// NewMonitor returns a Monitor over tracker. Uptime is measured from now on
// the tracker's clock.
func NewMonitor(cfg Config, tracker *traffic.Tracker, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		cfg:     cfg,
		tracker: tracker,
		start:   tracker.Clock().Now(),
		logger:  logger,
	}
}

// Config returns the thresholds the monitor was built with.
func (m *Monitor) Config() Config {
	return m.cfg
}

// Tracker returns the underlying traffic tracker.
func (m *Monitor) Tracker() *traffic.Tracker {
	return m.tracker
}

// SetShuttingDown sets the drain flag. /health reports shutting-down while true.
func (m *Monitor) SetShuttingDown(v bool) {
	m.shuttingDown.Store(v)
}

// IsShuttingDown reports whether the process is draining.
func (m *Monitor) IsShuttingDown() bool {
	return m.shuttingDown.Load()
}

// OverloadThreshold returns the request count above which the service reports
// overloaded, or 0 when rate limiting is disabled.
func (m *Monitor) OverloadThreshold() int {
	if m.cfg.RateLimitRPS <= 0 {
		return 0
	}
	return int(float64(m.cfg.RateLimitRPS) * m.cfg.OverloadWindow.Seconds() * float64(m.cfg.OverloadThresholdPct) / 100)
}

// ErrorRatePct returns the integer error percentage over the degraded window.
func (m *Monitor) ErrorRatePct() int {
	errs, total := m.tracker.ErrorRate(m.degradedWindow())
	if total == 0 {
		return 0
	}
	return errs * 100 / total
}

func (m *Monitor) degradedWindow() time.Duration {
	if m.cfg.DegradedWindow > 0 {
		return m.cfg.DegradedWindow
	}
	return time.Minute
}

// Evaluate computes the current status.
// Decision order: shutting-down > overloaded > idle > degraded > healthy.
func (m *Monitor) Evaluate() Result {
	if m.IsShuttingDown() {
		return Result{StatusShuttingDown, http.StatusServiceUnavailable, "signal"}
	}
	if threshold := m.OverloadThreshold(); threshold > 0 && m.cfg.OverloadWindow > 0 {
		if m.tracker.RequestCount(m.cfg.OverloadWindow) > threshold {
			return Result{StatusOverloaded, http.StatusServiceUnavailable, "overload_threshold"}
		}
	}
	if m.cfg.IdleWindow > 0 && m.cfg.MinimumLifespan > 0 &&
		m.tracker.Clock().Since(m.start) >= m.cfg.MinimumLifespan {
		if m.tracker.RequestCount(m.cfg.IdleWindow) < m.cfg.IdleThresholdReqPerMin {
			return Result{StatusIdle, http.StatusOK, "low_traffic"}
		}
	}
	if m.cfg.DegradedWindow > 0 && m.cfg.DegradedErrorPct > 0 {
		errs, total := m.tracker.ErrorRate(m.cfg.DegradedWindow)
		if total > 0 && float64(errs)*100/float64(total) >= float64(m.cfg.DegradedErrorPct) {
			return Result{StatusDegraded, http.StatusServiceUnavailable, "error_rate_breach"}
		}
	}
	return Result{StatusHealthy, http.StatusOK, ""}
}

// Observe evaluates health and logs a transition when the status changed
// since the previous call.
func (m *Monitor) Observe() Result {
	res := m.Evaluate()
	m.mu.Lock()
	prev := m.prev
	m.prev = res.Status
	m.mu.Unlock()
	if prev != "" && prev != res.Status {
		m.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", res.Status),
			zap.String("reason", res.Reason))
	}
	return res
}

// Reset clears recorded traffic and the drain flag. Used by testing-mode endpoints.
func (m *Monitor) Reset() {
	m.tracker.Reset()
	m.SetShuttingDown(false)
}
