package beacon

import (
	"sync/atomic"
	"time"

	"github.com/marmos91/dittoca/internal/logger"
	"golang.org/x/time/rate"
)

// Metrics is the subset of the server metrics the beacon timer reports to.
type Metrics interface {
	RecordBeacon(period time.Duration)
	RecordBeaconAnomaly(reason string, accepted bool)
}

// Governor rate limits beacon period resets. Anomalies arriving faster
// than one per interval are counted and dropped.
type Governor struct {
	limiter *rate.Limiter
	resets  chan string
	metrics Metrics

	accepted   atomic.Uint64
	suppressed atomic.Uint64
}

// NewGovernor allows one reset per interval. A non-positive interval
// disables rate limiting.
func NewGovernor(interval time.Duration, m Metrics) *Governor {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Governor{
		limiter: rate.NewLimiter(limit, 1),
		resets:  make(chan string, 1),
		metrics: m,
	}
}

// Anomaly requests a beacon period reset and reports whether it was
// accepted. Safe for concurrent use.
func (g *Governor) Anomaly(reason string) bool {
	if !g.limiter.Allow() {
		g.suppressed.Add(1)
		if g.metrics != nil {
			g.metrics.RecordBeaconAnomaly(reason, false)
		}
		logger.Debug("Beacon anomaly suppressed", logger.KeyReason, reason)
		return false
	}

	g.accepted.Add(1)
	if g.metrics != nil {
		g.metrics.RecordBeaconAnomaly(reason, true)
	}
	logger.Info("Beacon anomaly, resetting beacon period", logger.KeyReason, reason)

	// one pending reset is enough
	select {
	case g.resets <- reason:
	default:
	}
	return true
}

// Resets delivers accepted anomaly reasons to the beacon timer.
func (g *Governor) Resets() <-chan string {
	return g.resets
}

// Counts returns the accepted and suppressed anomaly counts.
func (g *Governor) Counts() (accepted, suppressed uint64) {
	return g.accepted.Load(), g.suppressed.Load()
}
