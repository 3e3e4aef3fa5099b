package resilience

import (
	"sync"
	"time"
)

// HealthSnapshot is a point-in-time view of one source's health
type HealthSnapshot struct {
	Source              string    `json:"source"`
	TotalRequests       int64     `json:"total_requests"`
	TotalFailures       int64     `json:"total_failures"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	FailureRatePct      float64   `json:"failure_rate_pct"`
	AvgLatencyMS        float64   `json:"avg_latency_ms"`
	LastSuccess         time.Time `json:"last_success,omitempty"`
	LastFailure         time.Time `json:"last_failure,omitempty"`
	Healthy             bool      `json:"healthy"`
}

// HealthTracker accumulates per-source request outcomes. A source goes
// unhealthy after unhealthyAfter consecutive failures and recovers on the
// next success.
type HealthTracker struct {
	mu                  sync.Mutex
	source              string
	unhealthyAfter      int
	totalRequests       int64
	totalFailures       int64
	consecutiveFailures int
	latencyTotal        time.Duration
	lastSuccess         time.Time
	lastFailure         time.Time
}

// NewHealthTracker creates a tracker for the named source
func NewHealthTracker(source string, unhealthyAfter int) *HealthTracker {
	if unhealthyAfter <= 0 {
		unhealthyAfter = 3
	}
	return &HealthTracker{source: source, unhealthyAfter: unhealthyAfter}
}

// RecordSuccess notes a successful request with its latency
func (h *HealthTracker) RecordSuccess(latency time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.totalRequests++
	h.latencyTotal += latency
	h.consecutiveFailures = 0
	h.lastSuccess = time.Now()
}

// RecordFailure notes a failed request with its latency
func (h *HealthTracker) RecordFailure(latency time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.totalRequests++
	h.totalFailures++
	h.latencyTotal += latency
	h.consecutiveFailures++
	h.lastFailure = time.Now()
}

// Snapshot returns the current derived health view
func (h *HealthTracker) Snapshot() HealthSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	var failureRate, avgLatency float64
	if h.totalRequests > 0 {
		failureRate = float64(h.totalFailures) / float64(h.totalRequests) * 100
		avgLatency = float64(h.latencyTotal.Milliseconds()) / float64(h.totalRequests)
	}

	return HealthSnapshot{
		Source:              h.source,
		TotalRequests:       h.totalRequests,
		TotalFailures:       h.totalFailures,
		ConsecutiveFailures: h.consecutiveFailures,
		FailureRatePct:      failureRate,
		AvgLatencyMS:        avgLatency,
		LastSuccess:         h.lastSuccess,
		LastFailure:         h.lastFailure,
		Healthy:             h.consecutiveFailures < h.unhealthyAfter,
	}
}
