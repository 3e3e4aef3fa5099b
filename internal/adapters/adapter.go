// Package adapters turns external data providers into uniform RawEvent
// sources. Every outbound call runs behind a circuit breaker, retry
// policy, and rate limiter; per-source health is tracked continuously.
package adapters

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/omen-systems/omen/internal/domain"
	"github.com/omen-systems/omen/internal/resilience"
)

// HealthState is the coarse adapter health classification
type HealthState string

const (
	Healthy   HealthState = "HEALTHY"
	Degraded  HealthState = "DEGRADED"
	Unhealthy HealthState = "UNHEALTHY"
	Unknown   HealthState = "UNKNOWN"
)

// Health is the result of an adapter health check
type Health struct {
	Status    HealthState    `json:"status"`
	LatencyMS float64        `json:"latency_ms"`
	Error     string         `json:"error,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Adapter is the uniform source capability
type Adapter interface {
	Source() domain.Source
	FetchEvents(ctx context.Context, limit int) ([]domain.RawEvent, error)
	HealthCheck(ctx context.Context) Health
	IsConfigured() bool
}

// Streamer is implemented by adapters with a push feed in addition to
// polling. Subscribe delivers events to the channel until Stop or
// context cancellation.
type Streamer interface {
	Subscribe(ctx context.Context, events chan<- domain.RawEvent) error
	Stop()
}

// guard bundles the resilience wrapping shared by every real adapter
type guard struct {
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
	limiter *rate.Limiter
	health  *resilience.HealthTracker
}

func newGuard(source domain.Source, rpm int) *guard {
	if rpm <= 0 {
		rpm = 60
	}
	return &guard{
		breaker: resilience.NewCircuitBreaker(resilience.DefaultCircuitConfig(string(source))),
		retry:   resilience.DefaultRetryConfig(),
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), max(1, rpm/10)),
		health:  resilience.NewHealthTracker(string(source), 3),
	}
}

// call runs fn behind the limiter, breaker, and retry policy, and feeds
// the health tracker.
func (g *guard) call(ctx context.Context, fn func() error) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}

	start := time.Now()
	err := g.breaker.Call(func() error {
		return resilience.Retry(ctx, g.retry, fn)
	})

	if err != nil {
		g.health.RecordFailure(time.Since(start))
		return err
	}
	g.health.RecordSuccess(time.Since(start))
	return nil
}

// healthOf renders the tracker state as a health check result
func (g *guard) healthOf() Health {
	snap := g.health.Snapshot()

	h := Health{
		LatencyMS: snap.AvgLatencyMS,
		Metadata: map[string]any{
			"total_requests": snap.TotalRequests,
			"failure_rate":   snap.FailureRatePct,
			"breaker":        g.breaker.State().String(),
		},
	}
	switch {
	case snap.TotalRequests == 0:
		h.Status = Unknown
	case !snap.Healthy:
		h.Status = Unhealthy
	case snap.FailureRatePct > 10:
		h.Status = Degraded
	default:
		h.Status = Healthy
	}
	return h
}
