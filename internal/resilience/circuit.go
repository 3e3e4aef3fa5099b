package resilience

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrCircuitOpen is returned when the circuit breaker refuses a call.
// Use RetryAfter to surface the remaining open window to callers.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitOpenError carries the retry-after hint for fast-failed calls
type CircuitOpenError struct {
	Name       string
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open, retry after %ds", int(e.RetryAfter.Seconds()))
}

func (e *CircuitOpenError) Unwrap() error { return ErrCircuitOpen }

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitConfig defines circuit breaker parameters
type CircuitConfig struct {
	Name                 string        `yaml:"name"`
	FailureThreshold     int           `yaml:"failure_threshold"`      // Consecutive failures to trip
	SuccessThreshold     int           `yaml:"success_threshold"`      // Half-open successes to close
	Timeout              time.Duration `yaml:"timeout"`                // Time in open before probing
	HalfOpenMaxCalls     int           `yaml:"half_open_max_calls"`    // Concurrent probes allowed
	WindowSize           time.Duration `yaml:"window_size"`            // Sliding window span
	FailureRateThreshold float64       `yaml:"failure_rate_threshold"` // 0..1 rate trip within window
	MinCallsInWindow     int           `yaml:"min_calls_in_window"`
}

// DefaultCircuitConfig returns sane defaults for an outbound HTTP source
func DefaultCircuitConfig(name string) CircuitConfig {
	return CircuitConfig{
		Name:                 name,
		FailureThreshold:     5,
		SuccessThreshold:     2,
		Timeout:              30 * time.Second,
		HalfOpenMaxCalls:     1,
		WindowSize:           60 * time.Second,
		FailureRateThreshold: 0.5,
		MinCallsInWindow:     10,
	}
}

type windowSample struct {
	at      time.Time
	failure bool
}

// CircuitBreaker is a three-state breaker with both a consecutive-failure
// trip and a sliding-window failure-rate trip. State transitions are
// serialized by the mutex; the protected call runs outside the lock.
type CircuitBreaker struct {
	mu              sync.Mutex
	config          CircuitConfig
	state           State
	failures        int
	successes       int
	openedAt        time.Time
	halfOpenInUse   int
	window          []windowSample
	totalCalls      int64
	totalFailures   int64
	lastStateChange time.Time
	now             func() time.Time
}

// NewCircuitBreaker creates a breaker in the closed state
func NewCircuitBreaker(config CircuitConfig) *CircuitBreaker {
	if config.HalfOpenMaxCalls <= 0 {
		config.HalfOpenMaxCalls = 1
	}
	return &CircuitBreaker{
		config:          config,
		state:           StateClosed,
		lastStateChange: time.Now(),
		now:             time.Now,
	}
}

// Call executes fn through the breaker. An open circuit fails fast with a
// CircuitOpenError; a half-open circuit admits at most HalfOpenMaxCalls
// concurrent probes.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.beforeCall(); err != nil {
		return err
	}

	err := fn()
	cb.afterCall(err)
	return err
}

func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()

	if cb.state == StateOpen {
		elapsed := now.Sub(cb.openedAt)
		if elapsed < cb.config.Timeout {
			return &CircuitOpenError{Name: cb.config.Name, RetryAfter: cb.config.Timeout - elapsed}
		}
		cb.transition(StateHalfOpen, now)
	}

	if cb.state == StateHalfOpen {
		if cb.halfOpenInUse >= cb.config.HalfOpenMaxCalls {
			return &CircuitOpenError{Name: cb.config.Name, RetryAfter: cb.config.Timeout}
		}
		cb.halfOpenInUse++
	}

	cb.totalCalls++
	return nil
}

func (cb *CircuitBreaker) afterCall(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()

	if cb.state == StateHalfOpen && cb.halfOpenInUse > 0 {
		cb.halfOpenInUse--
	}

	cb.recordSample(now, err != nil)

	if err != nil {
		cb.totalFailures++
		cb.onFailure(now)
		return
	}
	cb.onSuccess(now)
}

func (cb *CircuitBreaker) onFailure(now time.Time) {
	cb.failures++
	cb.successes = 0

	switch cb.state {
	case StateHalfOpen:
		cb.transition(StateOpen, now)
	case StateClosed:
		if cb.failures >= cb.config.FailureThreshold || cb.windowTripped(now) {
			cb.transition(StateOpen, now)
		}
	}
}

func (cb *CircuitBreaker) onSuccess(now time.Time) {
	cb.failures = 0

	if cb.state == StateHalfOpen {
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.transition(StateClosed, now)
		}
	}
}

func (cb *CircuitBreaker) windowTripped(now time.Time) bool {
	if cb.config.MinCallsInWindow <= 0 || cb.config.WindowSize <= 0 {
		return false
	}

	cutoff := now.Add(-cb.config.WindowSize)
	calls, failures := 0, 0
	for _, s := range cb.window {
		if s.at.After(cutoff) {
			calls++
			if s.failure {
				failures++
			}
		}
	}

	if calls < cb.config.MinCallsInWindow {
		return false
	}
	return float64(failures)/float64(calls) >= cb.config.FailureRateThreshold
}

func (cb *CircuitBreaker) recordSample(now time.Time, failure bool) {
	cutoff := now.Add(-cb.config.WindowSize)
	trimmed := cb.window[:0]
	for _, s := range cb.window {
		if s.at.After(cutoff) {
			trimmed = append(trimmed, s)
		}
	}
	cb.window = append(trimmed, windowSample{at: now, failure: failure})
}

func (cb *CircuitBreaker) transition(to State, now time.Time) {
	from := cb.state
	cb.state = to
	cb.lastStateChange = now

	switch to {
	case StateOpen:
		cb.openedAt = now
		cb.failures = 0
	case StateHalfOpen:
		cb.successes = 0
		cb.halfOpenInUse = 0
	case StateClosed:
		cb.failures = 0
		cb.successes = 0
	}

	log.Info().
		Str("breaker", cb.config.Name).
		Str("from", from.String()).
		Str("to", to.String()).
		Msg("Circuit breaker state change")
}

// State returns the current state, applying the open->half-open timeout
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.config.Timeout {
		return StateHalfOpen
	}
	return cb.state
}

// Status reports breaker internals for the health surface
func (cb *CircuitBreaker) Status() map[string]any {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	var failureRate float64
	if cb.totalCalls > 0 {
		failureRate = float64(cb.totalFailures) / float64(cb.totalCalls)
	}

	return map[string]any{
		"name":              cb.config.Name,
		"state":             cb.state.String(),
		"total_calls":       cb.totalCalls,
		"total_failures":    cb.totalFailures,
		"failure_rate":      failureRate,
		"last_state_change": cb.lastStateChange,
	}
}

// Reset returns the breaker to closed with all counters cleared. Test hook.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failures = 0
	cb.successes = 0
	cb.halfOpenInUse = 0
	cb.window = nil
	cb.totalCalls = 0
	cb.totalFailures = 0
}
