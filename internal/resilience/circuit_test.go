package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func testConfig() CircuitConfig {
	return CircuitConfig{
		Name:                 "test",
		FailureThreshold:     3,
		SuccessThreshold:     2,
		Timeout:              30 * time.Second,
		HalfOpenMaxCalls:     1,
		WindowSize:           60 * time.Second,
		FailureRateThreshold: 0.5,
		MinCallsInWindow:     10,
	}
}

func TestCircuitBreaker_TripsOnConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker(testConfig())

	for i := 0; i < 3; i++ {
		if err := cb.Call(func() error { return errBoom }); !errors.Is(err, errBoom) {
			t.Fatalf("call %d: expected boom, got %v", i, err)
		}
	}

	err := cb.Call(func() error { return nil })
	var openErr *CircuitOpenError
	if !errors.As(err, &openErr) {
		t.Fatalf("expected CircuitOpenError after trip, got %v", err)
	}
	if openErr.RetryAfter <= 0 {
		t.Errorf("expected positive retry-after, got %v", openErr.RetryAfter)
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker(testConfig())

	now := time.Now()
	cb.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		cb.Call(func() error { return errBoom })
	}
	if cb.State() != StateOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	// Advance past the open timeout; breaker should admit a probe
	now = now.Add(31 * time.Second)
	if cb.State() != StateHalfOpen {
		t.Fatalf("expected half-open after timeout, got %s", cb.State())
	}

	// Two consecutive successes close the circuit
	if err := cb.Call(func() error { return nil }); err != nil {
		t.Fatalf("probe 1 failed: %v", err)
	}
	if err := cb.Call(func() error { return nil }); err != nil {
		t.Fatalf("probe 2 failed: %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("expected closed after recovery, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(testConfig())
	now := time.Now()
	cb.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		cb.Call(func() error { return errBoom })
	}
	now = now.Add(31 * time.Second)

	if err := cb.Call(func() error { return errBoom }); !errors.Is(err, errBoom) {
		t.Fatalf("expected probe to run, got %v", err)
	}
	if cb.State() != StateOpen {
		t.Errorf("expected open after failed probe, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenLimitsConcurrentProbes(t *testing.T) {
	cb := NewCircuitBreaker(testConfig())
	now := time.Now()
	cb.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		cb.Call(func() error { return errBoom })
	}
	now = now.Add(31 * time.Second)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- cb.Call(func() error {
			close(started)
			<-release
			return nil
		})
	}()

	<-started

	// Probe slot is taken; the extra call must fail fast
	err := cb.Call(func() error { return nil })
	var openErr *CircuitOpenError
	if !errors.As(err, &openErr) {
		t.Fatalf("expected fast-fail while probe in flight, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("probe failed: %v", err)
	}
}

func TestCircuitBreaker_WindowRateTrip(t *testing.T) {
	cfg := testConfig()
	cfg.FailureThreshold = 100 // Only the window rule can trip
	cb := NewCircuitBreaker(cfg)

	// 10 calls, 5 failures interleaved so no consecutive run forms
	for i := 0; i < 10; i++ {
		if i%2 == 0 {
			cb.Call(func() error { return errBoom })
		} else {
			cb.Call(func() error { return nil })
		}
	}

	if cb.State() != StateOpen {
		t.Errorf("expected window rate to trip circuit, got %s", cb.State())
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker(testConfig())
	for i := 0; i < 3; i++ {
		cb.Call(func() error { return errBoom })
	}
	cb.Reset()

	if cb.State() != StateClosed {
		t.Errorf("expected closed after reset, got %s", cb.State())
	}
	if err := cb.Call(func() error { return nil }); err != nil {
		t.Errorf("expected call to pass after reset: %v", err)
	}
}
