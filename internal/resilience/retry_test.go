package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryConfig_Backoff(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts: 5,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    1 * time.Second,
		Multiplier:  2.0,
	}

	assert.Equal(t, 100*time.Millisecond, cfg.Backoff(0))
	assert.Equal(t, 200*time.Millisecond, cfg.Backoff(1))
	assert.Equal(t, 400*time.Millisecond, cfg.Backoff(2))
	// Capped at MaxDelay
	assert.Equal(t, 1*time.Second, cfg.Backoff(10))
}

func TestRetry_SucceedsAfterRetryableFailures(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}

	calls := 0
	err := Retry(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return Retryable(errors.New("transient"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_StopsOnNonRetryable(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}

	calls := 0
	permanent := errors.New("bad request")
	err := Retry(context.Background(), cfg, func() error {
		calls++
		return permanent
	})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}

	calls := 0
	err := Retry(context.Background(), cfg, func() error {
		calls++
		return Retryable(errors.New("still down"))
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryableStatus(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{200, false},
		{404, false},
		{408, true},
		{429, true},
		{500, true},
		{503, true},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, RetryableStatus(tc.code), "status %d", tc.code)
	}
}

func TestHealthTracker(t *testing.T) {
	h := NewHealthTracker("prediction_markets", 3)

	h.RecordSuccess(10 * time.Millisecond)
	h.RecordFailure(20 * time.Millisecond)

	snap := h.Snapshot()
	assert.True(t, snap.Healthy)
	assert.Equal(t, int64(2), snap.TotalRequests)
	assert.Equal(t, int64(1), snap.TotalFailures)
	assert.InDelta(t, 50.0, snap.FailureRatePct, 0.01)

	h.RecordFailure(5 * time.Millisecond)
	h.RecordFailure(5 * time.Millisecond)
	assert.False(t, h.Snapshot().Healthy, "3 consecutive failures should mark unhealthy")

	h.RecordSuccess(time.Millisecond)
	assert.True(t, h.Snapshot().Healthy, "success should restore health")
}
