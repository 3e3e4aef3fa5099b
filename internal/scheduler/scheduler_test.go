package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omen-systems/omen/internal/adapters"
	"github.com/omen-systems/omen/internal/domain"
	"github.com/omen-systems/omen/internal/trust"
)

type countingAdapter struct {
	source  domain.Source
	fetches atomic.Int64
	block   chan struct{}
}

func (c *countingAdapter) Source() domain.Source { return c.source }
func (c *countingAdapter) IsConfigured() bool    { return true }

func (c *countingAdapter) FetchEvents(ctx context.Context, limit int) ([]domain.RawEvent, error) {
	c.fetches.Add(1)
	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	ev := domain.NewRawEvent("ev-1", c.source, "test event", time.Now().UTC())
	return []domain.RawEvent{ev}, nil
}

func (c *countingAdapter) HealthCheck(context.Context) adapters.Health {
	return adapters.Health{Status: adapters.Healthy}
}

func TestScheduler_PollJobFeedsProcessor(t *testing.T) {
	adapter := &countingAdapter{source: domain.SourceNews}
	var processed atomic.Int64

	cfg := Config{Jobs: []JobConfig{{Source: domain.SourceNews, Interval: Duration(20 * time.Millisecond), BatchSize: 5}}}
	s := New(cfg, map[domain.Source]adapters.Adapter{domain.SourceNews: adapter},
		func(context.Context, domain.RawEvent) { processed.Add(1) }, nil, nil)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(time.Second)

	require.Eventually(t, func() bool { return processed.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, adapter.fetches.Load(), int64(2))
}

func TestScheduler_FetchOutcomesFeedTrust(t *testing.T) {
	adapter := &countingAdapter{source: domain.SourceNews}
	trustMgr := trust.NewManager()

	cfg := Config{Jobs: []JobConfig{{Source: domain.SourceNews, Interval: Duration(10 * time.Millisecond), BatchSize: 1}}}
	s := New(cfg, map[domain.Source]adapters.Adapter{domain.SourceNews: adapter},
		func(context.Context, domain.RawEvent) {}, nil, trustMgr)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(time.Second)

	require.Eventually(t, func() bool {
		score, ok := trustMgr.Get(domain.SourceNews)
		return ok && !score.UpdatedAt.IsZero()
	}, 2*time.Second, 10*time.Millisecond)
}

func TestScheduler_StopDrainsWithinDeadline(t *testing.T) {
	adapter := &countingAdapter{source: domain.SourceNews, block: make(chan struct{})}

	cfg := Config{Jobs: []JobConfig{{Source: domain.SourceNews, Interval: Duration(time.Hour), BatchSize: 1}}}
	s := New(cfg, map[domain.Source]adapters.Adapter{domain.SourceNews: adapter},
		func(context.Context, domain.RawEvent) {}, nil, nil)

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return adapter.fetches.Load() >= 1 }, time.Second, 5*time.Millisecond)

	// the in-flight fetch blocks until cancellation; Stop must still
	// return within the drain deadline
	done := make(chan struct{})
	go func() {
		s.Stop(2 * time.Second)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop did not return within drain deadline")
	}
}

func TestScheduler_LifecycleJobRuns(t *testing.T) {
	var runs atomic.Int64

	cfg := Config{Lifecycle: LifecycleJobConfig{Enabled: true, Interval: Duration(15 * time.Millisecond)}}
	s := New(cfg, nil, func(context.Context, domain.RawEvent) {}, func(context.Context) { runs.Add(1) }, nil)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(time.Second)

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestScheduler_UnknownSourceRejected(t *testing.T) {
	cfg := Config{Jobs: []JobConfig{{Source: domain.Source("telepathy"), Interval: Duration(time.Minute)}}}
	s := New(cfg, nil, func(context.Context, domain.RawEvent) {}, nil, nil)

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown source")
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scheduler.yaml")
	doc := `
jobs:
  - source: prediction_markets
    interval: 2m
    batch_size: 25
  - source: vessel_tracking
    stream: true
lifecycle:
  enabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.Jobs, 2)

	assert.Equal(t, domain.SourcePredictionMarkets, cfg.Jobs[0].Source)
	assert.Equal(t, 2*time.Minute, cfg.Jobs[0].Interval.Std())
	assert.Equal(t, 25, cfg.Jobs[0].BatchSize)

	// defaults fill omitted fields
	assert.True(t, cfg.Jobs[1].Stream)
	assert.Equal(t, 5*time.Minute, cfg.Jobs[1].Interval.Std())
	assert.Equal(t, 50, cfg.Jobs[1].BatchSize)
	assert.Equal(t, time.Hour, cfg.Lifecycle.Interval.Std())

	require.NoError(t, cfg.Validate())
}

func TestDefaultConfig_CoversAllSources(t *testing.T) {
	cfg := DefaultConfig()
	require.Len(t, cfg.Jobs, len(domain.AllSources))
	require.NoError(t, cfg.Validate())

	for _, job := range cfg.Jobs {
		if job.Source == domain.SourceVesselTracking {
			assert.True(t, job.Stream)
		}
	}
}
