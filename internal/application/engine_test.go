package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omen-systems/omen/internal/audit"
	"github.com/omen-systems/omen/internal/config"
	"github.com/omen-systems/omen/internal/domain"
	"github.com/omen-systems/omen/internal/scheduler"
)

func devConfig(t *testing.T) config.Config {
	t.Helper()
	sources := make(map[domain.Source]config.SourceConfig, len(domain.AllSources))
	for _, src := range domain.AllSources {
		sources[src] = config.SourceConfig{Enabled: true}
	}
	return config.Config{
		Env:            config.EnvDevelopment,
		LedgerBasePath: t.TempDir(),
		ListenAddr:     "127.0.0.1:0",
		RateLimitRPM:   600,
		RateLimitBurst: 50,
		MinConfidence:  0.35,
		DrainTimeout:   2 * time.Second,
		Sources:        sources,
	}
}

func TestNew_DevelopmentDefaults(t *testing.T) {
	eng, err := New(devConfig(t), "test", scheduler.DefaultConfig())
	require.NoError(t, err)

	// no DATABASE_URL means the in-memory store, no Redis means the hub
	// broadcasts locally only
	assert.NotNil(t, eng.Repo)
	assert.NotNil(t, eng.Pipeline)
	assert.NotNil(t, eng.Scheduler)
	assert.NotNil(t, eng.Server)
	assert.Nil(t, eng.distributor)

	// every source defaults to mock in development, so all seven run
	assert.Len(t, eng.Adapters, len(domain.AllSources))
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := devConfig(t)
	cfg.MinConfidence = 1.5

	_, err := New(cfg, "test", scheduler.DefaultConfig())
	require.Error(t, err)
	assert.Equal(t, domain.KindConfiguration, domain.KindOf(err))
}

func TestAuditSourceKind_FollowsRegistry(t *testing.T) {
	cfg := devConfig(t)
	cfg.Sources = map[domain.Source]config.SourceConfig{
		domain.SourcePredictionMarkets: {Provider: "polymarket", APIKey: "k", Enabled: true},
		domain.SourceNews:              {Enabled: true},
	}

	eng, err := New(cfg, "test", scheduler.DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, audit.SourceReal, eng.auditSourceKind(domain.SourcePredictionMarkets))
	assert.Equal(t, audit.SourceMock, eng.auditSourceKind(domain.SourceNews))
}

func TestRun_StopsOnCancel(t *testing.T) {
	eng, err := New(devConfig(t), "test", scheduler.DefaultConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop after cancellation")
	}
}

func TestNew_WiresDuplicateDetection(t *testing.T) {
	eng, err := New(devConfig(t), "test", scheduler.DefaultConfig())
	require.NoError(t, err)

	adapter, ok := eng.Adapters[domain.SourceNews]
	require.True(t, ok)

	// Same synthetic story under two distinct event ids
	events, err := adapter.FetchEvents(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, events, 2)

	eng.Pipeline.Process(context.Background(), events[0])

	second := eng.Pipeline.Process(context.Background(), events[1])
	require.NotNil(t, second.Rejection)
	assert.Equal(t, "news_quality_gate", second.Rejection.RuleName)
	assert.Contains(t, second.Rejection.Reason, "duplicate")
}

func TestProcessEvent_RecordsSignalActivity(t *testing.T) {
	eng, err := New(devConfig(t), "test", scheduler.DefaultConfig())
	require.NoError(t, err)

	adapter, ok := eng.Adapters[domain.SourcePredictionMarkets]
	require.True(t, ok)
	events, err := adapter.FetchEvents(context.Background(), 5)
	require.NoError(t, err)
	require.NotEmpty(t, events)

	for _, ev := range events {
		eng.processEvent(context.Background(), ev)
	}

	stats := eng.Pipeline.Stats()
	assert.Equal(t, int64(len(events)), stats.Processed)
}
