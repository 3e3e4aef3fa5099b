// Package application assembles the engine from configuration: sources,
// pipeline, ledger, emitter, broadcaster, persistence, and the API
// surface, with a single graceful teardown path.
package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/omen-systems/omen/internal/adapters"
	"github.com/omen-systems/omen/internal/audit"
	"github.com/omen-systems/omen/internal/broadcast"
	"github.com/omen-systems/omen/internal/config"
	"github.com/omen-systems/omen/internal/correlation"
	"github.com/omen-systems/omen/internal/domain"
	"github.com/omen-systems/omen/internal/emit"
	omenhttp "github.com/omen-systems/omen/internal/interfaces/http"
	"github.com/omen-systems/omen/internal/ledger"
	"github.com/omen-systems/omen/internal/persistence"
	"github.com/omen-systems/omen/internal/persistence/postgres"
	"github.com/omen-systems/omen/internal/pipeline"
	"github.com/omen-systems/omen/internal/registry"
	"github.com/omen-systems/omen/internal/resilience"
	"github.com/omen-systems/omen/internal/scheduler"
	"github.com/omen-systems/omen/internal/trust"
	"github.com/omen-systems/omen/internal/validation"
)

// Engine is the assembled process
type Engine struct {
	Config     config.Config
	Registry   *registry.Registry
	Adapters   map[domain.Source]adapters.Adapter
	Trust      *trust.Manager
	Correlator *correlation.Correlator
	Pipeline   *pipeline.Pipeline
	Emitter    *emit.Emitter
	Writer     *ledger.Writer
	Reader     *ledger.Reader
	Lifecycle  *ledger.Lifecycle
	Hub        *broadcast.Hub
	Repo       persistence.SignalRepo
	Scheduler  *scheduler.Scheduler
	Server     *omenhttp.Server

	distributor *broadcast.Distributor
	metrics     *omenhttp.Metrics
	db          *sqlx.DB
	rdb         *redis.Client
	instanceID  string
}

// New assembles the engine. Optional backends (Postgres, Redis, the
// RiskCast hot path) are wired only when configured.
func New(cfg config.Config, version string, schedCfg scheduler.Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		Config:     cfg,
		instanceID: uuid.NewString(),
	}

	e.Registry = registry.New(cfg)
	e.Adapters = adapters.Build(cfg, e.Registry)
	e.Trust = trust.NewManager()

	var fetcher *correlation.AssetFetcher
	if port := adapters.NewQuotePort(e.Adapters); port != nil {
		fetcher = correlation.NewAssetFetcher(port, 10*time.Second)
	}
	e.Correlator = correlation.NewCorrelator(correlation.NewCache(0, 0), fetcher)

	e.Writer = ledger.NewWriter(cfg.LedgerBasePath)
	e.Reader = ledger.NewReader(cfg.LedgerBasePath)
	e.Lifecycle = ledger.NewLifecycle(cfg.LedgerBasePath, ledger.DefaultLifecycleConfig())

	var auditor audit.Logger = audit.NopLogger{}
	var attestor pipeline.Attestor
	if cfg.DatabaseURL != "" {
		db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, domain.E(domain.KindConfiguration, err)
		}
		if err := postgres.EnsureSchema(db); err != nil {
			db.Close()
			return nil, err
		}
		e.db = db
		e.Repo = postgres.NewSignalsRepo(db, 5*time.Second)
		auditor = audit.NewSQLLogger(db, cfg.Env == config.EnvDevelopment)
		attestor = audit.NewAttestor(db)
	} else {
		e.Repo = persistence.NewMemoryRepo()
		log.Warn().Msg("DATABASE_URL not set, using in-memory signal store")
	}

	var pusher emit.Pusher
	if cfg.RiskcastURL != "" {
		pusher = emit.NewRiskcastClient(emit.RiskcastConfig{
			BaseURL: cfg.RiskcastURL,
			APIKey:  cfg.RiskcastAPIKey,
		})
	} else {
		log.Warn().Msg("RISKCAST_URL not set, hot path disabled (signals stay LEDGER_ONLY)")
	}

	e.Emitter = emit.NewEmitter(e.Writer, pusher,
		resilience.NewCircuitBreaker(resilience.DefaultCircuitConfig("riskcast")),
		emit.NewBackpressure(0, 0, 0))

	e.Hub = broadcast.NewHub()
	var broadcaster emit.Broadcaster = e.Hub
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, domain.E(domain.KindConfiguration, err)
		}
		e.rdb = redis.NewClient(opts)
		e.distributor = broadcast.NewDistributor(e.rdb, e.Hub, e.instanceID)
		broadcaster = e.distributor
	}

	deps := validation.Deps{
		Reliability:      e.Trust.Reliability,
		CrossSourceCount: e.Correlator.CrossSourceCount,
		ActiveSources:    func() int { return len(e.Adapters) },
		IsDuplicate:      e.Correlator.IsDuplicate,
	}
	chain := validation.NewDefaultChain(validation.DefaultConfig(), deps)

	e.Pipeline = pipeline.New(chain, e.Trust, e.Correlator, e.Repo, e.Emitter,
		auditor, attestor, e.auditSourceKind, pipeline.Options{
			MinConfidence:     cfg.MinConfidence,
			EnableDedupe:      true,
			EnableCorrelation: cfg.EnableCorrelation,
			EnableDLQ:         true,
			DryRun:            cfg.DryRun,
		})

	e.Scheduler = scheduler.New(schedCfg, e.Adapters, e.processEvent, e.runLifecycle, e.Trust)

	e.metrics = omenhttp.NewMetrics(e.Pipeline)
	e.Emitter.SetBroadcaster(e.metrics.InstrumentBroadcaster(broadcaster))

	e.Server = omenhttp.NewServer(omenhttp.ServerConfig{
		ListenAddr:   cfg.ListenAddr,
		Version:      version,
		APIKeyPepper: cfg.APIKeyPepper,
		APIKeyHashes: cfg.APIKeyHashes,
		RateLimitRPM: cfg.RateLimitRPM,
		RateBurst:    cfg.RateLimitBurst,
		Development:  cfg.Env == config.EnvDevelopment,
	}, e.Repo, e.Pipeline, e.Adapters, e.Registry, e.Emitter, e.Hub, nil, e.metrics)

	log.Info().
		Str("instance_id", e.instanceID).
		Str("config", cfg.Fingerprint()).
		Msg("Engine assembled")
	return e, nil
}

// Run starts the scheduler, distributor, and API server, then blocks
// until the context is cancelled and teardown completes.
func (e *Engine) Run(ctx context.Context) error {
	if e.distributor != nil {
		e.distributor.Start()
	}
	if err := e.Scheduler.Start(ctx); err != nil {
		return err
	}

	err := e.Server.Start(ctx)

	e.shutdown()
	return err
}

// shutdown drains in the cancellation order: stop fetches, drain
// in-flight events, make the ledger durable, close backends.
func (e *Engine) shutdown() {
	e.Scheduler.Stop(e.Config.DrainTimeout)

	if err := e.Writer.FlushAndClose(); err != nil {
		log.Error().Err(err).Msg("Ledger close failed")
	}

	if e.distributor != nil {
		e.distributor.Stop()
	}
	e.Hub.Close()

	if e.rdb != nil {
		if err := e.rdb.Close(); err != nil {
			log.Error().Err(err).Msg("Redis close failed")
		}
	}
	if e.db != nil {
		if err := e.db.Close(); err != nil {
			log.Error().Err(err).Msg("Database close failed")
		}
	}
	log.Info().Msg("Engine stopped")
}

func (e *Engine) processEvent(ctx context.Context, event domain.RawEvent) {
	res := e.Pipeline.Process(ctx, event)
	if res.Emit != nil {
		e.metrics.ObserveEmit(res.Emit.Status)
	}
	if res.Signal != nil {
		e.Server.Feed().Record(omenhttp.ActivitySignal, res.Signal.Title, map[string]any{
			"signal_id": res.Signal.SignalID,
			"source":    string(res.Signal.Source),
		})
	}
}

func (e *Engine) runLifecycle(_ context.Context) {
	report := e.Lifecycle.Run()
	if len(report.Errors) > 0 {
		e.Server.Feed().Record(omenhttp.ActivityError, "ledger lifecycle completed with errors", map[string]any{
			"errors": report.Errors,
		})
	}
}

func (e *Engine) auditSourceKind(src domain.Source) audit.SourceType {
	switch e.Registry.Classify(src) {
	case registry.SourceReal:
		return audit.SourceReal
	case registry.SourceMock:
		return audit.SourceMock
	default:
		return audit.SourceHybrid
	}
}
