// Package scheduler drives periodic source fetches and ledger maintenance.
// Each job runs on its own ticker; shutdown drains in-flight work up to a
// deadline before cancelling the rest.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/omen-systems/omen/internal/adapters"
	"github.com/omen-systems/omen/internal/domain"
	"github.com/omen-systems/omen/internal/trust"
)

// ProcessFunc consumes one fetched event, usually the pipeline
type ProcessFunc func(ctx context.Context, event domain.RawEvent)

// LifecycleFunc runs one ledger maintenance pass
type LifecycleFunc func(ctx context.Context)

// Scheduler owns the fetch and maintenance loops
type Scheduler struct {
	cfg       Config
	adapters  map[domain.Source]adapters.Adapter
	process   ProcessFunc
	lifecycle LifecycleFunc
	trust     *trust.Manager

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New builds a scheduler. lifecycle and trustMgr may be nil.
func New(cfg Config, adapterSet map[domain.Source]adapters.Adapter, process ProcessFunc, lifecycle LifecycleFunc, trustMgr *trust.Manager) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		adapters:  adapterSet,
		process:   process,
		lifecycle: lifecycle,
		trust:     trustMgr,
	}
}

// Start launches every configured job. Jobs whose source has no adapter
// are skipped with a warning.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.started = true

	for _, job := range s.cfg.Jobs {
		adapter, ok := s.adapters[job.Source]
		if !ok {
			log.Warn().Str("source", string(job.Source)).Msg("No adapter for scheduled source, skipping")
			continue
		}

		if job.Stream {
			if streamer, ok := adapter.(adapters.Streamer); ok {
				s.startStream(ctx, job, adapter, streamer)
				continue
			}
			log.Warn().Str("source", string(job.Source)).Msg("Stream requested but adapter cannot stream, polling instead")
		}
		s.startPoll(ctx, job, adapter)
	}

	if s.lifecycle != nil && s.cfg.Lifecycle.Enabled {
		s.startLifecycle(ctx)
	}

	log.Info().Int("jobs", len(s.cfg.Jobs)).Msg("Scheduler started")
	return nil
}

// Stop halts new fetches and waits up to drainTimeout for in-flight work
func (s *Scheduler) Stop(drainTimeout time.Duration) {
	s.mu.Lock()
	cancel := s.cancel
	s.started = false
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("Scheduler drained cleanly")
	case <-time.After(drainTimeout):
		log.Warn().Dur("drain_timeout", drainTimeout).Msg("Scheduler drain deadline exceeded")
	}
}

func (s *Scheduler) startPoll(ctx context.Context, job JobConfig, adapter adapters.Adapter) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(job.Interval.Std())
		defer ticker.Stop()

		// one fetch immediately so a fresh process is not idle for a
		// full interval
		s.fetchOnce(ctx, job, adapter)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.fetchOnce(ctx, job, adapter)
			}
		}
	}()
}

func (s *Scheduler) fetchOnce(ctx context.Context, job JobConfig, adapter adapters.Adapter) {
	start := time.Now()
	events, err := adapter.FetchEvents(ctx, job.BatchSize)
	latency := time.Since(start)

	if s.trust != nil {
		s.trust.RecordOutcome(job.Source, err == nil, latency, freshnessOf(events))
	}
	if err != nil {
		if ctx.Err() == nil {
			log.Warn().Err(err).Str("source", string(job.Source)).Msg("Scheduled fetch failed")
		}
		return
	}

	log.Debug().
		Str("source", string(job.Source)).
		Int("events", len(events)).
		Dur("latency", latency).
		Msg("Scheduled fetch complete")

	for _, ev := range events {
		if ctx.Err() != nil {
			return
		}
		s.process(ctx, ev)
	}
}

func (s *Scheduler) startStream(ctx context.Context, job JobConfig, adapter adapters.Adapter, streamer adapters.Streamer) {
	events := make(chan domain.RawEvent, job.BatchSize)
	if err := streamer.Subscribe(ctx, events); err != nil {
		log.Error().Err(err).Str("source", string(job.Source)).Msg("Stream subscription failed, job disabled")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer streamer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-events:
				s.process(ctx, ev)
			}
		}
	}()
	log.Info().Str("source", string(job.Source)).Msg("Stream job started")
}

func (s *Scheduler) startLifecycle(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.cfg.Lifecycle.Interval.Std())
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.lifecycle(ctx)
			}
		}
	}()
}

// freshnessOf estimates how recent a batch is, in [0,1], for the trust
// manager. An empty batch reports -1 (no freshness sample).
func freshnessOf(events []domain.RawEvent) float64 {
	if len(events) == 0 {
		return -1
	}

	now := time.Now().UTC()
	var newest time.Time
	for _, ev := range events {
		if ev.ObservedAt.After(newest) {
			newest = ev.ObservedAt
		}
	}
	age := now.Sub(newest)
	if age <= 0 {
		return 1
	}
	const horizon = 24 * time.Hour
	if age >= horizon {
		return 0
	}
	return 1 - float64(age)/float64(horizon)
}
