package main

import (
	"os"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/omen-systems/omen/internal/application"
	"github.com/omen-systems/omen/internal/config"
	"github.com/omen-systems/omen/internal/domain"
	"github.com/omen-systems/omen/internal/scheduler"
)

// runGenerate does one fetch-and-process pass over every enabled source.
// Exit code 2 means partial success: some sources delivered, some failed.
func runGenerate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		cfg.DryRun = true
	}
	batchSize, _ := cmd.Flags().GetInt("batch-size")

	engine, err := application.New(cfg, version, scheduler.DefaultConfig())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	sources := make([]domain.Source, 0, len(engine.Adapters))
	for src := range engine.Adapters {
		sources = append(sources, src)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })

	var succeeded, failed int
	for _, src := range sources {
		events, err := engine.Adapters[src].FetchEvents(ctx, batchSize)
		if err != nil {
			log.Error().Err(err).Str("source", string(src)).Msg("Fetch failed")
			failed++
			continue
		}
		for _, ev := range events {
			res := engine.Pipeline.Process(ctx, ev)
			if res.Err != nil {
				log.Warn().Err(res.Err).Str("event_id", ev.EventID).Msg("Processing failed")
			}
		}
		succeeded++
		log.Info().Str("source", string(src)).Int("events", len(events)).Msg("Source processed")
	}

	stats := engine.Pipeline.Stats()
	log.Info().
		Int64("processed", stats.Processed).
		Int64("signals", stats.Generated).
		Int64("rejected", stats.Rejected).
		Int64("dlq_depth", stats.DLQDepth).
		Bool("dry_run", cfg.DryRun).
		Msg("Generation complete")

	if err := engine.Writer.FlushAndClose(); err != nil {
		return err
	}

	if failed > 0 && succeeded == 0 {
		return domain.Ef(domain.KindAdapter, "all %d sources failed", failed)
	}
	if failed > 0 {
		os.Exit(2)
	}
	return nil
}
