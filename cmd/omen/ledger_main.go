package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/omen-systems/omen/internal/config"
	"github.com/omen-systems/omen/internal/domain"
	"github.com/omen-systems/omen/internal/emit"
	"github.com/omen-systems/omen/internal/ledger"
)

func runLedgerSeal(_ *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	writer := ledger.NewWriter(cfg.LedgerBasePath)
	if err := writer.SealPartition(args[0]); err != nil {
		return err
	}
	log.Info().Str("partition", args[0]).Msg("Partition sealed")
	return nil
}

// runLedgerVerify re-reads partitions with full hash chain validation. A
// missing argument verifies every partition under the base path.
func runLedgerVerify(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	includeLate, _ := cmd.Flags().GetBool("include-late")

	reader := ledger.NewReader(cfg.LedgerBasePath)
	partitions := args
	if len(partitions) == 0 {
		partitions, err = reader.ListPartitions()
		if err != nil {
			return err
		}
	}
	if len(partitions) == 0 {
		log.Info().Msg("No partitions to verify")
		return nil
	}

	var failures int
	for _, partition := range partitions {
		events, err := reader.ReadPartition(partition, true, includeLate)
		if err != nil {
			log.Error().Err(err).Str("partition", partition).Msg("Verification failed")
			failures++
			continue
		}
		seq, count, err := reader.PartitionHighwater(partition)
		if err != nil {
			log.Error().Err(err).Str("partition", partition).Msg("Highwater read failed")
			failures++
			continue
		}
		log.Info().
			Str("partition", partition).
			Int("events", len(events)).
			Uint64("highwater_seq", seq).
			Int("manifest_count", count).
			Bool("sealed", reader.IsPartitionSealed(partition)).
			Msg("Partition verified")
	}

	if failures > 0 {
		return domain.Ef(domain.KindPersistence, "%d of %d partitions failed verification", failures, len(partitions))
	}
	return nil
}

func runLedgerLifecycle(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	lc := ledger.NewLifecycle(cfg.LedgerBasePath, ledger.DefaultLifecycleConfig())
	report := lc.Run()
	log.Info().
		Strs("sealed", report.Sealed).
		Strs("compressed", report.Compressed).
		Strs("archived", report.Archived).
		Strs("deleted", report.Deleted).
		Msg("Lifecycle pass complete")

	if len(report.Errors) > 0 {
		return domain.Ef(domain.KindPersistence, "lifecycle finished with %d errors: %v", len(report.Errors), report.Errors)
	}
	return nil
}

// runLedgerReconcile replays a partition through the hot path. The
// downstream dedupes on signal id, so already-delivered records come back
// as duplicates rather than doubles.
func runLedgerReconcile(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.RiskcastURL == "" {
		return domain.Ef(domain.KindConfiguration, "RISKCAST_URL is required to reconcile")
	}

	pusher := emit.NewRiskcastClient(emit.RiskcastConfig{
		BaseURL: cfg.RiskcastURL,
		APIKey:  cfg.RiskcastAPIKey,
	})
	reconciler := emit.NewReconciler(ledger.NewReader(cfg.LedgerBasePath), pusher)

	stats, err := reconciler.ReplayPartition(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if stats.Failed > 0 {
		return domain.Ef(domain.KindPublish, "%d of %d records failed to replay", stats.Failed, stats.Read)
	}
	return nil
}
