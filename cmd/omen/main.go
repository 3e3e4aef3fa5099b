package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	appName = "OMEN"
	version = "v1.0.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     "omen",
		Short:   "OMEN signal intelligence engine",
		Version: version,
		Long: `OMEN ingests raw events from prediction markets, vessel tracking,
weather alerts, news, freight indices, and market feeds, validates and
scores them, and emits structured signals to the ledger and downstream
consumers.`,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the full engine: scheduler, pipeline, and API server",
		RunE:  runServe,
	}
	serveCmd.Flags().String("scheduler-config", "", "Path to scheduler YAML (defaults apply when empty)")

	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Fetch one batch from every enabled source and run the pipeline once",
		RunE:  runGenerate,
	}
	generateCmd.Flags().Bool("dry-run", false, "Validate and score without persisting or emitting")
	generateCmd.Flags().Int("batch-size", 25, "Events fetched per source")

	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Ledger partition maintenance",
	}

	sealCmd := &cobra.Command{
		Use:   "seal [partition]",
		Short: "Seal a partition: write its manifest and mark it immutable",
		Args:  cobra.ExactArgs(1),
		RunE:  runLedgerSeal,
	}

	verifyCmd := &cobra.Command{
		Use:   "verify [partition]",
		Short: "Re-read a partition with hash chain and manifest verification",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLedgerVerify,
	}
	verifyCmd.Flags().Bool("include-late", false, "Include the late sidecar in verification")

	lifecycleCmd := &cobra.Command{
		Use:   "lifecycle",
		Short: "Run one seal/compress/archive/retention pass over the ledger",
		RunE:  runLedgerLifecycle,
	}

	reconcileCmd := &cobra.Command{
		Use:   "reconcile [partition]",
		Short: "Replay a partition's records through the hot path",
		Args:  cobra.ExactArgs(1),
		RunE:  runLedgerReconcile,
	}

	ledgerCmd.AddCommand(sealCmd, verifyCmd, lifecycleCmd, reconcileCmd)

	dlqCmd := &cobra.Command{
		Use:   "dlq",
		Short: "Dead letter queue operations against a running engine",
	}

	reprocessCmd := &cobra.Command{
		Use:   "reprocess",
		Short: "Replay parked events through the pipeline",
		RunE:  runDLQReprocess,
	}
	reprocessCmd.Flags().String("addr", "http://localhost:8090", "Base URL of the running engine")
	reprocessCmd.Flags().String("api-key", "", "API key when the engine requires authentication")
	reprocessCmd.Flags().Int("max", 0, "Maximum entries to replay (0 drains the queue)")

	dlqCmd.AddCommand(reprocessCmd)

	sourcesCmd := &cobra.Command{
		Use:   "sources",
		Short: "Show the source registry classification and live gate",
		RunE:  runSources,
	}

	rootCmd.AddCommand(serveCmd, generateCmd, ledgerCmd, dlqCmd, sourcesCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}
