package emit

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/omen-systems/omen/internal/domain"
	"github.com/omen-systems/omen/internal/ledger"
	"github.com/omen-systems/omen/internal/resilience"
)

// ReconcileStats summarizes one replay pass
type ReconcileStats struct {
	Partition string `json:"partition"`
	Read      int    `json:"read"`
	Delivered int    `json:"delivered"`
	Duplicate int    `json:"duplicate"`
	Failed    int    `json:"failed"`
}

// Reconciler replays ledger records through the hot path. The downstream
// dedupes on signal id, so records that already arrived come back as
// duplicates and count as reconciled.
type Reconciler struct {
	reader *ledger.Reader
	pusher Pusher
}

// NewReconciler builds a reconciler over the ledger base path
func NewReconciler(reader *ledger.Reader, pusher Pusher) *Reconciler {
	return &Reconciler{reader: reader, pusher: pusher}
}

// ReplayPartition pushes every record of a partition (late included)
// downstream. It stops early when the context is cancelled; individual
// push failures are counted and do not abort the pass.
func (r *Reconciler) ReplayPartition(ctx context.Context, partition string) (ReconcileStats, error) {
	stats := ReconcileStats{Partition: partition}

	events, err := r.reader.ReadPartition(partition, true, true)
	if err != nil {
		return stats, fmt.Errorf("read partition %s: %w", partition, err)
	}
	stats.Read = len(events)

	for _, event := range events {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		r.replayOne(ctx, event, &stats)
	}

	log.Info().
		Str("partition", partition).
		Int("read", stats.Read).
		Int("delivered", stats.Delivered).
		Int("duplicate", stats.Duplicate).
		Int("failed", stats.Failed).
		Msg("Reconcile pass complete")

	return stats, nil
}

func (r *Reconciler) replayOne(ctx context.Context, event domain.SignalEvent, stats *ReconcileStats) {
	_, err := r.pusher.Push(ctx, event)

	var dup *DuplicateError
	switch {
	case err == nil:
		stats.Delivered++
	case errors.As(err, &dup):
		stats.Duplicate++
	default:
		stats.Failed++
		log.Warn().Err(err).
			Str("signal_id", event.SignalID).
			Uint64("sequence", event.LedgerSequence).
			Msg("Reconcile push failed")
	}
}

// RetryPush wraps a single push with the standard retry policy, for
// callers replaying a handful of records interactively.
func RetryPush(ctx context.Context, pusher Pusher, event domain.SignalEvent, config resilience.RetryConfig) (string, error) {
	var ack string
	err := resilience.Retry(ctx, config, func() error {
		a, err := pusher.Push(ctx, event)
		if err != nil {
			return err
		}
		ack = a
		return nil
	})
	return ack, err
}
