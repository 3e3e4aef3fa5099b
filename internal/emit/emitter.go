package emit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/omen-systems/omen/internal/domain"
	"github.com/omen-systems/omen/internal/resilience"
)

// Status is the outcome of a dual-path emit
type Status string

const (
	StatusDelivered  Status = "DELIVERED"   // ledger + hot push both succeeded
	StatusLedgerOnly Status = "LEDGER_ONLY" // durable, hot push deferred to reconcile
	StatusDuplicate  Status = "DUPLICATE"   // downstream already had the signal
	StatusFailed     Status = "FAILED"      // ledger write failed; nothing durable
)

// Result reports where a signal ended up
type Result struct {
	Status    Status    `json:"status"`
	SignalID  string    `json:"signal_id"`
	AckID     string    `json:"ack_id,omitempty"`
	Error     string    `json:"error,omitempty"`
	Partition string    `json:"ledger_partition,omitempty"`
	Sequence  uint64    `json:"ledger_sequence,omitempty"`
	EmittedAt time.Time `json:"emitted_at"`
}

// LedgerWriter is the durable leg of the emitter
type LedgerWriter interface {
	Write(event domain.SignalEvent) (domain.SignalEvent, error)
}

// Broadcaster fans a persisted signal out to realtime subscribers.
// Broadcast failures never affect the emit result.
type Broadcaster interface {
	Broadcast(event domain.SignalEvent)
}

// Emitter writes ledger-first, then attempts the hot push behind a
// circuit breaker with backpressure. The ledger is the source of truth:
// a hot-path failure degrades to LEDGER_ONLY, never to data loss.
type Emitter struct {
	ledger      LedgerWriter
	pusher      Pusher
	breaker     *resilience.CircuitBreaker
	backoff     *Backpressure
	broadcaster Broadcaster
	now         func() time.Time
}

// NewEmitter builds the emitter. pusher may be nil (ledger-only mode);
// broadcaster may be nil.
func NewEmitter(ledger LedgerWriter, pusher Pusher, breaker *resilience.CircuitBreaker, backoff *Backpressure) *Emitter {
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(resilience.DefaultCircuitConfig("riskcast"))
	}
	if backoff == nil {
		backoff = NewBackpressure(0, 0, 0)
	}
	return &Emitter{
		ledger:  ledger,
		pusher:  pusher,
		breaker: breaker,
		backoff: backoff,
		now:     time.Now,
	}
}

// SetBroadcaster attaches the realtime fan-out
func (e *Emitter) SetBroadcaster(b Broadcaster) { e.broadcaster = b }

// Emit persists the signal and pushes it downstream. The returned error is
// non-nil only for the FAILED case (nothing durable); every other outcome
// is expressed in the Result.
func (e *Emitter) Emit(ctx context.Context, sig domain.OmenSignal) (Result, error) {
	event := domain.FromOmenSignal(sig, e.now())

	written, err := e.ledger.Write(event)
	if err != nil {
		log.Error().Err(err).
			Str("signal_id", sig.SignalID).
			Str("trace_id", sig.TraceID).
			Msg("Ledger write failed, emit aborted")
		return Result{
			Status:    StatusFailed,
			SignalID:  sig.SignalID,
			Error:     err.Error(),
			EmittedAt: event.EmittedAt,
		}, domain.E(domain.KindPersistence, err)
	}

	result := Result{
		SignalID:  written.SignalID,
		Partition: written.LedgerPartition,
		Sequence:  written.LedgerSequence,
		EmittedAt: written.EmittedAt,
	}

	e.broadcast(written)

	if e.pusher == nil {
		result.Status = StatusLedgerOnly
		result.Error = "hot path disabled"
		return result, nil
	}

	if err := e.backoff.Wait(ctx); err != nil {
		result.Status = StatusLedgerOnly
		result.Error = err.Error()
		return result, nil
	}

	var ackID string
	var dup *DuplicateError
	callErr := e.breaker.Call(func() error {
		ack, err := e.pusher.Push(ctx, written)
		if err != nil {
			var d *DuplicateError
			if errors.As(err, &d) {
				dup = d
				return nil // counts as downstream success
			}
			return err
		}
		ackID = ack
		return nil
	})

	switch {
	case callErr == nil && dup != nil:
		e.backoff.RecordSuccess()
		result.Status = StatusDuplicate
		result.AckID = dup.AckID
		log.Info().
			Str("signal_id", written.SignalID).
			Str("ack_id", dup.AckID).
			Msg("Downstream already had signal")

	case callErr == nil:
		e.backoff.RecordSuccess()
		result.Status = StatusDelivered
		result.AckID = ackID
		log.Info().
			Str("signal_id", written.SignalID).
			Str("partition", written.LedgerPartition).
			Uint64("sequence", written.LedgerSequence).
			Msg("Signal delivered")

	default:
		result.Status = StatusLedgerOnly
		result.Error = hotPathError(callErr)

		var open *resilience.CircuitOpenError
		if !errors.As(callErr, &open) {
			// Circuit-open fast fails are not new downstream evidence
			e.backoff.RecordFailure()
		}
		log.Warn().
			Str("signal_id", written.SignalID).
			Str("error", result.Error).
			Msg("Hot push failed, signal is ledger-only")
	}

	return result, nil
}

// broadcast fans out to realtime subscribers. Fan-out problems, panics
// included, never reach the emit result.
func (e *Emitter) broadcast(event domain.SignalEvent) {
	if e.broadcaster == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("signal_id", event.SignalID).
				Msg("Broadcast panicked")
		}
	}()
	e.broadcaster.Broadcast(event)
}

// hotPathError renders the hot-path failure for the emit result
func hotPathError(err error) string {
	var open *resilience.CircuitOpenError
	if errors.As(err, &open) {
		return fmt.Sprintf("Circuit open, retry after %ds", int(open.RetryAfter.Seconds()))
	}
	return err.Error()
}

// BreakerStatus exposes the hot-path breaker for health reporting
func (e *Emitter) BreakerStatus() map[string]any {
	return e.breaker.Status()
}
