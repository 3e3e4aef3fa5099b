// Package pipeline orchestrates the signal path: dedupe, validation,
// enrichment, confidence, correlation, threshold, emit, persist. One
// event in, at most one signal out; failures park in the DLQ.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/omen-systems/omen/internal/audit"
	"github.com/omen-systems/omen/internal/confidence"
	"github.com/omen-systems/omen/internal/correlation"
	"github.com/omen-systems/omen/internal/domain"
	"github.com/omen-systems/omen/internal/emit"
	"github.com/omen-systems/omen/internal/enrich"
	"github.com/omen-systems/omen/internal/persistence"
	"github.com/omen-systems/omen/internal/trust"
	"github.com/omen-systems/omen/internal/validation"
)

// Options tune per-event behavior
type Options struct {
	MinConfidence     float64
	EnableDedupe      bool
	EnableCorrelation bool
	EnableDLQ         bool
	DryRun            bool
}

// DefaultOptions matches the engine's shipped configuration
func DefaultOptions() Options {
	return Options{
		MinConfidence:     0.35,
		EnableDedupe:      true,
		EnableCorrelation: true,
		EnableDLQ:         true,
	}
}

// Stats counts pipeline outcomes since startup
type Stats struct {
	Processed int64 `json:"processed"`
	Generated int64 `json:"generated"`
	Deduped   int64 `json:"deduped"`
	Rejected  int64 `json:"rejected"`
	Filtered  int64 `json:"filtered"`
	Failed    int64 `json:"failed"`
	DLQDepth  int64 `json:"dlq_depth"`
}

// Result is the outcome of processing one event
type Result struct {
	OK        bool
	Deduped   bool
	Filtered  bool
	Signal    *domain.OmenSignal
	Emit      *emit.Result
	Rejection *validation.Rejection
	Err       error
}

// Attestor records provenance attestations for generated signals
type Attestor interface {
	Attest(ctx context.Context, signalID string, sourceType audit.SourceType, responseSample []byte) (string, error)
}

// Pipeline wires the stages together. Repo, correlator, attestor, and
// auditor are optional; a nil member disables its stage.
type Pipeline struct {
	chain      *validation.Chain
	trust      *trust.Manager
	correlator *correlation.Correlator
	repo       persistence.SignalRepo
	emitter    *emit.Emitter
	auditor    audit.Logger
	attestor   Attestor
	sourceKind func(domain.Source) audit.SourceType
	dlq        *DLQ
	opts       Options
	now        func() time.Time

	processed atomic.Int64
	generated atomic.Int64
	deduped   atomic.Int64
	rejected  atomic.Int64
	filtered  atomic.Int64
	failed    atomic.Int64
}

// New builds a pipeline. sourceKind maps a source to its audit
// classification; nil means everything is recorded as MOCK.
func New(
	chain *validation.Chain,
	trustMgr *trust.Manager,
	correlator *correlation.Correlator,
	repo persistence.SignalRepo,
	emitter *emit.Emitter,
	auditor audit.Logger,
	attestor Attestor,
	sourceKind func(domain.Source) audit.SourceType,
	opts Options,
) *Pipeline {
	if auditor == nil {
		auditor = audit.NopLogger{}
	}
	if sourceKind == nil {
		sourceKind = func(domain.Source) audit.SourceType { return audit.SourceMock }
	}
	return &Pipeline{
		chain:      chain,
		trust:      trustMgr,
		correlator: correlator,
		repo:       repo,
		emitter:    emitter,
		auditor:    auditor,
		attestor:   attestor,
		sourceKind: sourceKind,
		dlq:        NewDLQ(0),
		opts:       opts,
		now:        time.Now,
	}
}

// DLQ exposes the dead-letter queue for inspection and reprocessing
func (p *Pipeline) DLQ() *DLQ { return p.dlq }

// Stats returns a snapshot of the outcome counters
func (p *Pipeline) Stats() Stats {
	return Stats{
		Processed: p.processed.Load(),
		Generated: p.generated.Load(),
		Deduped:   p.deduped.Load(),
		Rejected:  p.rejected.Load(),
		Filtered:  p.filtered.Load(),
		Failed:    p.failed.Load(),
		DLQDepth:  int64(p.dlq.Len()),
	}
}

// Process runs one event through every stage
func (p *Pipeline) Process(ctx context.Context, event domain.RawEvent) Result {
	p.processed.Add(1)

	hash, err := domain.HashEvent(event)
	if err != nil {
		return p.park(event, domain.KindTranslation, "", fmt.Sprintf("hash event: %v", err))
	}

	if p.opts.EnableDedupe && p.repo != nil {
		if existing, err := p.repo.FindByInputHash(ctx, hash); err == nil && existing != nil {
			p.deduped.Add(1)
			log.Debug().
				Str("event_id", event.EventID).
				Str("signal_id", existing.SignalID).
				Msg("Event already produced a signal, skipping")
			return Result{OK: true, Deduped: true}
		}
	}

	validated, rejection := p.chain.Validate(event)
	if rejection != nil {
		p.rejected.Add(1)
		res := p.park(event, domain.KindValidation, rejection.RuleName, rejection.Reason)
		res.Rejection = rejection
		return res
	}

	signalType := enrich.Classify(event.Title, event.Description)
	direction := enrich.Polarity(signalType, event.Title, event.Description)
	geographic := enrich.ExtractGeography(event)

	reliability := 0.5
	if p.trust != nil {
		reliability = p.trust.Reliability(event.Source)
	}
	sampleSize := 0
	if p.correlator != nil {
		sampleSize = p.correlator.CrossSourceCount(event)
	}
	ci := confidence.Calculate(confidence.Inputs{
		Base:         validated.OverallScore,
		Completeness: event.Completeness(),
		Reliability:  reliability,
		SampleSize:   sampleSize,
	})

	evidence := []string{
		fmt.Sprintf("validation: %d rules, overall score %.2f", len(validated.ValidationResults), validated.OverallScore),
	}

	// The correlator observes every event so cross-source counts stay warm
	// even while adjustment is disabled.
	if p.correlator != nil {
		p.correlator.Observe(event, sentimentOf(direction), locationNames(event))
	}

	if p.opts.EnableCorrelation && p.correlator != nil {
		adj, matches := p.correlator.Correlate(ctx, event, validated.Category, signalType)
		adjusted := correlation.ApplyAdjustment(ci.Point, adj)
		delta := adjusted - ci.Point
		ci.Point = adjusted
		ci.Lower = clamp01(ci.Lower + delta)
		ci.Upper = clamp01(ci.Upper + delta)

		if len(matches) > 0 {
			evidence = append(evidence, fmt.Sprintf("correlation: %d corroborating events, net adjustment %+.2f", len(matches), adj.Net))
		}
		if adj.Severity != confidence.ConflictNone {
			evidence = append(evidence, fmt.Sprintf("correlation: %s cross-source conflict detected", adj.Severity))
		}
	}

	if ci.Point < p.opts.MinConfidence {
		p.filtered.Add(1)
		log.Debug().
			Str("event_id", event.EventID).
			Float64("confidence", ci.Point).
			Float64("threshold", p.opts.MinConfidence).
			Msg("Signal below confidence threshold, filtered")
		return Result{OK: true, Filtered: true}
	}

	sig := p.buildSignal(event, validated, signalType, direction, geographic, ci, hash, evidence)

	if p.opts.DryRun {
		log.Info().
			Str("signal_id", sig.SignalID).
			Str("category", string(sig.Category)).
			Msg("Dry run, signal not persisted")
		return Result{OK: true, Signal: &sig}
	}

	emitRes, err := p.emitter.Emit(ctx, sig)
	if err != nil {
		p.failed.Add(1)
		res := p.park(event, domain.KindPersistence, "", err.Error())
		res.Err = err
		return res
	}

	p.persist(ctx, sig, event)

	p.generated.Add(1)
	return Result{OK: true, Signal: &sig, Emit: &emitRes}
}

// ReprocessDLQ dequeues up to maxItems entries and re-runs them. Entries
// that fail again are re-enqueued at the tail with retry_count+1.
func (p *Pipeline) ReprocessDLQ(ctx context.Context, maxItems int) (succeeded, requeued int) {
	if maxItems <= 0 {
		maxItems = p.dlq.Len()
	}

	for i := 0; i < maxItems; i++ {
		entry, ok := p.dlq.Pop()
		if !ok {
			break
		}

		res := p.Process(ctx, entry.Event)
		if res.OK {
			succeeded++
			continue
		}

		// Process parked it again as a fresh entry; carry the original
		// bookkeeping forward on the re-enqueued copy.
		if tail, ok := p.dlq.popNewestIf(entry.EventID); ok {
			tail.RetryCount = entry.RetryCount + 1
			tail.FirstSeen = entry.FirstSeen
			p.dlq.Push(tail)
		} else {
			entry.RetryCount++
			p.dlq.Push(entry)
		}
		requeued++
	}

	log.Info().
		Int("succeeded", succeeded).
		Int("requeued", requeued).
		Int("depth", p.dlq.Len()).
		Msg("Dead letter queue reprocessed")
	return succeeded, requeued
}

func (p *Pipeline) buildSignal(
	event domain.RawEvent,
	validated domain.ValidatedSignal,
	signalType domain.SignalType,
	direction domain.Direction,
	geographic domain.Geographic,
	ci domain.ConfidenceInterval,
	hash string,
	evidence []string,
) domain.OmenSignal {
	temporal := domain.Temporal{}
	if event.Market != nil && event.Market.ResolutionDate != nil {
		temporal.ResolutionDate = event.Market.ResolutionDate
		temporal.EventHorizon = eventHorizon(p.now().UTC(), *event.Market.ResolutionDate)
	}

	return domain.OmenSignal{
		SignalID:           uuid.NewString(),
		SourceEventID:      event.EventID,
		TraceID:            uuid.NewString(),
		Source:             event.Source,
		Title:              event.Title,
		Description:        event.Description,
		Probability:        event.Probability,
		ProbabilitySource:  probabilitySource(event),
		ConfidenceScore:    ci.Point,
		ConfidenceInterval: ci,
		ConfidenceLevel:    domain.BucketConfidence(ci.Point),
		Category:           validated.Category,
		SignalType:         signalType,
		Status:             domain.StatusActive,
		Geographic:         geographic,
		Temporal:           temporal,
		ImpactHints: domain.ImpactHints{
			Domains:            enrich.Domains(signalType),
			Direction:          direction,
			AffectedAssetTypes: enrich.ExtractAssetTypes(event.Title, event.Description),
			Keywords:           enrich.ExtractKeywords(event.Title, event.Description, 10),
		},
		Evidence:       evidence,
		RulesetVersion: validated.RulesetVersion,
		GeneratedAt:    p.now().UTC(),
		InputEventHash: hash,
	}
}

// persist stores the signal and records the audit trail. The ledger is the
// source of truth; repository or audit failures are logged, not fatal.
func (p *Pipeline) persist(ctx context.Context, sig domain.OmenSignal, event domain.RawEvent) {
	if p.repo != nil {
		if err := p.repo.Insert(ctx, sig); err != nil && !domain.IsKind(err, domain.KindDuplicate) {
			log.Error().Err(err).
				Str("signal_id", sig.SignalID).
				Msg("Signal repository insert failed")
		}
	}

	sourceType := p.sourceKind(sig.Source)

	var attestationID string
	if p.attestor != nil {
		sample, err := domain.CanonicalJSON(event)
		if err == nil {
			attestationID, err = p.attestor.Attest(ctx, sig.SignalID, sourceType, sample)
		}
		if err != nil {
			log.Error().Err(err).
				Str("signal_id", sig.SignalID).
				Msg("Attestation failed")
		}
	}

	entry := audit.Entry{
		OperationType: audit.OpInsert,
		Schema:        "public",
		Table:         "signals",
		TargetID:      sig.SignalID,
		NewValue:      sig,
		AttestationID: attestationID,
		SourceType:    sourceType,
		PerformedBy:   "pipeline",
		Reason:        "signal generated",
		Metadata: map[string]any{
			"source":   string(sig.Source),
			"trace_id": sig.TraceID,
		},
	}
	if err := p.auditor.Record(ctx, entry); err != nil {
		log.Error().Err(err).
			Str("signal_id", sig.SignalID).
			Msg("Audit record failed")
	}
}

// park sends an event to the DLQ and returns the failed result
func (p *Pipeline) park(event domain.RawEvent, kind domain.Kind, ruleName, reason string) Result {
	if p.opts.EnableDLQ {
		p.dlq.Push(DLQEntry{
			EventID:   event.EventID,
			Source:    event.Source,
			Kind:      kind,
			RuleName:  ruleName,
			Reason:    reason,
			Event:     event,
			FirstSeen: p.now().UTC(),
		})
	}
	return Result{Err: errors.New(reason)}
}

func probabilitySource(event domain.RawEvent) string {
	switch {
	case event.Market != nil:
		return "market_implied"
	case event.Probability != domain.DefaultProbability:
		return "source_reported"
	default:
		return "default_prior"
	}
}

func eventHorizon(now, resolution time.Time) string {
	switch d := resolution.Sub(now); {
	case d <= 0:
		return "immediate"
	case d <= 30*24*time.Hour:
		return "short_term"
	case d <= 180*24*time.Hour:
		return "medium_term"
	default:
		return "long_term"
	}
}

func sentimentOf(d domain.Direction) float64 {
	switch d {
	case domain.DirectionNegative:
		return -0.6
	case domain.DirectionPositive:
		return 0.6
	default:
		return 0
	}
}

func locationNames(event domain.RawEvent) []string {
	out := make([]string, 0, len(event.InferredLocations))
	for _, loc := range event.InferredLocations {
		out = append(out, loc.Name)
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
