package domain

import (
	"time"
)

// Category buckets a validated event by subject matter
type Category string

const (
	CategoryGeopolitical   Category = "GEOPOLITICAL"
	CategoryInfrastructure Category = "INFRASTRUCTURE"
	CategoryClimate        Category = "CLIMATE"
	CategoryEconomic       Category = "ECONOMIC"
	CategoryRegulatory     Category = "REGULATORY"
	CategoryOther          Category = "OTHER"
)

// SignalType is the fine-grained classification assigned by the enricher
type SignalType string

const (
	SignalGeopoliticalConflict   SignalType = "GEOPOLITICAL_CONFLICT"
	SignalNaturalDisaster        SignalType = "NATURAL_DISASTER"
	SignalLaborDisruption        SignalType = "LABOR_DISRUPTION"
	SignalSupplyChainDisruption  SignalType = "SUPPLY_CHAIN_DISRUPTION"
	SignalPolicyChange           SignalType = "POLICY_CHANGE"
	SignalMarketMovement         SignalType = "MARKET_MOVEMENT"
	SignalInfrastructureIncident SignalType = "INFRASTRUCTURE_INCIDENT"
	SignalUnclassified           SignalType = "UNCLASSIFIED"
)

// Status tracks a signal through its lifecycle
type Status string

const (
	StatusCandidate   Status = "CANDIDATE"
	StatusActive      Status = "ACTIVE"
	StatusMonitoring  Status = "MONITORING"
	StatusDegraded    Status = "DEGRADED"
	StatusResolved    Status = "RESOLVED"
	StatusInvalidated Status = "INVALIDATED"
)

// Direction is the semantic polarity of a signal, routing metadata only
type Direction string

const (
	DirectionNegative Direction = "negative"
	DirectionPositive Direction = "positive"
	DirectionNeutral  Direction = "neutral"
	DirectionUnknown  Direction = "unknown"
)

// ConfidenceLevel buckets the point estimate for coarse consumers
type ConfidenceLevel string

const (
	ConfidenceLow    ConfidenceLevel = "LOW"
	ConfidenceMedium ConfidenceLevel = "MEDIUM"
	ConfidenceHigh   ConfidenceLevel = "HIGH"
)

// ValidationStatus is the outcome of a single validation rule
type ValidationStatus string

const (
	RulePassed   ValidationStatus = "PASSED"
	RuleRejected ValidationStatus = "REJECTED_RULE"
	RuleSkipped  ValidationStatus = "SKIPPED"
)

// ValidationResult records one rule's verdict with a bounded score
type ValidationResult struct {
	RuleName    string           `json:"rule_name"`
	RuleVersion string           `json:"rule_version"`
	Status      ValidationStatus `json:"status"`
	Score       float64          `json:"score"`
	Reason      string           `json:"reason,omitempty"`
}

// ExplanationStep is one entry in a signal's audit-friendly reasoning chain.
// Parent links are indices into the chain, never pointers.
type ExplanationStep struct {
	Step         int       `json:"step"`
	Parent       int       `json:"parent"`
	Reasoning    string    `json:"reasoning"`
	Contribution float64   `json:"confidence_contribution"`
	Timestamp    time.Time `json:"timestamp"`
}

// ValidatedSignal is a RawEvent that survived the validation chain
type ValidatedSignal struct {
	Event              RawEvent           `json:"event"`
	Category           Category           `json:"category"`
	ValidationResults  []ValidationResult `json:"validation_results"`
	OverallScore       float64            `json:"overall_validation_score"`
	LiquidityScore     float64            `json:"liquidity_score"`
	SignalStrength     float64            `json:"signal_strength"`
	ExplanationChain   []ExplanationStep  `json:"explanation_chain,omitempty"`
	RulesetVersion     string             `json:"ruleset_version"`
}

// ConfidenceInterval is the calibrated uncertainty band around a point estimate
type ConfidenceInterval struct {
	Point  float64 `json:"point_estimate"`
	Lower  float64 `json:"lower_bound"`
	Upper  float64 `json:"upper_bound"`
	Level  float64 `json:"confidence_level"`
	Method string  `json:"method"`
}

// Geographic carries the regions and chokepoints a signal touches
type Geographic struct {
	Regions     []string `json:"regions,omitempty"`
	Chokepoints []string `json:"chokepoints,omitempty"`
}

// Temporal carries the event horizon and resolution date if known
type Temporal struct {
	EventHorizon   string     `json:"event_horizon,omitempty"`
	ResolutionDate *time.Time `json:"resolution_date,omitempty"`
}

// ImpactHints is routing metadata only. It never carries verdicts,
// severities, or recommendations.
type ImpactHints struct {
	Domains            []string  `json:"domains,omitempty"`
	Direction          Direction `json:"direction"`
	AffectedAssetTypes []string  `json:"affected_asset_types,omitempty"`
	Keywords           []string  `json:"keywords,omitempty"`
}

// OmenSignal is the public contract: the enriched, confidence-scored output
type OmenSignal struct {
	SignalID           string             `json:"signal_id"`
	SourceEventID      string             `json:"source_event_id"`
	TraceID            string             `json:"trace_id"`
	Source             Source             `json:"source"`
	Title              string             `json:"title"`
	Description        string             `json:"description,omitempty"`
	Probability        float64            `json:"probability"`
	ProbabilitySource  string             `json:"probability_source"`
	ConfidenceScore    float64            `json:"confidence_score"`
	ConfidenceInterval ConfidenceInterval `json:"confidence_interval"`
	ConfidenceLevel    ConfidenceLevel    `json:"confidence_level"`
	Category           Category           `json:"category"`
	SignalType         SignalType         `json:"signal_type"`
	Status             Status             `json:"status"`
	Geographic         Geographic         `json:"geographic"`
	Temporal           Temporal           `json:"temporal"`
	ImpactHints        ImpactHints        `json:"impact_hints"`
	Evidence           []string           `json:"evidence,omitempty"`
	RulesetVersion     string             `json:"ruleset_version"`
	GeneratedAt        time.Time          `json:"generated_at"`
	InputEventHash     string             `json:"input_event_hash"`
}

// SignalEvent is the ledger record: an OmenSignal plus ledger placement.
// It is immutable once written.
type SignalEvent struct {
	OmenSignal
	EmittedAt       time.Time `json:"emitted_at"`
	LedgerPartition string    `json:"ledger_partition,omitempty"`
	LedgerSequence  uint64    `json:"ledger_sequence,omitempty"`
	LedgerWrittenAt time.Time `json:"ledger_written_at,omitempty"`
}

// FromOmenSignal wraps a signal into its ledger record form. Ledger placement
// fields are filled in by the writer.
func FromOmenSignal(sig OmenSignal, emittedAt time.Time) SignalEvent {
	return SignalEvent{
		OmenSignal: sig,
		EmittedAt:  emittedAt.UTC(),
	}
}

// ForbiddenFields enumerates keys that must never appear in any emitted
// signal or API response. OMEN publishes neutral signals, not verdicts.
var ForbiddenFields = []string{
	"risk_status",
	"overall_risk",
	"risk_breakdown",
	"risk_level",
	"risk_score",
	"risk_verdict",
	"recommendation",
	"decision",
	"action_required",
	"alert_level",
	"severity",
	"urgency",
	"is_actionable",
	"delay_days",
	"risk_exposure",
	"action",
}

// BucketConfidence maps a point estimate to its coarse level
func BucketConfidence(point float64) ConfidenceLevel {
	switch {
	case point >= 0.7:
		return ConfidenceHigh
	case point >= 0.4:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}
