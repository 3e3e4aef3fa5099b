// Package validation implements the ordered rule chain that gates raw
// events before enrichment. Rules produce bounded scores; a REJECTED_RULE
// short-circuits the chain and routes the event to the dead-letter queue.
package validation

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/omen-systems/omen/internal/domain"
	"github.com/omen-systems/omen/internal/enrich"
)

// RulesetVersion is stamped on every validated signal
const RulesetVersion = "1.0.0"

// Rule is one link in the chain. Apply must be side-effect free and return
// a result with a score in [0,1].
type Rule interface {
	Name() string
	Version() string
	Apply(event domain.RawEvent, deps Deps) domain.ValidationResult
}

// Deps are the chain's hooks into the rest of the engine. Nil members make
// the rules that need them report SKIPPED.
type Deps struct {
	// Reliability returns the trust-weighted reliability of a source
	Reliability func(domain.Source) float64
	// CrossSourceCount reports how many other sources corroborate the event
	CrossSourceCount func(domain.RawEvent) int
	// ActiveSources reports how many distinct sources produced events recently
	ActiveSources func() int
	// IsDuplicate reports whether the event fingerprint was already seen
	IsDuplicate func(domain.RawEvent) bool
	Now         func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Rejection describes why the chain stopped. Results holds every verdict
// produced up to and including the rejecting rule.
type Rejection struct {
	RuleName string
	Reason   string
	Results  []domain.ValidationResult
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("validation rejected by %s: %s", r.RuleName, r.Reason)
}

// Chain applies rules in configuration order
type Chain struct {
	rules []Rule
	deps  Deps
}

// NewChain builds a chain over an explicit, ordered rule list
func NewChain(rules []Rule, deps Deps) *Chain {
	return &Chain{rules: rules, deps: deps}
}

// NewDefaultChain builds the standard twelve-rule chain
func NewDefaultChain(config Config, deps Deps) *Chain {
	return NewChain(DefaultRules(config), deps)
}

// Validate runs the chain over an event. On success the returned signal
// carries every rule verdict, the mean of PASSED scores, and an
// explanation chain. A rejection returns a non-nil *Rejection.
func (c *Chain) Validate(event domain.RawEvent) (domain.ValidatedSignal, *Rejection) {
	results := make([]domain.ValidationResult, 0, len(c.rules))
	chainStart := c.deps.now().UTC()

	for _, rule := range c.rules {
		res := c.applyRule(rule, event)
		results = append(results, res)

		if res.Status == domain.RuleRejected {
			log.Debug().
				Str("event_id", event.EventID).
				Str("rule", res.RuleName).
				Str("reason", res.Reason).
				Msg("Event rejected by validation rule")
			return domain.ValidatedSignal{}, &Rejection{
				RuleName: res.RuleName,
				Reason:   res.Reason,
				Results:  results,
			}
		}
	}

	signalType := enrich.Classify(event.Title, event.Description)
	signal := domain.ValidatedSignal{
		Event:             event,
		Category:          enrich.Categorize(signalType),
		ValidationResults: results,
		OverallScore:      meanPassedScore(results),
		LiquidityScore:    liquidityScore(event),
		RulesetVersion:    RulesetVersion,
	}
	signal.SignalStrength = signalStrength(event, signal.OverallScore)
	signal.ExplanationChain = explain(results, chainStart)

	return signal, nil
}

// applyRule shields the chain from a panicking rule: the panic becomes a
// REJECTED_RULE with an error reason, per the chain's failure semantics.
func (c *Chain) applyRule(rule Rule, event domain.RawEvent) (res domain.ValidationResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("rule", rule.Name()).
				Interface("panic", r).
				Msg("Validation rule panicked")
			res = domain.ValidationResult{
				RuleName:    rule.Name(),
				RuleVersion: rule.Version(),
				Status:      domain.RuleRejected,
				Score:       0,
				Reason:      fmt.Sprintf("rule error: %v", r),
			}
		}
	}()

	res = rule.Apply(event, c.deps)
	res.RuleName = rule.Name()
	res.RuleVersion = rule.Version()
	res.Score = clampScore(res.Score)
	return res
}

// meanPassedScore averages PASSED scores; SKIPPED verdicts do not count
func meanPassedScore(results []domain.ValidationResult) float64 {
	sum, n := 0.0, 0
	for _, r := range results {
		if r.Status == domain.RulePassed {
			sum += r.Score
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// liquidityScore normalizes market liquidity onto [0,1]
func liquidityScore(event domain.RawEvent) float64 {
	if event.Market == nil {
		return 0
	}
	return clampScore(event.Market.CurrentLiquidityUSD / 100000)
}

// signalStrength blends the validation score with how far the probability
// sits from the uninformative midpoint.
func signalStrength(event domain.RawEvent, overall float64) float64 {
	decisiveness := math.Abs(event.Probability-0.5) * 2
	return clampScore(0.6*overall + 0.4*decisiveness)
}

// explain renders rule verdicts as a linear reasoning chain. Parent links
// are indices; step 0 has parent -1.
func explain(results []domain.ValidationResult, at time.Time) []domain.ExplanationStep {
	steps := make([]domain.ExplanationStep, 0, len(results))
	for i, r := range results {
		contribution := 0.0
		if r.Status == domain.RulePassed {
			contribution = r.Score
		}
		reasoning := fmt.Sprintf("%s: %s", r.RuleName, r.Status)
		if r.Reason != "" {
			reasoning += " (" + r.Reason + ")"
		}
		steps = append(steps, domain.ExplanationStep{
			Step:         i,
			Parent:       i - 1,
			Reasoning:    reasoning,
			Contribution: contribution,
			Timestamp:    at,
		})
	}
	return steps
}

func clampScore(s float64) float64 {
	return math.Max(0, math.Min(1, s))
}
