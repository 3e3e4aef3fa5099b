package validation

import (
	"fmt"
	"strings"
	"time"

	"github.com/omen-systems/omen/internal/domain"
	"github.com/omen-systems/omen/internal/enrich"
)

// Config holds the tunable thresholds of the default rule set
type Config struct {
	MinLiquidityUSD    float64       `yaml:"min_liquidity_usd"`
	MinVolumeUSD       float64       `yaml:"min_volume_usd"`
	MaxEventAge        time.Duration `yaml:"max_event_age"`
	NewsMaxAge         time.Duration `yaml:"news_max_age"`
	NewsMinCredibility float64       `yaml:"news_min_credibility"`
	NewsMinCombined    float64       `yaml:"news_min_combined"`
}

// DefaultConfig returns the production thresholds
func DefaultConfig() Config {
	return Config{
		MinLiquidityUSD:    1000,
		MinVolumeUSD:       100,
		MaxEventAge:        7 * 24 * time.Hour,
		NewsMaxAge:         48 * time.Hour,
		NewsMinCredibility: 0.4,
		NewsMinCombined:    0.35,
	}
}

// funcRule adapts a closure into a Rule
type funcRule struct {
	name    string
	version string
	apply   func(event domain.RawEvent, deps Deps) domain.ValidationResult
}

func (r funcRule) Name() string    { return r.name }
func (r funcRule) Version() string { return r.version }
func (r funcRule) Apply(event domain.RawEvent, deps Deps) domain.ValidationResult {
	return r.apply(event, deps)
}

func passed(score float64, reason string) domain.ValidationResult {
	return domain.ValidationResult{Status: domain.RulePassed, Score: score, Reason: reason}
}

func skipped(reason string) domain.ValidationResult {
	return domain.ValidationResult{Status: domain.RuleSkipped, Reason: reason}
}

func rejected(reason string) domain.ValidationResult {
	return domain.ValidationResult{Status: domain.RuleRejected, Reason: reason}
}

// DefaultRules returns the standard chain in its configuration order.
// Order matters: cheap structural gates run before the rules that consult
// other subsystems.
func DefaultRules(config Config) []Rule {
	return []Rule{
		liquidityRule(config),
		volumeRule(config),
		probabilityBoundsRule(),
		temporalRelevanceRule(config),
		geographicRelevanceRule(),
		keywordQualityRule(),
		marketIntegrityRule(),
		descriptionQualityRule(),
		crossSourceCorroborationRule(),
		sourceDiversityRule(),
		newsQualityGateRule(config),
		commodityContextRule(),
	}
}

// liquidityRule rejects markets with liquidity under the floor. Events
// without market data (non-market sources) skip.
func liquidityRule(config Config) Rule {
	return funcRule{
		name:    "liquidity_validation",
		version: "1.2.0",
		apply: func(event domain.RawEvent, _ Deps) domain.ValidationResult {
			if event.Market == nil {
				return skipped("no market data")
			}
			liq := event.Market.CurrentLiquidityUSD
			if liq < config.MinLiquidityUSD {
				return rejected(fmt.Sprintf("liquidity %.0f USD below minimum %.0f", liq, config.MinLiquidityUSD))
			}
			return passed(clampScore(liq/100000), "")
		},
	}
}

// volumeRule rejects markets with negligible traded volume
func volumeRule(config Config) Rule {
	return funcRule{
		name:    "volume_validation",
		version: "1.1.0",
		apply: func(event domain.RawEvent, _ Deps) domain.ValidationResult {
			if event.Market == nil {
				return skipped("no market data")
			}
			vol := event.Market.TotalVolumeUSD
			if vol < config.MinVolumeUSD {
				return rejected(fmt.Sprintf("volume %.0f USD below minimum %.0f", vol, config.MinVolumeUSD))
			}
			return passed(clampScore(vol/250000), "")
		},
	}
}

// probabilityBoundsRule rejects probabilities outside [0,1]. Near-certain
// values pass with a reduced score: they carry little signal.
func probabilityBoundsRule() Rule {
	return funcRule{
		name:    "probability_bounds",
		version: "1.0.0",
		apply: func(event domain.RawEvent, _ Deps) domain.ValidationResult {
			p := event.Probability
			if p < 0 || p > 1 {
				return rejected(fmt.Sprintf("probability %.3f outside [0,1]", p))
			}
			if p < 0.02 || p > 0.98 {
				return passed(0.5, "probability at extreme")
			}
			return passed(1.0, "")
		},
	}
}

// temporalRelevanceRule decays with event age and rejects past the horizon
func temporalRelevanceRule(config Config) Rule {
	return funcRule{
		name:    "temporal_relevance",
		version: "1.1.0",
		apply: func(event domain.RawEvent, deps Deps) domain.ValidationResult {
			if event.ObservedAt.IsZero() {
				return skipped("no observation time")
			}
			age := deps.now().Sub(event.ObservedAt)
			if age > config.MaxEventAge {
				return rejected(fmt.Sprintf("event age %s exceeds %s", age.Round(time.Hour), config.MaxEventAge))
			}
			if age < 0 {
				age = 0
			}
			return passed(1.0-0.5*(age.Hours()/config.MaxEventAge.Hours()), "")
		},
	}
}

// geographicRelevanceRule scores geography without rejecting: a chokepoint
// hit is the strongest evidence, a named location is next.
func geographicRelevanceRule() Rule {
	return funcRule{
		name:    "geographic_relevance",
		version: "1.0.0",
		apply: func(event domain.RawEvent, _ Deps) domain.ValidationResult {
			geo := enrich.ExtractGeography(event)
			switch {
			case len(geo.Chokepoints) > 0:
				return passed(1.0, "chokepoint referenced")
			case len(geo.Regions) > 0 || len(event.InferredLocations) > 0:
				return passed(0.7, "region referenced")
			default:
				return passed(0.4, "no geographic anchor")
			}
		},
	}
}

// keywordQualityRule scores the density of informative keywords
func keywordQualityRule() Rule {
	return funcRule{
		name:    "keyword_quality",
		version: "1.0.0",
		apply: func(event domain.RawEvent, _ Deps) domain.ValidationResult {
			if len(event.Keywords) == 0 {
				return passed(0.3, "no keywords supplied")
			}
			informative := 0
			for _, kw := range event.Keywords {
				if !enrich.IsStopWord(strings.ToLower(strings.TrimSpace(kw))) {
					informative++
				}
			}
			return passed(0.3+0.7*clampScore(float64(informative)/5), "")
		},
	}
}

// marketIntegrityRule rejects internally inconsistent market metadata
func marketIntegrityRule() Rule {
	return funcRule{
		name:    "market_integrity",
		version: "1.0.0",
		apply: func(event domain.RawEvent, _ Deps) domain.ValidationResult {
			m := event.Market
			if m == nil {
				return skipped("no market data")
			}
			if m.CurrentLiquidityUSD < 0 || m.TotalVolumeUSD < 0 {
				return rejected("negative market figures")
			}
			if m.CreatedAt != nil && m.ResolutionDate != nil && m.ResolutionDate.Before(*m.CreatedAt) {
				return rejected("resolution date precedes market creation")
			}
			if m.TotalVolumeUSD > 0 && m.CurrentLiquidityUSD == 0 {
				return passed(0.4, "volume without standing liquidity")
			}
			return passed(1.0, "")
		},
	}
}

// descriptionQualityRule scores descriptive depth; it never rejects
func descriptionQualityRule() Rule {
	return funcRule{
		name:    "description_quality",
		version: "1.0.0",
		apply: func(event domain.RawEvent, _ Deps) domain.ValidationResult {
			words := len(strings.Fields(event.Description))
			if words == 0 {
				return skipped("no description")
			}
			return passed(0.4+0.6*clampScore(float64(words)/40), "")
		},
	}
}

// crossSourceCorroborationRule rewards events seen from other sources
func crossSourceCorroborationRule() Rule {
	return funcRule{
		name:    "cross_source_corroboration",
		version: "1.1.0",
		apply: func(event domain.RawEvent, deps Deps) domain.ValidationResult {
			if deps.CrossSourceCount == nil {
				return skipped("correlator unavailable")
			}
			count := deps.CrossSourceCount(event)
			if count == 0 {
				return passed(0.5, "uncorroborated")
			}
			return passed(clampScore(0.5+0.25*float64(count)), fmt.Sprintf("%d corroborating sources", count))
		},
	}
}

// sourceDiversityRule scores how many distinct sources are currently live
func sourceDiversityRule() Rule {
	return funcRule{
		name:    "source_diversity",
		version: "1.0.0",
		apply: func(_ domain.RawEvent, deps Deps) domain.ValidationResult {
			if deps.ActiveSources == nil {
				return skipped("registry unavailable")
			}
			active := deps.ActiveSources()
			if active <= 1 {
				return passed(0.4, "single active source")
			}
			return passed(clampScore(0.4+0.15*float64(active-1)), fmt.Sprintf("%d active sources", active))
		},
	}
}

// newsQualityGateRule is fail-closed for news events: low credibility,
// staleness, duplication, or a low combined score each reject.
func newsQualityGateRule(config Config) Rule {
	return funcRule{
		name:    "news_quality_gate",
		version: "2.0.0",
		apply: func(event domain.RawEvent, deps Deps) domain.ValidationResult {
			if event.Source != domain.SourceNews {
				return skipped("not a news event")
			}

			credibility := 0.5
			if deps.Reliability != nil {
				credibility = deps.Reliability(event.Source)
			}
			if credibility < config.NewsMinCredibility {
				return rejected(fmt.Sprintf("source credibility %.2f below %.2f", credibility, config.NewsMinCredibility))
			}

			if event.ObservedAt.IsZero() {
				return rejected("news item has no observation time")
			}
			age := deps.now().Sub(event.ObservedAt)
			if age > config.NewsMaxAge {
				return rejected(fmt.Sprintf("news item stale: %s old", age.Round(time.Hour)))
			}

			if deps.IsDuplicate != nil && deps.IsDuplicate(event) {
				return rejected("duplicate news item")
			}

			freshness := 1.0 - clampScore(age.Hours()/config.NewsMaxAge.Hours())
			depth := clampScore(float64(len(strings.Fields(event.Description))) / 40)
			combined := 0.5*credibility + 0.3*freshness + 0.2*depth
			if combined < config.NewsMinCombined {
				return rejected(fmt.Sprintf("combined news score %.2f below %.2f", combined, config.NewsMinCombined))
			}
			return passed(combined, "")
		},
	}
}

// commodityContextRule adds context for commodity and freight events.
// Context-only: it never rejects.
func commodityContextRule() Rule {
	return funcRule{
		name:    "commodity_context",
		version: "1.0.0",
		apply: func(event domain.RawEvent, _ Deps) domain.ValidationResult {
			if event.Source != domain.SourceCommodities && event.Source != domain.SourceFreightIndices {
				return skipped("not a commodity or freight event")
			}
			if len(event.SourceMetrics) == 0 {
				return passed(0.5, "no source metrics")
			}
			return passed(clampScore(0.5+0.1*float64(len(event.SourceMetrics))), "")
		},
	}
}
