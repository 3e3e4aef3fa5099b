// Package enrich classifies raw events and extracts routing metadata:
// signal type, semantic polarity, geography, affected asset types, and
// keywords. Classification operates on title and description only; it
// never reads source metadata fields.
package enrich

import (
	"strings"

	"github.com/omen-systems/omen/internal/domain"
)

// typePatterns maps each signal type to the keyword patterns that vote
// for it. The highest hit count wins; zero hits means UNCLASSIFIED.
var typePatterns = map[domain.SignalType][]string{
	domain.SignalGeopoliticalConflict: {
		"war", "attack", "attacks", "military", "conflict", "invasion", "missile",
		"strike on", "houthi", "escalation", "hostilities", "blockade", "sanctions",
	},
	domain.SignalNaturalDisaster: {
		"hurricane", "earthquake", "typhoon", "flood", "flooding", "wildfire",
		"tsunami", "drought", "storm surge", "cyclone", "landslide", "eruption",
	},
	domain.SignalLaborDisruption: {
		"strike", "walkout", "union", "labor dispute", "work stoppage", "picket",
		"lockout", "collective bargaining",
	},
	domain.SignalSupplyChainDisruption: {
		"shipping disruption", "port closure", "supply chain", "container", "shortage",
		"backlog", "rerouting", "transit disruption", "canal", "freight", "vessel",
		"grounded", "congestion",
	},
	domain.SignalPolicyChange: {
		"regulation", "tariff", "ban", "policy", "legislation", "export control",
		"quota", "embargo", "ruling", "decree",
	},
	domain.SignalMarketMovement: {
		"rally", "selloff", "surge", "plunge", "volatility", "futures", "price spike",
		"crash", "correction", "all-time high",
	},
	domain.SignalInfrastructureIncident: {
		"outage", "pipeline", "grid", "refinery", "terminal", "derailment",
		"bridge collapse", "cyberattack", "ransomware", "explosion at",
	},
}

// typeOrder makes classification deterministic when hit counts tie
var typeOrder = []domain.SignalType{
	domain.SignalGeopoliticalConflict,
	domain.SignalNaturalDisaster,
	domain.SignalLaborDisruption,
	domain.SignalSupplyChainDisruption,
	domain.SignalPolicyChange,
	domain.SignalMarketMovement,
	domain.SignalInfrastructureIncident,
}

// typeCategory is the fixed mapping from signal type to category
var typeCategory = map[domain.SignalType]domain.Category{
	domain.SignalGeopoliticalConflict:   domain.CategoryGeopolitical,
	domain.SignalNaturalDisaster:        domain.CategoryClimate,
	domain.SignalLaborDisruption:        domain.CategoryEconomic,
	domain.SignalSupplyChainDisruption:  domain.CategoryInfrastructure,
	domain.SignalPolicyChange:           domain.CategoryRegulatory,
	domain.SignalMarketMovement:         domain.CategoryEconomic,
	domain.SignalInfrastructureIncident: domain.CategoryInfrastructure,
	domain.SignalUnclassified:           domain.CategoryOther,
}

// typeDomains is the fixed routing-domain lookup per signal type
var typeDomains = map[domain.SignalType][]string{
	domain.SignalGeopoliticalConflict:   {"logistics", "energy", "defense", "insurance"},
	domain.SignalNaturalDisaster:        {"logistics", "agriculture", "insurance", "energy"},
	domain.SignalLaborDisruption:        {"logistics", "manufacturing"},
	domain.SignalSupplyChainDisruption:  {"logistics", "manufacturing", "retail"},
	domain.SignalPolicyChange:           {"trade", "finance", "manufacturing"},
	domain.SignalMarketMovement:         {"finance", "commodities"},
	domain.SignalInfrastructureIncident: {"logistics", "energy", "utilities"},
}

// Classify assigns a signal type by counting pattern hits in the title and
// description. The highest count wins; ties resolve in typeOrder.
func Classify(title, description string) domain.SignalType {
	text := strings.ToLower(title + " " + description)

	best := domain.SignalUnclassified
	bestCount := 0
	for _, st := range typeOrder {
		count := 0
		for _, pattern := range typePatterns[st] {
			if strings.Contains(text, pattern) {
				count++
			}
		}
		if count > bestCount {
			best = st
			bestCount = count
		}
	}

	return best
}

// Categorize maps a signal type to its coarse category
func Categorize(st domain.SignalType) domain.Category {
	if cat, ok := typeCategory[st]; ok {
		return cat
	}
	return domain.CategoryOther
}

// Domains returns the routing domains for a signal type
func Domains(st domain.SignalType) []string {
	if d, ok := typeDomains[st]; ok {
		out := make([]string, len(d))
		copy(out, d)
		return out
	}
	return nil
}
