package enrich

import (
	"strings"

	"github.com/omen-systems/omen/internal/domain"
)

// alwaysNegative lists signal types that are negative by definition,
// regardless of keyword sentiment.
var alwaysNegative = map[domain.SignalType]bool{
	domain.SignalGeopoliticalConflict:  true,
	domain.SignalNaturalDisaster:       true,
	domain.SignalLaborDisruption:       true,
	domain.SignalSupplyChainDisruption: true,
}

var negativeTerms = []string{
	"disruption", "closure", "delay", "shortage", "attack", "damage", "halt",
	"suspend", "collapse", "crisis", "decline", "loss", "failure", "escalat",
	"blockade", "sanction", "strike", "conflict", "outage",
}

var positiveTerms = []string{
	"resume", "reopen", "recovery", "agreement", "resolution", "restore",
	"growth", "surplus", "expansion", "improve", "stabilize", "ceasefire",
	"deal reached", "normalize",
}

// Polarity derives the semantic direction of a signal. Certain signal
// types are always negative; otherwise keyword hits decide.
func Polarity(st domain.SignalType, title, description string) domain.Direction {
	if alwaysNegative[st] {
		return domain.DirectionNegative
	}

	text := strings.ToLower(title + " " + description)

	neg, pos := 0, 0
	for _, term := range negativeTerms {
		if strings.Contains(text, term) {
			neg++
		}
	}
	for _, term := range positiveTerms {
		if strings.Contains(text, term) {
			pos++
		}
	}

	switch {
	case neg == 0 && pos == 0:
		return domain.DirectionUnknown
	case neg > pos:
		return domain.DirectionNegative
	case pos > neg:
		return domain.DirectionPositive
	default:
		return domain.DirectionNeutral
	}
}
