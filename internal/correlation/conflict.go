package correlation

import (
	"sort"
	"strings"

	"github.com/omen-systems/omen/internal/confidence"
)

// ConflictType names the dimension on which sources disagree
type ConflictType string

const (
	ConflictProbability ConflictType = "probability"
	ConflictSentiment   ConflictType = "sentiment"
	ConflictGeographic  ConflictType = "geographic"
)

// Conflict is one detected disagreement within a candidate group
type Conflict struct {
	Type     ConflictType                `json:"type"`
	Severity confidence.ConflictSeverity `json:"severity"`
	Detail   string                      `json:"detail,omitempty"`
}

// sentiment thresholds for the polarity conflict check
const (
	sentimentPositive = 0.30
	sentimentNegative = -0.30
)

// DetectConflicts groups candidates by similarity key (top keywords plus
// locations) and evaluates probability, sentiment, and geographic conflicts
// per group.
func DetectConflicts(candidates []CacheEntry) []Conflict {
	groups := map[string][]CacheEntry{}
	for _, c := range candidates {
		groups[similarityKey(c)] = append(groups[similarityKey(c)], c)
	}

	var conflicts []Conflict
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		if c, ok := probabilityConflict(group); ok {
			conflicts = append(conflicts, c)
		}
		if c, ok := sentimentConflict(group); ok {
			conflicts = append(conflicts, c)
		}
		if c, ok := geographicConflict(group); ok {
			conflicts = append(conflicts, c)
		}
	}
	return conflicts
}

// MaxSeverity returns the worst severity among conflicts, or none
func MaxSeverity(conflicts []Conflict) confidence.ConflictSeverity {
	rank := map[confidence.ConflictSeverity]int{
		confidence.ConflictNone:   0,
		confidence.ConflictLow:    1,
		confidence.ConflictMedium: 2,
		confidence.ConflictHigh:   3,
	}

	worst := confidence.ConflictNone
	for _, c := range conflicts {
		if rank[c.Severity] > rank[worst] {
			worst = c.Severity
		}
	}
	return worst
}

func probabilityConflict(group []CacheEntry) (Conflict, bool) {
	minP, maxP := group[0].Probability, group[0].Probability
	for _, c := range group[1:] {
		if c.Probability < minP {
			minP = c.Probability
		}
		if c.Probability > maxP {
			maxP = c.Probability
		}
	}

	diff := maxP - minP
	var severity confidence.ConflictSeverity
	switch {
	case diff >= 0.30:
		severity = confidence.ConflictHigh
	case diff >= 0.20:
		severity = confidence.ConflictMedium
	case diff >= 0.10:
		severity = confidence.ConflictLow
	default:
		return Conflict{}, false
	}

	return Conflict{
		Type:     ConflictProbability,
		Severity: severity,
		Detail:   "probability spread across sources",
	}, true
}

func sentimentConflict(group []CacheEntry) (Conflict, bool) {
	hasPositive, hasNegative := false, false
	for _, c := range group {
		if c.Sentiment > sentimentPositive {
			hasPositive = true
		}
		if c.Sentiment < sentimentNegative {
			hasNegative = true
		}
	}

	if hasPositive && hasNegative {
		return Conflict{
			Type:     ConflictSentiment,
			Severity: confidence.ConflictMedium,
			Detail:   "opposing sentiment across sources",
		}, true
	}
	return Conflict{}, false
}

func geographicConflict(group []CacheEntry) (Conflict, bool) {
	// Count how many distinct locations are mentioned by exactly one source
	mentions := map[string]int{}
	for _, c := range group {
		seen := map[string]bool{}
		for _, loc := range c.Locations {
			l := strings.ToLower(loc)
			if !seen[l] {
				mentions[l]++
				seen[l] = true
			}
		}
	}

	if len(mentions) == 0 {
		return Conflict{}, false
	}

	unique := 0
	for _, count := range mentions {
		if count == 1 {
			unique++
		}
	}

	if float64(unique) > float64(len(mentions))/2 {
		return Conflict{
			Type:     ConflictGeographic,
			Severity: confidence.ConflictLow,
			Detail:   "majority of locations reported by a single source",
		}, true
	}
	return Conflict{}, false
}

func similarityKey(c CacheEntry) string {
	kws := append([]string(nil), c.Keywords...)
	sort.Strings(kws)
	if len(kws) > 3 {
		kws = kws[:3]
	}

	locs := make([]string, 0, len(c.Locations))
	for _, l := range c.Locations {
		locs = append(locs, strings.ToLower(l))
	}
	sort.Strings(locs)

	return strings.Join(kws, ",") + ";" + strings.Join(locs, ",")
}
