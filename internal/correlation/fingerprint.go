// Package correlation matches events across sources by fingerprint,
// detects conflicting reports, and maps events to correlated assets for
// confidence adjustment.
package correlation

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"

	"github.com/omen-systems/omen/internal/domain"
	"github.com/omen-systems/omen/internal/enrich"
)

// highValueVocab lists tokens that carry the most identity for an event.
// They are kept ahead of ordinary tokens when the title is truncated.
var highValueVocab = map[string]bool{
	"war": true, "attack": true, "strike": true, "hurricane": true,
	"earthquake": true, "blockade": true, "sanctions": true, "tariff": true,
	"closure": true, "outage": true, "shortage": true, "disruption": true,
	"suez": true, "hormuz": true, "malacca": true, "panama": true,
	"houthi": true, "drought": true, "flood": true, "embargo": true,
}

var punctuation = regexp.MustCompile(`[^a-z0-9\s]`)

const (
	maxTitleTokens = 5
	maxKeywords    = 5
	maxLocations   = 3
)

// Fingerprint derives a 16-hex-character identity for an event from its
// normalized title, keywords, locations, and UTC date bucket. Events that
// agree on all four components collide by construction.
func Fingerprint(e domain.RawEvent) string {
	title := normalizeTitle(e.Title)

	keywords := make([]string, 0, len(e.Keywords))
	for _, kw := range e.Keywords {
		keywords = append(keywords, strings.ToLower(strings.TrimSpace(kw)))
	}
	sort.Strings(keywords)
	if len(keywords) > maxKeywords {
		keywords = keywords[:maxKeywords]
	}

	locSet := map[string]bool{}
	for _, loc := range e.InferredLocations {
		locSet[strings.ToLower(strings.TrimSpace(loc.Name))] = true
	}
	locations := make([]string, 0, len(locSet))
	for name := range locSet {
		locations = append(locations, name)
	}
	sort.Strings(locations)
	if len(locations) > maxLocations {
		locations = locations[:maxLocations]
	}

	joined := strings.Join([]string{
		strings.Join(title, " "),
		strings.Join(keywords, " "),
		strings.Join(locations, " "),
		e.ObservedAt.UTC().Format("2006-01-02"),
	}, "|")

	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])[:16]
}

// normalizeTitle lowercases, strips punctuation, removes stop words, and
// keeps up to maxTitleTokens tokens with high-value vocabulary first,
// alphabetized within each tier.
func normalizeTitle(title string) []string {
	clean := punctuation.ReplaceAllString(strings.ToLower(title), " ")

	var high, rest []string
	seen := map[string]bool{}
	for _, tok := range strings.Fields(clean) {
		if enrich.IsStopWord(tok) || seen[tok] {
			continue
		}
		seen[tok] = true
		if highValueVocab[tok] {
			high = append(high, tok)
		} else {
			rest = append(rest, tok)
		}
	}

	sort.Strings(high)
	sort.Strings(rest)

	tokens := append(high, rest...)
	if len(tokens) > maxTitleTokens {
		tokens = tokens[:maxTitleTokens]
	}
	sort.Strings(tokens)
	return tokens
}

// Similarity computes Jaccard similarity over the character sets of two
// fingerprints, in [0,1].
func Similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}

	setA := map[rune]bool{}
	for _, r := range a {
		setA[r] = true
	}
	setB := map[rune]bool{}
	for _, r := range b {
		setB[r] = true
	}

	intersection := 0
	for r := range setA {
		if setB[r] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
