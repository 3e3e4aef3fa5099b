package enrich

import (
	"regexp"
	"sort"
	"strings"
)

// assetTypePatterns maps asset type labels to identifying terms
var assetTypePatterns = map[string][]string{
	"energy":      {"oil", "crude", "gas", "lng", "diesel", "refinery", "opec"},
	"metals":      {"gold", "silver", "copper", "aluminum", "nickel", "lithium"},
	"agriculture": {"wheat", "corn", "soy", "grain", "fertilizer", "coffee", "cocoa"},
	"freight":     {"shipping", "container", "freight", "vessel", "tanker", "port"},
	"equities":    {"stocks", "equities", "index", "shares"},
	"fx":          {"currency", "dollar", "euro", "yuan", "exchange rate"},
	"crypto":      {"bitcoin", "ethereum", "crypto"},
}

// metadataCollisions are tokens that look like keywords but collide with
// signal metadata names; they are never extracted.
var metadataCollisions = map[string]bool{
	"resolution":  true,
	"probability": true,
	"confidence":  true,
	"status":      true,
	"source":      true,
}

var tokenPattern = regexp.MustCompile(`[a-z][a-z\-]{2,}`)

// stopWords are filtered out of extracted keywords and fingerprints
var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "with": true, "from": true, "due": true, "this": true,
	"that": true, "was": true, "will": true, "has": true, "have": true,
	"its": true, "new": true, "into": true, "over": true, "after": true,
	"amid": true, "could": true, "may": true, "more": true, "than": true,
}

// IsStopWord reports whether a lowercased token is a stop word
func IsStopWord(token string) bool { return stopWords[token] }

// ExtractAssetTypes returns the asset type labels mentioned in the text,
// sorted for determinism.
func ExtractAssetTypes(title, description string) []string {
	text := strings.ToLower(title + " " + description)

	var out []string
	for label, terms := range assetTypePatterns {
		for _, term := range terms {
			if strings.Contains(text, term) {
				out = append(out, label)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// ExtractKeywords tokenizes the text into lowercase keywords, dropping
// stop words and metadata-colliding tokens, capped at limit.
func ExtractKeywords(title, description string, limit int) []string {
	text := strings.ToLower(title + " " + description)
	tokens := tokenPattern.FindAllString(text, -1)

	seen := map[string]bool{}
	var out []string
	for _, tok := range tokens {
		if stopWords[tok] || metadataCollisions[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}
