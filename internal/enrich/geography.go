package enrich

import (
	"sort"
	"strings"

	"github.com/omen-systems/omen/internal/domain"
)

// chokepointTriggers maps canonical chokepoint names to the terms that
// identify them in free text or keyword lists.
var chokepointTriggers = map[string][]string{
	"Red Sea":           {"red sea", "bab el-mandeb", "bab al-mandab"},
	"Suez Canal":        {"suez", "suez canal"},
	"Strait of Hormuz":  {"hormuz", "strait of hormuz"},
	"Strait of Malacca": {"malacca", "strait of malacca"},
	"Panama Canal":      {"panama canal", "panama"},
	"Bosphorus":         {"bosphorus", "bosporus", "turkish straits"},
	"Strait of Taiwan":  {"taiwan strait", "strait of taiwan"},
	"Cape of Good Hope": {"cape of good hope"},
	"Gibraltar":         {"gibraltar"},
	"Danish Straits":    {"danish straits", "oresund"},
}

// regionTriggers maps region names to identifying terms
var regionTriggers = map[string][]string{
	"Middle East":    {"middle east", "persian gulf", "yemen", "iran", "iraq", "saudi", "israel", "red sea", "suez"},
	"East Asia":      {"china", "taiwan", "japan", "korea", "east asia"},
	"Southeast Asia": {"malacca", "singapore", "indonesia", "vietnam", "southeast asia"},
	"Europe":         {"europe", "eu ", "baltic", "mediterranean", "north sea", "bosphorus"},
	"North America":  {"united states", "u.s.", "usa", "canada", "mexico", "gulf of mexico", "panama"},
	"South America":  {"brazil", "argentina", "chile", "south america"},
	"Africa":         {"africa", "nigeria", "egypt", "cape of good hope"},
	"Black Sea":      {"black sea", "ukraine", "odesa", "odessa"},
}

// ExtractGeography scans the event's text, keywords, and inferred locations
// for known regions and chokepoints. Output lists are sorted and
// deduplicated so downstream fingerprints stay stable.
func ExtractGeography(e domain.RawEvent) domain.Geographic {
	var parts []string
	parts = append(parts, strings.ToLower(e.Title), strings.ToLower(e.Description))
	for _, kw := range e.Keywords {
		parts = append(parts, strings.ToLower(kw))
	}
	for _, loc := range e.InferredLocations {
		parts = append(parts, strings.ToLower(loc.Name))
	}
	text := strings.Join(parts, " | ")

	chokepoints := matchTriggers(text, chokepointTriggers)
	regions := matchTriggers(text, regionTriggers)

	return domain.Geographic{Regions: regions, Chokepoints: chokepoints}
}

func matchTriggers(text string, triggers map[string][]string) []string {
	seen := map[string]bool{}
	for name, terms := range triggers {
		for _, term := range terms {
			if strings.Contains(text, term) {
				seen[name] = true
				break
			}
		}
	}

	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
