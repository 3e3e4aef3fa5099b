package correlation

import (
	"strings"

	"github.com/omen-systems/omen/internal/domain"
)

// assetMatrix is the fixed mapping from event category and type to the
// asset symbols historically correlated with that kind of event. Order
// matters: the first symbol is the strongest correlation.
var assetMatrix = map[string][]string{
	"geopolitical:war":             {"XAU", "XAG", "CL", "DX", "VIX", "defense_stocks"},
	"geopolitical:sanctions":       {"CL", "NG", "XAU", "DX"},
	"geopolitical:blockade":        {"BDI", "CL", "container_rates", "XAU"},
	"climate:hurricane":            {"NG", "CL", "insurance_stocks", "lumber"},
	"climate:drought":              {"ZW", "ZC", "ZS", "water_rights"},
	"climate:flood":                {"ZW", "insurance_stocks", "BDI"},
	"infrastructure:port_closure":  {"BDI", "container_rates", "retail_stocks"},
	"infrastructure:outage":        {"NG", "utilities_stocks", "VIX"},
	"economic:labor":               {"BDI", "container_rates", "retail_stocks", "automakers"},
	"economic:market":              {"VIX", "DX", "XAU"},
	"regulatory:tariff":            {"DX", "EM_FX", "semiconductor_stocks", "agri_futures"},
	"regulatory:export_control":    {"semiconductor_stocks", "rare_earths", "DX"},
}

// categoryKey maps signal classification onto a matrix key
func categoryKey(cat domain.Category, st domain.SignalType) string {
	base := strings.ToLower(string(cat))

	var kind string
	switch st {
	case domain.SignalGeopoliticalConflict:
		kind = "war"
	case domain.SignalNaturalDisaster:
		kind = "hurricane"
	case domain.SignalLaborDisruption:
		kind = "labor"
	case domain.SignalSupplyChainDisruption:
		kind = "port_closure"
	case domain.SignalPolicyChange:
		kind = "tariff"
	case domain.SignalMarketMovement:
		kind = "market"
	case domain.SignalInfrastructureIncident:
		kind = "outage"
	default:
		kind = "market"
	}

	return base + ":" + kind
}

// SuggestedAssets returns the correlated asset symbols for a signal's
// category and type, strongest first. Nil when the matrix has no row.
func SuggestedAssets(cat domain.Category, st domain.SignalType) []string {
	symbols, ok := assetMatrix[categoryKey(cat, st)]
	if !ok {
		return nil
	}
	out := make([]string, len(symbols))
	copy(out, symbols)
	return out
}

// CorrelationStrength assigns each position in a suggestion list a strength
// in [0.5, 1.0]: the first asset is 1.0, the last 0.5, linear in between.
func CorrelationStrength(index, total int) float64 {
	if total <= 1 {
		return 1.0
	}
	return 1.0 - 0.5*float64(index)/float64(total-1)
}
