package adapters

import (
	"github.com/rs/zerolog/log"

	"github.com/omen-systems/omen/internal/config"
	"github.com/omen-systems/omen/internal/domain"
	"github.com/omen-systems/omen/internal/registry"
)

// Build constructs the adapter set from configuration and the source
// registry: REAL sources get their provider adapter, MOCK sources get the
// synthetic generator, DISABLED sources are omitted.
func Build(cfg config.Config, reg *registry.Registry) map[domain.Source]Adapter {
	out := make(map[domain.Source]Adapter)

	for _, src := range domain.AllSources {
		switch reg.Classify(src) {
		case registry.SourceDisabled:
			continue
		case registry.SourceMock:
			out[src] = NewMockAdapter(src)
		case registry.SourceReal:
			out[src] = real(src, cfg.Sources[src])
		}
		log.Debug().
			Str("source", string(src)).
			Str("type", string(reg.Classify(src))).
			Msg("Adapter built")
	}
	return out
}

func real(src domain.Source, sc config.SourceConfig) Adapter {
	switch src {
	case domain.SourcePredictionMarkets:
		return NewPredictionMarketsAdapter(sc)
	case domain.SourceVesselTracking:
		return NewVesselTrackingAdapter(sc)
	case domain.SourceWeatherAlerts:
		return NewWeatherAlertsAdapter(sc)
	case domain.SourceNews:
		return NewNewsAdapter(sc)
	case domain.SourceFreightIndices:
		return NewFreightIndicesAdapter(sc)
	case domain.SourceEquities:
		return NewEquitiesAdapter(sc)
	case domain.SourceCommodities:
		return NewCommoditiesAdapter(sc)
	default:
		return NewMockAdapter(src)
	}
}
