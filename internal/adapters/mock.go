package adapters

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/omen-systems/omen/internal/domain"
)

// mockTemplate seeds one synthetic event family per source
type mockTemplate struct {
	title       string
	description string
	keywords    []string
	location    *domain.Location
	probability float64
	liquidity   float64
	volume      float64
}

var mockTemplates = map[domain.Source]mockTemplate{
	domain.SourcePredictionMarkets: {
		title:       "Will the Suez Canal face a closure lasting over 48 hours this quarter?",
		description: "Market tracking operational disruptions of the Suez Canal with resolution at quarter end.",
		keywords:    []string{"suez", "canal", "shipping", "blockage"},
		location:    &domain.Location{Name: "Suez Canal", Lat: 30.45, Lon: 32.35},
		probability: 0.18,
		liquidity:   75000,
		volume:      420000,
	},
	domain.SourceVesselTracking: {
		title:       "Vessel Ever Given transiting Strait of Hormuz",
		description: "Container vessel reported in high-traffic chokepoint corridor.",
		keywords:    []string{"shipping", "vessel", "hormuz"},
		location:    &domain.Location{Name: "Strait of Hormuz", Lat: 26.57, Lon: 56.25},
		probability: 0.5,
	},
	domain.SourceWeatherAlerts: {
		title:       "Hurricane warning for Gulf Coast refining corridor",
		description: "Category 3 system projected to make landfall within 72 hours.",
		keywords:    []string{"weather", "hurricane", "gulf"},
		location:    &domain.Location{Name: "Gulf of Mexico", Lat: 25.0, Lon: -90.0},
		probability: 0.8,
	},
	domain.SourceNews: {
		title:       "Drone strikes reported near Red Sea shipping lanes",
		description: "Multiple outlets report attacks on commercial vessels in the Bab el-Mandeb approach.",
		keywords:    []string{"red sea", "attack", "shipping", "escalation"},
		location:    &domain.Location{Name: "Bab el-Mandeb", Lat: 12.58, Lon: 43.33},
		probability: 0.6,
	},
	domain.SourceFreightIndices: {
		title:       "Shanghai Containerized Freight Index up 6.2% week over week",
		description: "Container spot rates climbing on rerouting around the Cape of Good Hope.",
		keywords:    []string{"freight", "scfi", "container"},
		probability: 0.5,
	},
	domain.SourceEquities: {
		title:       "Maersk shares surged 5.4% on rerouting surcharges",
		description: "Shipping equities rallying as spot rates reprice longer voyages.",
		keywords:    []string{"equities", "maersk", "shipping"},
		probability: 0.5,
	},
	domain.SourceCommodities: {
		title:       "Brent crude jumped 4.1% on supply disruption fears",
		description: "Energy futures repricing Middle East transit risk premium.",
		keywords:    []string{"commodity", "oil", "brent"},
		probability: 0.55,
	},
}

// MockAdapter emits deterministic synthetic events for one source. Used
// when a source is enabled without real credentials and by the on-demand
// generate path in development.
type MockAdapter struct {
	source domain.Source
	now    func() time.Time
}

func NewMockAdapter(source domain.Source) *MockAdapter {
	return &MockAdapter{source: source, now: time.Now}
}

func (m *MockAdapter) Source() domain.Source { return m.source }
func (m *MockAdapter) IsConfigured() bool    { return true }

// FetchEvents produces limit synthetic events, each with a distinct
// deterministic event id for the current hour bucket.
func (m *MockAdapter) FetchEvents(_ context.Context, limit int) ([]domain.RawEvent, error) {
	if limit <= 0 {
		limit = 1
	}
	tpl, ok := mockTemplates[m.source]
	if !ok {
		return nil, domain.Ef(domain.KindConfiguration, "no mock template for source %s", m.source)
	}

	now := m.now().UTC()
	bucket := now.Format("2006-01-02T15")
	events := make([]domain.RawEvent, 0, limit)
	for i := 0; i < limit; i++ {
		id := fmt.Sprintf("mock-%s-%s-%d", m.source, bucket, i)
		ev := domain.NewRawEvent(id, m.source, tpl.title, now)
		ev.Description = tpl.description
		ev.Keywords = tpl.keywords
		ev.Probability = jitter(tpl.probability, id)
		if tpl.location != nil {
			ev.InferredLocations = []domain.Location{*tpl.location}
		}
		if tpl.liquidity > 0 {
			ev.Market = &domain.Market{
				ID:                  id,
				CurrentLiquidityUSD: tpl.liquidity,
				TotalVolumeUSD:      tpl.volume,
			}
		}
		if m.source == domain.SourceNews {
			ev.SourceMetrics = map[string]float64{"credibility": 0.85}
		}
		events = append(events, ev)
	}
	return events, nil
}

// LatestQuote serves asset-correlation lookups with a deterministic
// synthetic quote per symbol, so the adjustment path runs end to end in
// mock mode.
func (m *MockAdapter) LatestQuote(_ context.Context, symbol string) (float64, float64, error) {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	change := float64(h.Sum32()%500)/100.0 - 2.5
	return 100 + change, change, nil
}

func (m *MockAdapter) HealthCheck(_ context.Context) Health {
	return Health{Status: Healthy, Metadata: map[string]any{"mode": "mock"}}
}

// jitter nudges the template probability deterministically per event id so
// batches are not all identical, staying within [0.05, 0.95].
func jitter(p float64, id string) float64 {
	h := fnv.New32a()
	h.Write([]byte(id))
	delta := (float64(h.Sum32()%100)/100.0 - 0.5) * 0.1
	v := p + delta
	if v < 0.05 {
		v = 0.05
	}
	if v > 0.95 {
		v = 0.95
	}
	return v
}
