package domain

import (
	"time"
)

// Source identifies a configured ingestion source
type Source string

const (
	SourcePredictionMarkets Source = "prediction_markets"
	SourceVesselTracking    Source = "vessel_tracking"
	SourceWeatherAlerts     Source = "weather_alerts"
	SourceNews              Source = "news"
	SourceFreightIndices    Source = "freight_indices"
	SourceEquities          Source = "equities"
	SourceCommodities       Source = "commodities"
)

// AllSources lists every source the engine knows about, in registry order
var AllSources = []Source{
	SourcePredictionMarkets,
	SourceVesselTracking,
	SourceWeatherAlerts,
	SourceNews,
	SourceFreightIndices,
	SourceEquities,
	SourceCommodities,
}

// Location is a named geographic point attached to an event
type Location struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// Market carries source metadata for prediction-market events
type Market struct {
	ID                  string     `json:"id"`
	URL                 string     `json:"url,omitempty"`
	CurrentLiquidityUSD float64    `json:"current_liquidity_usd"`
	TotalVolumeUSD      float64    `json:"total_volume_usd"`
	CreatedAt           *time.Time `json:"created_at,omitempty"`
	ResolutionDate      *time.Time `json:"resolution_date,omitempty"`
}

// RawEvent is the source-neutral ingestion record. It is immutable once
// constructed; adapters hand it to the pipeline by value.
type RawEvent struct {
	EventID           string             `json:"event_id"`
	Source            Source             `json:"source"`
	SourceMetrics     map[string]float64 `json:"source_metrics,omitempty"`
	Title             string             `json:"title"`
	Description       string             `json:"description,omitempty"`
	Probability       float64            `json:"probability"`
	Keywords          []string           `json:"keywords,omitempty"`
	InferredLocations []Location         `json:"inferred_locations,omitempty"`
	Market            *Market            `json:"market,omitempty"`
	ObservedAt        time.Time          `json:"observed_at"`
}

// DefaultProbability is used when a source does not report one
const DefaultProbability = 0.5

// NewRawEvent builds a RawEvent with the probability fallback applied and
// the observation instant normalized to UTC.
func NewRawEvent(eventID string, source Source, title string, observedAt time.Time) RawEvent {
	return RawEvent{
		EventID:     eventID,
		Source:      source,
		Title:       title,
		Probability: DefaultProbability,
		ObservedAt:  observedAt.UTC(),
	}
}

// Completeness counts the optional fields that carry information, returning
// a ratio in [0,1]. An explicit zero value counts as present only for
// Probability (0 is meaningful there); empty slices and nil pointers count
// as missing.
func (e RawEvent) Completeness() float64 {
	present := 0
	const total = 6

	if e.Description != "" {
		present++
	}
	if len(e.Keywords) > 0 {
		present++
	}
	if len(e.InferredLocations) > 0 {
		present++
	}
	if e.Market != nil {
		present++
	}
	if len(e.SourceMetrics) > 0 {
		present++
	}
	if !e.ObservedAt.IsZero() {
		present++
	}

	return float64(present) / float64(total)
}
