package adapters

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/omen-systems/omen/internal/config"
	"github.com/omen-systems/omen/internal/domain"
)

// predictionMarket is the provider's market listing shape
type predictionMarket struct {
	ID             string   `json:"id"`
	Question       string   `json:"question"`
	Description    string   `json:"description"`
	Outcomes       []string `json:"outcomes"`
	LastTradePrice float64  `json:"last_trade_price"`
	Liquidity      float64  `json:"liquidity"`
	Volume         float64  `json:"volume"`
	EndDate        string   `json:"end_date"`
	URL            string   `json:"url"`
	Tags           []string `json:"tags"`
}

// PredictionMarketsAdapter polls a prediction-market provider. The last
// trade price of the YES outcome is taken as the event probability.
type PredictionMarketsAdapter struct {
	cfg   config.SourceConfig
	http  *http.Client
	guard *guard
}

// NewPredictionMarketsAdapter builds the adapter
func NewPredictionMarketsAdapter(cfg config.SourceConfig) *PredictionMarketsAdapter {
	return &PredictionMarketsAdapter{
		cfg:   cfg,
		http:  newHTTPClient(0),
		guard: newGuard(domain.SourcePredictionMarkets, 60),
	}
}

func (a *PredictionMarketsAdapter) Source() domain.Source { return domain.SourcePredictionMarkets }
func (a *PredictionMarketsAdapter) IsConfigured() bool    { return a.cfg.HasCredentials() }

// FetchEvents pulls the current market list and converts it to raw events
func (a *PredictionMarketsAdapter) FetchEvents(ctx context.Context, limit int) ([]domain.RawEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	var markets []predictionMarket
	url := fmt.Sprintf("%s/markets?active=true&limit=%d", strings.TrimRight(a.cfg.BaseURL, "/"), limit)
	err := a.guard.call(ctx, func() error {
		return fetchJSON(ctx, a.http, url, a.cfg.APIKey, &markets)
	})
	if err != nil {
		return nil, domain.E(domain.KindAdapter, err)
	}

	now := time.Now().UTC()
	events := make([]domain.RawEvent, 0, len(markets))
	for _, m := range markets {
		ev := domain.NewRawEvent(m.ID, domain.SourcePredictionMarkets, m.Question, now)
		ev.Description = m.Description
		ev.Keywords = normalizeTags(m.Tags)
		if m.LastTradePrice > 0 && m.LastTradePrice <= 1 {
			ev.Probability = m.LastTradePrice
		}
		ev.Market = &domain.Market{
			ID:                  m.ID,
			URL:                 m.URL,
			CurrentLiquidityUSD: m.Liquidity,
			TotalVolumeUSD:      m.Volume,
		}
		if end, err := time.Parse(time.RFC3339, m.EndDate); err == nil {
			end = end.UTC()
			ev.Market.ResolutionDate = &end
		}
		events = append(events, ev)
	}

	log.Debug().Int("markets", len(events)).Msg("Prediction markets fetched")
	return events, nil
}

// HealthCheck probes the market endpoint with a minimal query
func (a *PredictionMarketsAdapter) HealthCheck(ctx context.Context) Health {
	start := time.Now()
	var probe []predictionMarket
	url := strings.TrimRight(a.cfg.BaseURL, "/") + "/markets?limit=1"
	err := fetchJSON(ctx, a.http, url, a.cfg.APIKey, &probe)

	h := a.guard.healthOf()
	h.LatencyMS = float64(time.Since(start).Milliseconds())
	if err != nil {
		h.Status = Unhealthy
		h.Error = err.Error()
	}
	return h
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
