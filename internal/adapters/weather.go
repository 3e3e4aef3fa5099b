package adapters

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/omen-systems/omen/internal/config"
	"github.com/omen-systems/omen/internal/domain"
)

type weatherAlert struct {
	ID       string   `json:"id"`
	Event    string   `json:"event"`
	Headline string   `json:"headline"`
	Severity string   `json:"severity"`
	Areas    []string `json:"areas"`
	Onset    string   `json:"onset"`
}

type weatherResponse struct {
	Alerts []weatherAlert `json:"alerts"`
}

// WeatherAlertsAdapter polls a severe-weather alert feed
type WeatherAlertsAdapter struct {
	cfg   config.SourceConfig
	http  *http.Client
	guard *guard
}

func NewWeatherAlertsAdapter(cfg config.SourceConfig) *WeatherAlertsAdapter {
	return &WeatherAlertsAdapter{
		cfg:   cfg,
		http:  newHTTPClient(0),
		guard: newGuard(domain.SourceWeatherAlerts, 30),
	}
}

func (a *WeatherAlertsAdapter) Source() domain.Source { return domain.SourceWeatherAlerts }
func (a *WeatherAlertsAdapter) IsConfigured() bool    { return a.cfg.HasCredentials() }

func (a *WeatherAlertsAdapter) FetchEvents(ctx context.Context, limit int) ([]domain.RawEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	var resp weatherResponse
	url := fmt.Sprintf("%s/alerts/active?severity=severe,extreme&limit=%d", strings.TrimRight(a.cfg.BaseURL, "/"), limit)
	err := a.guard.call(ctx, func() error {
		return fetchJSON(ctx, a.http, url, a.cfg.APIKey, &resp)
	})
	if err != nil {
		return nil, domain.E(domain.KindAdapter, err)
	}

	now := time.Now().UTC()
	events := make([]domain.RawEvent, 0, len(resp.Alerts))
	for _, al := range resp.Alerts {
		observed := now
		if onset, err := time.Parse(time.RFC3339, al.Onset); err == nil {
			observed = onset.UTC()
		}
		ev := domain.NewRawEvent("wx-"+al.ID, domain.SourceWeatherAlerts, al.Headline, observed)
		ev.Description = al.Event
		ev.Keywords = []string{"weather", strings.ToLower(al.Severity), strings.ToLower(al.Event)}
		for _, area := range al.Areas {
			ev.InferredLocations = append(ev.InferredLocations, domain.Location{Name: area})
		}
		// severity maps onto an occurrence prior: extreme alerts are
		// near-certain disruptions, severe ones likely
		switch strings.ToLower(al.Severity) {
		case "extreme":
			ev.Probability = 0.9
		case "severe":
			ev.Probability = 0.7
		}
		events = append(events, ev)
	}
	return events, nil
}

func (a *WeatherAlertsAdapter) HealthCheck(ctx context.Context) Health {
	start := time.Now()
	var probe weatherResponse
	url := strings.TrimRight(a.cfg.BaseURL, "/") + "/alerts/active?limit=1"
	err := fetchJSON(ctx, a.http, url, a.cfg.APIKey, &probe)

	h := a.guard.healthOf()
	h.LatencyMS = float64(time.Since(start).Milliseconds())
	if err != nil {
		h.Status = Unhealthy
		h.Error = err.Error()
	}
	return h
}
