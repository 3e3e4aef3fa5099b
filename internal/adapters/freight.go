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

type freightIndex struct {
	Code      string  `json:"code"`
	Name      string  `json:"name"`
	Route     string  `json:"route"`
	Value     float64 `json:"value"`
	ChangePct float64 `json:"change_pct"`
	AsOf      string  `json:"as_of"`
}

type freightResponse struct {
	Indices []freightIndex `json:"indices"`
}

// moveThreshold is the daily change below which an index reading is not
// worth surfacing as an event
const freightMoveThresholdPct = 2.0

// FreightIndicesAdapter polls container and dry-bulk freight rate indices
// and emits events for meaningful daily moves.
type FreightIndicesAdapter struct {
	cfg   config.SourceConfig
	http  *http.Client
	guard *guard
}

func NewFreightIndicesAdapter(cfg config.SourceConfig) *FreightIndicesAdapter {
	return &FreightIndicesAdapter{
		cfg:   cfg,
		http:  newHTTPClient(0),
		guard: newGuard(domain.SourceFreightIndices, 12),
	}
}

func (a *FreightIndicesAdapter) Source() domain.Source { return domain.SourceFreightIndices }
func (a *FreightIndicesAdapter) IsConfigured() bool    { return a.cfg.HasCredentials() }

func (a *FreightIndicesAdapter) FetchEvents(ctx context.Context, limit int) ([]domain.RawEvent, error) {
	var resp freightResponse
	url := strings.TrimRight(a.cfg.BaseURL, "/") + "/indices/latest"
	err := a.guard.call(ctx, func() error {
		return fetchJSON(ctx, a.http, url, a.cfg.APIKey, &resp)
	})
	if err != nil {
		return nil, domain.E(domain.KindAdapter, err)
	}

	now := time.Now().UTC()
	events := make([]domain.RawEvent, 0, len(resp.Indices))
	for _, idx := range resp.Indices {
		if abs(idx.ChangePct) < freightMoveThresholdPct {
			continue
		}
		if limit > 0 && len(events) >= limit {
			break
		}
		observed := now
		if ts, err := time.Parse(time.RFC3339, idx.AsOf); err == nil {
			observed = ts.UTC()
		}

		direction := "up"
		if idx.ChangePct < 0 {
			direction = "down"
		}
		title := fmt.Sprintf("%s %s %.1f%% to %.0f", idx.Name, direction, abs(idx.ChangePct), idx.Value)

		ev := domain.NewRawEvent(fmt.Sprintf("freight-%s-%s", idx.Code, observed.Format("2006-01-02")),
			domain.SourceFreightIndices, title, observed)
		ev.Description = fmt.Sprintf("Index %s (%s) moved %.2f%% on route %s", idx.Code, idx.Name, idx.ChangePct, idx.Route)
		ev.Keywords = []string{"freight", "shipping", strings.ToLower(idx.Code)}
		ev.SourceMetrics = map[string]float64{"index_value": idx.Value, "change_pct": idx.ChangePct}
		events = append(events, ev)
	}
	return events, nil
}

func (a *FreightIndicesAdapter) HealthCheck(ctx context.Context) Health {
	start := time.Now()
	var probe freightResponse
	url := strings.TrimRight(a.cfg.BaseURL, "/") + "/indices/latest"
	err := fetchJSON(ctx, a.http, url, a.cfg.APIKey, &probe)

	h := a.guard.healthOf()
	h.LatencyMS = float64(time.Since(start).Milliseconds())
	if err != nil {
		h.Status = Unhealthy
		h.Error = err.Error()
	}
	return h
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
