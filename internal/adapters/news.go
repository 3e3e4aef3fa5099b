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

type newsArticle struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Summary     string   `json:"summary"`
	SourceName  string   `json:"source_name"`
	Credibility float64  `json:"credibility"`
	PublishedAt string   `json:"published_at"`
	Topics      []string `json:"topics"`
}

type newsResponse struct {
	Articles []newsArticle `json:"articles"`
}

// NewsAdapter polls a curated geopolitical/market news feed. The provider's
// per-outlet credibility score rides along in SourceMetrics for the
// news quality gate downstream.
type NewsAdapter struct {
	cfg   config.SourceConfig
	http  *http.Client
	guard *guard
}

func NewNewsAdapter(cfg config.SourceConfig) *NewsAdapter {
	return &NewsAdapter{
		cfg:   cfg,
		http:  newHTTPClient(0),
		guard: newGuard(domain.SourceNews, 60),
	}
}

func (a *NewsAdapter) Source() domain.Source { return domain.SourceNews }
func (a *NewsAdapter) IsConfigured() bool    { return a.cfg.HasCredentials() }

func (a *NewsAdapter) FetchEvents(ctx context.Context, limit int) ([]domain.RawEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	var resp newsResponse
	url := fmt.Sprintf("%s/v1/articles?categories=geopolitics,commodities,shipping&limit=%d",
		strings.TrimRight(a.cfg.BaseURL, "/"), limit)
	err := a.guard.call(ctx, func() error {
		return fetchJSON(ctx, a.http, url, a.cfg.APIKey, &resp)
	})
	if err != nil {
		return nil, domain.E(domain.KindAdapter, err)
	}

	now := time.Now().UTC()
	events := make([]domain.RawEvent, 0, len(resp.Articles))
	for _, art := range resp.Articles {
		observed := now
		if ts, err := time.Parse(time.RFC3339, art.PublishedAt); err == nil {
			observed = ts.UTC()
		}
		ev := domain.NewRawEvent("news-"+art.ID, domain.SourceNews, art.Title, observed)
		ev.Description = art.Summary
		ev.Keywords = normalizeTags(art.Topics)
		ev.SourceMetrics = map[string]float64{"credibility": art.Credibility}
		events = append(events, ev)
	}
	return events, nil
}

func (a *NewsAdapter) HealthCheck(ctx context.Context) Health {
	start := time.Now()
	var probe newsResponse
	url := strings.TrimRight(a.cfg.BaseURL, "/") + "/v1/articles?limit=1"
	err := fetchJSON(ctx, a.http, url, a.cfg.APIKey, &probe)

	h := a.guard.healthOf()
	h.LatencyMS = float64(time.Since(start).Milliseconds())
	if err != nil {
		h.Status = Unhealthy
		h.Error = err.Error()
	}
	return h
}
