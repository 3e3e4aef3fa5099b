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

type quote struct {
	Symbol    string  `json:"symbol"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	ChangePct float64 `json:"change_pct"`
	Volume    float64 `json:"volume"`
	AsOf      string  `json:"as_of"`
}

type quotesResponse struct {
	Quotes []quote `json:"quotes"`
}

// quoteAdapter is the shared implementation behind the equities and
// commodities sources: same provider API shape, different universe and
// move threshold.
type quoteAdapter struct {
	source       domain.Source
	path         string
	thresholdPct float64
	keywords     []string
	cfg          config.SourceConfig
	http         *http.Client
	guard        *guard
}

// NewEquitiesAdapter polls shipping, defense, and energy equities
func NewEquitiesAdapter(cfg config.SourceConfig) Adapter {
	return &quoteAdapter{
		source:       domain.SourceEquities,
		path:         "/v1/quotes?universe=shipping,defense,energy",
		thresholdPct: 4.0,
		keywords:     []string{"equities"},
		cfg:          cfg,
		http:         newHTTPClient(0),
		guard:        newGuard(domain.SourceEquities, 30),
	}
}

// NewCommoditiesAdapter polls energy and agricultural commodity futures
func NewCommoditiesAdapter(cfg config.SourceConfig) Adapter {
	return &quoteAdapter{
		source:       domain.SourceCommodities,
		path:         "/v1/quotes?universe=energy,grains,metals",
		thresholdPct: 3.0,
		keywords:     []string{"commodity", "futures"},
		cfg:          cfg,
		http:         newHTTPClient(0),
		guard:        newGuard(domain.SourceCommodities, 30),
	}
}

func (a *quoteAdapter) Source() domain.Source { return a.source }
func (a *quoteAdapter) IsConfigured() bool    { return a.cfg.HasCredentials() }

func (a *quoteAdapter) FetchEvents(ctx context.Context, limit int) ([]domain.RawEvent, error) {
	var resp quotesResponse
	url := strings.TrimRight(a.cfg.BaseURL, "/") + a.path
	err := a.guard.call(ctx, func() error {
		return fetchJSON(ctx, a.http, url, a.cfg.APIKey, &resp)
	})
	if err != nil {
		return nil, domain.E(domain.KindAdapter, err)
	}

	now := time.Now().UTC()
	events := make([]domain.RawEvent, 0, len(resp.Quotes))
	for _, q := range resp.Quotes {
		if abs(q.ChangePct) < a.thresholdPct {
			continue
		}
		if limit > 0 && len(events) >= limit {
			break
		}
		observed := now
		if ts, err := time.Parse(time.RFC3339, q.AsOf); err == nil {
			observed = ts.UTC()
		}

		direction := "surged"
		if q.ChangePct < 0 {
			direction = "dropped"
		}
		title := fmt.Sprintf("%s %s %.1f%%", q.Name, direction, abs(q.ChangePct))

		ev := domain.NewRawEvent(fmt.Sprintf("%s-%s-%s", a.source, strings.ToLower(q.Symbol), observed.Format("2006-01-02")),
			a.source, title, observed)
		ev.Description = fmt.Sprintf("%s (%s) moved %.2f%% to %.2f on volume %.0f", q.Name, q.Symbol, q.ChangePct, q.Price, q.Volume)
		ev.Keywords = append(append([]string{}, a.keywords...), strings.ToLower(q.Symbol))
		ev.SourceMetrics = map[string]float64{"price": q.Price, "change_pct": q.ChangePct, "volume": q.Volume}
		events = append(events, ev)
	}
	return events, nil
}

// LatestQuote resolves one symbol from the adapter's universe. Serves the
// asset-correlation lookups alongside the polling path.
func (a *quoteAdapter) LatestQuote(ctx context.Context, symbol string) (float64, float64, error) {
	var resp quotesResponse
	url := strings.TrimRight(a.cfg.BaseURL, "/") + a.path
	err := a.guard.call(ctx, func() error {
		return fetchJSON(ctx, a.http, url, a.cfg.APIKey, &resp)
	})
	if err != nil {
		return 0, 0, domain.E(domain.KindAdapter, err)
	}

	for _, q := range resp.Quotes {
		if strings.EqualFold(q.Symbol, symbol) {
			return q.Price, q.ChangePct, nil
		}
	}
	return 0, 0, domain.Ef(domain.KindAdapter, "symbol %s not in %s universe", symbol, a.source)
}

// symbolQuoter is satisfied by adapters that can resolve a single symbol
// to its latest price and 24h change.
type symbolQuoter interface {
	LatestQuote(ctx context.Context, symbol string) (float64, float64, error)
}

// QuotePort answers asset-correlation lookups from the quote-backed
// sources. Commodities is tried first since its universe carries the
// futures symbols most correlation suggestions name, then equities.
type QuotePort struct {
	quoters []symbolQuoter
}

// NewQuotePort collects the quote-capable adapters from the built set.
// Returns nil when no enabled source can serve symbol lookups.
func NewQuotePort(set map[domain.Source]Adapter) *QuotePort {
	var quoters []symbolQuoter
	for _, src := range []domain.Source{domain.SourceCommodities, domain.SourceEquities} {
		if q, ok := set[src].(symbolQuoter); ok {
			quoters = append(quoters, q)
		}
	}
	if len(quoters) == 0 {
		return nil
	}
	return &QuotePort{quoters: quoters}
}

// LatestQuote tries each backing source in order and returns the first hit
func (p *QuotePort) LatestQuote(ctx context.Context, symbol string) (float64, float64, error) {
	var lastErr error
	for _, q := range p.quoters {
		price, change, err := q.LatestQuote(ctx, symbol)
		if err == nil {
			return price, change, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = domain.Ef(domain.KindAdapter, "no quote source for symbol %s", symbol)
	}
	return 0, 0, lastErr
}

func (a *quoteAdapter) HealthCheck(ctx context.Context) Health {
	start := time.Now()
	var probe quotesResponse
	err := fetchJSON(ctx, a.http, strings.TrimRight(a.cfg.BaseURL, "/")+a.path, a.cfg.APIKey, &probe)

	h := a.guard.healthOf()
	h.LatencyMS = float64(time.Since(start).Milliseconds())
	if err != nil {
		h.Status = Unhealthy
		h.Error = err.Error()
	}
	return h
}
