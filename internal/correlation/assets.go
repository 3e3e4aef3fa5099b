package correlation

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/omen-systems/omen/internal/confidence"
	"github.com/omen-systems/omen/internal/domain"
)

// AssetQuote is the latest price view of one correlated asset
type AssetQuote struct {
	Symbol       string    `json:"symbol"`
	Price        float64   `json:"price"`
	Change24hPct float64   `json:"change_24h_pct"`
	Strength     float64   `json:"correlation_strength"`
	FetchedAt    time.Time `json:"fetched_at"`
}

// AssetDataPort fetches the latest price and 24h change for a symbol
type AssetDataPort interface {
	LatestQuote(ctx context.Context, symbol string) (price float64, change24hPct float64, err error)
}

// AssetFetcher resolves suggested assets to quotes, in parallel with a
// per-fetch timeout, behind a circuit breaker per port.
type AssetFetcher struct {
	port         AssetDataPort
	breaker      *gobreaker.CircuitBreaker
	fetchTimeout time.Duration
}

// NewAssetFetcher wraps an asset-data port with breaker protection
func NewAssetFetcher(port AssetDataPort, fetchTimeout time.Duration) *AssetFetcher {
	if fetchTimeout <= 0 {
		fetchTimeout = 10 * time.Second
	}

	settings := gobreaker.Settings{
		Name:    "asset-data",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Asset data breaker state change")
		},
	}

	return &AssetFetcher{
		port:         port,
		breaker:      gobreaker.NewCircuitBreaker(settings),
		fetchTimeout: fetchTimeout,
	}
}

// FetchCorrelated resolves each suggested symbol to a quote annotated with
// its correlation strength. Fetches run in parallel; whatever completes
// within the window is used, the rest are dropped.
func (f *AssetFetcher) FetchCorrelated(ctx context.Context, symbols []string) []AssetQuote {
	if len(symbols) == 0 || f.port == nil {
		return nil
	}

	type result struct {
		index int
		quote AssetQuote
		err   error
	}

	results := make(chan result, len(symbols))
	var wg sync.WaitGroup

	for i, symbol := range symbols {
		wg.Add(1)
		go func(i int, symbol string) {
			defer wg.Done()

			fetchCtx, cancel := context.WithTimeout(ctx, f.fetchTimeout)
			defer cancel()

			out, err := f.breaker.Execute(func() (any, error) {
				price, change, err := f.port.LatestQuote(fetchCtx, symbol)
				if err != nil {
					return nil, err
				}
				return AssetQuote{
					Symbol:       symbol,
					Price:        price,
					Change24hPct: change,
					Strength:     CorrelationStrength(i, len(symbols)),
					FetchedAt:    time.Now().UTC(),
				}, nil
			})
			if err != nil {
				results <- result{index: i, err: err}
				return
			}
			results <- result{index: i, quote: out.(AssetQuote)}
		}(i, symbol)
	}

	wg.Wait()
	close(results)

	quotes := make([]AssetQuote, 0, len(symbols))
	for r := range results {
		if r.err != nil {
			log.Debug().Err(r.err).Str("symbol", symbols[r.index]).Msg("Asset quote fetch failed")
			continue
		}
		quotes = append(quotes, r.quote)
	}

	// Restore matrix order (strongest first)
	for i := 1; i < len(quotes); i++ {
		for j := i; j > 0 && quotes[j].Strength > quotes[j-1].Strength; j-- {
			quotes[j], quotes[j-1] = quotes[j-1], quotes[j]
		}
	}
	return quotes
}

// confirmationThreshold is the absolute 24h move that counts an asset as
// confirming the event
const confirmationThreshold = 1.0

// boost levels for cross-source asset confirmation
const (
	boostTwoAssets   = 0.10
	boostThreeAssets = 0.15
	maxTotalBoost    = 0.30
)

// Adjustment is the net confidence delta from correlation analysis
type Adjustment struct {
	Boost     float64                     `json:"boost"`
	Penalty   float64                     `json:"penalty"`
	Net       float64                     `json:"net"`
	Severity  confidence.ConflictSeverity `json:"conflict_severity"`
	Conflicts []Conflict                  `json:"conflicts,omitempty"`
	Quotes    []AssetQuote                `json:"quotes,omitempty"`
}

var conflictPenalty = map[confidence.ConflictSeverity]float64{
	confidence.ConflictNone:   0,
	confidence.ConflictLow:    -0.05,
	confidence.ConflictMedium: -0.15,
	confidence.ConflictHigh:   -0.25,
}

// ComputeAdjustment combines the asset-confirmation boost (applied first)
// with conflict penalties, clamped to [-0.3, +0.3].
func ComputeAdjustment(quotes []AssetQuote, conflicts []Conflict) Adjustment {
	confirming := 0
	for _, q := range quotes {
		if q.Change24hPct >= confirmationThreshold || q.Change24hPct <= -confirmationThreshold {
			confirming++
		}
	}

	var boost float64
	switch {
	case confirming >= 3:
		boost = boostThreeAssets
	case confirming >= 2:
		boost = boostTwoAssets
	}

	severity := MaxSeverity(conflicts)
	penalty := conflictPenalty[severity]

	net := boost + penalty
	if net > maxTotalBoost {
		net = maxTotalBoost
	}
	if net < -maxTotalBoost {
		net = -maxTotalBoost
	}

	return Adjustment{
		Boost:     boost,
		Penalty:   penalty,
		Net:       net,
		Severity:  severity,
		Conflicts: conflicts,
		Quotes:    quotes,
	}
}

// ApplyAdjustment adds the net delta to a base confidence, clamped to
// [0.1, 1.0].
func ApplyAdjustment(base float64, adj Adjustment) float64 {
	v := base + adj.Net
	if v < 0.1 {
		return 0.1
	}
	if v > 1.0 {
		return 1.0
	}
	return v
}

// Correlator ties the cache, conflict detector, and asset fetcher together
// for the pipeline.
type Correlator struct {
	cache   *Cache
	fetcher *AssetFetcher
}

// NewCorrelator builds a correlator over a shared cache; fetcher may be nil
// when no asset-data port is configured.
func NewCorrelator(cache *Cache, fetcher *AssetFetcher) *Correlator {
	return &Correlator{cache: cache, fetcher: fetcher}
}

// Observe records an event into the fingerprint cache and returns its
// fingerprint.
func (c *Correlator) Observe(e domain.RawEvent, sentiment float64, locations []string) string {
	print := Fingerprint(e)
	c.cache.Put(CacheEntry{
		EventID:     e.EventID,
		Source:      e.Source,
		Fingerprint: print,
		Probability: e.Probability,
		Sentiment:   sentiment,
		Locations:   locations,
		Keywords:    e.Keywords,
	})
	return print
}

// Correlate finds cross-source corroboration for the event, detects
// conflicts among the matches, fetches correlated asset quotes, and
// returns the resulting confidence adjustment.
func (c *Correlator) Correlate(ctx context.Context, e domain.RawEvent, cat domain.Category, st domain.SignalType) (Adjustment, []CacheEntry) {
	print := Fingerprint(e)
	matches := c.cache.FindSimilar(print, e.Source, true)

	// The event itself participates in conflict detection
	self := CacheEntry{
		EventID:     e.EventID,
		Source:      e.Source,
		Fingerprint: print,
		Probability: e.Probability,
		Keywords:    e.Keywords,
	}
	for _, loc := range e.InferredLocations {
		self.Locations = append(self.Locations, loc.Name)
	}

	conflicts := DetectConflicts(append([]CacheEntry{self}, matches...))

	var quotes []AssetQuote
	if c.fetcher != nil {
		quotes = c.fetcher.FetchCorrelated(ctx, SuggestedAssets(cat, st))
	}

	return ComputeAdjustment(quotes, conflicts), matches
}

// CrossSourceCount returns how many distinct other sources corroborate the
// event's fingerprint.
func (c *Correlator) CrossSourceCount(e domain.RawEvent) int {
	matches := c.cache.FindSimilar(Fingerprint(e), e.Source, true)
	sources := map[domain.Source]bool{}
	for _, m := range matches {
		sources[m.Source] = true
	}
	return len(sources)
}

// IsDuplicate reports whether the exact fingerprint was already observed
// from the same source under a different event id within the cache TTL.
// Cross-source repeats are corroboration, not duplicates.
func (c *Correlator) IsDuplicate(e domain.RawEvent) bool {
	print := Fingerprint(e)
	for _, m := range c.cache.FindSimilar(print, "", false) {
		if m.Fingerprint == print && m.Source == e.Source && m.EventID != e.EventID {
			return true
		}
	}
	return false
}

// Reset clears correlation state. Test hook.
func (c *Correlator) Reset() {
	c.cache.Reset()
}
