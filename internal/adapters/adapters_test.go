package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omen-systems/omen/internal/config"
	"github.com/omen-systems/omen/internal/domain"
	"github.com/omen-systems/omen/internal/registry"
)

func sourceConfig(baseURL string) config.SourceConfig {
	return config.SourceConfig{
		Provider: "test-provider",
		APIKey:   "test-key",
		BaseURL:  baseURL,
		Enabled:  true,
	}
}

func TestPredictionMarkets_FetchEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "25", r.URL.Query().Get("limit"))

		json.NewEncoder(w).Encode([]predictionMarket{
			{
				ID:             "mkt-1",
				Question:       "Will the Panama Canal restrict transits this month?",
				Description:    "Resolution per canal authority announcements.",
				LastTradePrice: 0.34,
				Liquidity:      82000,
				Volume:         510000,
				EndDate:        "2026-09-30T00:00:00Z",
				Tags:           []string{"Panama", " shipping ", ""},
			},
		})
	}))
	defer srv.Close()

	a := NewPredictionMarketsAdapter(sourceConfig(srv.URL))
	events, err := a.FetchEvents(context.Background(), 25)
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, domain.SourcePredictionMarkets, ev.Source)
	assert.Equal(t, 0.34, ev.Probability)
	assert.Equal(t, []string{"panama", "shipping"}, ev.Keywords)
	require.NotNil(t, ev.Market)
	assert.Equal(t, 82000.0, ev.Market.CurrentLiquidityUSD)
	assert.Equal(t, 510000.0, ev.Market.TotalVolumeUSD)
	require.NotNil(t, ev.Market.ResolutionDate)
	assert.Equal(t, 2026, ev.Market.ResolutionDate.Year())
}

func TestPredictionMarkets_FetchErrorWrapsAdapterKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	a := NewPredictionMarketsAdapter(sourceConfig(srv.URL))
	_, err := a.FetchEvents(context.Background(), 10)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindAdapter))
}

func TestNews_CredibilityRidesInSourceMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(newsResponse{Articles: []newsArticle{
			{
				ID:          "a1",
				Title:       "Strikes reported near Red Sea shipping lanes",
				Summary:     "Vessels rerouting around the Cape.",
				Credibility: 0.82,
				PublishedAt: time.Now().UTC().Format(time.RFC3339),
				Topics:      []string{"red sea", "shipping"},
			},
		}})
	}))
	defer srv.Close()

	a := NewNewsAdapter(sourceConfig(srv.URL))
	events, err := a.FetchEvents(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 0.82, events[0].SourceMetrics["credibility"])
	assert.Equal(t, "news-a1", events[0].EventID)
}

func TestFreight_SmallMovesFiltered(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(freightResponse{Indices: []freightIndex{
			{Code: "SCFI", Name: "Shanghai Containerized Freight Index", Value: 2400, ChangePct: 6.2},
			{Code: "BDI", Name: "Baltic Dry Index", Value: 1800, ChangePct: 0.4},
			{Code: "FBX", Name: "Freightos Baltic Index", Value: 3100, ChangePct: -3.1},
		}})
	}))
	defer srv.Close()

	a := NewFreightIndicesAdapter(sourceConfig(srv.URL))
	events, err := a.FetchEvents(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Contains(t, events[0].Title, "up 6.2%")
	assert.Contains(t, events[1].Title, "down 3.1%")
}

func TestQuoteAdapter_ThresholdAndMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(quotesResponse{Quotes: []quote{
			{Symbol: "BZ", Name: "Brent Crude", Price: 88.4, ChangePct: 4.1, Volume: 120000},
			{Symbol: "CL", Name: "WTI Crude", Price: 84.2, ChangePct: 1.2, Volume: 90000},
		}})
	}))
	defer srv.Close()

	a := NewCommoditiesAdapter(sourceConfig(srv.URL))
	events, err := a.FetchEvents(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.SourceCommodities, events[0].Source)
	assert.Equal(t, 4.1, events[0].SourceMetrics["change_pct"])
	assert.Contains(t, events[0].Keywords, "bz")
}

func TestQuoteAdapter_LatestQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(quotesResponse{Quotes: []quote{
			{Symbol: "BZ", Name: "Brent Crude", Price: 88.4, ChangePct: 4.1},
			{Symbol: "CL", Name: "WTI Crude", Price: 84.2, ChangePct: 1.2},
		}})
	}))
	defer srv.Close()

	a := NewCommoditiesAdapter(sourceConfig(srv.URL)).(*quoteAdapter)

	price, change, err := a.LatestQuote(context.Background(), "cl")
	require.NoError(t, err)
	assert.Equal(t, 84.2, price)
	assert.Equal(t, 1.2, change)

	_, _, err = a.LatestQuote(context.Background(), "NG")
	require.Error(t, err)
	assert.Equal(t, domain.KindAdapter, domain.KindOf(err))
}

func TestQuotePort_FallsThroughUniverses(t *testing.T) {
	commodities := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(quotesResponse{Quotes: []quote{
			{Symbol: "BZ", Name: "Brent Crude", Price: 88.4, ChangePct: 4.1},
		}})
	}))
	defer commodities.Close()
	equities := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(quotesResponse{Quotes: []quote{
			{Symbol: "MAERSK-B", Name: "Maersk", Price: 11800, ChangePct: 5.4},
		}})
	}))
	defer equities.Close()

	port := NewQuotePort(map[domain.Source]Adapter{
		domain.SourceCommodities: NewCommoditiesAdapter(sourceConfig(commodities.URL)),
		domain.SourceEquities:    NewEquitiesAdapter(sourceConfig(equities.URL)),
	})
	require.NotNil(t, port)

	// Served by the commodities universe directly
	price, _, err := port.LatestQuote(context.Background(), "BZ")
	require.NoError(t, err)
	assert.Equal(t, 88.4, price)

	// Not a commodity, resolved by the equities universe
	price, change, err := port.LatestQuote(context.Background(), "MAERSK-B")
	require.NoError(t, err)
	assert.Equal(t, 11800.0, price)
	assert.Equal(t, 5.4, change)
}

func TestNewQuotePort_NilWithoutQuoteSources(t *testing.T) {
	assert.Nil(t, NewQuotePort(map[domain.Source]Adapter{}))

	// Mock adapters serve synthetic quotes so the port exists in mock mode
	port := NewQuotePort(map[domain.Source]Adapter{
		domain.SourceCommodities: NewMockAdapter(domain.SourceCommodities),
	})
	require.NotNil(t, port)
	price, change, err := port.LatestQuote(context.Background(), "BZ")
	require.NoError(t, err)
	assert.Equal(t, 100+change, price)

	again, _, err := port.LatestQuote(context.Background(), "BZ")
	require.NoError(t, err)
	assert.Equal(t, price, again)
}

func TestVesselTracking_SubscribeStreamsAndBuffers(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		msgs := []aisMessage{
			{MMSI: "123456789", ShipName: "Ever Given", ShipType: "Container", Zone: "Suez Canal", Lat: 30.45, Lon: 32.35, Timestamp: time.Now().UTC().Format(time.RFC3339)},
			{MMSI: "", ShipName: "Ghost"}, // no mmsi, dropped
			{MMSI: "987654321", ShipName: "Front Altair", ShipType: "Tanker", Destination: "Rotterdam", Timestamp: time.Now().UTC().Format(time.RFC3339)},
		}
		for _, m := range msgs {
			require.NoError(t, conn.WriteJSON(m))
		}
		// keep the connection open until the client walks away
		conn.ReadMessage()
	}))
	defer srv.Close()

	a := NewVesselTrackingAdapter(sourceConfig(srv.URL))
	events := make(chan domain.RawEvent, 8)
	require.NoError(t, a.Subscribe(context.Background(), events))
	defer a.Stop()

	var got []domain.RawEvent
	timeout := time.After(3 * time.Second)
	for len(got) < 2 {
		select {
		case ev := <-events:
			got = append(got, ev)
		case <-timeout:
			t.Fatalf("timed out with %d events", len(got))
		}
	}

	assert.Contains(t, got[0].Title, "Ever Given")
	assert.Contains(t, got[0].Title, "Suez Canal")
	require.Len(t, got[0].InferredLocations, 1)
	assert.Contains(t, got[1].Title, "Rotterdam")

	// stream loop also fills the polling buffer
	buffered, err := a.FetchEvents(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, buffered, 2)

	// buffer drains
	drained, err := a.FetchEvents(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, drained)
}

func TestVesselTracking_SubscribeRequiresCredentials(t *testing.T) {
	a := NewVesselTrackingAdapter(config.SourceConfig{Enabled: true})
	err := a.Subscribe(context.Background(), make(chan domain.RawEvent))
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindConfiguration))
}

func TestMockAdapter_DeterministicWithinHour(t *testing.T) {
	fixed := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	a := NewMockAdapter(domain.SourcePredictionMarkets)
	a.now = func() time.Time { return fixed }

	first, err := a.FetchEvents(context.Background(), 3)
	require.NoError(t, err)
	second, err := a.FetchEvents(context.Background(), 3)
	require.NoError(t, err)

	require.Len(t, first, 3)
	assert.Equal(t, first, second)
	assert.NotEqual(t, first[0].EventID, first[1].EventID)
	require.NotNil(t, first[0].Market)
	assert.Greater(t, first[0].Market.CurrentLiquidityUSD, 0.0)

	for _, ev := range first {
		assert.GreaterOrEqual(t, ev.Probability, 0.05)
		assert.LessOrEqual(t, ev.Probability, 0.95)
	}
}

func TestMockAdapter_NewsCarriesCredibility(t *testing.T) {
	a := NewMockAdapter(domain.SourceNews)
	events, err := a.FetchEvents(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 0.85, events[0].SourceMetrics["credibility"])
}

func TestBuild_FollowsRegistryClassification(t *testing.T) {
	sources := make(map[domain.Source]config.SourceConfig)
	for _, src := range domain.AllSources {
		sources[src] = config.SourceConfig{Enabled: true}
	}
	sources[domain.SourcePredictionMarkets] = config.SourceConfig{
		Provider: "polymarket", APIKey: "key", BaseURL: "https://example.test", Enabled: true,
	}
	sources[domain.SourceWeatherAlerts] = config.SourceConfig{Enabled: false}
	cfg := config.Config{Sources: sources}

	set := Build(cfg, registry.New(cfg))

	require.NotContains(t, set, domain.SourceWeatherAlerts)
	_, isReal := set[domain.SourcePredictionMarkets].(*PredictionMarketsAdapter)
	assert.True(t, isReal)
	_, isMock := set[domain.SourceNews].(*MockAdapter)
	assert.True(t, isMock)
}

func TestGuard_HealthTransitions(t *testing.T) {
	g := newGuard(domain.SourceNews, 6000)
	assert.Equal(t, Unknown, g.healthOf().Status)

	ctx := context.Background()
	for i := 0; i < 8; i++ {
		require.NoError(t, g.call(ctx, func() error { return nil }))
	}
	assert.Equal(t, Healthy, g.healthOf().Status)

	// one failure out of nine trips the degraded threshold
	err := g.call(ctx, func() error { return assert.AnError })
	require.Error(t, err)
	assert.Equal(t, Degraded, g.healthOf().Status)
}
