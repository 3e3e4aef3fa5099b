// Package http is the public API surface: signal reads, on-demand
// generation, health, activity, metrics, and the realtime WebSocket feed.
package http

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/omen-systems/omen/internal/adapters"
	"github.com/omen-systems/omen/internal/broadcast"
	"github.com/omen-systems/omen/internal/domain"
	"github.com/omen-systems/omen/internal/emit"
	"github.com/omen-systems/omen/internal/persistence"
	"github.com/omen-systems/omen/internal/pipeline"
	"github.com/omen-systems/omen/internal/registry"
)

// ServerConfig carries the API surface settings
type ServerConfig struct {
	ListenAddr   string
	Version      string
	APIKeyHashes []string
	APIKeyPepper string
	RateLimitRPM int
	RateBurst    int
	Development  bool
}

// Server exposes the engine over HTTP
type Server struct {
	cfg      ServerConfig
	repo     persistence.SignalRepo
	pipe     *pipeline.Pipeline
	adapters map[domain.Source]adapters.Adapter
	reg      *registry.Registry
	emitter  *emit.Emitter
	hub      *broadcast.Hub
	feed     *ActivityFeed
	metrics  *Metrics
	started  time.Time

	httpServer *http.Server
}

// NewServer wires the API surface. Every dependency except repo and pipe
// may be nil; the affected endpoints degrade gracefully.
func NewServer(
	cfg ServerConfig,
	repo persistence.SignalRepo,
	pipe *pipeline.Pipeline,
	adapterSet map[domain.Source]adapters.Adapter,
	reg *registry.Registry,
	emitter *emit.Emitter,
	hub *broadcast.Hub,
	feed *ActivityFeed,
	metrics *Metrics,
) *Server {
	if feed == nil {
		feed = NewActivityFeed(0)
	}
	if metrics == nil {
		metrics = NewMetrics(pipe)
	}
	return &Server{
		cfg:      cfg,
		repo:     repo,
		pipe:     pipe,
		adapters: adapterSet,
		reg:      reg,
		emitter:  emitter,
		hub:      hub,
		feed:     feed,
		metrics:  metrics,
		started:  time.Now(),
	}
}

// Feed exposes the activity feed so other components can record into it
func (s *Server) Feed() *ActivityFeed { return s.feed }

// Router builds the route table with middleware applied
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(func(next http.Handler) http.Handler { return withMetrics(s.metrics, next) })

	// public surface
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/activity", s.handleActivity).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	if s.hub != nil {
		r.HandleFunc("/ws", s.hub.HandleWS)
	}

	// authenticated surface
	auth := apiKeyAuth{hashes: s.cfg.APIKeyHashes, pepper: s.cfg.APIKeyPepper}
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(auth.wrap)
	api.HandleFunc("/signals", s.handleListSignals).Methods(http.MethodGet)
	api.HandleFunc("/signals/{signal_id}", s.handleGetSignal).Methods(http.MethodGet)
	api.HandleFunc("/live/generate", s.handleGenerate).Methods(http.MethodPost)
	api.HandleFunc("/partner-signals", s.handlePartnerSignals).Methods(http.MethodGet)
	api.HandleFunc("/partner-signals/{symbol}", s.handlePartnerSignals).Methods(http.MethodGet)
	api.HandleFunc("/dlq", s.handleDLQ).Methods(http.MethodGet)
	api.HandleFunc("/dlq/reprocess", s.handleDLQReprocess).Methods(http.MethodPost)

	rpm := s.cfg.RateLimitRPM
	if rpm <= 0 {
		rpm = 600
	}
	burst := s.cfg.RateBurst
	if burst <= 0 {
		burst = rpm / 10
	}
	limiter := rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst)

	return withRequestID(withLogging(withRateLimit(limiter, r)))
}

// Start serves until the context is cancelled
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.cfg.ListenAddr).Msg("API server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := map[string]any{}
	if s.emitter != nil {
		components["riskcast_breaker"] = s.emitter.BreakerStatus()
	}
	if s.pipe != nil {
		components["pipeline"] = s.pipe.Stats()
	}
	if s.hub != nil {
		components["websocket_clients"] = s.hub.ClientCount()
	}

	sources := map[string]any{}
	status := "healthy"
	if s.reg != nil {
		unhealthy := 0
		for _, st := range s.reg.Statuses() {
			row := map[string]any{
				"type":    st.Type,
				"enabled": st.Enabled,
			}
			if adapter, ok := s.adapters[st.Source]; ok && st.Enabled {
				h := adapter.HealthCheck(r.Context())
				row["health"] = h
				if h.Status == adapters.Unhealthy {
					unhealthy++
				}
			}
			sources[string(st.Source)] = row
		}
		switch {
		case unhealthy > len(s.adapters)/2 && len(s.adapters) > 0:
			status = "unhealthy"
		case unhealthy > 0:
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"version":    s.cfg.Version,
		"uptime":     time.Since(s.started).Round(time.Second).String(),
		"sources":    sources,
		"components": components,
	})
}

func (s *Server) handleListSignals(w http.ResponseWriter, r *http.Request) {
	q := persistence.ListQuery{Cursor: r.URL.Query().Get("cursor")}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeErrorDetails(w, r, http.StatusUnprocessableEntity, CodeValidationError,
				"invalid query parameters", "",
				[]ErrorDetail{{Field: "limit", Message: "must be a non-negative integer"}})
			return
		}
		q.Limit = limit
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		q.Status = domain.Status(raw)
	}

	page, err := s.repo.List(r.Context(), q)
	if err != nil {
		log.Error().Err(err).Msg("Signal list failed")
		writeError(w, r, http.StatusInternalServerError, CodeInternalError, "signal lookup failed", "")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleGetSignal(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["signal_id"]

	sig, err := s.repo.GetByID(r.Context(), id)
	if errors.Is(err, persistence.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, CodeNotFound, "signal not found", "")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("signal_id", id).Msg("Signal lookup failed")
		writeError(w, r, http.StatusInternalServerError, CodeInternalError, "signal lookup failed", "")
		return
	}
	writeJSON(w, http.StatusOK, sig)
}

// sourceOutcome is one source's row in the generate response
type sourceOutcome struct {
	Status string `json:"status"`
	Count  int    `json:"count,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if s.pipe == nil || len(s.adapters) == 0 {
		writeError(w, r, http.StatusServiceUnavailable, CodeInternalError,
			"generation is not available", "no sources configured")
		return
	}

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	outcomes := map[string]sourceOutcome{}
	var signalIDs []string

	for _, src := range sortedSources(s.adapters) {
		adapter := s.adapters[src]
		events, err := adapter.FetchEvents(r.Context(), limit)
		if err != nil {
			outcomes[string(src)] = sourceOutcome{Status: "error", Error: err.Error()}
			s.feed.Record(ActivityError, "fetch failed for "+string(src), map[string]any{"error": err.Error()})
			continue
		}

		created := 0
		for _, ev := range events {
			res := s.pipe.Process(r.Context(), ev)
			if res.Emit != nil {
				s.metrics.ObserveEmit(res.Emit.Status)
			}
			if res.Signal != nil {
				created++
				signalIDs = append(signalIDs, res.Signal.SignalID)
				s.feed.Record(ActivitySignal, res.Signal.Title, map[string]any{
					"signal_id": res.Signal.SignalID,
					"category":  res.Signal.Category,
				})
			} else if res.Rejection != nil {
				s.feed.Record(ActivityValidation, "event rejected by "+res.Rejection.RuleName, map[string]any{
					"event_id": ev.EventID,
				})
			}
		}
		outcomes[string(src)] = sourceOutcome{Status: "ok", Count: created}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"signals_created": len(signalIDs),
		"sources":         outcomes,
		"signal_ids":      signalIDs,
	})
}

// partnerSignal is the externally-shared projection of a signal. It
// carries metrics and evidence but never verdicts.
type partnerSignal struct {
	SignalID        string                    `json:"signal_id"`
	Title           string                    `json:"title"`
	Category        domain.Category           `json:"category"`
	SignalType      domain.SignalType         `json:"signal_type"`
	Probability     float64                   `json:"probability"`
	Confidence      float64                   `json:"confidence"`
	ConfidenceBand  domain.ConfidenceInterval `json:"confidence_band"`
	Direction       domain.Direction          `json:"direction"`
	AffectedSymbols []string                  `json:"affected_symbols,omitempty"`
	Keywords        []string                  `json:"keywords,omitempty"`
	Evidence        []string                  `json:"evidence,omitempty"`
	GeneratedAt     time.Time                 `json:"generated_at"`
}

func (s *Server) handlePartnerSignals(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	page, err := s.repo.List(r.Context(), persistence.ListQuery{Limit: 100})
	if err != nil {
		log.Error().Err(err).Msg("Partner signal list failed")
		writeError(w, r, http.StatusInternalServerError, CodeInternalError, "signal lookup failed", "")
		return
	}

	out := make([]partnerSignal, 0, len(page.Items))
	for _, sig := range page.Items {
		ps := partnerSignal{
			SignalID:        sig.SignalID,
			Title:           sig.Title,
			Category:        sig.Category,
			SignalType:      sig.SignalType,
			Probability:     sig.Probability,
			Confidence:      sig.ConfidenceScore,
			ConfidenceBand:  sig.ConfidenceInterval,
			Direction:       sig.ImpactHints.Direction,
			AffectedSymbols: sig.ImpactHints.AffectedAssetTypes,
			Keywords:        sig.ImpactHints.Keywords,
			Evidence:        sig.Evidence,
			GeneratedAt:     sig.GeneratedAt,
		}
		if symbol != "" && !matchesSymbol(ps, symbol) {
			continue
		}
		out = append(out, ps)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"signals": out,
		"count":   len(out),
	})
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": s.feed.Recent(limit)})
}

func matchesSymbol(ps partnerSignal, symbol string) bool {
	for _, s := range ps.AffectedSymbols {
		if strings.EqualFold(s, symbol) {
			return true
		}
	}
	for _, k := range ps.Keywords {
		if strings.EqualFold(k, symbol) {
			return true
		}
	}
	return false
}

func sortedSources(set map[domain.Source]adapters.Adapter) []domain.Source {
	out := make([]domain.Source, 0, len(set))
	for src := range set {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *Server) handleDLQ(w http.ResponseWriter, r *http.Request) {
	if s.pipe == nil {
		writeError(w, r, http.StatusNotFound, CodeNotFound, "pipeline not running", "")
		return
	}
	entries := s.pipe.DLQ().Entries()
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"depth":   len(entries),
	})
}

func (s *Server) handleDLQReprocess(w http.ResponseWriter, r *http.Request) {
	if s.pipe == nil {
		writeError(w, r, http.StatusNotFound, CodeNotFound, "pipeline not running", "")
		return
	}

	maxItems := 0
	if raw := r.URL.Query().Get("max"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeErrorDetails(w, r, http.StatusUnprocessableEntity, CodeValidationError,
				"invalid query parameters", "",
				[]ErrorDetail{{Field: "max", Message: "must be a non-negative integer"}})
			return
		}
		maxItems = parsed
	}

	succeeded, requeued := s.pipe.ReprocessDLQ(r.Context(), maxItems)
	s.feed.Record(ActivitySystem, "dead letter queue reprocessed", map[string]any{
		"succeeded": succeeded,
		"requeued":  requeued,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"succeeded": succeeded,
		"requeued":  requeued,
		"depth":     s.pipe.DLQ().Len(),
	})
}
