package http

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/omen-systems/omen/internal/domain"
	"github.com/omen-systems/omen/internal/emit"
	"github.com/omen-systems/omen/internal/pipeline"
)

// Metrics is the process-wide Prometheus registry and the engine counters
// exported through it.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	EmitResults     *prometheus.CounterVec
	BroadcastsTotal prometheus.Counter
}

// NewMetrics builds the registry with engine gauges bound to live pipeline
// stats. pipe may be nil in tests.
func NewMetrics(pipe *pipeline.Pipeline) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: reg,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "omen_http_requests_total",
			Help: "HTTP requests by method, path, and status.",
		}, []string{"method", "path", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "omen_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		EmitResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "omen_emit_results_total",
			Help: "Emit outcomes by status.",
		}, []string{"status"}),
		BroadcastsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "omen_broadcasts_total",
			Help: "Signals fanned out to realtime subscribers.",
		}),
	}
	reg.MustRegister(m.RequestsTotal, m.RequestDuration, m.EmitResults, m.BroadcastsTotal)

	if pipe != nil {
		registerStatGauge(reg, "omen_events_processed_total", "Events entering the pipeline.", func() float64 {
			return float64(pipe.Stats().Processed)
		})
		registerStatGauge(reg, "omen_signals_generated_total", "Signals emitted by the pipeline.", func() float64 {
			return float64(pipe.Stats().Generated)
		})
		registerStatGauge(reg, "omen_events_rejected_total", "Events rejected by validation.", func() float64 {
			return float64(pipe.Stats().Rejected)
		})
		registerStatGauge(reg, "omen_events_deduped_total", "Events skipped as duplicates.", func() float64 {
			return float64(pipe.Stats().Deduped)
		})
		registerStatGauge(reg, "omen_dlq_depth", "Current dead letter queue depth.", func() float64 {
			return float64(pipe.Stats().DLQDepth)
		})
	}
	return m
}

func registerStatGauge(reg *prometheus.Registry, name, help string, value func() float64) {
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, value))
}

// Handler serves the registry in Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

type countingBroadcaster struct {
	next    emit.Broadcaster
	counter prometheus.Counter
}

func (b countingBroadcaster) Broadcast(event domain.SignalEvent) {
	b.counter.Inc()
	b.next.Broadcast(event)
}

// InstrumentBroadcaster counts signals fanned out through next
func (m *Metrics) InstrumentBroadcaster(next emit.Broadcaster) emit.Broadcaster {
	return countingBroadcaster{next: next, counter: m.BroadcastsTotal}
}

// ObserveEmit records one emit outcome
func (m *Metrics) ObserveEmit(status emit.Status) {
	m.EmitResults.WithLabelValues(string(status)).Inc()
}
