package emit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omen-systems/omen/internal/domain"
	"github.com/omen-systems/omen/internal/ledger"
	"github.com/omen-systems/omen/internal/resilience"
)

func testSignal(id string) domain.OmenSignal {
	return domain.OmenSignal{
		SignalID:        id,
		SourceEventID:   "src-" + id,
		TraceID:         "trace-" + id,
		Source:          domain.SourcePredictionMarkets,
		Title:           "Red Sea shipping disruption",
		Probability:     0.75,
		ConfidenceScore: 0.72,
		ConfidenceLevel: domain.ConfidenceHigh,
		Category:        domain.CategoryGeopolitical,
		SignalType:      domain.SignalGeopoliticalConflict,
		Status:          domain.StatusActive,
		GeneratedAt:     time.Now().UTC(),
		InputEventHash:  "hash-" + id,
	}
}

// singleAttemptConfig disables client-side retries so each push maps to
// exactly one downstream request.
func singleAttemptConfig(url string) RiskcastConfig {
	return RiskcastConfig{
		BaseURL: url,
		Retry: resilience.RetryConfig{
			MaxAttempts: 1,
			BaseDelay:   time.Millisecond,
			MaxDelay:    time.Millisecond,
			Multiplier:  1,
		},
	}
}

func testBreaker() *resilience.CircuitBreaker {
	cfg := resilience.DefaultCircuitConfig("riskcast")
	cfg.FailureThreshold = 5
	cfg.Timeout = 30 * time.Second
	return resilience.NewCircuitBreaker(cfg)
}

func newTestEmitter(t *testing.T, downstream http.HandlerFunc) (*Emitter, *ledger.Reader) {
	t.Helper()
	base := t.TempDir()

	var pusher Pusher
	if downstream != nil {
		server := httptest.NewServer(downstream)
		t.Cleanup(server.Close)
		pusher = NewRiskcastClient(singleAttemptConfig(server.URL))
	}

	e := NewEmitter(ledger.NewWriter(base), pusher, testBreaker(), NewBackpressure(3, time.Millisecond, 2*time.Millisecond))
	return e, ledger.NewReader(base)
}

func TestEmitter_Delivered(t *testing.T) {
	var gotIdempotencyKey atomic.Value
	e, reader := newTestEmitter(t, func(w http.ResponseWriter, r *http.Request) {
		gotIdempotencyKey.Store(r.Header.Get("X-Idempotency-Key"))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"ack_id":"ack-123"}`))
	})

	result, err := e.Emit(context.Background(), testSignal("OMEN-D1"))
	require.NoError(t, err)

	assert.Equal(t, StatusDelivered, result.Status)
	assert.Equal(t, "ack-123", result.AckID)
	assert.NotZero(t, result.Sequence)
	assert.Equal(t, "OMEN-D1", gotIdempotencyKey.Load())

	events, err := reader.ReadPartition(result.Partition, true, false)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "OMEN-D1", events[0].SignalID)
}

func TestEmitter_DuplicateAck(t *testing.T) {
	e, _ := newTestEmitter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"ack_id":"X"}`))
	})

	result, err := e.Emit(context.Background(), testSignal("OMEN-DUP"))
	require.NoError(t, err)

	assert.Equal(t, StatusDuplicate, result.Status)
	assert.Equal(t, "X", result.AckID)
	assert.Empty(t, result.Error)
}

func TestEmitter_CircuitOpensAfterFiveFailures(t *testing.T) {
	var calls atomic.Int32
	e, reader := newTestEmitter(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	// Five consecutive failing pushes trip the breaker
	for i := 0; i < 5; i++ {
		result, err := e.Emit(context.Background(), testSignal("OMEN-S5"))
		require.NoError(t, err)
		assert.Equal(t, StatusLedgerOnly, result.Status)
		assert.Contains(t, result.Error, "500")
	}
	assert.Equal(t, int32(5), calls.Load())

	// The sixth emit fast-fails without reaching the downstream but is
	// still durable in the ledger.
	result, err := e.Emit(context.Background(), testSignal("OMEN-S5-LAST"))
	require.NoError(t, err)
	assert.Equal(t, StatusLedgerOnly, result.Status)
	assert.Regexp(t, `Circuit open, retry after \d+s`, result.Error)
	assert.Equal(t, int32(5), calls.Load())

	events, err := reader.ReadPartition(result.Partition, true, false)
	require.NoError(t, err)
	assert.Len(t, events, 6)
}

func TestEmitter_LedgerFailureIsTerminal(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	e := NewEmitter(failingLedger{}, NewRiskcastClient(singleAttemptConfig(server.URL)), testBreaker(), nil)

	result, err := e.Emit(context.Background(), testSignal("OMEN-FAIL"))
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindPersistence))
	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, int32(0), calls.Load(), "no hot push after a ledger failure")
}

func TestEmitter_NilPusherIsLedgerOnly(t *testing.T) {
	e, _ := newTestEmitter(t, nil)

	result, err := e.Emit(context.Background(), testSignal("OMEN-NOPUSH"))
	require.NoError(t, err)
	assert.Equal(t, StatusLedgerOnly, result.Status)
	assert.NotZero(t, result.Sequence)
}

func TestEmitter_BroadcastFailureDoesNotAffectEmit(t *testing.T) {
	e, _ := newTestEmitter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ack_id":"ack-b"}`))
	})
	e.SetBroadcaster(panickyBroadcaster{})

	result, err := e.Emit(context.Background(), testSignal("OMEN-BC"))
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, result.Status)
	assert.Equal(t, "ack-b", result.AckID)
}

type failingLedger struct{}

func (failingLedger) Write(event domain.SignalEvent) (domain.SignalEvent, error) {
	return event, assert.AnError
}

type panickyBroadcaster struct{}

func (panickyBroadcaster) Broadcast(domain.SignalEvent) { panic("boom") }

func TestBackpressure_Window(t *testing.T) {
	b := NewBackpressure(3, 100*time.Millisecond, 2*time.Second)

	// Below the threshold the gate stays out of the way
	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, time.Duration(0), b.Delay())

	b.RecordFailure()
	assert.Equal(t, 800*time.Millisecond, b.Delay(), "base * 2^3")
	b.RecordFailure()
	assert.Equal(t, 1600*time.Millisecond, b.Delay())
	b.RecordFailure()
	assert.Equal(t, 2*time.Second, b.Delay(), "capped at max")

	b.RecordSuccess()
	assert.Equal(t, time.Duration(0), b.Delay())
}

func TestReconciler_ReplaysPartition(t *testing.T) {
	base := t.TempDir()
	w := ledger.NewWriter(base)

	for _, id := range []string{"OMEN-R1", "OMEN-R2", "OMEN-R3"} {
		_, err := w.Write(domain.FromOmenSignal(testSignal(id), time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)))
		require.NoError(t, err)
	}

	// R1 already downstream, R2 accepted, R3 rejected outright
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("X-Idempotency-Key") {
		case "OMEN-R1":
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"ack_id":"old"}`))
		case "OMEN-R2":
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"ack_id":"new"}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	t.Cleanup(server.Close)

	r := NewReconciler(ledger.NewReader(base), NewRiskcastClient(singleAttemptConfig(server.URL)))
	stats, err := r.ReplayPartition(context.Background(), "2026-03-14")
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Read)
	assert.Equal(t, 1, stats.Delivered)
	assert.Equal(t, 1, stats.Duplicate)
	assert.Equal(t, 1, stats.Failed)
}
