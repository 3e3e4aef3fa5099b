package broadcast

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omen-systems/omen/internal/domain"
)

func testEvent(id string) domain.SignalEvent {
	return domain.FromOmenSignal(domain.OmenSignal{
		SignalID:   id,
		Title:      "Red Sea shipping disruption",
		Category:   domain.CategoryGeopolitical,
		SignalType: domain.SignalGeopoliticalConflict,
		Status:     domain.StatusActive,
	}, time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC))
}

func httpHandler(hub *Hub) http.Handler {
	return http.HandlerFunc(hub.HandleWS)
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(url, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("hub never reached %d clients (have %d)", want, hub.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_BroadcastReachesAllClients(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	server := httptest.NewServer(httpHandler(hub))
	defer server.Close()

	a := dial(t, server.URL)
	b := dial(t, server.URL)
	waitForClients(t, hub, 2)

	hub.Broadcast(testEvent("OMEN-WS1"))

	for _, conn := range []*websocket.Conn{a, b} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, payload, err := conn.ReadMessage()
		require.NoError(t, err)

		var msg struct {
			EventType string          `json:"event_type"`
			SignalID  string          `json:"signal_id"`
			Title     string          `json:"title"`
			Category  domain.Category `json:"category"`
			Status    domain.Status   `json:"status"`
		}
		require.NoError(t, json.Unmarshal(payload, &msg))
		assert.Equal(t, "signal_emitted", msg.EventType)
		assert.Equal(t, "OMEN-WS1", msg.SignalID)
		assert.Equal(t, "Red Sea shipping disruption", msg.Title)
		assert.Equal(t, domain.CategoryGeopolitical, msg.Category)
		assert.Equal(t, domain.StatusActive, msg.Status)
	}
}

func TestHub_BroadcastOmitsLedgerFields(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	server := httptest.NewServer(httpHandler(hub))
	defer server.Close()

	conn := dial(t, server.URL)
	waitForClients(t, hub, 1)

	hub.Broadcast(testEvent("OMEN-WS2"))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	assert.NotContains(t, string(payload), "ledger_partition")
	assert.NotContains(t, string(payload), "ledger_sequence")
	assert.NotContains(t, string(payload), "confidence")
}

func TestHub_DeadClientCollected(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	server := httptest.NewServer(httpHandler(hub))
	defer server.Close()

	conn := dial(t, server.URL)
	waitForClients(t, hub, 1)

	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("dead client never collected")
		}
		hub.Broadcast(testEvent("OMEN-PING"))
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHub_CloseDisconnectsClients(t *testing.T) {
	hub := NewHub()
	server := httptest.NewServer(httpHandler(hub))
	defer server.Close()

	conn := dial(t, server.URL)
	waitForClients(t, hub, 1)

	hub.Close()
	assert.Equal(t, 0, hub.ClientCount())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "connection closed by hub")
}

func TestDistributor_RelaySkipsOwnInstance(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	server := httptest.NewServer(httpHandler(hub))
	defer server.Close()

	conn := dial(t, server.URL)
	waitForClients(t, hub, 1)

	d := NewDistributor(nil, hub, "instance-a")

	own, err := json.Marshal(envelope{InstanceID: "instance-a", Signal: testEvent("OMEN-OWN")})
	require.NoError(t, err)
	d.relay(own)

	foreign, err := json.Marshal(envelope{InstanceID: "instance-b", Signal: testEvent("OMEN-FOREIGN")})
	require.NoError(t, err)
	d.relay(foreign)

	// Only the foreign signal reaches local clients
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(payload), "OMEN-FOREIGN")

	conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err, "no second message expected")
}

func TestDistributor_MalformedEnvelopeIgnored(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	d := NewDistributor(nil, hub, "instance-a")
	d.relay([]byte("not json")) // must not panic
}
