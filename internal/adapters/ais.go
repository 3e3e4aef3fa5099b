package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/omen-systems/omen/internal/config"
	"github.com/omen-systems/omen/internal/domain"
)

const (
	aisRecentBuffer  = 256
	aisReadDeadline  = 90 * time.Second
	aisReconnectWait = 5 * time.Second
)

// aisMessage is the provider's position/transit report shape
type aisMessage struct {
	MMSI        string  `json:"mmsi"`
	ShipName    string  `json:"ship_name"`
	ShipType    string  `json:"ship_type"`
	Lat         float64 `json:"latitude"`
	Lon         float64 `json:"longitude"`
	Destination string  `json:"destination"`
	Zone        string  `json:"zone"`
	Timestamp   string  `json:"timestamp"`
}

// VesselTrackingAdapter consumes a live AIS websocket feed. Events stream
// to subscribers and accumulate in a bounded recent-events buffer so the
// polling path works too.
type VesselTrackingAdapter struct {
	cfg   config.SourceConfig
	guard *guard

	mu     sync.Mutex
	recent []domain.RawEvent
	cancel context.CancelFunc
	done   chan struct{}
}

// NewVesselTrackingAdapter builds the adapter
func NewVesselTrackingAdapter(cfg config.SourceConfig) *VesselTrackingAdapter {
	return &VesselTrackingAdapter{
		cfg:   cfg,
		guard: newGuard(domain.SourceVesselTracking, 120),
	}
}

func (a *VesselTrackingAdapter) Source() domain.Source { return domain.SourceVesselTracking }
func (a *VesselTrackingAdapter) IsConfigured() bool    { return a.cfg.HasCredentials() }

// FetchEvents drains the recent-events buffer filled by the stream loop
func (a *VesselTrackingAdapter) FetchEvents(_ context.Context, limit int) ([]domain.RawEvent, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if limit <= 0 || limit > len(a.recent) {
		limit = len(a.recent)
	}
	out := make([]domain.RawEvent, limit)
	copy(out, a.recent[:limit])
	a.recent = a.recent[limit:]
	return out, nil
}

// Subscribe connects to the AIS feed and delivers events until the context
// is cancelled or Stop is called. Connection drops trigger reconnects.
func (a *VesselTrackingAdapter) Subscribe(ctx context.Context, events chan<- domain.RawEvent) error {
	if !a.IsConfigured() {
		return domain.Ef(domain.KindConfiguration, "vessel_tracking: no api key configured")
	}

	ctx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.cancel = cancel
	a.done = make(chan struct{})
	done := a.done
	a.mu.Unlock()

	go func() {
		defer close(done)
		for {
			if err := a.streamOnce(ctx, events); err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Warn().Err(err).Msg("AIS stream dropped, reconnecting")
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(aisReconnectWait):
			}
		}
	}()
	return nil
}

// Stop tears down the stream loop and waits for it to exit
func (a *VesselTrackingAdapter) Stop() {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (a *VesselTrackingAdapter) streamOnce(ctx context.Context, events chan<- domain.RawEvent) error {
	url := wsURL(a.cfg.BaseURL)
	header := map[string][]string{"Authorization": {"Bearer " + a.cfg.APIKey}}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(aisReadDeadline))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var msg aisMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Debug().Err(err).Msg("Skipping malformed AIS message")
			continue
		}
		ev, ok := a.toEvent(msg)
		if !ok {
			continue
		}

		a.mu.Lock()
		a.recent = append(a.recent, ev)
		if len(a.recent) > aisRecentBuffer {
			a.recent = a.recent[len(a.recent)-aisRecentBuffer:]
		}
		a.mu.Unlock()

		select {
		case events <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (a *VesselTrackingAdapter) toEvent(msg aisMessage) (domain.RawEvent, bool) {
	if msg.MMSI == "" {
		return domain.RawEvent{}, false
	}

	observed := time.Now().UTC()
	if ts, err := time.Parse(time.RFC3339, msg.Timestamp); err == nil {
		observed = ts.UTC()
	}

	title := fmt.Sprintf("Vessel %s transiting %s", msg.ShipName, msg.Zone)
	if msg.Zone == "" {
		title = fmt.Sprintf("Vessel %s underway to %s", msg.ShipName, msg.Destination)
	}

	ev := domain.NewRawEvent(fmt.Sprintf("ais-%s-%d", msg.MMSI, observed.Unix()), domain.SourceVesselTracking, title, observed)
	ev.Description = fmt.Sprintf("%s (%s) reported at %.4f,%.4f destination %s", msg.ShipName, msg.ShipType, msg.Lat, msg.Lon, msg.Destination)
	ev.Keywords = []string{"shipping", "vessel", strings.ToLower(msg.ShipType)}
	if msg.Zone != "" {
		ev.InferredLocations = []domain.Location{{Name: msg.Zone, Lat: msg.Lat, Lon: msg.Lon}}
	}
	return ev, true
}

// HealthCheck reports tracker state; the stream loop feeds it indirectly
// via the recent buffer, so staleness shows up as UNKNOWN.
func (a *VesselTrackingAdapter) HealthCheck(_ context.Context) Health {
	h := a.guard.healthOf()
	a.mu.Lock()
	h.Metadata["buffered_events"] = len(a.recent)
	a.mu.Unlock()
	return h
}

func wsURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return base
	}
}
