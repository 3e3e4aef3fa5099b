package broadcast

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/omen-systems/omen/internal/domain"
)

// SignalChannel is the Redis pub/sub channel for signal fan-out
const SignalChannel = "omen:realtime:signals"

const publishTimeout = 2 * time.Second

// envelope wraps a signal with the publishing instance so subscribers can
// skip their own messages.
type envelope struct {
	InstanceID string             `json:"instance_id"`
	Signal     domain.SignalEvent `json:"signal"`
}

// Distributor extends the local hub across instances through Redis
// pub/sub. Each instance publishes its own signals and relays everyone
// else's to its local WebSocket clients.
type Distributor struct {
	rdb        *redis.Client
	hub        *Hub
	instanceID string
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewDistributor builds the distributor around an existing hub
func NewDistributor(rdb *redis.Client, hub *Hub, instanceID string) *Distributor {
	return &Distributor{
		rdb:        rdb,
		hub:        hub,
		instanceID: instanceID,
		done:       make(chan struct{}),
	}
}

// Broadcast sends to local clients and publishes for the other instances.
// Redis being down degrades to local-only fan-out.
func (d *Distributor) Broadcast(event domain.SignalEvent) {
	d.hub.Broadcast(event)

	payload, err := json.Marshal(envelope{InstanceID: d.instanceID, Signal: event})
	if err != nil {
		log.Error().Err(err).Str("signal_id", event.SignalID).Msg("Fan-out encode failed")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := d.rdb.Publish(ctx, SignalChannel, payload).Err(); err != nil {
		log.Warn().Err(err).Msg("Redis publish failed, local fan-out only")
	}
}

// Start subscribes to the signal channel and relays foreign messages to
// the local hub until Stop is called.
func (d *Distributor) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel

	sub := d.rdb.Subscribe(ctx, SignalChannel)
	go func() {
		defer close(d.done)
		defer sub.Close()

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				d.relay([]byte(msg.Payload))
			}
		}
	}()

	log.Info().Str("channel", SignalChannel).Str("instance_id", d.instanceID).Msg("Distributed fan-out started")
}

// Stop ends the subscription loop
func (d *Distributor) Stop() {
	if d.cancel == nil {
		return
	}
	d.cancel()
	<-d.done
}

// relay forwards a foreign envelope to local clients. Messages from this
// instance already went out through the hub and are skipped.
func (d *Distributor) relay(payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		log.Warn().Err(err).Msg("Unparseable fan-out envelope")
		return
	}
	if env.InstanceID == d.instanceID {
		return
	}
	d.hub.Broadcast(env.Signal)
}
