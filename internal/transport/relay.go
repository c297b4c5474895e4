package transport

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tempo-chess/tempo/pkg/logging"
	"github.com/tempo-chess/tempo/pkg/utils"
)

const relayChannel = "tempo:events"

// Relay bridges hub events across processes over Redis pub/sub, so a
// participant connected to one coordinator instance still receives events
// published on another. Events carry an origin id to break echo loops.
type Relay struct {
	hub    *Hub
	rdb    *redis.Client
	origin string
}

type envelope struct {
	Origin string `json:"origin"`
	Topic  string `json:"topic"`
	Event  Event  `json:"event"`
}

func NewRelay(hub *Hub, rdb *redis.Client) *Relay {
	return &Relay{
		hub:    hub,
		rdb:    rdb,
		origin: utils.GenerateUUID(),
	}
}

// Publish delivers locally and forwards to the other instances.
func (r *Relay) Publish(topic string, event Event) {
	r.hub.Publish(topic, event)

	payload, err := json.Marshal(envelope{Origin: r.origin, Topic: topic, Event: event})
	if err != nil {
		logging.Error("failed to marshal relay envelope", zap.Error(err))
		return
	}
	if err := r.rdb.Publish(context.Background(), relayChannel, payload).Err(); err != nil {
		logging.Error("failed to publish relay event",
			zap.String("topic", topic),
			zap.Error(err),
		)
	}
}

// Run consumes remote events until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	pubsub := r.rdb.Subscribe(ctx, relayChannel)
	defer pubsub.Close()

	logging.Info("event relay started", zap.String("origin", r.origin))
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			logging.Info("event relay stopped")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				logging.Error("invalid relay payload", zap.Error(err))
				continue
			}
			if env.Origin == r.origin {
				continue
			}
			r.hub.Publish(env.Topic, env.Event)
		}
	}
}
