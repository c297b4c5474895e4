// Package transport fans session and queue events out to connected clients.
// It carries no game logic: the coordinator publishes, the hub routes.
package transport

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/tempo-chess/tempo/pkg/logging"
)

const TopicAdmins = "admins"

func SessionTopic(sessionId string) string { return "session:" + sessionId }

func PlayerTopic(participantId string) string { return "player:" + participantId }

// Event is one outbound message on a topic.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEvent marshals payload into an Event. Marshal failures are programming
// errors on our own payload types and surface as an empty data field.
func NewEvent(eventType string, payload any) Event {
	data, err := json.Marshal(payload)
	if err != nil {
		logging.Error("failed to marshal event payload",
			zap.String("event_type", eventType),
			zap.Error(err),
		)
		return Event{Type: eventType}
	}
	return Event{Type: eventType, Data: data}
}

// Publisher is the transport surface the coordinator depends on.
type Publisher interface {
	Publish(topic string, event Event)
}

// Hub routes events to topic subscribers in publish order. A subscriber that
// cannot keep up is dropped rather than allowed to stall the publisher.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		topics: make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) Subscribe(client *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subscribers, ok := h.topics[topic]
	if !ok {
		subscribers = make(map[*Client]struct{})
		h.topics[topic] = subscribers
	}
	subscribers[client] = struct{}{}
	client.topics[topic] = struct{}{}
}

func (h *Hub) Unsubscribe(client *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(client, topic)
}

// Detach removes the client from every topic it joined.
func (h *Hub) Detach(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for topic := range client.topics {
		h.dropLocked(client, topic)
	}
}

func (h *Hub) dropLocked(client *Client, topic string) {
	if subscribers, ok := h.topics[topic]; ok {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.topics, topic)
		}
	}
	delete(client.topics, topic)
}

func (h *Hub) Publish(topic string, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		logging.Error("failed to marshal event", zap.Error(err))
		return
	}
	h.publishRaw(topic, data)
}

func (h *Hub) publishRaw(topic string, data []byte) {
	h.mu.RLock()
	subscribers := make([]*Client, 0, len(h.topics[topic]))
	for client := range h.topics[topic] {
		subscribers = append(subscribers, client)
	}
	h.mu.RUnlock()

	for _, client := range subscribers {
		if !client.enqueue(data) {
			logging.Warn("dropping slow subscriber", zap.String("topic", topic))
			h.Detach(client)
			client.Close()
		}
	}
}
