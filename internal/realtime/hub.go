package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// Hub maintains event_id -> set of dashboard connections and broadcasts
// booking and check-in activity to them. Uses Redis pub/sub for horizontal
// scaling: local broadcast + publish to Redis.
type Hub struct {
	// eventID -> map[clientID]*Client
	rooms    map[uuid.UUID]map[string]*Client
	subs     map[uuid.UUID]func() // cancel Redis subscription per event
	mu       sync.RWMutex
	logger   *zap.Logger
	redis    Publisher
	redisSub Subscriber
}

// Publisher publishes to Redis for cross-instance broadcast.
type Publisher interface {
	PublishEvent(eventID uuid.UUID, kind string, payload []byte) error
}

// Subscriber subscribes to event channels and invokes handler for incoming messages.
type Subscriber interface {
	SubscribeEvent(eventID uuid.UUID, handler func(kind string, payload []byte)) (cancel func(), err error)
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *zap.Logger, redisPub Publisher, redisSub Subscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		rooms:    make(map[uuid.UUID]map[string]*Client),
		subs:     make(map[uuid.UUID]func()),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
	}
}

// Register adds a client to an event room. Starts the Redis subscription
// for this event if it is the first client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.rooms[c.EventID] == nil {
		h.rooms[c.EventID] = make(map[string]*Client)
		if h.redisSub != nil {
			cancel, err := h.redisSub.SubscribeEvent(c.EventID, func(kind string, payload []byte) {
				h.Broadcast(c.EventID, kind, json.RawMessage(payload))
			})
			if err == nil {
				h.subs[c.EventID] = cancel
			}
		}
	}
	h.rooms[c.EventID][c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("dashboard client joined",
		zap.String("client_id", c.ID), zap.String("event_id", c.EventID.String()))
}

// Unregister removes a client from an event room. Cancels the Redis
// subscription when the last client leaves.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if m, ok := h.rooms[c.EventID]; ok {
		delete(m, c.ID)
		if len(m) == 0 {
			delete(h.rooms, c.EventID)
			if cancel, ok := h.subs[c.EventID]; ok {
				cancel()
				delete(h.subs, c.EventID)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("dashboard client left",
		zap.String("client_id", c.ID), zap.String("event_id", c.EventID.String()))
}

// Broadcast sends a message to all clients watching an event (local only).
func (h *Hub) Broadcast(eventID uuid.UUID, kind string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		data, _ = json.Marshal(payload)
	}
	msg := WSMessage{Event: kind, Data: data}

	h.mu.RLock()
	clients := h.rooms[eventID]
	h.mu.RUnlock()

	if clients == nil {
		return
	}
	for _, c := range clients {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// Publish sends to local clients and publishes to Redis for other
// instances. This is the Notifier the booking and check-in services call.
func (h *Hub) Publish(_ context.Context, eventID uuid.UUID, kind string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	h.Broadcast(eventID, kind, json.RawMessage(data))
	if h.redis != nil {
		_ = h.redis.PublishEvent(eventID, kind, data)
	}
}

// AudienceCount returns the number of connected clients for an event.
func (h *Hub) AudienceCount(eventID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[eventID])
}
