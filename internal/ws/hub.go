package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/quocanhngo/tripzi/internal/model"
)

const redisChannel = "tripzi:events"

// Hub tracks the WebSocket connections of this instance and fans events out
// to them. Targeted events go through Redis Pub/Sub so a user connected to
// another instance still receives them.
type Hub struct {
	// userID -> connections (one user can have several devices)
	clients map[string]map[*Client]bool
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client

	// nil runs the hub on this instance only
	rdb *redis.Client

	onStatusChange func(userID string, online bool)
}

// NewHub creates a hub. rdb may be nil for a single-instance deployment.
func NewHub(rdb *redis.Client, onStatusChange func(userID string, online bool)) *Hub {
	return &Hub{
		clients:        make(map[string]map[*Client]bool),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		rdb:            rdb,
		onStatusChange: onStatusChange,
	}
}

// Run processes registrations until ctx is cancelled
func (h *Hub) Run(ctx context.Context) {
	if h.rdb != nil {
		go h.subscribeRedis(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

// Register queues a client for registration with the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	_, known := h.clients[client.UserID]
	if !known {
		h.clients[client.UserID] = make(map[*Client]bool)
	}
	h.clients[client.UserID][client] = true
	connections := len(h.clients[client.UserID])
	h.mu.Unlock()

	log.WithFields(log.Fields{"user_id": client.UserID, "connections": connections}).Info("✅ Client connected")
	if !known {
		h.announce(client.UserID, true)
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	wentOffline := false
	if clients, ok := h.clients[client.UserID]; ok {
		delete(clients, client)
		client.shutdown()
		if len(clients) == 0 {
			delete(h.clients, client.UserID)
			wentOffline = true
		}
	}
	h.mu.Unlock()

	log.WithField("user_id", client.UserID).Info("❌ Client disconnected")
	if wentOffline {
		h.announce(client.UserID, false)
	}
}

// announce publishes a presence change. Must be called without mu held.
func (h *Hub) announce(userID string, online bool) {
	if h.onStatusChange != nil {
		go h.onStatusChange(userID, online)
	}
	eventType := model.WSEventOffline
	if online {
		eventType = model.WSEventOnline
	}
	h.publish(&TargetedEvent{Event: &model.WSEvent{
		Type:    eventType,
		Payload: model.OnlineEvent{UserID: userID, IsOnline: online},
	}})
}

// SendToUser delivers an event to every connection of userID
func (h *Hub) SendToUser(userID string, event *model.WSEvent) {
	h.publish(&TargetedEvent{TargetUserIDs: []string{userID}, Event: event})
}

// SendToUsers delivers an event to every connection of each user
func (h *Hub) SendToUsers(userIDs []string, event *model.WSEvent) {
	if len(userIDs) == 0 {
		return
	}
	h.publish(&TargetedEvent{TargetUserIDs: userIDs, Event: event})
}

func (h *Hub) deliverLocal(targeted *TargetedEvent) {
	if targeted.Event == nil {
		return
	}
	data, err := json.Marshal(targeted.Event)
	if err != nil {
		log.WithError(err).Error("❌ Failed to marshal event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if len(targeted.TargetUserIDs) == 0 {
		for _, clients := range h.clients {
			h.enqueueLocked(clients, data)
		}
		return
	}
	for _, uid := range targeted.TargetUserIDs {
		if clients, ok := h.clients[uid]; ok {
			h.enqueueLocked(clients, data)
		}
	}
}

// enqueueLocked must be called with mu held. A connection whose buffer is
// full is dropped.
func (h *Hub) enqueueLocked(clients map[*Client]bool, data []byte) {
	for client := range clients {
		if !client.enqueue(data) {
			client.shutdown()
			delete(clients, client)
		}
	}
}

// IsUserOnline checks if a user has any active connections on this instance
func (h *Hub) IsUserOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

// OnlineUserIDs returns the users connected to this instance
func (h *Hub) OnlineUserIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	userIDs := make([]string, 0, len(h.clients))
	for userID := range h.clients {
		userIDs = append(userIDs, userID)
	}
	return userIDs
}

// ========== Redis Pub/Sub for Horizontal Scaling ==========

// TargetedEvent is the Pub/Sub envelope. No targets means every local client.
type TargetedEvent struct {
	TargetUserIDs []string       `json:"targetUserIds,omitempty"`
	Event         *model.WSEvent `json:"event"`
}

// publish must be called without mu held. Without Redis, events are
// delivered in the caller's goroutine so they keep their order.
func (h *Hub) publish(targeted *TargetedEvent) {
	if h.rdb == nil {
		h.deliverLocal(targeted)
		return
	}

	data, err := json.Marshal(targeted)
	if err != nil {
		log.WithError(err).Error("❌ Failed to marshal event for Redis")
		return
	}
	if err := h.rdb.Publish(context.Background(), redisChannel, data).Err(); err != nil {
		log.WithError(err).Error("❌ Failed to publish to Redis")
	}
}

func (h *Hub) subscribeRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, redisChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	log.Info("📡 Redis Pub/Sub subscriber started")

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var targeted TargetedEvent
			if err := json.Unmarshal([]byte(msg.Payload), &targeted); err != nil {
				log.WithError(err).Warn("⚠️ Dropping malformed Pub/Sub message")
				continue
			}
			h.deliverLocal(&targeted)
		}
	}
}
