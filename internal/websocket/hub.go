package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"emergency-dispatch-be/internal/dto"
	"emergency-dispatch-be/internal/mapper"
	"emergency-dispatch-be/internal/pkg/logger"
	"emergency-dispatch-be/pkg/emergency/escalation"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	module         = "Hub"
	clusterChannel = "cluster_events"
)

// clusterMessage is what instances exchange over redis so every dispatcher
// sees every session regardless of which instance it is connected to.
type clusterMessage struct {
	Origin    string          `json:"origin"`
	SessionId string          `json:"session_id"`
	Message   json.RawMessage `json:"message"`
}

// Hub fans session snapshots out to connected dispatcher and citizen feeds.
// It implements escalation.Observer.
type Hub struct {
	// Registered clients, a citizen client only follows one session
	clients map[*Client]struct{}

	register chan *Client

	mu sync.RWMutex

	// Redis connection for cross-instance communication
	rdb      *redis.Client
	instance string
	ready    chan struct{}

	sessions *mapper.SessionMapper
	resp     *mapper.ResponderMapper
	logger   logger.ILogger
}

func NewHub(rdb *redis.Client, log logger.ILogger) *Hub {
	return &Hub{
		clients:  make(map[*Client]struct{}),
		register: make(chan *Client),
		rdb:      rdb,
		instance: uuid.NewString(),
		ready:    make(chan struct{}),
		sessions: mapper.NewSessionMapper(),
		resp:     mapper.NewResponderMapper(),
		logger:   log,
	}
}

// Ready is closed once the hub listens for other instances (immediately without redis).
func (h *Hub) Ready() <-chan struct{} {
	return h.ready
}

func (h *Hub) Run(ctx context.Context) {
	if h.rdb != nil {
		go h.subscribeToRedis(ctx)
	} else {
		close(h.ready)
	}

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			h.mu.Unlock()
			h.logger.Info(module, "Client registered", map[string]interface{}{
				"subscriber": client.SubscriberId,
				"session_id": client.SessionId,
			})
		}
	}
}

// Notify pushes the update to local feeds and to the other instances.
func (h *Hub) Notify(ctx context.Context, update escalation.Update) error {
	data, err := json.Marshal(dto.SessionEvent{
		Type:       "session",
		Event:      update.Event,
		Data:       h.sessions.ToResponse(&update.Session),
		Responders: h.resp.ToResponses(update.Responders),
		At:         update.At,
	})
	if err != nil {
		return err
	}

	h.deliver(update.Session.Id, data)

	if h.rdb == nil {
		return nil
	}
	payload, err := json.Marshal(clusterMessage{
		Origin:    h.instance,
		SessionId: update.Session.Id,
		Message:   data,
	})
	if err != nil {
		return err
	}
	return h.rdb.Publish(ctx, clusterChannel, payload).Err()
}

// ClientCount is used by health checks.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// deliver sends while holding the read lock, Send is only closed under the write lock.
func (h *Hub) deliver(sessionId string, data []byte) {
	var slow []*Client
	h.mu.RLock()
	for client := range h.clients {
		if !client.follows(sessionId) {
			continue
		}
		select {
		case client.Send <- data:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.logger.Warn(module, "Client send buffer full, dropping client", map[string]interface{}{
			"subscriber": client.SubscriberId,
		})
		h.remove(client)
	}
}

// remove closes the client's queue exactly once.
func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.Send)
	h.logger.Info(module, "Client unregistered", map[string]interface{}{"subscriber": client.SubscriberId})
}

func (h *Hub) subscribeToRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, clusterChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		h.logger.Error(module, "Failed to subscribe to cluster events", map[string]interface{}{"error": err.Error()})
		close(h.ready)
		return
	}
	close(h.ready)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var payload clusterMessage
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				h.logger.Warn(module, "Redis message parse error", map[string]interface{}{"error": err.Error()})
				continue
			}
			// Local clients already got it
			if payload.Origin == h.instance {
				continue
			}
			h.deliver(payload.SessionId, payload.Message)
		}
	}
}
