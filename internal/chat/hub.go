// internal/chat/hub.go

package chat

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Hub maintains active websocket connections and fans chat events out
// to the participants connected to this instance. Events arrive over
// the redis channel, so sends on other instances reach local clients
// too.
type Hub struct {
	clients    map[string]*Client
	clientsMux sync.RWMutex

	register   chan *Client
	unregister chan *Client

	service Service
	log     *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewHub(service Service, log *zap.SugaredLogger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		service:    service,
		log:        log,
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (h *Hub) Run() {
	defer h.cleanup()

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case <-h.ctx.Done():
			return
		}
	}
}

// Register hands a client to the hub loop. After shutdown the client is
// closed instead, so callers never block on a loop that has exited.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
		client.Close()
	}
}

func (h *Hub) requestUnregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
		client.Close()
	}
}

// ConsumeEvents pumps the redis subscription into connected clients.
// Runs until the hub shuts down or the subscription closes.
func (h *Hub) ConsumeEvents(pubsub *redis.PubSub) {
	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				h.log.Warnw("dropping malformed event", "error", err)
				continue
			}
			h.deliver(event)

		case <-h.ctx.Done():
			return
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.clientsMux.Lock()
	if old, exists := h.clients[client.userID]; exists {
		old.Close()
	}
	h.clients[client.userID] = client
	total := len(h.clients)
	h.clientsMux.Unlock()

	activeConnections.Set(float64(total))
	h.log.Infow("client connected", "user_id", client.userID, "total", total)
}

func (h *Hub) unregisterClient(client *Client) {
	h.clientsMux.Lock()
	if current, exists := h.clients[client.userID]; exists && current == client {
		client.Close()
		delete(h.clients, client.userID)
	}
	total := len(h.clients)
	h.clientsMux.Unlock()

	activeConnections.Set(float64(total))
	h.log.Infow("client disconnected", "user_id", client.userID, "total", total)
}

// deliver pushes an event to every connected recipient. A live delivery
// of a new message doubles as a delivered receipt for that recipient.
func (h *Hub) deliver(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	for _, userID := range event.Recipients {
		h.clientsMux.RLock()
		client, online := h.clients[userID]
		h.clientsMux.RUnlock()

		if !online {
			continue
		}

		select {
		case client.send <- data:
			if event.Type == EventMessageCreated {
				h.reportLiveDelivery(userID, event.Payload)
			}
		default:
			go h.requestUnregister(client)
		}
	}
}

func (h *Hub) reportLiveDelivery(userID string, payload json.RawMessage) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return
	}
	if msg.ToUserID != userID {
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		_, err := h.service.ReportDeliveryReceipt(h.ctx, userID, &ReceiptRequest{
			MessageID: msg.ID,
			Status:    string(StatusDelivered),
		})
		if err != nil {
			h.log.Debugw("live delivery receipt failed", "message_id", msg.ID, "error", err)
		}
	}()
}

// SendToUser delivers a raw frame to a single connected user. Used for
// typing indicators, which are ephemeral and never persisted.
func (h *Hub) SendToUser(userID string, data []byte) {
	h.clientsMux.RLock()
	client, online := h.clients[userID]
	h.clientsMux.RUnlock()

	if !online {
		return
	}

	select {
	case client.send <- data:
	default:
		go h.requestUnregister(client)
	}
}

func (h *Hub) IsUserOnline(userID string) bool {
	h.clientsMux.RLock()
	defer h.clientsMux.RUnlock()

	_, exists := h.clients[userID]
	return exists
}

func (h *Hub) ActiveConnections() int {
	h.clientsMux.RLock()
	defer h.clientsMux.RUnlock()
	return len(h.clients)
}

func (h *Hub) cleanup() {
	h.clientsMux.Lock()
	for _, client := range h.clients {
		client.Close()
	}
	h.clients = make(map[string]*Client)
	h.clientsMux.Unlock()

	h.wg.Wait()
}

func (h *Hub) Shutdown() {
	h.cancel()
	h.wg.Wait()
}
