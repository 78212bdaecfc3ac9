// internal/chat/notifier.go

package chat

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// EventChannel is the pub/sub channel carrying chat events to the
// websocket layer. Every API instance subscribes, so a recipient
// connected to a different instance than the sender still gets the
// event.
const EventChannel = "chat:events"

// Notifier delivers best-effort post-append notifications. Failures are
// logged and ignored; they never affect the stored message.
type Notifier interface {
	Notify(event Event)
}

type redisNotifier struct {
	client *redis.Client
	log    *zap.SugaredLogger
}

func NewRedisNotifier(client *redis.Client, log *zap.SugaredLogger) Notifier {
	return &redisNotifier{client: client, log: log}
}

func (n *redisNotifier) Notify(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		n.log.Errorw("failed to marshal event", "type", event.Type, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := n.client.Publish(ctx, EventChannel, data).Err(); err != nil {
		n.log.Warnw("failed to publish event",
			"type", event.Type,
			"conversation_id", event.ConversationID,
			"error", err,
		)
	}
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) Notify(Event) {}
