// internal/chat/client.go

package chat

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
)

// Frame is the envelope for client-originated websocket traffic.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	frameReceipt    = "receipt"
	frameRead       = "read"
	frameTyping     = "typing"
	frameStopTyping = "stop_typing"
)

type typingFrame struct {
	ConversationID string `json:"conversation_id"`
	ToUserID       string `json:"to_user_id"`
	FromUserID     string `json:"from_user_id,omitempty"`
}

// Client is one websocket connection for one authenticated user.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	userID  string
	service Service
	log     *zap.SugaredLogger

	closeOnce chan struct{}
}

func NewClient(hub *Hub, conn *websocket.Conn, userID string, service Service, log *zap.SugaredLogger) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, 256),
		userID:    userID,
		service:   service,
		log:       log,
		closeOnce: make(chan struct{}),
	}
}

func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

func (c *Client) Close() {
	select {
	case <-c.closeOnce:
	default:
		close(c.closeOnce)
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.requestUnregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Debugw("websocket read error", "user_id", c.userID, "error", err)
			}
			return
		}

		c.processFrame(message)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Drain queued frames into the same write
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.closeOnce:
			return
		}
	}
}

func (c *Client) processFrame(data []byte) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.log.Debugw("malformed websocket frame", "user_id", c.userID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch frame.Type {
	case frameReceipt:
		var req ReceiptRequest
		if err := json.Unmarshal(frame.Data, &req); err != nil {
			return
		}
		if _, err := c.service.ReportDeliveryReceipt(ctx, c.userID, &req); err != nil {
			c.log.Debugw("websocket receipt rejected", "user_id", c.userID, "error", err)
		}

	case frameRead:
		var req MarkReadRequest
		if err := json.Unmarshal(frame.Data, &req); err != nil {
			return
		}
		if err := c.service.MarkMessagesRead(ctx, c.userID, &req); err != nil {
			c.log.Debugw("websocket mark-read rejected", "user_id", c.userID, "error", err)
		}

	case frameTyping, frameStopTyping:
		c.relayTyping(frame)

	default:
		c.log.Debugw("unknown websocket frame type", "type", frame.Type)
	}
}

// relayTyping forwards a typing indicator straight to the peer when
// they are connected to this instance. Indicators are ephemeral so
// cross-instance fanout is not worth a round trip through redis.
func (c *Client) relayTyping(frame Frame) {
	var t typingFrame
	if err := json.Unmarshal(frame.Data, &t); err != nil || t.ToUserID == "" {
		return
	}

	t.FromUserID = c.userID
	payload, err := json.Marshal(t)
	if err != nil {
		return
	}
	out, err := json.Marshal(Frame{Type: frame.Type, Data: payload})
	if err != nil {
		return
	}

	c.hub.SendToUser(t.ToUserID, out)
}
