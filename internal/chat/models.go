// internal/chat/models.go

package chat

import (
	"encoding/json"
	"time"
)

// MessageType distinguishes the three supported payload kinds.
type MessageType string

const (
	TypeText  MessageType = "text"
	TypeImage MessageType = "image"
	TypeVoice MessageType = "voice"
)

// ReceiptStatus is the per-recipient delivery state of a message.
type ReceiptStatus string

const (
	StatusDelivered ReceiptStatus = "delivered"
	StatusRead      ReceiptStatus = "read"
	StatusFailed    ReceiptStatus = "failed"
)

// Message is an append-only chat message. Rows are immutable once
// created except the soft edit/delete flags (sender-only) and read_at
// (recipient-only).
type Message struct {
	ID             int64       `json:"id" db:"id"`
	ConversationID string      `json:"conversation_id" db:"conversation_id"`
	FromUserID     string      `json:"from_user_id" db:"from_user_id"`
	ToUserID       string      `json:"to_user_id" db:"to_user_id"`
	Text           string      `json:"text" db:"text"`
	Type           MessageType `json:"type" db:"type"`
	MediaKey       *string     `json:"-" db:"media_key"`
	Duration       *int        `json:"duration,omitempty" db:"duration"`
	FileSize       *int64      `json:"file_size,omitempty" db:"file_size"`
	MimeType       *string     `json:"mime_type,omitempty" db:"mime_type"`
	Width          *int        `json:"width,omitempty" db:"width"`
	Height         *int        `json:"height,omitempty" db:"height"`
	ReplyToID      *int64      `json:"reply_to_message_id,omitempty" db:"reply_to_message_id"`
	IsEdited       bool        `json:"is_edited" db:"is_edited"`
	EditedAt       *time.Time  `json:"edited_at,omitempty" db:"edited_at"`
	IsDeleted      bool        `json:"is_deleted" db:"is_deleted"`
	DeletedAt      *time.Time  `json:"deleted_at,omitempty" db:"deleted_at"`
	ReadAt         *time.Time  `json:"read_at,omitempty" db:"read_at"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`

	// Computed fields
	MediaURL string `json:"media_url,omitempty" db:"-"`
	IsRead   bool   `json:"is_read" db:"-"`
}

// Receipt is the per-(message, recipient) delivery record. Status moves
// delivered -> read, never backwards; failed is an independent terminal
// report. deliveredAt/readAt are first-write-wins.
type Receipt struct {
	MessageID   int64         `json:"message_id" db:"message_id"`
	UserID      string        `json:"user_id" db:"user_id"`
	Status      ReceiptStatus `json:"status" db:"status"`
	DeliveredAt *time.Time    `json:"delivered_at,omitempty" db:"delivered_at"`
	ReadAt      *time.Time    `json:"read_at,omitempty" db:"read_at"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at" db:"updated_at"`
}

// Conversation is the denormalized listing projection: derived state,
// rebuilt on every accepted send, never consulted for authorization.
type Conversation struct {
	ConversationID     string    `json:"conversation_id" db:"conversation_id"`
	UserAID            string    `json:"-" db:"user_a_id"`
	UserBID            string    `json:"-" db:"user_b_id"`
	LastMessageID      *int64    `json:"last_message_id,omitempty" db:"last_message_id"`
	LastMessagePreview *string   `json:"last_message_preview,omitempty" db:"last_message_preview"`
	LastActivity       time.Time `json:"last_activity" db:"last_activity"`
	UnreadA            int       `json:"-" db:"unread_a"`
	UnreadB            int       `json:"-" db:"unread_b"`

	// Computed fields
	Participants [2]string `json:"participants" db:"-"`
	UnreadCount  int       `json:"unread_count" db:"-"`
}

// ForViewer fills the viewer-relative computed fields.
func (c *Conversation) ForViewer(userID string) *Conversation {
	c.Participants = [2]string{c.UserAID, c.UserBID}
	if userID == c.UserAID {
		c.UnreadCount = c.UnreadA
	} else {
		c.UnreadCount = c.UnreadB
	}
	return c
}

// MessagePage is one page of a conversation history, ascending by time.
type MessagePage struct {
	Messages []*Message `json:"messages"`
	HasMore  bool       `json:"has_more"`
}

// Request DTOs

type SendTextRequest struct {
	ConversationID string `json:"conversation_id" validate:"required"`
	ToUserID       string `json:"to_user_id" validate:"required"`
	Text           string `json:"text" validate:"required"`
	ReplyToID      *int64 `json:"reply_to_message_id,omitempty"`
}

type SendImageRequest struct {
	ConversationID string `json:"conversation_id" validate:"required"`
	ToUserID       string `json:"to_user_id" validate:"required"`
	Caption        string `json:"caption,omitempty"`
}

type SendVoiceRequest struct {
	ConversationID  string `json:"conversation_id" validate:"required"`
	ToUserID        string `json:"to_user_id" validate:"required"`
	DurationSeconds int    `json:"duration_seconds" validate:"required,min=1"`
}

type ReceiptRequest struct {
	MessageID int64  `json:"message_id" validate:"required"`
	Status    string `json:"status" validate:"required,oneof=delivered read failed"`
	Reason    string `json:"reason,omitempty"`
}

type MarkReadRequest struct {
	ConversationID string  `json:"conversation_id" validate:"required"`
	MessageIDs     []int64 `json:"message_ids" validate:"required,min=1"`
}

type EditMessageRequest struct {
	Text string `json:"text" validate:"required"`
}

// Event is the wire shape published on the notification bus after an
// accepted append or receipt update.
type Event struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversation_id"`
	Recipients     []string        `json:"recipients,omitempty"`
	Payload        json.RawMessage `json:"payload"`
	Timestamp      time.Time       `json:"timestamp"`
}

const (
	EventMessageCreated = "message"
	EventReceiptUpdated = "receipt"
	EventMessageEdited  = "message_edited"
	EventMessageDeleted = "message_deleted"
)
