// internal/chat/repository.go

package chat

import (
	"context"
	"time"
)

type Repository interface {
	// Messages
	CreateMessage(ctx context.Context, message *Message) error
	GetMessage(ctx context.Context, id int64) (*Message, error)
	GetConversationMessages(ctx context.Context, conversationID string, before time.Time, limit int) ([]*Message, error)
	CountVoiceMessagesSince(ctx context.Context, userID string, since time.Time) (int, error)
	MarkMessageRead(ctx context.Context, messageID int64, at time.Time) (bool, error)
	SetMessageEdited(ctx context.Context, messageID int64, text string, at time.Time) error
	SetMessageDeleted(ctx context.Context, messageID int64, at time.Time) error

	// Receipts
	UpsertReceipt(ctx context.Context, receipt *Receipt) (*Receipt, error)
	GetReceipt(ctx context.Context, messageID int64, userID string) (*Receipt, error)

	// Conversation projection
	UpsertConversationProjection(ctx context.Context, message *Message) error
	AddUnread(ctx context.Context, conversationID, userID string, delta int) error
	GetConversation(ctx context.Context, conversationID string) (*Conversation, error)
	ListConversations(ctx context.Context, userID string, limit, offset int) ([]*Conversation, error)

	// Blocking
	BlockUser(ctx context.Context, blockerID, blockedID string) error
	UnblockUser(ctx context.Context, blockerID, blockedID string) error
	IsBlockedEither(ctx context.Context, userA, userB string) (bool, error)

	// Users
	GetUserPlan(ctx context.Context, userID string) (string, error)
}
