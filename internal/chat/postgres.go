// internal/chat/postgres.go

package chat

import (
	"context"
	"database/sql"
	"time"
	"unicode/utf8"

	"github.com/jmoiron/sqlx"

	"github.com/pairlyhq/pairly-backend/internal/conversation"
	"github.com/pairlyhq/pairly-backend/internal/plan"
	"github.com/pairlyhq/pairly-backend/pkg/apperrors"
)

type postgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

// CreateMessage appends a message. The id and created_at are assigned
// atomically by the database so concurrent sends into one conversation
// get a total order without client-side sequencing.
func (r *postgresRepository) CreateMessage(ctx context.Context, message *Message) error {
	query := `
        INSERT INTO messages (
            conversation_id, from_user_id, to_user_id, text, type,
            media_key, duration, file_size, mime_type, width, height,
            reply_to_message_id, created_at
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now()
        ) RETURNING id, created_at`

	err := r.db.QueryRowxContext(
		ctx, query,
		message.ConversationID, message.FromUserID, message.ToUserID,
		message.Text, message.Type, message.MediaKey, message.Duration,
		message.FileSize, message.MimeType, message.Width, message.Height,
		message.ReplyToID,
	).Scan(&message.ID, &message.CreatedAt)
	if err != nil {
		return apperrors.Storage("failed to append message", err)
	}

	return nil
}

func (r *postgresRepository) GetMessage(ctx context.Context, id int64) (*Message, error) {
	var msg Message
	query := `SELECT * FROM messages WHERE id = $1`

	err := r.db.GetContext(ctx, &msg, query, id)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("message not found")
	}
	if err != nil {
		return nil, apperrors.Storage("failed to load message", err)
	}

	msg.IsRead = msg.ReadAt != nil
	return &msg, nil
}

// GetConversationMessages returns up to limit messages older than
// before, newest first. Callers reverse into display order and use the
// oldest row as the next cursor.
func (r *postgresRepository) GetConversationMessages(ctx context.Context, conversationID string, before time.Time, limit int) ([]*Message, error) {
	query := `
        SELECT * FROM messages
        WHERE conversation_id = $1
          AND created_at < $2
          AND is_deleted = false
        ORDER BY created_at DESC, id DESC
        LIMIT $3`

	rows, err := r.db.QueryxContext(ctx, query, conversationID, before, limit)
	if err != nil {
		return nil, apperrors.Storage("failed to load messages", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var msg Message
		if err := rows.StructScan(&msg); err != nil {
			return nil, apperrors.Storage("failed to scan message", err)
		}
		msg.IsRead = msg.ReadAt != nil
		messages = append(messages, &msg)
	}

	return messages, rows.Err()
}

// CountVoiceMessagesSince is the authoritative rolling-window count
// behind the voice quota.
func (r *postgresRepository) CountVoiceMessagesSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	query := `
        SELECT COUNT(*) FROM messages
        WHERE from_user_id = $1 AND type = 'voice' AND created_at > $2`

	if err := r.db.GetContext(ctx, &count, query, userID, since); err != nil {
		return 0, apperrors.Storage("failed to count voice messages", err)
	}
	return count, nil
}

// MarkMessageRead sets read_at once. Returns false when the message was
// already read, so unread counters are only decremented on the first
// transition.
func (r *postgresRepository) MarkMessageRead(ctx context.Context, messageID int64, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET read_at = $2 WHERE id = $1 AND read_at IS NULL`,
		messageID, at,
	)
	if err != nil {
		return false, apperrors.Storage("failed to mark message read", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperrors.Storage("failed to mark message read", err)
	}
	return n > 0, nil
}

func (r *postgresRepository) SetMessageEdited(ctx context.Context, messageID int64, text string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE messages SET text = $2, is_edited = true, edited_at = $3 WHERE id = $1`,
		messageID, text, at,
	)
	if err != nil {
		return apperrors.Storage("failed to edit message", err)
	}
	return nil
}

func (r *postgresRepository) SetMessageDeleted(ctx context.Context, messageID int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE messages SET is_deleted = true, deleted_at = $2 WHERE id = $1`,
		messageID, at,
	)
	if err != nil {
		return apperrors.Storage("failed to delete message", err)
	}
	return nil
}

// UpsertReceipt creates or advances the (message, recipient) receipt.
// Status never regresses from read, and the per-status timestamps are
// first-write-wins, which makes the operation idempotent.
func (r *postgresRepository) UpsertReceipt(ctx context.Context, receipt *Receipt) (*Receipt, error) {
	query := `
        INSERT INTO message_receipts (message_id, user_id, status, delivered_at, read_at, created_at, updated_at)
        VALUES (
            $1, $2, $3,
            CASE WHEN $3 IN ('delivered', 'read') THEN now() END,
            CASE WHEN $3 = 'read' THEN now() END,
            now(), now()
        )
        ON CONFLICT (message_id, user_id) DO UPDATE SET
            status = CASE
                WHEN message_receipts.status = 'read' THEN message_receipts.status
                ELSE EXCLUDED.status
            END,
            delivered_at = COALESCE(message_receipts.delivered_at, EXCLUDED.delivered_at),
            read_at = COALESCE(message_receipts.read_at, EXCLUDED.read_at),
            updated_at = now()
        RETURNING message_id, user_id, status, delivered_at, read_at, created_at, updated_at`

	var out Receipt
	err := r.db.QueryRowxContext(ctx, query, receipt.MessageID, receipt.UserID, receipt.Status).StructScan(&out)
	if err != nil {
		return nil, apperrors.Storage("failed to upsert receipt", err)
	}
	return &out, nil
}

func (r *postgresRepository) GetReceipt(ctx context.Context, messageID int64, userID string) (*Receipt, error) {
	var receipt Receipt
	query := `SELECT * FROM message_receipts WHERE message_id = $1 AND user_id = $2`

	err := r.db.GetContext(ctx, &receipt, query, messageID, userID)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("receipt not found")
	}
	if err != nil {
		return nil, apperrors.Storage("failed to load receipt", err)
	}
	return &receipt, nil
}

// UpsertConversationProjection merges an accepted message into the
// denormalized listing row and bumps the recipient's unread counter.
func (r *postgresRepository) UpsertConversationProjection(ctx context.Context, message *Message) error {
	userA, userB, err := conversation.ParseID(message.ConversationID)
	if err != nil {
		return err
	}

	unreadA, unreadB := 0, 0
	if message.ToUserID == userA {
		unreadA = 1
	} else {
		unreadB = 1
	}

	query := `
        INSERT INTO conversations (
            conversation_id, user_a_id, user_b_id,
            last_message_id, last_message_preview, last_activity,
            unread_a, unread_b
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (conversation_id) DO UPDATE SET
            last_message_id = EXCLUDED.last_message_id,
            last_message_preview = EXCLUDED.last_message_preview,
            last_activity = EXCLUDED.last_activity,
            unread_a = conversations.unread_a + $7,
            unread_b = conversations.unread_b + $8`

	_, err = r.db.ExecContext(
		ctx, query,
		message.ConversationID, userA, userB,
		message.ID, previewFor(message), message.CreatedAt,
		unreadA, unreadB,
	)
	if err != nil {
		return apperrors.Storage("failed to update conversation projection", err)
	}
	return nil
}

// AddUnread adjusts a participant's unread counter, clamped at zero.
func (r *postgresRepository) AddUnread(ctx context.Context, conversationID, userID string, delta int) error {
	query := `
        UPDATE conversations SET
            unread_a = CASE WHEN user_a_id = $2 THEN GREATEST(0, unread_a + $3) ELSE unread_a END,
            unread_b = CASE WHEN user_b_id = $2 THEN GREATEST(0, unread_b + $3) ELSE unread_b END
        WHERE conversation_id = $1`

	_, err := r.db.ExecContext(ctx, query, conversationID, userID, delta)
	if err != nil {
		return apperrors.Storage("failed to update unread count", err)
	}
	return nil
}

func (r *postgresRepository) GetConversation(ctx context.Context, conversationID string) (*Conversation, error) {
	var conv Conversation
	query := `SELECT * FROM conversations WHERE conversation_id = $1`

	err := r.db.GetContext(ctx, &conv, query, conversationID)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("conversation not found")
	}
	if err != nil {
		return nil, apperrors.Storage("failed to load conversation", err)
	}
	return &conv, nil
}

func (r *postgresRepository) ListConversations(ctx context.Context, userID string, limit, offset int) ([]*Conversation, error) {
	query := `
        SELECT * FROM conversations
        WHERE user_a_id = $1 OR user_b_id = $1
        ORDER BY last_activity DESC
        LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryxContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, apperrors.Storage("failed to list conversations", err)
	}
	defer rows.Close()

	var conversations []*Conversation
	for rows.Next() {
		var conv Conversation
		if err := rows.StructScan(&conv); err != nil {
			return nil, apperrors.Storage("failed to scan conversation", err)
		}
		conversations = append(conversations, conv.ForViewer(userID))
	}

	return conversations, rows.Err()
}

func (r *postgresRepository) BlockUser(ctx context.Context, blockerID, blockedID string) error {
	query := `
        INSERT INTO user_blocks (blocker_id, blocked_id, created_at)
        VALUES ($1, $2, now())
        ON CONFLICT (blocker_id, blocked_id) DO NOTHING`

	if _, err := r.db.ExecContext(ctx, query, blockerID, blockedID); err != nil {
		return apperrors.Storage("failed to block user", err)
	}
	return nil
}

func (r *postgresRepository) UnblockUser(ctx context.Context, blockerID, blockedID string) error {
	query := `DELETE FROM user_blocks WHERE blocker_id = $1 AND blocked_id = $2`

	if _, err := r.db.ExecContext(ctx, query, blockerID, blockedID); err != nil {
		return apperrors.Storage("failed to unblock user", err)
	}
	return nil
}

// IsBlockedEither checks both directions; a block either way closes the
// conversation.
func (r *postgresRepository) IsBlockedEither(ctx context.Context, userA, userB string) (bool, error) {
	var blocked bool
	query := `
        SELECT EXISTS(
            SELECT 1 FROM user_blocks
            WHERE (blocker_id = $1 AND blocked_id = $2)
               OR (blocker_id = $2 AND blocked_id = $1)
        )`

	if err := r.db.GetContext(ctx, &blocked, query, userA, userB); err != nil {
		return false, apperrors.Storage("failed to check block state", err)
	}
	return blocked, nil
}

// GetUserPlan reads the authoritative subscription tier. An unknown
// user degrades to the free tier rather than failing the request.
func (r *postgresRepository) GetUserPlan(ctx context.Context, userID string) (string, error) {
	var planValue string
	query := `SELECT subscription_plan FROM users WHERE id = $1`

	err := r.db.GetContext(ctx, &planValue, query, userID)
	if err == sql.ErrNoRows {
		return string(plan.Free), nil
	}
	if err != nil {
		return "", apperrors.Storage("failed to load subscription plan", err)
	}
	return planValue, nil
}

const previewLength = 80

func previewFor(message *Message) string {
	switch message.Type {
	case TypeImage:
		return "Sent a photo"
	case TypeVoice:
		return "Sent a voice message"
	default:
		text := message.Text
		if utf8.RuneCountInString(text) > previewLength {
			runes := []rune(text)
			text = string(runes[:previewLength])
		}
		return text
	}
}
