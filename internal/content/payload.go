// internal/content/payload.go
// Structural validation of inbound message payloads. A conversation id
// that does not match the one derived from the sender/recipient pair is
// treated as tampering, not as a benign input error.

package content

import (
	"github.com/pairlyhq/pairly-backend/internal/conversation"
	"github.com/pairlyhq/pairly-backend/pkg/apperrors"
)

// MessagePayload is the envelope every send operation shares.
type MessagePayload struct {
	ConversationID string
	FromUserID     string
	ToUserID       string
}

// ValidateMessagePayload checks identifier shape, sender/recipient
// distinctness, and that the declared conversation id is exactly the
// derived one.
func ValidateMessagePayload(p MessagePayload) error {
	if !conversation.IsValidUserID(p.FromUserID) {
		return apperrors.InvalidIdentifier("invalid sender identifier")
	}
	if !conversation.IsValidUserID(p.ToUserID) {
		return apperrors.InvalidIdentifier("invalid recipient identifier")
	}
	if p.FromUserID == p.ToUserID {
		return apperrors.InvalidIdentifier("sender and recipient must differ")
	}

	derived, err := conversation.DeriveID(p.FromUserID, p.ToUserID)
	if err != nil {
		return err
	}
	if p.ConversationID != derived {
		return apperrors.New(apperrors.CodeConversationMismatch, "conversation id does not match participants")
	}

	return nil
}
