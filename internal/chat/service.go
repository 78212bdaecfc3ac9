// internal/chat/service.go

package chat

import (
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/pairlyhq/pairly-backend/internal/content"
	"github.com/pairlyhq/pairly-backend/internal/conversation"
	"github.com/pairlyhq/pairly-backend/internal/match"
	"github.com/pairlyhq/pairly-backend/internal/media"
	"github.com/pairlyhq/pairly-backend/internal/plan"
	"github.com/pairlyhq/pairly-backend/internal/ratelimit"
	"github.com/pairlyhq/pairly-backend/pkg/apperrors"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// MediaFile is an uploaded file as the handler layer hands it over:
// a seekable reader plus the declared metadata and a bounded head
// slice for signature sniffing.
type MediaFile struct {
	Reader   io.ReadSeeker
	Size     int64
	Mime     string
	Filename string
	Head     []byte
}

type Service interface {
	SendTextMessage(ctx context.Context, fromUserID string, req *SendTextRequest) (*Message, error)
	SendImageMessage(ctx context.Context, fromUserID string, req *SendImageRequest, file *MediaFile) (*Message, error)
	SendVoiceMessage(ctx context.Context, fromUserID string, req *SendVoiceRequest, file *MediaFile) (*Message, error)

	ReportDeliveryReceipt(ctx context.Context, userID string, req *ReceiptRequest) (*Receipt, error)
	MarkMessagesRead(ctx context.Context, userID string, req *MarkReadRequest) error

	ListMessages(ctx context.Context, userID, conversationID string, before time.Time, limit int) (*MessagePage, error)
	ListConversations(ctx context.Context, userID string, limit, offset int) ([]*Conversation, error)

	EditMessage(ctx context.Context, userID string, messageID int64, req *EditMessageRequest) (*Message, error)
	DeleteMessage(ctx context.Context, userID string, messageID int64) error

	BlockUser(ctx context.Context, blockerID, blockedID string) error
	UnblockUser(ctx context.Context, blockerID, blockedID string) error
}

type service struct {
	repo        Repository
	authorizer  *match.Authorizer
	sanitizer   *content.Sanitizer
	mediaValid  *media.Validator
	quota       *QuotaEnforcer
	planLimiter *ratelimit.PlanLimiter
	objects     media.ObjectStore
	notifier    Notifier
	log         *zap.SugaredLogger
}

func NewService(
	repo Repository,
	authorizer *match.Authorizer,
	sanitizer *content.Sanitizer,
	mediaValid *media.Validator,
	quota *QuotaEnforcer,
	planLimiter *ratelimit.PlanLimiter,
	objects media.ObjectStore,
	notifier Notifier,
	log *zap.SugaredLogger,
) Service {
	return &service{
		repo:        repo,
		authorizer:  authorizer,
		sanitizer:   sanitizer,
		mediaValid:  mediaValid,
		quota:       quota,
		planLimiter: planLimiter,
		objects:     objects,
		notifier:    notifier,
		log:         log,
	}
}

// admitSend runs the shared front half of the send pipeline: plan
// lookup, per-sender throttle, payload shape, mutual-match gate, block
// gate. Ordering matters: the plan lookup comes first only because the
// throttle ceilings depend on the tier; the heavier match and block
// queries run after the throttle and the cheap structural checks have
// admitted the request.
func (s *service) admitSend(ctx context.Context, fromUserID, conversationID, toUserID string, action ratelimit.Action) (plan.Plan, error) {
	planValue, err := s.repo.GetUserPlan(ctx, fromUserID)
	if err != nil {
		return plan.Free, err
	}
	tier := plan.Parse(planValue)

	res := s.planLimiter.Check(fromUserID, tier, action)
	if !res.Allowed {
		return tier, apperrors.WithMeta(apperrors.CodeRateLimited, "rate limit exceeded", res)
	}

	if err := content.ValidateMessagePayload(content.MessagePayload{
		ConversationID: conversationID,
		FromUserID:     fromUserID,
		ToUserID:       toUserID,
	}); err != nil {
		return tier, err
	}

	matched, err := s.authorizer.IsMutuallyMatched(ctx, fromUserID, toUserID)
	if err != nil {
		return tier, err
	}
	if !matched {
		return tier, apperrors.NotMatched("users are not matched")
	}

	blocked, err := s.repo.IsBlockedEither(ctx, fromUserID, toUserID)
	if err != nil {
		return tier, err
	}
	if blocked {
		// Same message regardless of direction so the response does
		// not reveal who blocked whom.
		return tier, apperrors.Blocked("conversation unavailable")
	}

	return tier, nil
}

func (s *service) SendTextMessage(ctx context.Context, fromUserID string, req *SendTextRequest) (*Message, error) {
	start := time.Now()

	_, err := s.admitSend(ctx, fromUserID, req.ConversationID, req.ToUserID, ratelimit.ActionMessage)
	if err != nil {
		return nil, s.rejected(err)
	}

	text, err := s.sanitizer.Sanitize(req.Text)
	if err != nil {
		return nil, s.rejected(err)
	}

	msg := &Message{
		ConversationID: req.ConversationID,
		FromUserID:     fromUserID,
		ToUserID:       req.ToUserID,
		Text:           text,
		Type:           TypeText,
		ReplyToID:      req.ReplyToID,
	}

	if err := s.appendAndProject(ctx, msg); err != nil {
		return nil, err
	}

	messagesSentTotal.WithLabelValues(string(TypeText)).Inc()
	sendDuration.WithLabelValues(string(TypeText)).Observe(time.Since(start).Seconds())
	return msg, nil
}

func (s *service) SendImageMessage(ctx context.Context, fromUserID string, req *SendImageRequest, file *MediaFile) (*Message, error) {
	start := time.Now()

	tier, err := s.admitSend(ctx, fromUserID, req.ConversationID, req.ToUserID, ratelimit.ActionImageUpload)
	if err != nil {
		return nil, s.rejected(err)
	}

	info, err := s.mediaValid.ValidateImage(media.ImageUpload{
		FileSize:     file.Size,
		DeclaredMime: file.Mime,
		Plan:         tier,
		Head:         file.Head,
		Filename:     file.Filename,
	})
	if err != nil {
		return nil, s.rejected(err)
	}

	caption := ""
	if req.Caption != "" {
		if caption, err = s.sanitizer.Sanitize(req.Caption); err != nil {
			return nil, s.rejected(err)
		}
	}

	// Upload before the row exists so a failed or cancelled upload
	// leaves no dangling message.
	key, err := s.objects.Upload(ctx, file.Reader, file.Size, file.Mime, info.SafeName)
	if err != nil {
		return nil, s.rejected(apperrors.Storage("image upload failed", err))
	}

	msg := &Message{
		ConversationID: req.ConversationID,
		FromUserID:     fromUserID,
		ToUserID:       req.ToUserID,
		Text:           caption,
		Type:           TypeImage,
		MediaKey:       &key,
		FileSize:       &file.Size,
		MimeType:       &file.Mime,
	}
	if info.Width > 0 {
		msg.Width = &info.Width
		msg.Height = &info.Height
	}

	if err := s.appendAndProject(ctx, msg); err != nil {
		return nil, err
	}

	s.attachMediaURL(msg)
	messagesSentTotal.WithLabelValues(string(TypeImage)).Inc()
	sendDuration.WithLabelValues(string(TypeImage)).Observe(time.Since(start).Seconds())
	return msg, nil
}

func (s *service) SendVoiceMessage(ctx context.Context, fromUserID string, req *SendVoiceRequest, file *MediaFile) (*Message, error) {
	start := time.Now()

	tier, err := s.admitSend(ctx, fromUserID, req.ConversationID, req.ToUserID, ratelimit.ActionVoiceUpload)
	if err != nil {
		return nil, s.rejected(err)
	}

	if err := s.mediaValid.ValidateVoice(media.VoiceUpload{
		FileSize:     file.Size,
		DeclaredMime: file.Mime,
		Duration:     time.Duration(req.DurationSeconds) * time.Second,
	}); err != nil {
		return nil, s.rejected(err)
	}

	allowed, err := s.quota.CanSendVoiceMessage(ctx, fromUserID, tier)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, s.rejected(apperrors.New(apperrors.CodeQuotaExceeded, "voice message quota exceeded for current plan"))
	}

	key, err := s.objects.Upload(ctx, file.Reader, file.Size, file.Mime, media.SanitizeFilename(file.Filename))
	if err != nil {
		return nil, s.rejected(apperrors.Storage("voice upload failed", err))
	}

	msg := &Message{
		ConversationID: req.ConversationID,
		FromUserID:     fromUserID,
		ToUserID:       req.ToUserID,
		Type:           TypeVoice,
		MediaKey:       &key,
		Duration:       &req.DurationSeconds,
		FileSize:       &file.Size,
		MimeType:       &file.Mime,
	}

	if err := s.appendAndProject(ctx, msg); err != nil {
		return nil, err
	}

	s.attachMediaURL(msg)
	messagesSentTotal.WithLabelValues(string(TypeVoice)).Inc()
	sendDuration.WithLabelValues(string(TypeVoice)).Observe(time.Since(start).Seconds())
	return msg, nil
}

// appendAndProject persists the message, folds it into the conversation
// projection, and notifies. Projection and notification failures are
// logged but do not undo the append; the message is already the source
// of truth.
func (s *service) appendAndProject(ctx context.Context, msg *Message) error {
	if err := s.repo.CreateMessage(ctx, msg); err != nil {
		return err
	}

	if err := s.repo.UpsertConversationProjection(ctx, msg); err != nil {
		s.log.Errorw("conversation projection update failed",
			"conversation_id", msg.ConversationID,
			"message_id", msg.ID,
			"error", err,
		)
	}

	s.notify(Event{
		Type:           EventMessageCreated,
		ConversationID: msg.ConversationID,
		Recipients:     []string{msg.ToUserID},
		Payload:        mustMarshal(msg),
		Timestamp:      msg.CreatedAt,
	})

	return nil
}

func (s *service) ReportDeliveryReceipt(ctx context.Context, userID string, req *ReceiptRequest) (*Receipt, error) {
	msg, err := s.repo.GetMessage(ctx, req.MessageID)
	if err != nil {
		return nil, err
	}

	status := ReceiptStatus(req.Status)
	switch status {
	case StatusDelivered, StatusRead:
		// Only the recipient can attest to delivery or reading.
		if userID != msg.ToUserID {
			return nil, apperrors.Unauthorized("only the recipient may report this receipt")
		}
	case StatusFailed:
		if userID != msg.ToUserID && userID != msg.FromUserID {
			return nil, apperrors.Unauthorized("not a participant of this message")
		}
	default:
		return nil, apperrors.New(apperrors.CodeInvalidIdentifier, "unknown receipt status")
	}

	receipt, err := s.repo.UpsertReceipt(ctx, &Receipt{
		MessageID: msg.ID,
		UserID:    msg.ToUserID,
		Status:    status,
	})
	if err != nil {
		return nil, err
	}

	receiptsTotal.WithLabelValues(req.Status).Inc()

	if status == StatusRead {
		newlyRead, err := s.repo.MarkMessageRead(ctx, msg.ID, time.Now())
		if err != nil {
			s.log.Errorw("mark read failed", "message_id", msg.ID, "error", err)
		} else if newlyRead {
			if err := s.repo.AddUnread(ctx, msg.ConversationID, msg.ToUserID, -1); err != nil {
				s.log.Errorw("unread decrement failed", "conversation_id", msg.ConversationID, "error", err)
			}
		}
	}

	if status == StatusFailed {
		failedDeliveriesTotal.Inc()
		// Failed reports are high volume during outages; sample the
		// detailed log line.
		if rand.Float64() < 0.1 {
			s.log.Warnw("delivery failure reported",
				"message_id", msg.ID,
				"conversation_id", msg.ConversationID,
				"reporter", userID,
				"reason", req.Reason,
			)
		}
	}

	s.notify(Event{
		Type:           EventReceiptUpdated,
		ConversationID: msg.ConversationID,
		Recipients:     []string{msg.FromUserID},
		Payload:        mustMarshal(receipt),
		Timestamp:      receipt.UpdatedAt,
	})

	return receipt, nil
}

// MarkMessagesRead is the batch form used when a conversation is opened.
// Messages not addressed to the caller are skipped, not errors, so one
// stale id cannot fail the whole batch.
func (s *service) MarkMessagesRead(ctx context.Context, userID string, req *MarkReadRequest) error {
	if !conversation.IsParticipant(req.ConversationID, userID) {
		return apperrors.Unauthorized("not a participant of this conversation")
	}

	for _, id := range req.MessageIDs {
		msg, err := s.repo.GetMessage(ctx, id)
		if err != nil {
			continue
		}
		if msg.ConversationID != req.ConversationID || msg.ToUserID != userID {
			continue
		}
		if _, err := s.ReportDeliveryReceipt(ctx, userID, &ReceiptRequest{
			MessageID: id,
			Status:    string(StatusRead),
		}); err != nil {
			s.log.Debugw("batch mark-read skipped message", "message_id", id, "error", err)
		}
	}

	return nil
}

func (s *service) ListMessages(ctx context.Context, userID, conversationID string, before time.Time, limit int) (*MessagePage, error) {
	ok, err := s.authorizer.CanAccessConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.NotMatched("conversation is not accessible")
	}

	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if before.IsZero() {
		before = time.Now()
	}

	// Fetch one extra row to learn whether an older page exists.
	rows, err := s.repo.GetConversationMessages(ctx, conversationID, before, limit+1)
	if err != nil {
		return nil, err
	}

	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}

	// Repository returns newest-first; flip into display order.
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}

	for _, msg := range rows {
		s.attachMediaURL(msg)
	}

	return &MessagePage{Messages: rows, HasMore: hasMore}, nil
}

func (s *service) ListConversations(ctx context.Context, userID string, limit, offset int) ([]*Conversation, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	return s.repo.ListConversations(ctx, userID, limit, offset)
}

func (s *service) EditMessage(ctx context.Context, userID string, messageID int64, req *EditMessageRequest) (*Message, error) {
	msg, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.FromUserID != userID {
		return nil, apperrors.Unauthorized("only the sender may edit a message")
	}
	if msg.IsDeleted {
		return nil, apperrors.NotFound("message not found")
	}
	if msg.Type != TypeText {
		return nil, apperrors.New(apperrors.CodeInvalidIdentifier, "only text messages can be edited")
	}

	text, err := s.sanitizer.Sanitize(req.Text)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := s.repo.SetMessageEdited(ctx, messageID, text, now); err != nil {
		return nil, err
	}

	msg.Text = text
	msg.IsEdited = true
	msg.EditedAt = &now

	s.notify(Event{
		Type:           EventMessageEdited,
		ConversationID: msg.ConversationID,
		Recipients:     []string{msg.ToUserID},
		Payload:        mustMarshal(msg),
		Timestamp:      now,
	})

	return msg, nil
}

func (s *service) DeleteMessage(ctx context.Context, userID string, messageID int64) error {
	msg, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.FromUserID != userID {
		return apperrors.Unauthorized("only the sender may delete a message")
	}
	if msg.IsDeleted {
		return nil
	}

	now := time.Now()
	if err := s.repo.SetMessageDeleted(ctx, messageID, now); err != nil {
		return err
	}

	s.notify(Event{
		Type:           EventMessageDeleted,
		ConversationID: msg.ConversationID,
		Recipients:     []string{msg.ToUserID},
		Payload:        mustMarshal(map[string]interface{}{"message_id": messageID}),
		Timestamp:      now,
	})

	return nil
}

func (s *service) BlockUser(ctx context.Context, blockerID, blockedID string) error {
	if !conversation.IsValidUserID(blockedID) || blockerID == blockedID {
		return apperrors.InvalidIdentifier("invalid user to block")
	}
	if err := s.repo.BlockUser(ctx, blockerID, blockedID); err != nil {
		return err
	}
	s.authorizer.Invalidate(ctx, blockerID, blockedID)
	return nil
}

func (s *service) UnblockUser(ctx context.Context, blockerID, blockedID string) error {
	if !conversation.IsValidUserID(blockedID) || blockerID == blockedID {
		return apperrors.InvalidIdentifier("invalid user to unblock")
	}
	if err := s.repo.UnblockUser(ctx, blockerID, blockedID); err != nil {
		return err
	}
	s.authorizer.Invalidate(ctx, blockerID, blockedID)
	return nil
}

func (s *service) attachMediaURL(msg *Message) {
	if msg.MediaKey == nil || msg.IsDeleted {
		return
	}
	url, err := s.objects.SignedURL(*msg.MediaKey)
	if err != nil {
		s.log.Warnw("signed url generation failed", "message_id", msg.ID, "error", err)
		return
	}
	msg.MediaURL = url
}

func (s *service) notify(event Event) {
	go s.notifier.Notify(event)
}

// rejected counts a rejection by reason code before returning it.
func (s *service) rejected(err error) error {
	messagesRejectedTotal.WithLabelValues(string(apperrors.CodeOf(err))).Inc()
	return err
}

func mustMarshal(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}
