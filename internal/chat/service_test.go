package chat

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pairlyhq/pairly-backend/internal/content"
	"github.com/pairlyhq/pairly-backend/internal/conversation"
	"github.com/pairlyhq/pairly-backend/internal/match"
	"github.com/pairlyhq/pairly-backend/internal/media"
	"github.com/pairlyhq/pairly-backend/internal/plan"
	"github.com/pairlyhq/pairly-backend/internal/ratelimit"
	"github.com/pairlyhq/pairly-backend/pkg/apperrors"
	"github.com/pairlyhq/pairly-backend/pkg/logger"
)

// fakeRepo is an in-memory Repository mirroring the postgres semantics
// the service depends on: receipt no-downgrade, first-write-wins
// timestamps, unread clamping.

type receiptKey struct {
	messageID int64
	userID    string
}

type fakeRepo struct {
	mu            sync.Mutex
	nextID        int64
	messages      map[int64]*Message
	receipts      map[receiptKey]*Receipt
	conversations map[string]*Conversation
	blocks        map[string]bool
	plans         map[string]string
	now           time.Time
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		messages:      make(map[int64]*Message),
		receipts:      make(map[receiptKey]*Receipt),
		conversations: make(map[string]*Conversation),
		blocks:        make(map[string]bool),
		plans:         make(map[string]string),
		// Start in the past so ticked timestamps never land after the
		// service's time.Now() pagination cursor.
		now:           time.Now().Add(-time.Hour),
	}
}

// tick returns strictly increasing timestamps so ordering is stable.
func (f *fakeRepo) tick() time.Time {
	f.now = f.now.Add(time.Millisecond)
	return f.now
}

func (f *fakeRepo) CreateMessage(_ context.Context, message *Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	message.ID = f.nextID
	message.CreatedAt = f.tick()
	stored := *message
	f.messages[message.ID] = &stored
	return nil
}

func (f *fakeRepo) GetMessage(_ context.Context, id int64) (*Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.messages[id]
	if !ok {
		return nil, apperrors.NotFound("message not found")
	}
	out := *msg
	out.IsRead = out.ReadAt != nil
	return &out, nil
}

func (f *fakeRepo) GetConversationMessages(_ context.Context, conversationID string, before time.Time, limit int) ([]*Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var rows []*Message
	for id := f.nextID; id >= 1 && len(rows) < limit; id-- {
		msg, ok := f.messages[id]
		if !ok || msg.ConversationID != conversationID || msg.IsDeleted {
			continue
		}
		if !msg.CreatedAt.Before(before) {
			continue
		}
		out := *msg
		out.IsRead = out.ReadAt != nil
		rows = append(rows, &out)
	}
	return rows, nil
}

func (f *fakeRepo) CountVoiceMessagesSince(_ context.Context, userID string, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, msg := range f.messages {
		if msg.Type == TypeVoice && msg.FromUserID == userID && msg.CreatedAt.After(since) {
			count++
		}
	}
	return count, nil
}

func (f *fakeRepo) MarkMessageRead(_ context.Context, messageID int64, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.messages[messageID]
	if !ok || msg.ReadAt != nil {
		return false, nil
	}
	msg.ReadAt = &at
	return true, nil
}

func (f *fakeRepo) SetMessageEdited(_ context.Context, messageID int64, text string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := f.messages[messageID]; ok {
		msg.Text = text
		msg.IsEdited = true
		msg.EditedAt = &at
	}
	return nil
}

func (f *fakeRepo) SetMessageDeleted(_ context.Context, messageID int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := f.messages[messageID]; ok {
		msg.IsDeleted = true
		msg.DeletedAt = &at
	}
	return nil
}

func (f *fakeRepo) UpsertReceipt(_ context.Context, r *Receipt) (*Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := receiptKey{r.MessageID, r.UserID}
	now := f.tick()

	existing, ok := f.receipts[key]
	if !ok {
		existing = &Receipt{MessageID: r.MessageID, UserID: r.UserID, Status: r.Status, CreatedAt: now}
		f.receipts[key] = existing
	} else if existing.Status != StatusRead {
		existing.Status = r.Status
	}

	if existing.DeliveredAt == nil && (r.Status == StatusDelivered || r.Status == StatusRead) {
		at := now
		existing.DeliveredAt = &at
	}
	if existing.ReadAt == nil && r.Status == StatusRead {
		at := now
		existing.ReadAt = &at
	}
	existing.UpdatedAt = now

	out := *existing
	return &out, nil
}

func (f *fakeRepo) GetReceipt(_ context.Context, messageID int64, userID string) (*Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.receipts[receiptKey{messageID, userID}]; ok {
		out := *r
		return &out, nil
	}
	return nil, apperrors.NotFound("receipt not found")
}

func (f *fakeRepo) UpsertConversationProjection(_ context.Context, message *Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	userA, userB, err := conversation.ParseID(message.ConversationID)
	if err != nil {
		return err
	}
	conv, ok := f.conversations[message.ConversationID]
	if !ok {
		conv = &Conversation{ConversationID: message.ConversationID, UserAID: userA, UserBID: userB}
		f.conversations[message.ConversationID] = conv
	}
	id := message.ID
	conv.LastMessageID = &id
	conv.LastActivity = message.CreatedAt
	if message.ToUserID == userA {
		conv.UnreadA++
	} else {
		conv.UnreadB++
	}
	return nil
}

func (f *fakeRepo) AddUnread(_ context.Context, conversationID, userID string, delta int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.conversations[conversationID]
	if !ok {
		return nil
	}
	if userID == conv.UserAID {
		if conv.UnreadA += delta; conv.UnreadA < 0 {
			conv.UnreadA = 0
		}
	} else if userID == conv.UserBID {
		if conv.UnreadB += delta; conv.UnreadB < 0 {
			conv.UnreadB = 0
		}
	}
	return nil
}

func (f *fakeRepo) GetConversation(_ context.Context, conversationID string) (*Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if conv, ok := f.conversations[conversationID]; ok {
		out := *conv
		return &out, nil
	}
	return nil, apperrors.NotFound("conversation not found")
}

func (f *fakeRepo) ListConversations(_ context.Context, userID string, limit, offset int) ([]*Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Conversation
	for _, conv := range f.conversations {
		if conv.UserAID == userID || conv.UserBID == userID {
			c := *conv
			out = append(out, c.ForViewer(userID))
		}
	}
	return out, nil
}

func (f *fakeRepo) BlockUser(_ context.Context, blockerID, blockedID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocks[blockerID+"|"+blockedID] = true
	return nil
}

func (f *fakeRepo) UnblockUser(_ context.Context, blockerID, blockedID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.blocks, blockerID+"|"+blockedID)
	return nil
}

func (f *fakeRepo) IsBlockedEither(_ context.Context, userA, userB string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blocks[userA+"|"+userB] || f.blocks[userB+"|"+userA], nil
}

func (f *fakeRepo) GetUserPlan(_ context.Context, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.plans[userID]; ok {
		return p, nil
	}
	return "free", nil
}

type fakeMatchStore struct {
	matched map[string]bool
}

func (f *fakeMatchStore) AreMutuallyMatched(_ context.Context, userA, userB string) (bool, error) {
	id, err := conversation.DeriveID(userA, userB)
	if err != nil {
		return false, err
	}
	return f.matched[id], nil
}

type fakeObjectStore struct {
	mu      sync.Mutex
	uploads int
}

func (f *fakeObjectStore) Upload(_ context.Context, _ io.ReadSeeker, _ int64, _, filename string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads++
	return fmt.Sprintf("chat/test/%d-%s", f.uploads, filename), nil
}

func (f *fakeObjectStore) SignedURL(key string) (string, error) {
	return "https://cdn.example/" + key, nil
}

func (f *fakeObjectStore) Delete(_ context.Context, _ string) error { return nil }

type testEnv struct {
	repo       *fakeRepo
	matchStore *fakeMatchStore
	objects    *fakeObjectStore
	svc        Service
}

func newTestEnv(t *testing.T, cfg ratelimit.Config) *testEnv {
	t.Helper()

	repo := newFakeRepo()
	matchStore := &fakeMatchStore{matched: make(map[string]bool)}
	objects := &fakeObjectStore{}

	authorizer := match.NewAuthorizer(
		matchStore,
		match.NewMemoryCache(),
		ratelimit.NewLimiter(),
		cfg.MatchChecksPerMinute,
		5*time.Minute,
		logger.NewNop(),
	)

	sanitizer := content.NewSanitizer(2000, []string{"free crypto"})

	mediaValidator := media.NewValidator(
		media.ImageLimits{Free: 2 << 20, Premium: 8 << 20, PremiumPlus: 20 << 20},
		10<<20,
		300*time.Second,
	)

	quota := NewQuotaEnforcer(repo, 10, logger.NewNop())
	planLimiter := ratelimit.NewPlanLimiter(ratelimit.NewLimiter(), cfg)

	svc := NewService(
		repo, authorizer, sanitizer, mediaValidator,
		quota, planLimiter, objects, NopNotifier{}, logger.NewNop(),
	)

	return &testEnv{repo: repo, matchStore: matchStore, objects: objects, svc: svc}
}

func generousLimits() ratelimit.Config {
	return ratelimit.Config{
		MessagesPerMinute:    1000,
		MessagesPerHour:      10000,
		UploadsPerMinute:     1000,
		UploadsPerHour:       10000,
		MatchChecksPerMinute: 1000,
	}
}

func (e *testEnv) match(a, b string) {
	id, _ := conversation.DeriveID(a, b)
	e.matchStore.matched[id] = true
}

func textReq(from, to, text string) *SendTextRequest {
	id, _ := conversation.DeriveID(from, to)
	return &SendTextRequest{ConversationID: id, ToUserID: to, Text: text}
}

func voiceFile() *MediaFile {
	data := []byte("fake audio bytes")
	return &MediaFile{
		Reader:   bytes.NewReader(data),
		Size:     int64(len(data)),
		Mime:     "audio/m4a",
		Filename: "clip.m4a",
	}
}

func TestSendTextMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("matched pair end to end", func(t *testing.T) {
		env := newTestEnv(t, generousLimits())
		env.match("alice", "bob")

		msg, err := env.svc.SendTextMessage(ctx, "alice", textReq("alice", "bob", "Hello"))
		require.NoError(t, err)
		assert.Equal(t, "alice_bob", msg.ConversationID)
		assert.Equal(t, "Hello", msg.Text)
		assert.NotZero(t, msg.ID)

		convs, err := env.svc.ListConversations(ctx, "bob", 0, 0)
		require.NoError(t, err)
		require.Len(t, convs, 1)
		assert.Equal(t, 1, convs[0].UnreadCount)

		convs, err = env.svc.ListConversations(ctx, "alice", 0, 0)
		require.NoError(t, err)
		require.Len(t, convs, 1)
		assert.Equal(t, 0, convs[0].UnreadCount)
	})

	t.Run("unmatched pair is rejected", func(t *testing.T) {
		env := newTestEnv(t, generousLimits())

		_, err := env.svc.SendTextMessage(ctx, "alice", textReq("alice", "bob", "Hello"))
		assert.True(t, apperrors.Is(err, apperrors.CodeNotMatched))
		assert.Empty(t, env.repo.messages)
	})

	t.Run("blocked pair is rejected without revealing direction", func(t *testing.T) {
		env := newTestEnv(t, generousLimits())
		env.match("alice", "bob")
		require.NoError(t, env.repo.BlockUser(ctx, "bob", "alice"))

		_, err := env.svc.SendTextMessage(ctx, "alice", textReq("alice", "bob", "Hello"))
		assert.True(t, apperrors.Is(err, apperrors.CodeBlocked))
		assert.Empty(t, env.repo.messages)
	})

	t.Run("declared conversation id must match the pair", func(t *testing.T) {
		env := newTestEnv(t, generousLimits())
		env.match("alice", "bob")

		_, err := env.svc.SendTextMessage(ctx, "alice", &SendTextRequest{
			ConversationID: "alice_carol",
			ToUserID:       "bob",
			Text:           "Hello",
		})
		assert.True(t, apperrors.Is(err, apperrors.CodeConversationMismatch))
	})

	t.Run("sanitizer verdict is enforced", func(t *testing.T) {
		env := newTestEnv(t, generousLimits())
		env.match("alice", "bob")

		_, err := env.svc.SendTextMessage(ctx, "alice", textReq("alice", "bob", "<script>x</script>"))
		assert.True(t, apperrors.Is(err, apperrors.CodeUnsafeContent))
		assert.Empty(t, env.repo.messages)
	})

	t.Run("per-sender throttle carries backoff metadata", func(t *testing.T) {
		cfg := generousLimits()
		cfg.MessagesPerMinute = 2
		env := newTestEnv(t, cfg)
		env.match("alice", "bob")

		for i := 0; i < 2; i++ {
			_, err := env.svc.SendTextMessage(ctx, "alice", textReq("alice", "bob", "hi"))
			require.NoError(t, err)
		}

		_, err := env.svc.SendTextMessage(ctx, "alice", textReq("alice", "bob", "hi"))
		require.True(t, apperrors.Is(err, apperrors.CodeRateLimited))

		var ae *apperrors.AppError
		require.ErrorAs(t, err, &ae)
		assert.NotNil(t, ae.Meta)
	})
}

func TestReportDeliveryReceipt(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*testEnv, *Message) {
		env := newTestEnv(t, generousLimits())
		env.match("alice", "bob")
		msg, err := env.svc.SendTextMessage(ctx, "alice", textReq("alice", "bob", "Hello"))
		require.NoError(t, err)
		return env, msg
	}

	t.Run("recipient reports delivered then read", func(t *testing.T) {
		env, msg := setup(t)

		r, err := env.svc.ReportDeliveryReceipt(ctx, "bob", &ReceiptRequest{MessageID: msg.ID, Status: "delivered"})
		require.NoError(t, err)
		assert.Equal(t, StatusDelivered, r.Status)
		require.NotNil(t, r.DeliveredAt)
		assert.Nil(t, r.ReadAt)

		r, err = env.svc.ReportDeliveryReceipt(ctx, "bob", &ReceiptRequest{MessageID: msg.ID, Status: "read"})
		require.NoError(t, err)
		assert.Equal(t, StatusRead, r.Status)
		require.NotNil(t, r.ReadAt)

		got, err := env.svc.ReportDeliveryReceipt(ctx, "bob", &ReceiptRequest{MessageID: msg.ID, Status: "delivered"})
		require.NoError(t, err)
		// A late delivered report never downgrades read.
		assert.Equal(t, StatusRead, got.Status)
		assert.Equal(t, r.ReadAt.UnixNano(), got.ReadAt.UnixNano())

		convs, err := env.svc.ListConversations(ctx, "bob", 0, 0)
		require.NoError(t, err)
		assert.Equal(t, 0, convs[0].UnreadCount)

		stored, err := env.repo.GetMessage(ctx, msg.ID)
		require.NoError(t, err)
		assert.True(t, stored.IsRead)
	})

	t.Run("read is idempotent for the unread counter", func(t *testing.T) {
		env, msg := setup(t)

		for i := 0; i < 3; i++ {
			_, err := env.svc.ReportDeliveryReceipt(ctx, "bob", &ReceiptRequest{MessageID: msg.ID, Status: "read"})
			require.NoError(t, err)
		}

		convs, err := env.svc.ListConversations(ctx, "bob", 0, 0)
		require.NoError(t, err)
		assert.Equal(t, 0, convs[0].UnreadCount)
	})

	t.Run("sender cannot report delivered or read", func(t *testing.T) {
		env, msg := setup(t)

		_, err := env.svc.ReportDeliveryReceipt(ctx, "alice", &ReceiptRequest{MessageID: msg.ID, Status: "read"})
		assert.True(t, apperrors.Is(err, apperrors.CodeUnauthorized))
	})

	t.Run("outsider cannot report anything", func(t *testing.T) {
		env, msg := setup(t)

		_, err := env.svc.ReportDeliveryReceipt(ctx, "carol", &ReceiptRequest{MessageID: msg.ID, Status: "failed"})
		assert.True(t, apperrors.Is(err, apperrors.CodeUnauthorized))
	})

	t.Run("failed is recorded for the recipient", func(t *testing.T) {
		env, msg := setup(t)

		r, err := env.svc.ReportDeliveryReceipt(ctx, "alice", &ReceiptRequest{MessageID: msg.ID, Status: "failed", Reason: "push bounce"})
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, r.Status)
		assert.Equal(t, "bob", r.UserID)
	})

	t.Run("unknown message is not found", func(t *testing.T) {
		env, _ := setup(t)

		_, err := env.svc.ReportDeliveryReceipt(ctx, "bob", &ReceiptRequest{MessageID: 9999, Status: "read"})
		assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
	})
}

func TestMarkMessagesRead(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, generousLimits())
	env.match("alice", "bob")

	var ids []int64
	for i := 0; i < 3; i++ {
		msg, err := env.svc.SendTextMessage(ctx, "alice", textReq("alice", "bob", fmt.Sprintf("msg %d", i)))
		require.NoError(t, err)
		ids = append(ids, msg.ID)
	}

	err := env.svc.MarkMessagesRead(ctx, "bob", &MarkReadRequest{
		ConversationID: "alice_bob",
		MessageIDs:     append(ids, 9999), // stale id must not fail the batch
	})
	require.NoError(t, err)

	convs, err := env.svc.ListConversations(ctx, "bob", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, convs[0].UnreadCount)

	err = env.svc.MarkMessagesRead(ctx, "carol", &MarkReadRequest{ConversationID: "alice_bob", MessageIDs: ids})
	assert.True(t, apperrors.Is(err, apperrors.CodeUnauthorized))
}

func TestVoiceQuota(t *testing.T) {
	ctx := context.Background()

	send := func(env *testEnv, from, to string) error {
		id, _ := conversation.DeriveID(from, to)
		_, err := env.svc.SendVoiceMessage(ctx, from, &SendVoiceRequest{
			ConversationID:  id,
			ToUserID:        to,
			DurationSeconds: 5,
		}, voiceFile())
		return err
	}

	t.Run("free tier never sends voice", func(t *testing.T) {
		env := newTestEnv(t, generousLimits())
		env.match("alice", "bob")

		err := send(env, "alice", "bob")
		assert.True(t, apperrors.Is(err, apperrors.CodeQuotaExceeded))
	})

	t.Run("premium gets ten per rolling day", func(t *testing.T) {
		env := newTestEnv(t, generousLimits())
		env.match("alice", "bob")
		env.repo.plans["alice"] = "premium"

		for i := 0; i < 10; i++ {
			require.NoError(t, send(env, "alice", "bob"), "voice message %d", i+1)
		}

		err := send(env, "alice", "bob")
		assert.True(t, apperrors.Is(err, apperrors.CodeQuotaExceeded))
	})

	t.Run("premium quota frees up as the window rolls", func(t *testing.T) {
		env := newTestEnv(t, generousLimits())
		env.match("alice", "bob")
		env.repo.plans["alice"] = "premium"

		for i := 0; i < 9; i++ {
			require.NoError(t, send(env, "alice", "bob"))
		}

		// Age every stored voice message out of the rolling day.
		env.repo.mu.Lock()
		for _, msg := range env.repo.messages {
			msg.CreatedAt = msg.CreatedAt.Add(-25 * time.Hour)
		}
		env.repo.mu.Unlock()

		assert.NoError(t, send(env, "alice", "bob"))
	})

	t.Run("premium plus is unlimited", func(t *testing.T) {
		env := newTestEnv(t, generousLimits())
		env.match("alice", "bob")
		env.repo.plans["alice"] = "premium_plus"

		for i := 0; i < 12; i++ {
			require.NoError(t, send(env, "alice", "bob"))
		}
	})

	t.Run("rejected voice leaves no upload and no row", func(t *testing.T) {
		env := newTestEnv(t, generousLimits())
		env.match("alice", "bob")

		_ = send(env, "alice", "bob")
		assert.Zero(t, env.objects.uploads)
		assert.Empty(t, env.repo.messages)
	})
}

func TestSendImageMessage(t *testing.T) {
	ctx := context.Background()

	imageFile := func(head []byte, size int64, mime string) *MediaFile {
		return &MediaFile{
			Reader:   bytes.NewReader(head),
			Size:     size,
			Mime:     mime,
			Filename: "pic.jpg",
			Head:     head,
		}
	}
	jpegHead := []byte{0xFF, 0xD8, 0xFF, 0xE0}

	t.Run("accepted image gets a media url", func(t *testing.T) {
		env := newTestEnv(t, generousLimits())
		env.match("alice", "bob")

		msg, err := env.svc.SendImageMessage(ctx, "alice", &SendImageRequest{
			ConversationID: "alice_bob",
			ToUserID:       "bob",
			Caption:        "look at this",
		}, imageFile(jpegHead, 1<<20, "image/jpeg"))
		require.NoError(t, err)
		assert.Equal(t, TypeImage, msg.Type)
		assert.Contains(t, msg.MediaURL, "https://cdn.example/")
		assert.Equal(t, "look at this", msg.Text)
		assert.Equal(t, 1, env.objects.uploads)
	})

	t.Run("free plan ceiling blocks before upload", func(t *testing.T) {
		env := newTestEnv(t, generousLimits())
		env.match("alice", "bob")

		_, err := env.svc.SendImageMessage(ctx, "alice", &SendImageRequest{
			ConversationID: "alice_bob",
			ToUserID:       "bob",
		}, imageFile(jpegHead, 6<<20, "image/jpeg"))
		assert.True(t, apperrors.Is(err, apperrors.CodeSizeExceeded))
		assert.Zero(t, env.objects.uploads)
	})

	t.Run("signature mismatch blocks before upload", func(t *testing.T) {
		env := newTestEnv(t, generousLimits())
		env.match("alice", "bob")

		pngHead := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}
		_, err := env.svc.SendImageMessage(ctx, "alice", &SendImageRequest{
			ConversationID: "alice_bob",
			ToUserID:       "bob",
		}, imageFile(pngHead, 1<<20, "image/jpeg"))
		assert.True(t, apperrors.Is(err, apperrors.CodeSignatureMismatch))
		assert.Zero(t, env.objects.uploads)
	})
}

func TestListMessages(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, generousLimits())
	env.match("alice", "bob")

	for i := 1; i <= 3; i++ {
		_, err := env.svc.SendTextMessage(ctx, "alice", textReq("alice", "bob", fmt.Sprintf("msg %d", i)))
		require.NoError(t, err)
	}

	t.Run("ascending order with has_more", func(t *testing.T) {
		page, err := env.svc.ListMessages(ctx, "bob", "alice_bob", time.Time{}, 2)
		require.NoError(t, err)
		require.Len(t, page.Messages, 2)
		assert.True(t, page.HasMore)
		assert.Equal(t, "msg 2", page.Messages[0].Text)
		assert.Equal(t, "msg 3", page.Messages[1].Text)
	})

	t.Run("full page has no more", func(t *testing.T) {
		page, err := env.svc.ListMessages(ctx, "bob", "alice_bob", time.Time{}, 50)
		require.NoError(t, err)
		assert.Len(t, page.Messages, 3)
		assert.False(t, page.HasMore)
		assert.Equal(t, "msg 1", page.Messages[0].Text)
	})

	t.Run("non-participant is denied", func(t *testing.T) {
		_, err := env.svc.ListMessages(ctx, "carol", "alice_bob", time.Time{}, 50)
		assert.True(t, apperrors.Is(err, apperrors.CodeNotMatched))
	})
}

func TestEditAndDeleteMessage(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, generousLimits())
	env.match("alice", "bob")

	msg, err := env.svc.SendTextMessage(ctx, "alice", textReq("alice", "bob", "typo"))
	require.NoError(t, err)

	t.Run("only the sender may edit", func(t *testing.T) {
		_, err := env.svc.EditMessage(ctx, "bob", msg.ID, &EditMessageRequest{Text: "fixed"})
		assert.True(t, apperrors.Is(err, apperrors.CodeUnauthorized))
	})

	t.Run("edit sanitizes and flags", func(t *testing.T) {
		edited, err := env.svc.EditMessage(ctx, "alice", msg.ID, &EditMessageRequest{Text: "fixed now"})
		require.NoError(t, err)
		assert.True(t, edited.IsEdited)
		assert.Equal(t, "fixed now", edited.Text)

		_, err = env.svc.EditMessage(ctx, "alice", msg.ID, &EditMessageRequest{Text: "<script>"})
		assert.True(t, apperrors.Is(err, apperrors.CodeUnsafeContent))
	})

	t.Run("only the sender may delete, and it hides the row", func(t *testing.T) {
		err := env.svc.DeleteMessage(ctx, "bob", msg.ID)
		assert.True(t, apperrors.Is(err, apperrors.CodeUnauthorized))

		require.NoError(t, env.svc.DeleteMessage(ctx, "alice", msg.ID))

		page, err := env.svc.ListMessages(ctx, "alice", "alice_bob", time.Time{}, 50)
		require.NoError(t, err)
		assert.Empty(t, page.Messages)
	})
}

func TestBlocking(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, generousLimits())
	env.match("alice", "bob")

	_, err := env.svc.SendTextMessage(ctx, "alice", textReq("alice", "bob", "hi"))
	require.NoError(t, err)

	require.NoError(t, env.svc.BlockUser(ctx, "bob", "alice"))

	_, err = env.svc.SendTextMessage(ctx, "alice", textReq("alice", "bob", "hi again"))
	assert.True(t, apperrors.Is(err, apperrors.CodeBlocked))

	require.NoError(t, env.svc.UnblockUser(ctx, "bob", "alice"))

	_, err = env.svc.SendTextMessage(ctx, "alice", textReq("alice", "bob", "back again"))
	assert.NoError(t, err)
}

func TestQuotaEnforcerFailsClosed(t *testing.T) {
	repo := newFakeRepo()
	q := NewQuotaEnforcer(repo, 10, logger.NewNop())

	// Unknown tiers degrade to free and never send voice.
	ok, err := q.CanSendVoiceMessage(context.Background(), "alice", plan.Parse("mystery-tier"))
	require.NoError(t, err)
	assert.False(t, ok)
}
