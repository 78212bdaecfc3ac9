// internal/chat/quota.go

package chat

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pairlyhq/pairly-backend/internal/plan"
)

const voiceQuotaWindow = 24 * time.Hour

// QuotaEnforcer gates voice messages by subscription tier. The count is
// taken from the message store on every check, so the rolling window is
// exact and restarts do not reset it.
type QuotaEnforcer struct {
	repo   Repository
	perDay int
	log    *zap.SugaredLogger
}

func NewQuotaEnforcer(repo Repository, perDay int, log *zap.SugaredLogger) *QuotaEnforcer {
	return &QuotaEnforcer{repo: repo, perDay: perDay, log: log}
}

// CanSendVoiceMessage reports whether userID may send a voice message
// right now. Count failures deny rather than allow.
func (q *QuotaEnforcer) CanSendVoiceMessage(ctx context.Context, userID string, tier plan.Plan) (bool, error) {
	switch tier {
	case plan.PremiumPlus:
		return true, nil
	case plan.Premium:
		since := time.Now().Add(-voiceQuotaWindow)
		count, err := q.repo.CountVoiceMessagesSince(ctx, userID, since)
		if err != nil {
			q.log.Errorw("voice quota count failed, denying send", "user_id", userID, "error", err)
			return false, nil
		}
		return count < q.perDay, nil
	default:
		return false, nil
	}
}
