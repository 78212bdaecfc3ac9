// internal/match/authorizer.go
// Match-gated authorization with a TTL cache in front of the
// authoritative store. Every failure mode closes the gate: lookup errors
// read as "not matched", and callers who exceed the validation-call cap
// are rejected rather than allowed through unverified.

package match

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pairlyhq/pairly-backend/internal/conversation"
	"github.com/pairlyhq/pairly-backend/internal/ratelimit"
	"github.com/pairlyhq/pairly-backend/pkg/apperrors"
)

const (
	cacheHitMatched    = "1"
	cacheHitNotMatched = "0"
)

// Authorizer answers "may these two users communicate".
type Authorizer struct {
	store           Store
	cache           Cache
	limiter         *ratelimit.Limiter
	checksPerMinute int
	ttl             time.Duration
	log             *zap.SugaredLogger
}

func NewAuthorizer(store Store, cache Cache, limiter *ratelimit.Limiter, checksPerMinute int, ttl time.Duration, log *zap.SugaredLogger) *Authorizer {
	return &Authorizer{
		store:           store,
		cache:           cache,
		limiter:         limiter,
		checksPerMinute: checksPerMinute,
		ttl:             ttl,
		log:             log,
	}
}

// IsMutuallyMatched reports whether callerID and otherID are mutually
// matched. Validation calls are capped per caller to bound cache
// stampedes; exceeding the cap fails closed with a rate-limit error.
// Store and cache failures are logged and read as not matched.
func (a *Authorizer) IsMutuallyMatched(ctx context.Context, callerID, otherID string) (bool, error) {
	res := a.limiter.Check(callerID, ratelimit.ActionMatchCheck, ratelimit.Limits{PerMinute: a.checksPerMinute})
	if !res.Allowed {
		return false, apperrors.New(apperrors.CodeRateLimited, "too many match validation calls")
	}

	key, err := conversation.DeriveID(callerID, otherID)
	if err != nil {
		return false, err
	}

	if val, ok, cacheErr := a.cache.Get(ctx, key); cacheErr != nil {
		a.log.Warnw("match cache read failed", "error", cacheErr)
	} else if ok {
		return val == cacheHitMatched, nil
	}

	matched, err := a.store.AreMutuallyMatched(ctx, callerID, otherID)
	if err != nil {
		// Fail closed, never fail open.
		a.log.Errorw("match lookup failed", "error", err)
		return false, nil
	}

	val := cacheHitNotMatched
	if matched {
		val = cacheHitMatched
	}
	if cacheErr := a.cache.Set(ctx, key, val, a.ttl); cacheErr != nil {
		a.log.Warnw("match cache write failed", "error", cacheErr)
	}

	return matched, nil
}

// CanAccessConversation verifies that userID is a participant of the
// conversation and is still matched with the other participant.
func (a *Authorizer) CanAccessConversation(ctx context.Context, userID, conversationID string) (bool, error) {
	userA, userB, err := conversation.ParseID(conversationID)
	if err != nil {
		return false, err
	}

	var other string
	switch userID {
	case userA:
		other = userB
	case userB:
		other = userA
	default:
		return false, nil
	}

	return a.IsMutuallyMatched(ctx, userID, other)
}

// Invalidate drops the cached result for a pair. Called out-of-band when
// a match is created, revoked, or either party blocks the other.
func (a *Authorizer) Invalidate(ctx context.Context, userA, userB string) {
	key, err := conversation.DeriveID(userA, userB)
	if err != nil {
		return
	}
	if err := a.cache.Delete(ctx, key); err != nil {
		a.log.Warnw("match cache invalidation failed", "error", err)
	}
}
