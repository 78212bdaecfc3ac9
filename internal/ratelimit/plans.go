// internal/ratelimit/plans.go
// Subscription-aware ceiling selection. Text messages are throttled the
// same for every tier; upload ceilings scale with the plan.

package ratelimit

import (
	"github.com/pairlyhq/pairly-backend/internal/plan"
)

// Config holds the baseline ceilings, normally built from app config.
type Config struct {
	MessagesPerMinute    int
	MessagesPerHour      int
	UploadsPerMinute     int
	UploadsPerHour       int
	MatchChecksPerMinute int
}

// PlanLimiter resolves ceilings by plan and action before checking.
type PlanLimiter struct {
	limiter *Limiter
	cfg     Config
}

func NewPlanLimiter(limiter *Limiter, cfg Config) *PlanLimiter {
	return &PlanLimiter{limiter: limiter, cfg: cfg}
}

// PlanResult augments a limiter result with the resolved plan so the
// client can show which tier produced the ceiling.
type PlanResult struct {
	Result
	Plan plan.Plan `json:"plan"`
}

// Check resolves the ceiling for (plan, action) and applies it.
func (p *PlanLimiter) Check(userID string, userPlan plan.Plan, action Action) PlanResult {
	limits := p.Resolve(userPlan, action)
	res := p.limiter.Check(userID, action, limits)
	return PlanResult{Result: res, Plan: userPlan}
}

// Resolve returns the ceilings for a plan and action kind.
func (p *PlanLimiter) Resolve(userPlan plan.Plan, action Action) Limits {
	switch action {
	case ActionMessage:
		return Limits{PerMinute: p.cfg.MessagesPerMinute, PerHour: p.cfg.MessagesPerHour}
	case ActionImageUpload, ActionVoiceUpload:
		l := Limits{PerMinute: p.cfg.UploadsPerMinute, PerHour: p.cfg.UploadsPerHour}
		switch userPlan {
		case plan.Premium:
			l.PerMinute *= 2
			l.PerHour *= 2
		case plan.PremiumPlus:
			l.PerMinute *= 4
			l.PerHour *= 4
		}
		return l
	case ActionMatchCheck:
		return Limits{PerMinute: p.cfg.MatchChecksPerMinute}
	default:
		return Limits{PerMinute: p.cfg.MessagesPerMinute, PerHour: p.cfg.MessagesPerHour}
	}
}
