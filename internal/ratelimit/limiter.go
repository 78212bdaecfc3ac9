// internal/ratelimit/limiter.go
// Sliding-window request throttling, per user and action.
//
// The limiter is process-local and best-effort: it is a defense-in-depth
// layer on top of the authoritative storage-backed quota checks, not the
// sole control. Counters are ordered timestamp lists pruned to the
// minute and hour windows on every check; a rejected request is never
// recorded, so probing does not consume budget.

package ratelimit

import (
	"sync"
	"time"
)

// Action identifies what is being throttled.
type Action string

const (
	ActionMessage     Action = "message"
	ActionImageUpload Action = "image_upload"
	ActionVoiceUpload Action = "voice_upload"
	ActionMatchCheck  Action = "match_check"
)

// Limits is a pair of window ceilings. A zero ceiling disables that window.
type Limits struct {
	PerMinute int
	PerHour   int
}

// Result reports the outcome of a check together with the metadata
// clients need to back off intelligently.
type Result struct {
	Allowed   bool      `json:"allowed"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

type key struct {
	userID string
	action Action
}

// Limiter holds per-(user,action) sliding windows.
type Limiter struct {
	mu      sync.Mutex
	windows map[key][]time.Time
	now     func() time.Time
}

func NewLimiter() *Limiter {
	return &Limiter{
		windows: make(map[key][]time.Time),
		now:     time.Now,
	}
}

// NewLimiterWithClock is used by tests to control time.
func NewLimiterWithClock(now func() time.Time) *Limiter {
	l := NewLimiter()
	l.now = now
	return l
}

// Check prunes the caller's window, rejects if either ceiling is reached,
// and otherwise records the request.
func (l *Limiter) Check(userID string, action Action, limits Limits) Result {
	now := l.now()
	k := key{userID: userID, action: action}

	l.mu.Lock()
	defer l.mu.Unlock()

	hourStart := now.Add(-time.Hour)
	events := l.windows[k]
	trimmed := events[:0]
	for _, ts := range events {
		if ts.After(hourStart) {
			trimmed = append(trimmed, ts)
		}
	}

	minuteStart := now.Add(-time.Minute)
	minuteCount := 0
	for _, ts := range trimmed {
		if ts.After(minuteStart) {
			minuteCount++
		}
	}

	if limits.PerMinute > 0 && minuteCount >= limits.PerMinute {
		l.windows[k] = append([]time.Time(nil), trimmed...)
		return Result{
			Allowed:   false,
			Limit:     limits.PerMinute,
			Remaining: 0,
			ResetAt:   oldestIn(trimmed, minuteStart).Add(time.Minute),
		}
	}

	if limits.PerHour > 0 && len(trimmed) >= limits.PerHour {
		l.windows[k] = append([]time.Time(nil), trimmed...)
		return Result{
			Allowed:   false,
			Limit:     limits.PerHour,
			Remaining: 0,
			ResetAt:   trimmed[0].Add(time.Hour),
		}
	}

	trimmed = append(trimmed, now)
	l.windows[k] = append([]time.Time(nil), trimmed...)

	remaining := limits.PerMinute - minuteCount - 1
	if limits.PerMinute == 0 {
		remaining = limits.PerHour - len(trimmed)
	}
	return Result{
		Allowed:   true,
		Limit:     limits.PerMinute,
		Remaining: remaining,
		ResetAt:   now.Add(time.Minute),
	}
}

// Reset clears the window for a user and action.
func (l *Limiter) Reset(userID string, action Action) {
	l.mu.Lock()
	delete(l.windows, key{userID: userID, action: action})
	l.mu.Unlock()
}

func oldestIn(events []time.Time, after time.Time) time.Time {
	for _, ts := range events {
		if ts.After(after) {
			return ts
		}
	}
	return after
}
