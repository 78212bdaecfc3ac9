package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pairlyhq/pairly-backend/internal/plan"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestLimiterCheck(t *testing.T) {
	limits := Limits{PerMinute: 10, PerHour: 100}

	t.Run("allows up to the minute ceiling then rejects", func(t *testing.T) {
		clock := &fakeClock{t: time.Now()}
		l := NewLimiterWithClock(clock.now)

		for i := 0; i < 10; i++ {
			res := l.Check("alice", ActionMessage, limits)
			require.True(t, res.Allowed, "request %d", i+1)
		}

		res := l.Check("alice", ActionMessage, limits)
		assert.False(t, res.Allowed)
		assert.Equal(t, 10, res.Limit)
		assert.Equal(t, 0, res.Remaining)
		assert.False(t, res.ResetAt.IsZero())
	})

	t.Run("rejections are not recorded", func(t *testing.T) {
		clock := &fakeClock{t: time.Now()}
		l := NewLimiterWithClock(clock.now)

		for i := 0; i < 10; i++ {
			l.Check("alice", ActionMessage, limits)
		}
		// Hammering while limited must not extend the window.
		for i := 0; i < 50; i++ {
			l.Check("alice", ActionMessage, limits)
		}

		clock.advance(61 * time.Second)
		res := l.Check("alice", ActionMessage, limits)
		assert.True(t, res.Allowed)
	})

	t.Run("window rolls as time passes", func(t *testing.T) {
		clock := &fakeClock{t: time.Now()}
		l := NewLimiterWithClock(clock.now)

		for i := 0; i < 10; i++ {
			l.Check("alice", ActionMessage, limits)
		}
		assert.False(t, l.Check("alice", ActionMessage, limits).Allowed)

		clock.advance(30 * time.Second)
		assert.False(t, l.Check("alice", ActionMessage, limits).Allowed)

		clock.advance(31 * time.Second)
		assert.True(t, l.Check("alice", ActionMessage, limits).Allowed)
	})

	t.Run("hour ceiling binds across minutes", func(t *testing.T) {
		clock := &fakeClock{t: time.Now()}
		l := NewLimiterWithClock(clock.now)
		tight := Limits{PerMinute: 10, PerHour: 20}

		for burst := 0; burst < 2; burst++ {
			for i := 0; i < 10; i++ {
				require.True(t, l.Check("alice", ActionMessage, tight).Allowed)
			}
			clock.advance(61 * time.Second)
		}

		res := l.Check("alice", ActionMessage, tight)
		assert.False(t, res.Allowed)
		assert.Equal(t, 20, res.Limit)
	})

	t.Run("users and actions are independent", func(t *testing.T) {
		clock := &fakeClock{t: time.Now()}
		l := NewLimiterWithClock(clock.now)

		for i := 0; i < 10; i++ {
			l.Check("alice", ActionMessage, limits)
		}
		assert.False(t, l.Check("alice", ActionMessage, limits).Allowed)
		assert.True(t, l.Check("bob", ActionMessage, limits).Allowed)
		assert.True(t, l.Check("alice", ActionImageUpload, limits).Allowed)
	})

	t.Run("reset clears the window", func(t *testing.T) {
		clock := &fakeClock{t: time.Now()}
		l := NewLimiterWithClock(clock.now)

		for i := 0; i < 10; i++ {
			l.Check("alice", ActionMessage, limits)
		}
		l.Reset("alice", ActionMessage)
		assert.True(t, l.Check("alice", ActionMessage, limits).Allowed)
	})
}

func TestPlanLimiterResolve(t *testing.T) {
	pl := NewPlanLimiter(NewLimiter(), Config{
		MessagesPerMinute:    10,
		MessagesPerHour:      100,
		UploadsPerMinute:     5,
		UploadsPerHour:       40,
		MatchChecksPerMinute: 30,
	})

	t.Run("messages are throttled the same for every tier", func(t *testing.T) {
		for _, p := range []plan.Plan{plan.Free, plan.Premium, plan.PremiumPlus} {
			l := pl.Resolve(p, ActionMessage)
			assert.Equal(t, Limits{PerMinute: 10, PerHour: 100}, l)
		}
	})

	t.Run("upload ceilings scale with the tier", func(t *testing.T) {
		assert.Equal(t, Limits{PerMinute: 5, PerHour: 40}, pl.Resolve(plan.Free, ActionImageUpload))
		assert.Equal(t, Limits{PerMinute: 10, PerHour: 80}, pl.Resolve(plan.Premium, ActionVoiceUpload))
		assert.Equal(t, Limits{PerMinute: 20, PerHour: 160}, pl.Resolve(plan.PremiumPlus, ActionImageUpload))
	})

	t.Run("match checks are minute-only", func(t *testing.T) {
		l := pl.Resolve(plan.Free, ActionMatchCheck)
		assert.Equal(t, 30, l.PerMinute)
		assert.Equal(t, 0, l.PerHour)
	})
}
