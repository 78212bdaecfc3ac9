// Package plan defines the subscription tiers used by quota, rate-limit
// and media ceilings. The authoritative tier for a user is read from
// durable storage on every request.
package plan

// Plan is a subscription tier.
type Plan string

const (
	Free        Plan = "free"
	Premium     Plan = "premium"
	PremiumPlus Plan = "premium_plus"
)

// Parse normalizes a stored tier value. Unknown values degrade to Free
// so a bad row can never grant elevated limits.
func Parse(s string) Plan {
	switch Plan(s) {
	case Premium:
		return Premium
	case PremiumPlus:
		return PremiumPlus
	default:
		return Free
	}
}
