// internal/match/repository.go

package match

import (
	"context"
)

// Store is the authoritative match state, queried only on cache miss.
// Two users are mutually matched when both directions of the interest
// relation have reached the accepted state.
type Store interface {
	AreMutuallyMatched(ctx context.Context, userA, userB string) (bool, error)
}
