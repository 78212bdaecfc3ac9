// internal/match/postgres.go

package match

import (
	"context"

	"github.com/jmoiron/sqlx"
)

type postgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) Store {
	return &postgresStore{db: db}
}

// AreMutuallyMatched checks that both directions of the interest
// relation are accepted.
func (r *postgresStore) AreMutuallyMatched(ctx context.Context, userA, userB string) (bool, error) {
	query := `
        SELECT EXISTS(
            SELECT 1
            FROM interests a
            JOIN interests b
              ON a.from_user_id = b.to_user_id
             AND a.to_user_id = b.from_user_id
            WHERE a.from_user_id = $1
              AND a.to_user_id = $2
              AND a.status = 'accepted'
              AND b.status = 'accepted'
        )`

	var matched bool
	err := r.db.GetContext(ctx, &matched, query, userA, userB)
	return matched, err
}
