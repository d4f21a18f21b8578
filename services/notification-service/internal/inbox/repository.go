package inbox

import (
	"context"

	"github.com/healthcarepro/clinicbook/libs/db"
	"github.com/jackc/pgx/v5"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Claim records the event id and runs fn in the same transaction. A seen id
// skips fn and reports false. When fn fails the id is rolled back with
// everything fn wrote, so a redelivery is processed again.
func (r *Repository) Claim(ctx context.Context, eventID, eventType string, fn func(q db.Querier) error) (bool, error) {
	claimed := false
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO inbox_events (event_id, event_type)
			VALUES ($1, $2)
			ON CONFLICT (event_id) DO NOTHING
		`, eventID, eventType)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		claimed = true
		return fn(tx)
	})
	if err != nil {
		return false, err
	}
	return claimed, nil
}
