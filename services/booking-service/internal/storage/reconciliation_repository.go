package storage

import (
	"context"

	"github.com/healthcarepro/clinicbook/libs/db"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/model"
	"github.com/jackc/pgx/v5"
)

type ReconciliationRepository struct {
	q db.Querier
}

func NewReconciliationRepository(q db.Querier) *ReconciliationRepository {
	return &ReconciliationRepository{q: q}
}

const reconciliationColumns = `id, kind, COALESCE(appointment_id::text, ''), time_slot_id::text,
	desired_available, detail, attempts, resolved_at, created_at`

func scanReconciliation(row pgx.Row) (model.ReconciliationItem, error) {
	var it model.ReconciliationItem
	err := row.Scan(&it.ID, &it.Kind, &it.AppointmentID, &it.TimeSlotID,
		&it.DesiredAvailable, &it.Detail, &it.Attempts, &it.ResolvedAt, &it.CreatedAt)
	return it, err
}

func (r *ReconciliationRepository) Insert(ctx context.Context, it model.ReconciliationItem) error {
	var apptID *string
	if it.AppointmentID != "" {
		apptID = &it.AppointmentID
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO reconciliation_items (kind, appointment_id, time_slot_id, desired_available, detail)
		VALUES ($1, $2, $3, $4, $5)
	`, it.Kind, apptID, it.TimeSlotID, it.DesiredAvailable, it.Detail)
	return err
}

// ClaimOpen locks up to limit unresolved items. Run it inside a transaction:
// concurrent workers skip each other's rows until commit.
func (r *ReconciliationRepository) ClaimOpen(ctx context.Context, limit int) ([]model.ReconciliationItem, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+reconciliationColumns+`
		FROM reconciliation_items
		WHERE resolved_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.ReconciliationItem, error) {
		return scanReconciliation(row)
	})
}

func (r *ReconciliationRepository) Resolve(ctx context.Context, id int64, detail string) error {
	_, err := r.q.Exec(ctx, `
		UPDATE reconciliation_items
		SET resolved_at = now(), attempts = attempts + 1, detail = $2
		WHERE id = $1
	`, id, detail)
	return err
}

func (r *ReconciliationRepository) Bump(ctx context.Context, id int64, detail string) error {
	_, err := r.q.Exec(ctx, `
		UPDATE reconciliation_items SET attempts = attempts + 1, detail = $2 WHERE id = $1
	`, id, detail)
	return err
}

// Recent lists the newest items, optionally only unresolved ones.
func (r *ReconciliationRepository) Recent(ctx context.Context, openOnly bool, limit int) ([]model.ReconciliationItem, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.q.Query(ctx, `
		SELECT `+reconciliationColumns+`
		FROM reconciliation_items
		WHERE NOT $1 OR resolved_at IS NULL
		ORDER BY id DESC
		LIMIT $2
	`, openOnly, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.ReconciliationItem, error) {
		return scanReconciliation(row)
	})
}
