package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/healthcarepro/clinicbook/libs/db"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/model"
	"github.com/jackc/pgx/v5"
)

type SlotRepository struct {
	q db.Querier
}

func NewSlotRepository(q db.Querier) *SlotRepository {
	return &SlotRepository{q: q}
}

const slotColumns = `id::text, doctor_id::text, to_char(date, 'YYYY-MM-DD'),
	to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'), is_available, created_at`

func scanSlot(row pgx.Row) (model.TimeSlot, error) {
	var s model.TimeSlot
	err := row.Scan(&s.ID, &s.DoctorID, &s.Date, &s.StartTime, &s.EndTime, &s.Available, &s.CreatedAt)
	return s, err
}

type SlotFilter struct {
	AvailableOnly bool
	// FromDate (YYYY-MM-DD) drops slots dated earlier. Empty keeps all.
	FromDate string
}

// ListByDoctor returns a doctor's slots ordered by date then start time.
func (r *SlotRepository) ListByDoctor(ctx context.Context, doctorID string, f SlotFilter) ([]model.TimeSlot, error) {
	if !validID(doctorID) {
		return nil, nil
	}
	rows, err := r.q.Query(ctx, `
		SELECT `+slotColumns+`
		FROM time_slots
		WHERE doctor_id = $1
		  AND (NOT $2 OR is_available)
		  AND ($3 = '' OR date >= $3::date)
		ORDER BY date, start_time
	`, doctorID, f.AvailableOnly, f.FromDate)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.TimeSlot, error) {
		return scanSlot(row)
	})
}

func (r *SlotRepository) Get(ctx context.Context, id string) (model.TimeSlot, error) {
	if !validID(id) {
		return model.TimeSlot{}, notFound("time slot", id)
	}
	s, err := scanSlot(r.q.QueryRow(ctx, `SELECT `+slotColumns+` FROM time_slots WHERE id = $1`, id))
	return s, wrapNoRows("time slot", id, err)
}

// Create inserts a slot for an active doctor. A slot with the same doctor,
// date and start time yields ErrConflict.
func (r *SlotRepository) Create(ctx context.Context, s *model.TimeSlot) error {
	if !validID(s.DoctorID) {
		return notFound("doctor", s.DoctorID)
	}
	s.ID = uuid.NewString()
	err := r.q.QueryRow(ctx, `
		INSERT INTO time_slots (id, doctor_id, date, start_time, end_time, is_available)
		SELECT $1, d.id, $3::date, $4::time, $5::time, $6
		FROM doctors d
		WHERE d.id = $2 AND d.archived_at IS NULL
		RETURNING created_at
	`, s.ID, s.DoctorID, s.Date, s.StartTime, s.EndTime, s.Available).Scan(&s.CreatedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return notFound("doctor", s.DoctorID)
	case db.IsUniqueViolation(err):
		return ErrConflict
	}
	return err
}

// SwapAvailability sets is_available to next only when it currently equals
// expected. This is the only way availability is ever written.
func (r *SlotRepository) SwapAvailability(ctx context.Context, id string, expected, next bool) (bool, error) {
	if !validID(id) {
		return false, notFound("time slot", id)
	}
	tag, err := r.q.Exec(ctx, `
		UPDATE time_slots
		SET is_available = $3, updated_at = now()
		WHERE id = $1 AND is_available = $2
	`, id, expected, next)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	var exists bool
	if err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM time_slots WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, notFound("time slot", id)
	}
	return false, nil
}

// Delete removes a slot nobody ever booked. Slots referenced by any
// appointment, cancelled ones included, yield ErrInUse.
func (r *SlotRepository) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return notFound("time slot", id)
	}
	tag, err := r.q.Exec(ctx, `
		DELETE FROM time_slots
		WHERE id = $1
		  AND NOT EXISTS (SELECT 1 FROM appointments WHERE time_slot_id = $1)
	`, id)
	if db.IsForeignKeyViolation(err) {
		return ErrInUse
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return ErrInUse
}

// Toggle is the staff-facing availability write. It is conditional on the
// value the staff member saw, and it never frees a slot that a pending or
// confirmed appointment still holds.
func (r *SlotRepository) Toggle(ctx context.Context, id string, expected, next bool) (model.TimeSlot, error) {
	if !validID(id) {
		return model.TimeSlot{}, notFound("time slot", id)
	}
	s, err := scanSlot(r.q.QueryRow(ctx, `
		UPDATE time_slots
		SET is_available = $3, updated_at = now()
		WHERE id = $1 AND is_available = $2
		  AND (NOT $3 OR NOT EXISTS (
		      SELECT 1 FROM appointments WHERE time_slot_id = $1 AND status <> 'cancelled'))
		RETURNING `+slotColumns, id, expected, next))
	if !errors.Is(err, pgx.ErrNoRows) {
		return s, err
	}
	current, err := r.Get(ctx, id)
	if err != nil {
		return model.TimeSlot{}, err
	}
	if current.Available != expected {
		return current, ErrStaleWrite
	}
	return current, ErrInUse
}
