package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/healthcarepro/clinicbook/libs/db"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/booking"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/model"
	"github.com/jackc/pgx/v5"
)

type AppointmentRepository struct {
	q db.Querier
}

func NewAppointmentRepository(q db.Querier) *AppointmentRepository {
	return &AppointmentRepository{q: q}
}

const appointmentColumns = `a.id::text, a.doctor_id::text, a.time_slot_id::text, a.first_name, a.last_name,
	a.email, a.phone_number, a.education_level, a.status, a.created_at, a.updated_at`

func scanAppointment(row pgx.Row, extra ...any) (model.Appointment, error) {
	var a model.Appointment
	dest := []any{&a.ID, &a.DoctorID, &a.TimeSlotID, &a.FirstName, &a.LastName,
		&a.Email, &a.Phone, &a.EducationLevel, &a.Status, &a.CreatedAt, &a.UpdatedAt}
	err := row.Scan(append(dest, extra...)...)
	return a, err
}

func (r *AppointmentRepository) Get(ctx context.Context, id string) (model.Appointment, error) {
	if !validID(id) {
		return model.Appointment{}, notFound("appointment", id)
	}
	a, err := scanAppointment(r.q.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments a WHERE a.id = $1`, id))
	return a, wrapNoRows("appointment", id, err)
}

// Insert stores a pending appointment. The partial unique index on
// time_slot_id turns a second live appointment for the slot into
// booking.ErrLostRace.
func (r *AppointmentRepository) Insert(ctx context.Context, a *model.Appointment) error {
	a.ID = uuid.NewString()
	if a.Status == "" {
		a.Status = model.StatusPending
	}
	err := r.q.QueryRow(ctx, `
		INSERT INTO appointments (id, doctor_id, time_slot_id, first_name, last_name,
			email, phone_number, education_level, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`, a.ID, a.DoctorID, a.TimeSlotID, a.FirstName, a.LastName,
		a.Email, a.Phone, a.EducationLevel, a.Status).Scan(&a.CreatedAt, &a.UpdatedAt)
	switch {
	case db.IsUniqueViolation(err):
		return booking.ErrLostRace
	case db.IsForeignKeyViolation(err):
		return notFound("time slot", a.TimeSlotID)
	}
	return err
}

func (r *AppointmentRepository) SwapStatus(ctx context.Context, id string, expected, next model.AppointmentStatus) (bool, error) {
	if !validID(id) {
		return false, notFound("appointment", id)
	}
	tag, err := r.q.Exec(ctx, `
		UPDATE appointments SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
	`, id, expected, next)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

type AppointmentOrder int

const (
	NewestCreated AppointmentOrder = iota
	RecentlyUpdated
)

type AppointmentFilter struct {
	// Status narrows the listing. Empty means all statuses.
	Status model.AppointmentStatus
	// Search matches patient name, email or doctor name, case-insensitive.
	Search string
	Order  AppointmentOrder
	Limit  int
	Offset int
}

// List returns appointments joined with their doctor and slot.
func (r *AppointmentRepository) List(ctx context.Context, f AppointmentFilter) ([]model.AppointmentView, error) {
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	order := "a.created_at DESC, a.id"
	if f.Order == RecentlyUpdated {
		order = "a.updated_at DESC, a.id"
	}
	pattern := ""
	if s := strings.TrimSpace(f.Search); s != "" {
		pattern = "%" + escapeLike(s) + "%"
	}

	rows, err := r.q.Query(ctx, `
		SELECT `+appointmentColumns+`,
		       d.name, d.specialty,
		       to_char(s.date, 'YYYY-MM-DD'), to_char(s.start_time, 'HH24:MI'), to_char(s.end_time, 'HH24:MI')
		FROM appointments a
		JOIN doctors d ON d.id = a.doctor_id
		JOIN time_slots s ON s.id = a.time_slot_id
		WHERE ($1 = '' OR a.status = $1)
		  AND ($2 = '' OR a.first_name ILIKE $2 OR a.last_name ILIKE $2
		       OR a.email ILIKE $2 OR d.name ILIKE $2)
		ORDER BY `+order+`
		LIMIT $3 OFFSET $4
	`, string(f.Status), pattern, limit, max(f.Offset, 0))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.AppointmentView, error) {
		var v model.AppointmentView
		a, err := scanAppointment(row, &v.DoctorName, &v.DoctorSpecialty, &v.SlotDate, &v.SlotStart, &v.SlotEnd)
		v.Appointment = a
		return v, err
	})
}

// ActiveForSlot returns the live (pending or confirmed) appointment on a
// slot, if any.
func (r *AppointmentRepository) ActiveForSlot(ctx context.Context, slotID string) (model.Appointment, bool, error) {
	a, err := scanAppointment(r.q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.time_slot_id = $1 AND a.status <> 'cancelled'
	`, slotID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Appointment{}, false, nil
	}
	if err != nil {
		return model.Appointment{}, false, err
	}
	return a, true, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
