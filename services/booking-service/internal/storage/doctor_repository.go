package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/healthcarepro/clinicbook/libs/db"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/model"
	"github.com/jackc/pgx/v5"
)

type DoctorRepository struct {
	q db.Querier
}

func NewDoctorRepository(q db.Querier) *DoctorRepository {
	return &DoctorRepository{q: q}
}

const doctorColumns = `id::text, name, specialty, description, profile_image_url, archived_at, created_at, updated_at`

func scanDoctor(row pgx.Row) (model.Doctor, error) {
	var d model.Doctor
	err := row.Scan(&d.ID, &d.Name, &d.Specialty, &d.Description, &d.ProfileImageURL, &d.ArchivedAt, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

// List returns doctors ordered by name. Archived doctors are included only on request.
func (r *DoctorRepository) List(ctx context.Context, includeArchived bool) ([]model.Doctor, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		WHERE $1 OR archived_at IS NULL
		ORDER BY name, id
	`, includeArchived)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Doctor, error) {
		return scanDoctor(row)
	})
}

func (r *DoctorRepository) Get(ctx context.Context, id string) (model.Doctor, error) {
	if !validID(id) {
		return model.Doctor{}, notFound("doctor", id)
	}
	d, err := scanDoctor(r.q.QueryRow(ctx, `SELECT `+doctorColumns+` FROM doctors WHERE id = $1`, id))
	return d, wrapNoRows("doctor", id, err)
}

func (r *DoctorRepository) Create(ctx context.Context, d *model.Doctor) error {
	d.ID = uuid.NewString()
	return r.q.QueryRow(ctx, `
		INSERT INTO doctors (id, name, specialty, description, profile_image_url)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`, d.ID, d.Name, d.Specialty, d.Description, d.ProfileImageURL).Scan(&d.CreatedAt, &d.UpdatedAt)
}

// Update rewrites the editable profile fields of an active doctor.
func (r *DoctorRepository) Update(ctx context.Context, d *model.Doctor) error {
	if !validID(d.ID) {
		return notFound("doctor", d.ID)
	}
	err := r.q.QueryRow(ctx, `
		UPDATE doctors
		SET name = $2, specialty = $3, description = $4, updated_at = now()
		WHERE id = $1 AND archived_at IS NULL
		RETURNING profile_image_url, created_at, updated_at
	`, d.ID, d.Name, d.Specialty, d.Description).Scan(&d.ProfileImageURL, &d.CreatedAt, &d.UpdatedAt)
	return wrapNoRows("doctor", d.ID, err)
}

func (r *DoctorRepository) SetImage(ctx context.Context, id, url string) error {
	if !validID(id) {
		return notFound("doctor", id)
	}
	tag, err := r.q.Exec(ctx, `
		UPDATE doctors SET profile_image_url = $2, updated_at = now()
		WHERE id = $1 AND archived_at IS NULL
	`, id, url)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound("doctor", id)
	}
	return nil
}

// Archive hides a doctor from the directory. It refuses with ErrInUse while
// the doctor still has slots dated today or later; past slots and their
// appointments stay as history.
func (r *DoctorRepository) Archive(ctx context.Context, id, today string) error {
	if !validID(id) {
		return notFound("doctor", id)
	}
	tag, err := r.q.Exec(ctx, `
		UPDATE doctors SET archived_at = now(), updated_at = now()
		WHERE id = $1 AND archived_at IS NULL
		  AND NOT EXISTS (SELECT 1 FROM time_slots WHERE doctor_id = $1 AND date >= $2::date)
	`, id, today)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var archived, upcoming bool
	err = r.q.QueryRow(ctx, `
		SELECT archived_at IS NOT NULL,
		       EXISTS (SELECT 1 FROM time_slots WHERE doctor_id = $1 AND date >= $2::date)
		FROM doctors WHERE id = $1
	`, id, today).Scan(&archived, &upcoming)
	if err != nil {
		return wrapNoRows("doctor", id, err)
	}
	if archived {
		return notFound("doctor", id)
	}
	return ErrInUse
}

func (r *DoctorRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.q.QueryRow(ctx, `SELECT count(*) FROM doctors WHERE archived_at IS NULL`).Scan(&n)
	return n, err
}
