package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/healthcarepro/clinicbook/libs/db"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/model"
	"github.com/jackc/pgx/v5"
)

type StaffRepository struct {
	q db.Querier
}

func NewStaffRepository(q db.Querier) *StaffRepository {
	return &StaffRepository{q: q}
}

const staffColumns = `id::text, user_id, email, role, is_active, created_at, updated_at`

func scanStaff(row pgx.Row) (model.StaffAccount, error) {
	var s model.StaffAccount
	err := row.Scan(&s.ID, &s.UserID, &s.Email, &s.Role, &s.Active, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func (r *StaffRepository) List(ctx context.Context) ([]model.StaffAccount, error) {
	rows, err := r.q.Query(ctx, `SELECT `+staffColumns+` FROM staff ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.StaffAccount, error) {
		return scanStaff(row)
	})
}

func (r *StaffRepository) Get(ctx context.Context, id string) (model.StaffAccount, error) {
	if !validID(id) {
		return model.StaffAccount{}, notFound("staff account", id)
	}
	s, err := scanStaff(r.q.QueryRow(ctx, `SELECT `+staffColumns+` FROM staff WHERE id = $1`, id))
	return s, wrapNoRows("staff account", id, err)
}

func (r *StaffRepository) GetByUserID(ctx context.Context, userID string) (model.StaffAccount, error) {
	s, err := scanStaff(r.q.QueryRow(ctx, `SELECT `+staffColumns+` FROM staff WHERE user_id = $1`, userID))
	return s, wrapNoRows("staff account for user", userID, err)
}

// Create inserts an account. A duplicate user id or email yields ErrConflict.
func (r *StaffRepository) Create(ctx context.Context, s *model.StaffAccount) error {
	s.ID = uuid.NewString()
	err := r.q.QueryRow(ctx, `
		INSERT INTO staff (id, user_id, email, role, is_active)
		VALUES ($1, $2, lower($3), $4, $5)
		RETURNING email, created_at, updated_at
	`, s.ID, s.UserID, s.Email, s.Role, s.Active).Scan(&s.Email, &s.CreatedAt, &s.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

// StaffPatch holds the fields an admin may change. Nil leaves a field as is.
type StaffPatch struct {
	Role   *model.StaffRole
	Active *bool
}

func (r *StaffRepository) Update(ctx context.Context, id string, p StaffPatch) (model.StaffAccount, error) {
	if !validID(id) {
		return model.StaffAccount{}, notFound("staff account", id)
	}
	s, err := scanStaff(r.q.QueryRow(ctx, `
		UPDATE staff
		SET role = COALESCE($2, role), is_active = COALESCE($3, is_active), updated_at = now()
		WHERE id = $1
		RETURNING `+staffColumns, id, p.Role, p.Active))
	return s, wrapNoRows("staff account", id, err)
}

func (r *StaffRepository) Delete(ctx context.Context, id string) (model.StaffAccount, error) {
	if !validID(id) {
		return model.StaffAccount{}, notFound("staff account", id)
	}
	s, err := scanStaff(r.q.QueryRow(ctx, `DELETE FROM staff WHERE id = $1 RETURNING `+staffColumns, id))
	return s, wrapNoRows("staff account", id, err)
}

// SaveCredential stores a password hash for the local identity provider.
func (r *StaffRepository) SaveCredential(ctx context.Context, userID, email string, hash []byte) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO staff_credentials (user_id, email, password_hash)
		VALUES ($1, lower($2), $3)
	`, userID, email, string(hash))
	if db.IsUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (r *StaffRepository) DeleteCredential(ctx context.Context, userID string) error {
	_, err := r.q.Exec(ctx, `DELETE FROM staff_credentials WHERE user_id = $1`, userID)
	return err
}
