package storage

import (
	"context"

	"github.com/healthcarepro/clinicbook/libs/db"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/model"
)

// Overview counts the records shown on the admin dashboard in one round trip.
func Overview(ctx context.Context, q db.Querier) (model.Overview, error) {
	var o model.Overview
	err := q.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM doctors WHERE archived_at IS NULL),
			(SELECT count(*) FROM appointments),
			(SELECT count(*) FROM staff),
			(SELECT count(*) FROM appointments WHERE status = 'confirmed')
	`).Scan(&o.Doctors, &o.Appointments, &o.StaffAccounts, &o.ConfirmedAppointments)
	return o, err
}
