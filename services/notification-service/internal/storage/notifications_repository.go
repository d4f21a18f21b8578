package storage

import (
	"context"
	"encoding/json"

	"github.com/healthcarepro/clinicbook/libs/db"
)

const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

type Notification struct {
	AppointmentID string
	Template      string
	Recipient     string
	Payload       any
	Status        string
	ErrorReason   string
}

type Repository struct {
	q db.Querier
}

func NewRepository(q db.Querier) *Repository {
	return &Repository{q: q}
}

func (r *Repository) Insert(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return err
	}

	_, err = r.q.Exec(ctx, `
		INSERT INTO notifications (appointment_id, template, recipient, payload, status, error_reason)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
	`, n.AppointmentID, n.Template, n.Recipient, payload, n.Status, n.ErrorReason)
	return err
}
