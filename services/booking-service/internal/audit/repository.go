// Package audit records staff and admin writes.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/healthcarepro/clinicbook/libs/db"
)

const (
	DoctorCreated        = "doctor.created"
	DoctorUpdated        = "doctor.updated"
	DoctorArchived       = "doctor.archived"
	DoctorImageUpdated   = "doctor.image_updated"
	SlotCreated          = "slot.created"
	SlotToggled          = "slot.availability_changed"
	SlotDeleted          = "slot.deleted"
	AppointmentConfirmed = "appointment.confirmed"
	AppointmentCancelled = "appointment.cancelled"
	StaffCreated         = "staff.created"
	StaffUpdated         = "staff.updated"
	StaffDeleted         = "staff.deleted"
)

type Recorder interface {
	Record(ctx context.Context, eventType, actorID string, metadata map[string]any) error
}

type Repository struct {
	q db.Querier
}

func NewRepository(q db.Querier) *Repository {
	return &Repository{q: q}
}

func (r *Repository) Record(ctx context.Context, eventType, actorID string, metadata map[string]any) error {
	if metadata == nil {
		metadata = map[string]any{}
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return err
	}
	_, err = r.q.Exec(ctx, `
		INSERT INTO audit_events (event_type, actor_id, metadata)
		VALUES ($1, NULLIF($2, ''), $3)
	`, eventType, actorID, raw)
	return err
}

type Event struct {
	ID        int64           `json:"id"`
	EventType string          `json:"event_type"`
	ActorID   string          `json:"actor_id,omitempty"`
	Metadata  json.RawMessage `json:"metadata"`
	CreatedAt string          `json:"created_at"`
}

func (r *Repository) ListRecent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.q.Query(ctx, `
		SELECT id, event_type, COALESCE(actor_id, ''), metadata, created_at
		FROM audit_events
		ORDER BY id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var e Event
		var createdAt time.Time
		if err := rows.Scan(&e.ID, &e.EventType, &e.ActorID, &e.Metadata, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt = createdAt.UTC().Format(time.RFC3339)
		events = append(events, e)
	}
	return events, rows.Err()
}
