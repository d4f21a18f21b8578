package model

import "time"

const (
	// ReconcileOrphanedHold: a slot was claimed, the appointment insert failed
	// and releasing the slot failed too.
	ReconcileOrphanedHold = "orphaned_slot_hold"
	// ReconcileSlotSync: an appointment status changed but the slot write
	// did not follow.
	ReconcileSlotSync = "slot_sync"
)

type ReconciliationItem struct {
	ID               int64      `json:"id"`
	Kind             string     `json:"kind"`
	AppointmentID    string     `json:"appointment_id,omitempty"`
	TimeSlotID       string     `json:"time_slot_id"`
	DesiredAvailable bool       `json:"desired_available"`
	Detail           string     `json:"detail,omitempty"`
	Attempts         int        `json:"attempts"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

type Overview struct {
	Doctors               int `json:"total_doctors"`
	Appointments          int `json:"total_appointments"`
	StaffAccounts         int `json:"total_staff"`
	ConfirmedAppointments int `json:"confirmed_appointments"`
}
