package model

import "time"

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled:
		return true
	}
	return false
}

// HoldsSlot reports whether an appointment in this status keeps its slot
// unavailable.
func (s AppointmentStatus) HoldsSlot() bool {
	return s == StatusPending || s == StatusConfirmed
}

// Transition is a staff action on an appointment.
type Transition string

const (
	TransitionConfirm Transition = "confirm"
	TransitionCancel  Transition = "cancel"
)

// Next returns the status reached by applying t to s. Cancelled is terminal.
func (s AppointmentStatus) Next(t Transition) (AppointmentStatus, bool) {
	switch {
	case t == TransitionConfirm && s == StatusPending:
		return StatusConfirmed, true
	case t == TransitionCancel && (s == StatusPending || s == StatusConfirmed):
		return StatusCancelled, true
	}
	return s, false
}

// SlotAvailableAfter is the availability the slot must have once t is applied.
func (t Transition) SlotAvailableAfter() bool {
	return t == TransitionCancel
}

var EducationLevels = []string{
	"High School",
	"Bachelor's Degree",
	"Master's Degree",
	"Doctorate",
	"Other",
}

type Appointment struct {
	ID             string            `json:"id"`
	DoctorID       string            `json:"doctor_id"`
	TimeSlotID     string            `json:"time_slot_id"`
	FirstName      string            `json:"first_name"`
	LastName       string            `json:"last_name"`
	Email          string            `json:"email"`
	Phone          string            `json:"phone_number"`
	EducationLevel string            `json:"education_level"`
	Status         AppointmentStatus `json:"status"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// AppointmentView is an appointment joined with its doctor and slot for
// staff listings.
type AppointmentView struct {
	Appointment
	DoctorName      string `json:"doctor_name"`
	DoctorSpecialty string `json:"doctor_specialty"`
	SlotDate        string `json:"slot_date"`
	SlotStart       string `json:"slot_start_time"`
	SlotEnd         string `json:"slot_end_time"`
}
