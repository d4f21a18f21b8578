package booking

import (
	"github.com/healthcarepro/clinicbook/libs/outbox"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/model"
)

const (
	EventAppointmentBooked    = "booking.appointment.booked.v1"
	EventAppointmentConfirmed = "booking.appointment.confirmed.v1"
)

// AppointmentEvent is the payload of appointment events. It carries
// everything the notifier needs to render a message without calling back.
type AppointmentEvent struct {
	AppointmentID   string `json:"appointment_id"`
	Status          string `json:"status"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Email           string `json:"email"`
	DoctorName      string `json:"doctor_name"`
	DoctorSpecialty string `json:"doctor_specialty"`
	Date            string `json:"date"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
}

func appointmentEvent(eventType string, appt model.Appointment, doc model.Doctor, slot model.TimeSlot) (outbox.Event, error) {
	return outbox.NewEvent("appointment", appt.ID, eventType, AppointmentEvent{
		AppointmentID:   appt.ID,
		Status:          string(appt.Status),
		FirstName:       appt.FirstName,
		LastName:        appt.LastName,
		Email:           appt.Email,
		DoctorName:      doc.Name,
		DoctorSpecialty: doc.Specialty,
		Date:            slot.Date,
		StartTime:       slot.StartTime,
		EndTime:         slot.EndTime,
	})
}
