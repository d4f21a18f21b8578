package templates

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() Data {
	return Data{
		ClinicName:      "Riverside Clinic",
		PatientName:     "Ada Lovelace",
		DoctorName:      "Dr. Grace Hopper",
		DoctorSpecialty: "Cardiology",
		Date:            "2024-06-01",
		StartTime:       "09:00",
		EndTime:         "09:30",
	}
}

func TestRenderBooked(t *testing.T) {
	msg, err := Render(AppointmentBooked, sample())
	require.NoError(t, err)

	assert.Equal(t, "Riverside Clinic: appointment request received", msg.Subject)
	assert.Contains(t, msg.Body, "Hello Ada Lovelace")
	assert.Contains(t, msg.Body, "Dr. Grace Hopper (Cardiology)")
	assert.Contains(t, msg.Body, "Saturday, June 1, 2024 from 09:00 to 09:30")
}

func TestRenderConfirmed(t *testing.T) {
	msg, err := Render(AppointmentConfirmed, sample())
	require.NoError(t, err)

	assert.Equal(t, "Riverside Clinic: your appointment is confirmed", msg.Subject)
	assert.Contains(t, msg.Body, "is confirmed for\nSaturday, June 1, 2024 from 09:00 to 09:30")
}

func TestRenderUnknown(t *testing.T) {
	_, err := Render("appointment_moved", sample())
	assert.ErrorIs(t, err, ErrUnknownTemplate)
}

func TestLongDateKeepsUnparsedInput(t *testing.T) {
	assert.Equal(t, "tomorrow", longDate("tomorrow"))
}
